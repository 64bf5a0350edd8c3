package usage

import (
	"context"
	"strconv"
	"time"

	"github.com/cardmart/cardmart/engine/auth"
	"github.com/cardmart/cardmart/engine/core"
	"github.com/cardmart/cardmart/engine/infra/server/router"
	"github.com/cardmart/cardmart/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Middleware enforces per-key quotas before the handler runs and records
// the call outcome after it completes. Recording is attempted even when the
// handler fails so failed calls still count against quota.
type Middleware struct {
	limiter *Limiter
	repo    Repository
}

func NewMiddleware(limiter *Limiter, repo Repository) *Middleware {
	return &Middleware{limiter: limiter, repo: repo}
}

// Gate must run after authentication; it reads the principal from context.
func (m *Middleware) Gate() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := auth.APIKeyFromContext(c.Request.Context())
		if !ok {
			router.RespondError(c, core.NewError(nil, core.CodeUnauthorized, "authentication required"))
			return
		}
		decision, err := m.limiter.Check(c.Request.Context(), key)
		if err != nil {
			router.RespondError(c, core.Internal(err))
			return
		}
		start := time.Now()
		// Deferred so a panicking handler, recovered upstream, still
		// leaves a usage row behind.
		defer m.record(c, start)
		if !decision.Allowed {
			retryAfter := int64(decision.RetryAfter.Seconds())
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			setQuotaHeaders(c, decision)
			router.RespondError(c, core.NewErrorWithExtras(
				nil,
				core.CodeRateLimited,
				"rate limit exceeded for "+decision.Window+" window",
				map[string]any{"retry_after": retryAfter, "window": decision.Window},
			))
			return
		}
		setQuotaHeaders(c, decision)
		c.Next()
	}
}

func setQuotaHeaders(c *gin.Context, d *Decision) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// record appends the usage row for the finished call. Failure to record is
// logged but never surfaces to the caller.
func (m *Middleware) record(c *gin.Context, start time.Time) {
	key, ok := auth.APIKeyFromContext(c.Request.Context())
	if !ok {
		return
	}
	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = c.Request.URL.Path
	}
	rec, err := NewRecord(key.ID, endpoint, c.Request.Method, c.Writer.Status(), time.Since(start))
	if err != nil {
		logger.FromContext(c.Request.Context()).Warn("failed to build usage record", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 2*time.Second)
	defer cancel()
	if err := m.repo.Insert(ctx, rec); err != nil {
		logger.FromContext(c.Request.Context()).Warn("failed to record usage", "error", err, "key_id", key.ID)
	}
}
