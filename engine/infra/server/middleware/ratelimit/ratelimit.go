// Package ratelimit provides the coarse pre-authentication IP limit. It
// sits in front of credential validation so bcrypt work cannot be farmed
// by unauthenticated callers; the per-key quotas are enforced separately
// by the usage gate after authentication.
package ratelimit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cardmart/cardmart/engine/core"
	"github.com/cardmart/cardmart/engine/infra/server/router"
	"github.com/cardmart/cardmart/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const storePrefix = "cardmart:ratelimit:"

// Config holds the IP rate settings.
type Config struct {
	Limit  int64
	Period time.Duration
	// RedisAddr selects the shared store. Empty means a per-process
	// in-memory store, which is fine for a single replica.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Manager owns the limiter instance and its backing store.
type Manager struct {
	limiter *limiter.Limiter
}

// NewManager builds the limiter over redis when an address is configured,
// otherwise over an in-memory store.
func NewManager(cfg *Config) (*Manager, error) {
	rate := limiter.Rate{Limit: cfg.Limit, Period: cfg.Period}
	var store limiter.Store
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		var err error
		store, err = sredis.NewStoreWithOptions(client, limiter.StoreOptions{
			Prefix: storePrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("creating redis limiter store: %w", err)
		}
	} else {
		store = memory.NewStore()
	}
	return &Manager{limiter: limiter.New(store, rate)}, nil
}

// Middleware enforces the per-IP rate. Failures of the store itself fail
// open with a warning; refusing all traffic on a limiter outage would be
// a worse incident than briefly losing the coarse limit.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		lctx, err := m.limiter.Get(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.FromContext(c.Request.Context()).Warn("IP rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))
		if lctx.Reached {
			retryAfter := lctx.Reset - time.Now().Unix()
			if retryAfter < 0 {
				retryAfter = 0
			}
			router.RespondError(c, core.NewErrorWithExtras(nil, core.CodeRateLimited,
				"too many requests from this address",
				map[string]any{"retry_after": retryAfter}))
			return
		}
		c.Next()
	}
}
