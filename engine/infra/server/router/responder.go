package router

import (
	"net/http"
	"strconv"

	"github.com/cardmart/cardmart/engine/core"
	"github.com/cardmart/cardmart/pkg/logger"
	"github.com/gin-gonic/gin"
)

// RespondError renders any error as the canonical REST error body
// {status, error, details?, code?} and aborts the request. Untyped errors
// are reported as a generic internal failure; their detail is only logged.
func RespondError(c *gin.Context, err error) {
	typed := core.AsError(err)
	problem := core.ProblemFromError(typed)
	logProblem(c, typed, problem.Status)
	if typed.Code == core.CodeRateLimited {
		if retryAfter, ok := typed.Extras["retry_after"].(int64); ok {
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
		}
	}
	c.AbortWithStatusJSON(problem.Status, problem)
}

// RespondValidation renders a malformed-parameter failure.
func RespondValidation(c *gin.Context, details string) {
	RespondError(c, core.NewError(nil, core.CodeValidation, details))
}

func logProblem(c *gin.Context, err *core.Error, status int) {
	log := logger.FromContext(c.Request.Context())
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	fields := []any{
		"status", status,
		"code", err.Code,
		"details", err.Message,
		"route", route,
	}
	if err.Err != nil {
		fields = append(fields, "error", err.Err)
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", fields...)
		return
	}
	log.Warn("request failed", fields...)
}
