package server

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/mystictxt/internal/observability/logger"
	"github.com/smallbiznis/mystictxt/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	rateLimitReasonMessageRate = "message-rate"
	rateLimitReasonRequestRate = "session-request-rate"
)

type limitCheck func(ctx context.Context, key string) (*ratelimit.Decision, error)

// MessageRateLimit throttles message posts per actor.
func (s *Server) MessageRateLimit() gin.HandlerFunc {
	return s.chatRateLimit(rateLimitReasonMessageRate, func(ctx context.Context, key string) (*ratelimit.Decision, error) {
		return s.chatLimiter.AllowMessage(ctx, key)
	})
}

// SessionRequestRateLimit throttles session requests per customer.
func (s *Server) SessionRequestRateLimit() gin.HandlerFunc {
	return s.chatRateLimit(rateLimitReasonRequestRate, func(ctx context.Context, key string) (*ratelimit.Decision, error) {
		return s.chatLimiter.AllowSessionRequest(ctx, key)
	})
}

func (s *Server) chatRateLimit(reason string, check limitCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.chatLimiter.Enabled() {
			c.Next()
			return
		}

		actor, ok := mustActor(c)
		if !ok {
			return
		}

		ctx := c.Request.Context()
		result, err := check(ctx, actor.ID)
		if err != nil {
			// Fail open while redis is unreachable.
			logger.FromContext(ctx).Warn("chat rate limit check failed", zap.String("reason", reason), zap.Error(err))
			c.Next()
			return
		}
		if result != nil && result.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}
		if result == nil || result.Allowed {
			c.Next()
			return
		}

		denyChatRateLimit(c, reason, result, s)
	}
}

func denyChatRateLimit(c *gin.Context, reason string, result *ratelimit.Decision, s *Server) {
	ctx := c.Request.Context()
	endpoint := normalizeRateLimitEndpoint(c)
	logger.FromContext(ctx).Warn("chat rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, reason)
	}

	c.Header("Retry-After", retryAfterSeconds(result.RetryAfter))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ratelimit.ErrRateLimited)
}

func retryAfterSeconds(d time.Duration) string {
	seconds := int(d.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
