package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/mystictxt/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const requestIDHeader = "X-Request-Id"

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier returns (type, code) for the last handler error.
	// A type of "internal" logs at error level.
	ErrorClassifier func(err error) (string, string)
}

type routeClass int

const (
	routeNormal routeClass = iota
	// probes and the endpoints clients poll every few seconds
	routeQuiet
	routeStream
)

var quietRoutes = map[string]bool{
	"/health":                         true,
	"/metrics":                        true,
	"/api/wallet":                     true,
	"/api/chat/sessions/:id":          true,
	"/api/chat/sessions/:id/messages": true,
	"/admin/api/live-sessions":        true,
}

// GinMiddleware tags the request context with request id, client ip and user
// agent, then writes one access line per request. Chat streams log when the
// socket closes.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := requestIDFrom(c)
		class := routeNormal
		if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			class = routeStream
		}

		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		ctx = obscontext.WithIPAddress(ctx, c.ClientIP())
		ctx = obscontext.WithUserAgent(ctx, c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		if class == routeNormal && quietRoutes[route] {
			class = routeQuiet
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if id := c.Param("id"); id != "" && strings.Contains(route, "sessions") {
			fields = append(fields, zap.String("session_id", id))
		}
		if customerID := c.Param("customer_id"); customerID != "" {
			fields = append(fields, zap.String("customer_id", customerID))
		}

		var errorType string
		if last := c.Errors.Last(); last != nil {
			var errorCode string
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(last.Err)
			}
			fields = append(fields, zap.String("error_type", errorType), zap.String("error_code", errorCode))
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		msg := "http_request"
		if class == routeStream {
			msg = "chat_stream_closed"
		}
		if ce := FromContext(c.Request.Context()).Check(accessLevel(class, status, errorType), msg); ce != nil {
			ce.Write(fields...)
		}
	}
}

func accessLevel(class routeClass, status int, errorType string) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError, errorType == "internal":
		return zapcore.ErrorLevel
	case status == http.StatusTooManyRequests:
		return zapcore.WarnLevel
	case class == routeQuiet && status < http.StatusBadRequest:
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// requestIDFrom reuses the caller's X-Request-Id or mints one, and echoes it back.
func requestIDFrom(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if requestID == "" {
		requestID = strings.TrimSpace(c.GetString("request_id"))
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set("request_id", requestID)
	c.Header(requestIDHeader, requestID)
	return requestID
}
