package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/adbilling/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const HeaderRequestID = "X-Request-Id"

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier turns the last handler error into a (type, code) pair.
	ErrorClassifier func(err error) (string, string)
}

// Health checks and scrapes are logged at debug.
var quietRoutes = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// GinMiddleware writes one access log line per admin request.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		rid := requestID(c)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), rid))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		fields := append(accessFields(c, route, status, time.Since(started)), errorFields(c, cfg, status)...)

		FromContext(c.Request.Context()).Log(levelFor(route, status), "http_request", fields...)
	}
}

func accessFields(c *gin.Context, route string, status int, took time.Duration) []zap.Field {
	return []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("route", route),
		zap.String("path", c.Request.URL.Path),
		zap.String("query", c.Request.URL.RawQuery),
		zap.Int("status", status),
		zap.Duration("latency", took),
		zap.Int("bytes_out", max(c.Writer.Size(), 0)),
	}
}

func errorFields(c *gin.Context, cfg MiddlewareConfig, status int) []zap.Field {
	last := c.Errors.Last()
	if last == nil {
		return nil
	}
	var fields []zap.Field
	if cfg.ErrorClassifier != nil {
		kind, code := cfg.ErrorClassifier(last.Err)
		fields = append(fields, zap.String("error_type", kind), zap.String("error_code", code))
	}
	if status >= http.StatusInternalServerError {
		fields = append(fields, zap.Error(last.Err))
		if cfg.Debug {
			fields = append(fields, zap.Stack("stack"))
		}
	}
	return fields
}

func levelFor(route string, status int) zapcore.Level {
	if status >= http.StatusInternalServerError {
		return zapcore.ErrorLevel
	}
	if _, ok := quietRoutes[route]; ok {
		return zapcore.DebugLevel
	}
	if status >= http.StatusBadRequest {
		return zapcore.WarnLevel
	}
	return zapcore.InfoLevel
}

func requestID(c *gin.Context) string {
	rid := strings.TrimSpace(c.GetHeader(HeaderRequestID))
	if rid == "" || len(rid) > 128 {
		rid = uuid.NewString()
	}
	c.Header(HeaderRequestID, rid)
	return rid
}
