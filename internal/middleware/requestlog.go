package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-holding-engine/internal/telemetry"
)

// RequestLogger logs one line per request with its status and latency.
// 5xx responses log at Error, 4xx at Warn and the rest at Info.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			fields := []zap.Field{
				zap.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				zap.Int("status", res.Status),
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.String("route", c.Path()),
				zap.String("ip", c.RealIP()),
				zap.Duration("latency", time.Since(start)),
				zap.Int64("bytes_out", res.Size),
			}
			if uid, ok := c.Get(ContextUserID).(string); ok {
				fields = append(fields, zap.String("user_id", uid))
			}
			if tid := telemetry.TraceID(req.Context()); tid != "" {
				fields = append(fields, zap.String("trace_id", tid))
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}

			switch {
			case res.Status >= 500:
				log.Error("request failed", fields...)
			case res.Status >= 400:
				log.Warn("request rejected", fields...)
			default:
				log.Info("request completed", fields...)
			}
			return nil
		}
	}
}
