package httpmw

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// TraceContext reads the configured trace-id header, generating one when
// absent, echoes it on the response header, and stashes it on the
// request's stdlib context (WithTraceID) so downstream code (handlers,
// services) can retrieve it without a header lookup.
func TraceContext(headerName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			traceID := c.Request().Header.Get(headerName)
			if traceID == "" {
				traceID = uuid.NewString()
			}
			c.Response().Header().Set(headerName, traceID)
			ctx := WithTraceID(c.Request().Context(), traceID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequestLogger emits one structured zap line per request with method,
// URI, status, and latency.
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("HTTP request",
				zap.String("method", v.Method),
				zap.String("URI", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	})
}

// Recover converts handler panics into 500 responses.
func Recover() echo.MiddlewareFunc {
	return middleware.Recover()
}
