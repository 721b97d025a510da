package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RequestTime pins the instant a request arrived under key. Deadlines, invite windows and
// answer timestamps for the request are all judged against this one value.
//
// Postgres keeps microseconds, so the value is truncated to match what reads back.
func RequestTime(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			now := time.Now().UTC().Truncate(time.Microsecond)
			c.Set(key, now)

			trace.SpanFromContext(c.Request().Context()).SetAttributes(
				attribute.String("request.time", now.Format(time.RFC3339Nano)),
			)

			return next(c)
		}
	}
}
