package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/students-api/internal/observability"
)

// Observability records request metrics and one structured log line for every
// student API and GraphQL request. Other paths pass through untouched.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()
	log := logger.With().Str("component", "http").Logger()

	return func(c *fiber.Ctx) error {
		if !isObservedPath(c.Path()) {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		recordRequest(c, log, time.Since(start), err)
		return err
	}
}

func recordRequest(c *fiber.Ctx, logger zerolog.Logger, elapsed time.Duration, handlerErr error) {
	route := routeTemplate(c)
	method := c.Method()
	status := responseStatus(c, handlerErr)
	statusLabel := strconv.Itoa(status)

	observability.HTTPRequests().WithLabelValues(method, route, statusLabel).Inc()
	observability.HTTPLatency().WithLabelValues(method, route).Observe(elapsed.Seconds())
	if status >= fiber.StatusBadRequest {
		observability.HTTPErrors().WithLabelValues(method, route, statusLabel).Inc()
	}

	var event *zerolog.Event
	switch {
	case status >= fiber.StatusInternalServerError:
		event = logger.Error().Err(handlerErr)
	case status >= fiber.StatusBadRequest:
		event = logger.Warn()
	default:
		event = logger.Info()
	}

	event.
		Str("correlation_id", GetCorrelationID(c)).
		Str("method", method).
		Str("route", route).
		Int("status", status).
		Dur("latency", elapsed).
		Str("latency_bucket", latencyBucket(elapsed)).
		Msg("request handled")
}

// responseStatus accounts for errors that fiber's error handler has not yet
// turned into a response.
func responseStatus(c *fiber.Ctx, handlerErr error) int {
	if handlerErr == nil {
		return c.Response().StatusCode()
	}
	if fiberErr, ok := handlerErr.(*fiber.Error); ok {
		return fiberErr.Code
	}
	return fiber.StatusInternalServerError
}

func isObservedPath(path string) bool {
	return strings.HasPrefix(path, "/api/") || path == "/graphql" || strings.HasPrefix(path, "/graphql/")
}

func routeTemplate(c *fiber.Ctx) string {
	if route := c.Route(); route != nil && route.Path != "" {
		return route.Path
	}
	return c.Path()
}

var latencyBuckets = []struct {
	limit time.Duration
	label string
}{
	{25 * time.Millisecond, "<=25ms"},
	{50 * time.Millisecond, "<=50ms"},
	{100 * time.Millisecond, "<=100ms"},
	{250 * time.Millisecond, "<=250ms"},
	{500 * time.Millisecond, "<=500ms"},
}

func latencyBucket(elapsed time.Duration) string {
	for _, bucket := range latencyBuckets {
		if elapsed <= bucket.limit {
			return bucket.label
		}
	}
	return ">500ms"
}
