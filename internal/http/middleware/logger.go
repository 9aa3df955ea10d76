package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"docvault/internal/logging"
)

// Logger logs one structured entry per HTTP request with
// request_id, method, path, status and latency (milliseconds).
// Server errors are logged at error level, everything else at info.
func Logger(l logrus.FieldLogger) fiber.Handler {
	log := logging.Component(l, "http")

	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}

		entry := log.WithFields(logrus.Fields{
			"event":      "http_request",
			"request_id": RequestIDFromCtx(c),
			"method":     c.Method(),
			// path only, never the query string
			"path":    c.Path(),
			"status":  status,
			"latency": float64(time.Since(start).Microseconds()) / 1000,
		})
		if status >= fiber.StatusInternalServerError {
			entry.Error("request failed")
		} else {
			entry.Info("request completed")
		}

		return err
	}
}
