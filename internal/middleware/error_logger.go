package middleware

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type ErrorLoggerMiddleware struct {
	logger *logrus.Logger
}

func NewErrorLoggerMiddleware(logger *logrus.Logger) *ErrorLoggerMiddleware {
	return &ErrorLoggerMiddleware{
		logger: logger,
	}
}

// Handle logs 4xx and 5xx responses from the status server
func (e *ErrorLoggerMiddleware) Handle() fiber.Handler {
	return func(c *fiber.Ctx) error {
		startTime := time.Now()

		err := c.Next()

		statusCode := c.Response().StatusCode()
		if err != nil {
			// the app error handler has not written the status yet
			statusCode = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				statusCode = fe.Code
			}
		}
		if statusCode < 400 {
			return err
		}

		logEntry := e.logger.WithFields(logrus.Fields{
			"status_code": statusCode,
			"method":      c.Method(),
			"path":        c.Path(),
			"ip":          c.IP(),
			"request_id":  c.GetRespHeader(fiber.HeaderXRequestID),
			"duration_ms": time.Since(startTime).Milliseconds(),
		})

		// handled statuses such as a not-ready 503 are expected and stay at debug
		if err != nil && statusCode >= 500 {
			logEntry.WithError(err).Error("Server error response")
		} else {
			logEntry.Debug("Error status response")
		}

		return err
	}
}
