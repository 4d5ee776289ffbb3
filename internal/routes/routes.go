package routes

import (
	"time"

	"github.com/khanasif1/twooter/internal/campaign"
	"github.com/khanasif1/twooter/internal/logging"
	"github.com/khanasif1/twooter/internal/metrics"
	"github.com/khanasif1/twooter/internal/middleware"
	"github.com/khanasif1/twooter/internal/session"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
)

// RunReporter exposes the last finished bot cycle.
type RunReporter interface {
	Last() (campaign.RunSummary, bool)
}

// NewApp creates the status server with the standard middleware chain.
func NewApp(logger *logrus.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "twooter",
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           60 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			logger.WithError(err).WithFields(logrus.Fields{
				"method": c.Method(),
				"path":   c.Path(),
				"status": code,
			}).Error("Request error")

			return c.Status(code).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    "INTERNAL_ERROR",
					"message": err.Error(),
				},
			})
		},
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(otelfiber.Middleware())
	app.Use(middleware.NewErrorLoggerMiddleware(logger).Handle())
	return app
}

// Setup registers the status endpoints. runs may be nil when no loop is active.
func Setup(app *fiber.App, sess *session.Session, runs RunReporter) {
	app.Get("/healthz", healthCheck)
	app.Get("/readyz", readinessCheck(sess))
	app.Get("/version", versionHandler)
	app.Get("/metrics", metrics.PrometheusHandler())
	app.Get("/status", statusHandler(sess, runs))

	app.Use(notFoundHandler)
}

func healthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "twooter",
	})
}

// readinessCheck reports ready only while the bot holds an authenticated session.
func readinessCheck(sess *session.Session) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !sess.IsAuthenticated() {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":    "not ready",
				"reason":    "session not authenticated",
				"timestamp": time.Now().UTC(),
			})
		}

		return c.JSON(fiber.Map{
			"status":    "ready",
			"username":  sess.Username(),
			"timestamp": time.Now().UTC(),
		})
	}
}

func versionHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "twooter",
		"version": logging.Version(),
	})
}

func statusHandler(sess *session.Session, runs RunReporter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body := fiber.Map{
			"session": fiber.Map{
				"state":    sess.State().String(),
				"username": sess.Username(),
			},
		}
		if runs != nil {
			if last, ok := runs.Last(); ok {
				body["last_run"] = last
			}
		}
		return c.JSON(body)
	}
}

func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "NOT_FOUND",
			"message": "The requested resource was not found",
			"path":    c.Path(),
		},
	})
}
