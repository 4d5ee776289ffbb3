package logging

import (
	"os"

	"github.com/khanasif1/twooter/internal/config"

	"github.com/sirupsen/logrus"
)

// New creates a new structured logger
func New(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Warn("Invalid log level, defaulting to info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "ts",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "msg",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z",
		})
	}

	// stdout is reserved for command output
	logger.SetOutput(os.Stderr)

	logger.AddHook(&defaultFields{fields: logrus.Fields{
		"service": "twooter",
		"version": Version(),
		"bot":     cfg.Bot.Username,
	}})

	return logger
}

// Version returns the application version
func Version() string {
	if version := os.Getenv("APP_VERSION"); version != "" {
		return version
	}
	return "dev"
}

// WithAction adds the façade action name to logger context
func WithAction(logger *logrus.Logger, action string) *logrus.Entry {
	return logger.WithField("action", action)
}

// WithRequest adds outbound request context to logger
func WithRequest(logger *logrus.Logger, method, path string, statusCode int, latencyMs float64) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"http": map[string]interface{}{
			"method": method,
			"path":   path,
			"status": statusCode,
		},
		"latency_ms": latencyMs,
	})
}

// defaultFields stamps every entry with fixed fields.
type defaultFields struct {
	fields logrus.Fields
}

func (h *defaultFields) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *defaultFields) Fire(entry *logrus.Entry) error {
	for k, v := range h.fields {
		if _, exists := entry.Data[k]; !exists {
			entry.Data[k] = v
		}
	}
	return nil
}
