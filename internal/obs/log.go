package obs

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggerOnce sync.Once
	logger     *logrus.Logger
)

// Logger returns the shared structured logger used across the service.
// Output is JSON, one entry per line.
func Logger() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.JSONFormatter{})
	})
	return logger
}

// SetLevel adjusts the shared logger's verbosity from a config string.
func SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		Logger().SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		Logger().SetLevel(logrus.WarnLevel)
	case "error":
		Logger().SetLevel(logrus.ErrorLevel)
	default:
		Logger().SetLevel(logrus.InfoLevel)
	}
}
