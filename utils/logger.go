package utils

import (
	"os"

	"creatorbook/config"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a component-scoped structured logger. Production gets
// JSON lines; development keeps the readable text format.
func NewLogger(component string) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if config.AppConfig.Environment == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		logger.SetLevel(logrus.DebugLevel)
	}

	return logger.WithField("worker", component)
}
