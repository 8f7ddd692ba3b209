// Package logging wires up structured logging for the daemon: logrus
// with a stream-splitting formatter so error-level lines go to stderr
// and everything else goes to stdout, plus a small Entry helper that
// carries a base set of fields (node host, component) through a call
// chain.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes a formatted log line to stderr when it carries
// level error (or higher), in either the text or the JSON formatter's
// form, and to stdout otherwise.
type OutputSplitter struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (s *OutputSplitter) Write(p []byte) (int, error) {
	line := string(p)
	for _, lvl := range []string{"error", "fatal", "panic"} {
		if strings.Contains(line, "level="+lvl) || strings.Contains(line, `"level":"`+lvl+`"`) {
			return s.Stderr.Write(p)
		}
	}
	return s.Stdout.Write(p)
}

// Config configures the base logger.
type Config struct {
	Level     string // "debug", "info", "warn", "error"
	JSON      bool
	Component string
}

// New builds a configured *logrus.Logger.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&OutputSplitter{Stdout: os.Stdout, Stderr: os.Stderr})

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}

// Entry returns a base *logrus.Entry tagged with this node's component
// name, the unit everything downstream calls WithField on.
func Entry(logger *logrus.Logger, component string) *logrus.Entry {
	return logger.WithField("component", component)
}
