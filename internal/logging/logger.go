// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to out (stderr when nil). format is "text"
// or "json"; level is any logrus level name.
func New(level, format string, out io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	case "json":
		log.Formatter = &logrus.JSONFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", format)
	}
	lvl := logrus.InfoLevel
	if strings.TrimSpace(level) != "" {
		var err error
		lvl, err = logrus.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	log.Level = lvl
	if out == nil {
		out = os.Stderr
	}
	log.Out = out
	return log, nil
}

// Discard is a logger for tests and quiet code paths.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}
