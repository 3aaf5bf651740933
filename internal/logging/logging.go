// Package logging configures the logrus logger used for diagnostics.
//
// Diagnostics go to stderr with full timestamps and stay separate from the
// user-facing progress rendered by the output package.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to w at the given level.
//
// An unrecognized level falls back to info and logs a warning rather than
// failing, so a typo in the config never blocks a deployment.
func New(w io.Writer, level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	SetLevel(log, level)
	return log
}

// SetLevel changes the level of an existing logger using the same fallback as [New].
func SetLevel(log *logrus.Logger, level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		log.SetLevel(logrus.InfoLevel)
		log.Warnf("invalid log level %q, defaulting to info", level)
		return
	}
	log.SetLevel(parsed)
}
