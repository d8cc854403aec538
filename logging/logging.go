// Package logging configures the process-wide structured logger.
//
// Every component takes a logrus.FieldLogger so tests can inject a
// silenced or hooked logger; this package only builds the root one.
package logging

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds a logger with the given level and format. Unknown values
// fall back to info-level text output rather than failing startup.
func New(level, format string) *logrus.Logger {
	log := logrus.New()

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
