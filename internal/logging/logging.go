// Package logging configures the process-wide logrus logger.
package logging

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Configure sets the level and formatter of the standard logger. format is
// "json" or "text"; an unknown level falls back to info.
func Configure(level, format string) {
	if strings.EqualFold(format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.SetOutput(os.Stdout)

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

// For returns an entry tagged with the component name.
func For(component string) *log.Entry {
	return log.WithField("component", component)
}
