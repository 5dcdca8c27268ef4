// Package logging configures the process-wide logger.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Setup sets the level and the formatter of the standard logger and
// returns it. format is "text" or "json".
func Setup(level, format string, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	log := logrus.StandardLogger()
	switch strings.ToLower(format) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
			DisableSorting:  true,
		})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	log.SetLevel(lvl)
	if out != nil {
		log.SetOutput(out)
	}
	return log, nil
}

// Rank returns the logger of one rank.
func Rank(log logrus.FieldLogger, rank int) logrus.FieldLogger {
	return log.WithField("rank", rank)
}
