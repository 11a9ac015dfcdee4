package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

type Logger struct {
	*logrus.Logger
}

func NewLogger(verbose bool) *Logger {
	return New(os.Stdout, verbose)
}

// New writes to w; verbose enables debug output, which includes every
// statement sent to the database.
func New(w io.Writer, verbose bool) *Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   w == os.Stdout,
	})

	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}

	return &Logger{Logger: log}
}

// Statement logs one executed statement at debug level.
func (l *Logger) Statement(name, query string, args []any, elapsed time.Duration, err error) {
	if !l.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	entry := l.WithFields(logrus.Fields{
		"sql":      query,
		"args":     args,
		"duration": elapsed,
	})
	if err != nil {
		entry.WithError(err).Debug(name)
		return
	}
	entry.Debug(name)
}
