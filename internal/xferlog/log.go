// Package xferlog provides the leveled logger used throughout the debug
// transport stack. It wraps logrus the way the CLI's quietFlag once gated
// plain fmt.Printf calls, but gives every internal layer debug/info/warn
// granularity instead of a single on/off switch.
package xferlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.Formatter = &logrus.TextFormatter{
		FullTimestamp:   false,
		DisableColors:   false,
		DisableSorting:  true,
		TimestampFormat: "15:04:05",
	}
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel adjusts global verbosity. quiet suppresses everything but
// warnings and errors; verbose enables debug output.
func SetLevel(quiet, verbose bool) {
	switch {
	case quiet:
		log.SetLevel(logrus.WarnLevel)
	case verbose:
		log.SetLevel(logrus.DebugLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
}

// Debugf logs diagnostic detail: disassembly, register pokes, SELECT writes.
func Debugf(format string, args ...interface{}) { log.Debugf(format, args...) }

// Infof logs user-facing progress: erase/program timings, upload status.
func Infof(format string, args ...interface{}) { log.Infof(format, args...) }

// Warnf logs a recoverable condition, e.g. a mass-erase timeout.
func Warnf(format string, args ...interface{}) { log.Warnf(format, args...) }

// Errorf logs a failure that is about to be returned to the caller as an error.
func Errorf(format string, args ...interface{}) { log.Errorf(format, args...) }
