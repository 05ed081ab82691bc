// Package log builds the logrus logger handed to every component.
package log

import (
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

const defaultLogFilePermissions fs.FileMode = 0644

type Config struct {
	Level        string
	Structured   bool
	FileLocation string
	// Quiet silences the console, a log file still receives everything.
	Quiet bool
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger writing to stderr, to a file, or both. The closer
// releases the log file and must be called once logging is done.
func New(cfg Config) (*logrus.Logger, io.Closer, error) {
	appLogger := logrus.New()

	level := logrus.InfoLevel
	if cfg.Level != "" {
		var err error
		level, err = logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("bad log level %q: %w", cfg.Level, err)
		}
	}

	enableConsole := !cfg.Quiet
	enableFile := cfg.FileLocation != ""

	var (
		output io.Writer
		closer io.Closer = nopCloser{}
	)
	switch {
	case enableConsole && enableFile:
		logFile, err := openLogFile(cfg.FileLocation)
		if err != nil {
			return nil, nil, err
		}
		output, closer = io.MultiWriter(os.Stderr, logFile), logFile
	case enableConsole:
		output = os.Stderr
	case enableFile:
		logFile, err := openLogFile(cfg.FileLocation)
		if err != nil {
			return nil, nil, err
		}
		output, closer = logFile, logFile
	default:
		output = io.Discard
	}

	appLogger.SetOutput(output)
	appLogger.SetLevel(level)

	if cfg.Structured {
		appLogger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		appLogger.SetFormatter(&prefixed.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
			ForceFormatting: true,
		})
	}

	return appLogger, closer, nil
}

func openLogFile(path string) (*os.File, error) {
	logFile, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, defaultLogFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("unable to setup log file: %w", err)
	}
	return logFile, nil
}

// Discard is a logger that drops everything, for library callers and tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
