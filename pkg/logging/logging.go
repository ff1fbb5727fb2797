package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// ConsoleLogger returns a logrus logger writing human-readable output to
// stderr at the given level.
func ConsoleLogger(level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return logger
}

// FileLogger returns a logger that writes JSON lines to the given path in
// addition to stderr. The returned closer owns the underlying file.
func FileLogger(level logrus.Level, path string) (io.Closer, *logrus.Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, logger, nil
}
