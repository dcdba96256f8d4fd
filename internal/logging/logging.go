// Package logging configures the process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	Level string // logrus level name; empty means "info"
	// FilePath, when set, routes output to a rotating file instead of
	// stderr. Stdout is never used: it belongs to the stdio protocol.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
}

// Init builds the JSON structured logger. On any file problem it falls
// back to stderr and reports the degradation on the logger itself.
func Init(opts Options) (*logrus.Logger, error) {
	levelName := opts.Level
	if levelName == "" {
		levelName = "info"
	}
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	output, outErr := buildOutput(opts)

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(output)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})

	if outErr != nil {
		logger.WithField("path", opts.FilePath).Warnf("log file unavailable, using stderr: %v", outErr)
	}
	return logger, nil
}

// buildOutput creates the log writer; failures degrade to stderr.
func buildOutput(opts Options) (io.Writer, error) {
	if opts.FilePath == "" {
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
		return os.Stderr, fmt.Errorf("creating log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   opts.FilePath,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		LocalTime:  true,
	}, nil
}
