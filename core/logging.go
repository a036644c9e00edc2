// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

// LogConfiguration configures the logger of a binary
type LogConfiguration struct {
	// Level is any level logrus can parse
	Level string

	// Format is either "text" or "json"
	Format string

	// Output defaults to stderr
	Output io.Writer
}

// NewLogger creates a logger from cfg
func NewLogger(cfg LogConfiguration) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}

	logger := logrus.New()
	logger.Level = level
	logger.Out = os.Stderr
	if cfg.Output != nil {
		logger.Out = cfg.Output
	}

	switch cfg.Format {
	case "", "text":
		logger.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	case "json":
		logger.Formatter = &logrus.JSONFormatter{}
	default:
		return nil, errors.Newf("unknown log format %q", cfg.Format)
	}
	return logger, nil
}
