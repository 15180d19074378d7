// Package testhelpers provides shared fixtures for tests.
package testhelpers

import "github.com/jonesrussell/backlink-checker/internal/logger"

// NewTestLogger returns a debug-level JSON logger, or a no-op logger when
// construction fails.
func NewTestLogger() logger.Logger {
	log, err := logger.New(logger.Config{
		Level:       "debug",
		Format:      "json",
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return logger.NewNop()
	}
	return log
}
