// Package cliutil holds the bits every distfs binary's main.go shares:
// base logger construction and config load-and-validate-or-exit, so the
// three cmd/ entrypoints (namenode, storagenode, client) don't each
// reimplement the same dozen lines.
package cliutil

import (
	"fmt"
	"log/slog"
	"os"

	"distfs/internal/config"
	"distfs/internal/logging"
)

// NewLogger builds the base logger every binary starts with: a text
// handler at debug level wrapped in a ComponentFilterHandler defaulting
// to info, so individual components can be turned up at runtime without
// touching global state. No component calls slog.SetDefault; this
// logger is passed down by dependency injection from main.
func NewLogger() *slog.Logger {
	base := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	filter := logging.NewComponentFilterHandler(base, slog.LevelInfo)
	return slog.New(filter)
}

// LoadConfig loads the declarative config document at path and enforces
// its one process-halting invariant (spec section 7: replica_set must
// not exceed the configured datanode count). A violation is logged at
// error level and returned so the caller's cobra RunE surfaces a
// non-zero exit without a stack trace.
func LoadConfig(log *slog.Logger, path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		return nil, err
	}
	return cfg, nil
}
