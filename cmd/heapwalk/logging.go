package main

import "go.uber.org/zap"

// newLogger builds the CLI's structured logger: a human-readable
// console encoder at info level, or debug level when -v is set, so
// that heapwalk's diagnostic output (corrupt segments, cancelled
// searches) carries level and caller information.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.DisableStacktrace = true
	return cfg.Build()
}
