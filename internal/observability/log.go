// Package observability builds the structured logger and Prometheus
// metrics every proctriage subsystem shares, following the teacher's
// split of the same concern into a logger constructor and a dedicated
// metrics registry.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// BuildLogger constructs a zap.Logger at the given level ("debug",
// "info", "warn", "error") in the given format ("json" or "console").
// Any other format falls back to JSON, matching the teacher's
// if-console-else-production branch.
func BuildLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("observability: invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}
