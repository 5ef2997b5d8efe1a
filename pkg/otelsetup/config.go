// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package otelsetup

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds configuration for OpenTelemetry setup. Fields tagged with env
// are read from the environment by LoadConfig.
type Config struct {
	ServiceName    string `env:"OTEL_SERVICE_NAME" envDefault:"otel-instrumentation" validate:"required"`
	ServiceVersion string `env:"OTEL_SERVICE_VERSION"`
	LogLevel       string `env:"OTEL_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	// OTLPEndpoint enables the span exporter. Metrics are always exported
	// through autoexport, which honors OTEL_METRICS_EXPORTER.
	OTLPEndpoint       string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" validate:"omitempty,url"`
	OTLPTracesEndpoint string `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT" validate:"omitempty,url"`

	EnabledInstrumentations  []string `env:"OTEL_GO_ENABLED_INSTRUMENTATIONS" envSeparator:","`
	DisabledInstrumentations []string `env:"OTEL_GO_DISABLED_INSTRUMENTATIONS" envSeparator:","`

	ShutdownTimeout time.Duration `env:"OTEL_GO_SHUTDOWN_TIMEOUT" envDefault:"5s" validate:"min=0s"`

	InstrumentationName    string
	InstrumentationVersion string
}

// LoadConfig reads the configuration from the environment after loading the
// given dotenv files. Missing files are skipped; variables already set in
// the environment win over the files.
func LoadConfig(dotenvFiles ...string) (*Config, error) {
	for _, file := range dotenvFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}

	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse otel config: %w", err)
	}
	if err := validator.New().Struct(c); err != nil {
		return nil, fmt.Errorf("validate otel config: %w", err)
	}
	return &c, nil
}

// SlogLevel maps LogLevel to a slog.Level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// TracesEndpoint returns the endpoint used for spans, if any. The
// traces specific endpoint takes precedence over the generic one.
func (c *Config) TracesEndpoint() string {
	if c.OTLPTracesEndpoint != "" {
		return c.OTLPTracesEndpoint
	}
	return c.OTLPEndpoint
}

// Instrumented reports whether the named instrumentation is enabled. When
// EnabledInstrumentations is set only those are enabled; DisabledInstrumentations
// is applied afterwards. Names are case insensitive.
func (c *Config) Instrumented(instrumentationName string) bool {
	name := strings.ToLower(strings.TrimSpace(instrumentationName))
	enabled := normalizeNames(c.EnabledInstrumentations)
	if len(enabled) > 0 && !slices.Contains(enabled, name) {
		return false
	}
	return !slices.Contains(normalizeNames(c.DisabledInstrumentations), name)
}

func normalizeNames(names []string) []string {
	result := make([]string, 0, len(names))
	for _, item := range names {
		trimmed := strings.TrimSpace(strings.ToLower(item))
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
