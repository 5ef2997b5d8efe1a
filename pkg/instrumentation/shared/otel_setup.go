// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package shared

import (
	"context"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"

	"github.com/caarlos0/env/v11"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/open-telemetry/opentelemetry-go-library-instrumentation/pkg/otelsetup"
)

var (
	logger     *slog.Logger
	loggerOnce sync.Once
	setupOnce  sync.Once
	setupErr   error

	sdkMu sync.Mutex
	sdk   *otelsetup.SDK
)

// Logger returns a shared logger instance for instrumentation.
// It uses the OTEL_LOG_LEVEL environment variable (debug, info, warn, error).
func Logger() *slog.Logger {
	loggerOnce.Do(func() {
		cfg := environmentConfig()
		logger = otelsetup.NewLogger(os.Stdout, cfg.SlogLevel())
	})
	return logger
}

// SetupOTelSDK initializes the OpenTelemetry SDK from the environment if not
// already initialized. It is idempotent; later calls return the first error.
//
// The SDK configures exporters based on environment variables:
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (e.g., http://localhost:4318)
//   - OTEL_EXPORTER_OTLP_TRACES_ENDPOINT: Traces-specific endpoint
//   - OTEL_SERVICE_NAME: Service name for telemetry
//   - OTEL_LOG_LEVEL: Log level (debug, info, warn, error)
func SetupOTelSDK(instrumentationName, instrumentationVersion string, views ...sdkmetric.View) error {
	setupOnce.Do(func() {
		cfg, err := otelsetup.LoadConfig()
		if err != nil {
			Logger().Error("invalid OpenTelemetry configuration", "error", err)
			setupErr = err
			return
		}
		cfg.InstrumentationName = instrumentationName
		cfg.InstrumentationVersion = instrumentationVersion
		var created *otelsetup.SDK
		created, setupErr = otelsetup.Setup(context.Background(), *cfg, otelsetup.WithViews(views...))
		sdkMu.Lock()
		sdk = created
		sdkMu.Unlock()
	})
	return setupErr
}

// Shutdown flushes the SDK created by SetupOTelSDK. Later calls are no-ops.
func Shutdown(ctx context.Context) error {
	sdkMu.Lock()
	current := sdk
	sdk = nil
	sdkMu.Unlock()
	if current == nil {
		return nil
	}
	return current.Shutdown(ctx)
}

// Instrumented checks if instrumentation is enabled via environment variables.
//
// Environment variables (following OTel JS pattern):
//   - OTEL_GO_ENABLED_INSTRUMENTATIONS: comma-separated list of enabled instrumentations (e.g., "graphql,elasticsearch")
//   - OTEL_GO_DISABLED_INSTRUMENTATIONS: comma-separated list of disabled instrumentations (e.g., "graphql")
//
// If neither is set, all instrumentations are enabled.
func Instrumented(instrumentationName string) bool {
	cfg := environmentConfig()
	return cfg.Instrumented(instrumentationName)
}

// Enabler gates an instrumenter on Instrumented. The environment is read
// once, when the enabler is created.
type Enabler struct {
	enabled bool
}

func NewEnabler(instrumentationName string) *Enabler {
	return &Enabler{enabled: Instrumented(instrumentationName)}
}

func (e *Enabler) Enable() bool {
	return e.enabled
}

// ModuleVersion extracts the version from the Go module system.
// Falls back to "dev" if version cannot be determined.
func ModuleVersion() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return "dev"
}

// environmentConfig parses the environment without validation so that a bad
// unrelated variable does not disable the instrumentations.
func environmentConfig() otelsetup.Config {
	cfg, err := env.ParseAs[otelsetup.Config]()
	if err != nil {
		slog.Default().Warn("failed to parse OpenTelemetry environment", "error", err)
	}
	return cfg
}
