// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package instrumenter

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OperationListener observes the start and the end of an instrumented
// operation. OnStart may derive a new context which is handed back to
// OnEnd when the operation finishes.
type OperationListener interface {
	OnStart(ctx context.Context, startAttributes []attribute.KeyValue, startTime time.Time) context.Context
	OnEnd(ctx context.Context, endAttributes []attribute.KeyValue, endTime time.Time)
}

// OperationMetrics creates an OperationListener which records metrics with
// the given meter.
type OperationMetrics func(meter metric.Meter) OperationListener

type ContextCustomizer[REQUEST any] interface {
	OnStart(context context.Context, request REQUEST, startAttributes []attribute.KeyValue) context.Context
}
