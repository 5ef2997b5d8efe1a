// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package instrumenter

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AttributesExtractor appends the attributes it derives from a request (and,
// at the end, from its response) to the given attributes.
type AttributesExtractor[REQUEST any, RESPONSE any] interface {
	OnStart(parentContext context.Context, attributes []attribute.KeyValue, request REQUEST) ([]attribute.KeyValue,
		context.Context)
	OnEnd(parentContext context.Context, attributes []attribute.KeyValue, request REQUEST,
		response RESPONSE, err error) ([]attribute.KeyValue, context.Context)
}

type SpanKindExtractor[REQUEST any] interface {
	Extract(request REQUEST) trace.SpanKind
}

type SpanNameExtractor[REQUEST any] interface {
	Extract(request REQUEST) string
}

type SpanStatusExtractor[REQUEST any, RESPONSE any] interface {
	Extract(span trace.Span, request REQUEST, response RESPONSE, err error)
}

type AlwaysInternalExtractor[REQUEST any] struct{}

func (*AlwaysInternalExtractor[REQUEST]) Extract(_ REQUEST) trace.SpanKind {
	return trace.SpanKindInternal
}

type AlwaysClientExtractor[REQUEST any] struct{}

func (*AlwaysClientExtractor[REQUEST]) Extract(_ REQUEST) trace.SpanKind {
	return trace.SpanKindClient
}

// defaultSpanStatusExtractor marks the span as failed when the operation
// returned an error and leaves it unset otherwise.
type defaultSpanStatusExtractor[REQUEST any, RESPONSE any] struct{}

func (*defaultSpanStatusExtractor[REQUEST, RESPONSE]) Extract(
	span trace.Span,
	_ REQUEST,
	_ RESPONSE,
	err error,
) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
}
