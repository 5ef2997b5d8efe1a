// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package instrumenter

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Invocation encapsulates the parameters needed for ending instrumentation operations
type Invocation[REQUEST any, RESPONSE any] struct {
	Request        REQUEST
	Response       RESPONSE
	Err            error
	StartTimeStamp time.Time
	EndTimeStamp   time.Time
}

// Instrumenter encapsulates the entire logic for gathering telemetry, from collecting
// the data, to starting and ending spans, to recording values using metrics instruments.
// Instrumenter is called at the start and the end of a request/response lifecycle.
//
// Usage patterns:
//   - For operations with known duration: use StartAndEnd or StartAndEndWithOptions
//   - For ongoing operations: use Start to begin instrumentation, then End when complete
//   - Always call End after Start so that operation listeners see the operation finish
type Instrumenter[REQUEST any, RESPONSE any] interface {
	// ShouldStart Determines whether the operation should be instrumented for telemetry or not.
	// Returns true by default.
	ShouldStart(parentContext context.Context, request REQUEST) bool
	// StartAndEndWithOptions Internal method for creating spans with given start/end timestamps.
	StartAndEndWithOptions(
		parentContext context.Context,
		invocation Invocation[REQUEST, RESPONSE],
		startOptions []trace.SpanStartOption,
		endOptions []trace.SpanEndOption,
	)
	StartAndEnd(
		parentContext context.Context,
		invocation Invocation[REQUEST, RESPONSE],
	)
	// Start Starts a new instrumented operation. The returned context should be propagated along
	// with the operation and passed to the End method when it is finished.
	Start(parentContext context.Context, request REQUEST, options ...trace.SpanStartOption) context.Context
	// End ends an instrumented operation. It must be called exactly once for every Start,
	// otherwise the span is leaked and no duration is recorded.
	End(ctx context.Context, invocation Invocation[REQUEST, RESPONSE], options ...trace.SpanEndOption)
}

type InternalInstrumenter[REQUEST any, RESPONSE any] struct {
	enabler              InstrumentEnabler
	spanNameExtractor    SpanNameExtractor[REQUEST]
	spanKindExtractor    SpanKindExtractor[REQUEST]
	spanStatusExtractor  SpanStatusExtractor[REQUEST, RESPONSE]
	attributesExtractors []AttributesExtractor[REQUEST, RESPONSE]
	operationListeners   []OperationListener
	contextCustomizers   []ContextCustomizer[REQUEST]
	tracer               trace.Tracer
	instVersion          string
	attributesPool       sync.Pool
}

const defaultAttributesSliceSize = 25

func (i *InternalInstrumenter[REQUEST, RESPONSE]) ShouldStart(parentContext context.Context, request REQUEST) bool {
	_ = parentContext
	_ = request
	return i.enabler == nil || i.enabler.Enable()
}

func (i *InternalInstrumenter[REQUEST, RESPONSE]) StartAndEndWithOptions(
	parentContext context.Context,
	invocation Invocation[REQUEST, RESPONSE],
	startOptions []trace.SpanStartOption,
	endOptions []trace.SpanEndOption,
) {
	ctx := i.doStart(parentContext, invocation.Request, invocation.StartTimeStamp, startOptions...)
	i.End(ctx, invocation, endOptions...)
}

func (i *InternalInstrumenter[REQUEST, RESPONSE]) StartAndEnd(
	parentContext context.Context,
	invocation Invocation[REQUEST, RESPONSE],
) {
	i.StartAndEndWithOptions(parentContext, invocation, nil, nil)
}

func (i *InternalInstrumenter[REQUEST, RESPONSE]) Start(
	parentContext context.Context,
	request REQUEST,
	options ...trace.SpanStartOption,
) context.Context {
	return i.doStart(parentContext, request, time.Now(), options...)
}

func (i *InternalInstrumenter[REQUEST, RESPONSE]) doStart(
	parentContext context.Context,
	request REQUEST,
	timestamp time.Time,
	options ...trace.SpanStartOption,
) context.Context {
	if !i.ShouldStart(parentContext, request) {
		return parentContext
	}
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	spanName := i.spanNameExtractor.Extract(request)
	spanKind := i.spanKindExtractor.Extract(request)
	options = append(options, trace.WithSpanKind(spanKind), trace.WithTimestamp(timestamp))
	newCtx, span := i.tracer.Start(parentContext, spanName, options...)
	attrs := make([]attribute.KeyValue, 0, defaultAttributesSliceSize)
	currentCtx := newCtx
	for _, extractor := range i.attributesExtractors {
		attrs, currentCtx = extractor.OnStart(currentCtx, attrs, request)
	}
	for _, customizer := range i.contextCustomizers {
		//nolint:fatcontext // There will not be so many customizers here
		currentCtx = customizer.OnStart(currentCtx, request, attrs)
	}
	for _, listener := range i.operationListeners {
		//nolint:fatcontext // There will not be so many operation listeners here
		currentCtx = listener.OnStart(currentCtx, attrs, timestamp)
	}
	span.SetAttributes(attrs...)
	return currentCtx
}

func (i *InternalInstrumenter[REQUEST, RESPONSE]) End(
	ctx context.Context,
	invocation Invocation[REQUEST, RESPONSE],
	options ...trace.SpanEndOption,
) {
	timestamp := invocation.EndTimeStamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	i.doEnd(ctx, invocation, timestamp, options...)
}

func (i *InternalInstrumenter[REQUEST, RESPONSE]) doEnd(
	ctx context.Context,
	invocation Invocation[REQUEST, RESPONSE],
	timestamp time.Time,
	options ...trace.SpanEndOption,
) {
	if i.enabler != nil && !i.enabler.Enable() {
		return
	}
	span := trace.SpanFromContext(ctx)
	if invocation.Err != nil {
		span.RecordError(invocation.Err)
		span.SetStatus(codes.Error, invocation.Err.Error())
	}

	attrsPtr, _ := i.attributesPool.Get().(*[]attribute.KeyValue)
	var attrs []attribute.KeyValue
	if attrsPtr != nil {
		attrs = *attrsPtr
	} else {
		attrs = make([]attribute.KeyValue, 0, defaultAttributesSliceSize)
	}
	defer func() {
		attrs = attrs[:0]
		i.attributesPool.Put(&attrs)
	}()
	currentCtx := ctx
	for _, extractor := range i.attributesExtractors {
		attrs, currentCtx = extractor.OnEnd(currentCtx, attrs, invocation.Request, invocation.Response, invocation.Err)
	}
	i.spanStatusExtractor.Extract(span, invocation.Request, invocation.Response, invocation.Err)
	span.SetAttributes(attrs...)
	options = append(options, trace.WithTimestamp(timestamp))
	span.End(options...)
	// end attributes are only valid until OnEnd returns
	for _, listener := range i.operationListeners {
		listener.OnEnd(currentCtx, attrs, timestamp)
	}
}
