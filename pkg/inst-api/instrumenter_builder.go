// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package instrumenter

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	"go.opentelemetry.io/otel/trace"
)

type InstrumentEnabler interface {
	Enable() bool
}

type defaultInstrumentEnabler struct{}

func NewDefaultInstrumentEnabler() InstrumentEnabler {
	return &defaultInstrumentEnabler{}
}

func (*defaultInstrumentEnabler) Enable() bool {
	return true
}

type Builder[REQUEST any, RESPONSE any] struct {
	Enabler              InstrumentEnabler
	SpanNameExtractor    SpanNameExtractor[REQUEST]
	SpanKindExtractor    SpanKindExtractor[REQUEST]
	SpanStatusExtractor  SpanStatusExtractor[REQUEST, RESPONSE]
	AttributesExtractors []AttributesExtractor[REQUEST, RESPONSE]
	OperationListeners   []OperationListener
	OperationMetrics     []OperationMetrics
	ContextCustomizers   []ContextCustomizer[REQUEST]
	InstVersion          string
	Scope                instrumentation.Scope
	MeterProvider        metric.MeterProvider
}

func (b *Builder[REQUEST, RESPONSE]) Init() *Builder[REQUEST, RESPONSE] {
	b.Enabler = &defaultInstrumentEnabler{}
	b.AttributesExtractors = make([]AttributesExtractor[REQUEST, RESPONSE], 0)
	b.ContextCustomizers = make([]ContextCustomizer[REQUEST], 0)
	b.SpanStatusExtractor = &defaultSpanStatusExtractor[REQUEST, RESPONSE]{}
	return b
}

func (b *Builder[REQUEST, RESPONSE]) SetInstrumentationScope(scope instrumentation.Scope) *Builder[REQUEST, RESPONSE] {
	b.Scope = scope
	return b
}

func (b *Builder[REQUEST, RESPONSE]) SetInstrumentEnabler(enabler InstrumentEnabler) *Builder[REQUEST, RESPONSE] {
	b.Enabler = enabler
	return b
}

// SetMeterProvider overrides the global meter provider used to create the
// meters handed to OperationMetrics.
func (b *Builder[REQUEST, RESPONSE]) SetMeterProvider(provider metric.MeterProvider) *Builder[REQUEST, RESPONSE] {
	b.MeterProvider = provider
	return b
}

func (b *Builder[REQUEST, RESPONSE]) SetSpanNameExtractor(
	spanNameExtractor SpanNameExtractor[REQUEST],
) *Builder[REQUEST, RESPONSE] {
	b.SpanNameExtractor = spanNameExtractor
	return b
}

func (b *Builder[REQUEST, RESPONSE]) SetSpanStatusExtractor(
	spanStatusExtractor SpanStatusExtractor[REQUEST, RESPONSE],
) *Builder[REQUEST, RESPONSE] {
	b.SpanStatusExtractor = spanStatusExtractor
	return b
}

func (b *Builder[REQUEST, RESPONSE]) SetSpanKindExtractor(
	spanKindExtractor SpanKindExtractor[REQUEST],
) *Builder[REQUEST, RESPONSE] {
	b.SpanKindExtractor = spanKindExtractor
	return b
}

func (b *Builder[REQUEST, RESPONSE]) AddAttributesExtractor(
	attributesExtractor ...AttributesExtractor[REQUEST, RESPONSE],
) *Builder[REQUEST, RESPONSE] {
	b.AttributesExtractors = append(b.AttributesExtractors, attributesExtractor...)
	return b
}

func (b *Builder[REQUEST, RESPONSE]) AddOperationListeners(
	operationListener ...OperationListener,
) *Builder[REQUEST, RESPONSE] {
	b.OperationListeners = append(b.OperationListeners, operationListener...)
	return b
}

// AddOperationMetrics registers metrics listeners. They are created when the
// instrumenter is built, with a meter scoped like the instrumenter's tracer.
func (b *Builder[REQUEST, RESPONSE]) AddOperationMetrics(
	operationMetrics ...OperationMetrics,
) *Builder[REQUEST, RESPONSE] {
	b.OperationMetrics = append(b.OperationMetrics, operationMetrics...)
	return b
}

func (b *Builder[REQUEST, RESPONSE]) AddContextCustomizers(
	contextCustomizers ...ContextCustomizer[REQUEST],
) *Builder[REQUEST, RESPONSE] {
	b.ContextCustomizers = append(b.ContextCustomizers, contextCustomizers...)
	return b
}

func (b *Builder[REQUEST, RESPONSE]) BuildInstrumenter() *InternalInstrumenter[REQUEST, RESPONSE] {
	tracer := otel.GetTracerProvider().
		Tracer(b.Scope.Name,
			trace.WithInstrumentationVersion(b.Scope.Version),
			trace.WithSchemaURL(b.Scope.SchemaURL))
	return b.BuildInstrumenterWithTracer(tracer)
}

func (b *Builder[REQUEST, RESPONSE]) BuildInstrumenterWithTracer(
	tracer trace.Tracer,
) *InternalInstrumenter[REQUEST, RESPONSE] {
	spanStatusExtractor := b.SpanStatusExtractor
	if spanStatusExtractor == nil {
		spanStatusExtractor = &defaultSpanStatusExtractor[REQUEST, RESPONSE]{}
	}
	spanKindExtractor := b.SpanKindExtractor
	if spanKindExtractor == nil {
		spanKindExtractor = &AlwaysInternalExtractor[REQUEST]{}
	}
	return &InternalInstrumenter[REQUEST, RESPONSE]{
		enabler:              b.Enabler,
		spanNameExtractor:    b.SpanNameExtractor,
		spanKindExtractor:    spanKindExtractor,
		spanStatusExtractor:  spanStatusExtractor,
		attributesExtractors: b.AttributesExtractors,
		operationListeners:   b.buildOperationListeners(),
		contextCustomizers:   b.ContextCustomizers,
		tracer:               tracer,
		instVersion:          b.InstVersion,
	}
}

func (b *Builder[REQUEST, RESPONSE]) buildOperationListeners() []OperationListener {
	listeners := make([]OperationListener, 0, len(b.OperationListeners)+len(b.OperationMetrics))
	listeners = append(listeners, b.OperationListeners...)
	if len(b.OperationMetrics) == 0 {
		return listeners
	}
	provider := b.MeterProvider
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(b.Scope.Name,
		metric.WithInstrumentationVersion(b.Scope.Version),
		metric.WithSchemaURL(b.Scope.SchemaURL))
	for _, create := range b.OperationMetrics {
		listeners = append(listeners, create(meter))
	}
	return listeners
}
