// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package net

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// ServerAttributesExtractor adds server.address and server.port on start.
// server.port is only emitted together with a known address.
type ServerAttributesExtractor[REQUEST any, RESPONSE any] struct {
	addressAndPortExtractor AddressAndPortExtractor[REQUEST]
}

func (s *ServerAttributesExtractor[REQUEST, RESPONSE]) OnStart(parentContext context.Context,
	attributes []attribute.KeyValue, request REQUEST,
) ([]attribute.KeyValue, context.Context) {
	serverAddressAndPort := s.addressAndPortExtractor.Extract(request)
	if serverAddressAndPort.Address == "" {
		return attributes, parentContext
	}
	attributes = append(attributes, semconv.ServerAddress(serverAddressAndPort.Address))
	if serverAddressAndPort.Port > 0 {
		attributes = append(attributes, semconv.ServerPort(serverAddressAndPort.Port))
	}
	return attributes, parentContext
}

func (*ServerAttributesExtractor[REQUEST, RESPONSE]) OnEnd(ctx context.Context, attributes []attribute.KeyValue,
	_ REQUEST, _ RESPONSE, _ error,
) ([]attribute.KeyValue, context.Context) {
	return attributes, ctx
}

// CreateServerAttributesExtractor reads the address from getter and falls
// back to fallback when the getter knows neither address nor port. A nil
// fallback extracts nothing.
func CreateServerAttributesExtractor[REQUEST any, RESPONSE any](
	getter ServerAttributesGetter[REQUEST],
	fallback AddressAndPortExtractor[REQUEST],
) *ServerAttributesExtractor[REQUEST, RESPONSE] {
	if fallback == nil {
		fallback = &NoopAddressAndPortExtractor[REQUEST]{}
	}
	return &ServerAttributesExtractor[REQUEST, RESPONSE]{
		addressAndPortExtractor: &ServerAddressAndPortExtractor[REQUEST]{
			getter:            getter,
			fallbackExtractor: fallback,
		},
	}
}
