// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package graphql instruments gqlgen servers. Every executed operation and,
// optionally, every resolved field is traced and measured.
package graphql

import (
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/open-telemetry/opentelemetry-go-library-instrumentation/pkg/inst-api-semconv/instrumenter/operation"
	"github.com/open-telemetry/opentelemetry-go-library-instrumentation/pkg/inst-api-semconv/instrumenter/utils"
)

// OperationMetrics describes the graphql.operation.duration histogram.
func OperationMetrics() operation.DurationConfig {
	return operation.DurationConfig{
		Name:        "graphql.operation.duration",
		Description: "Duration of GraphQL operations.",
		Buckets:     utils.DurationSecondsBuckets,
		AttributeAdvice: []attribute.Key{
			semconv.GraphQLOperationNameKey,
			semconv.GraphQLOperationTypeKey,
			semconv.ErrorTypeKey,
		},
	}
}

// DataFetcherMetrics describes the graphql.datafetcher.duration histogram.
func DataFetcherMetrics() operation.DurationConfig {
	return operation.DurationConfig{
		Name:        "graphql.datafetcher.duration",
		Description: "Duration of GraphQL data fetching.",
		Buckets:     utils.DurationSecondsBuckets,
		AttributeAdvice: []attribute.Key{
			fieldNameKey,
			parentTypeKey,
			semconv.ErrorTypeKey,
		},
	}
}

// Views returns the metric views honoring the attribute advice of both
// GraphQL histograms.
func Views() []sdkmetric.View {
	return []sdkmetric.View{
		OperationMetrics().View(),
		DataFetcherMetrics().View(),
	}
}
