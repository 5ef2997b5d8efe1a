// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package graphql

import (
	"context"
	"errors"

	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

const (
	fieldNameKey  = attribute.Key("graphql.field.name")
	fieldPathKey  = attribute.Key("graphql.field.path")
	parentTypeKey = attribute.Key("graphql.parent.type")

	errorCodeExtension = "code"
)

// OperationRequest describes one executed GraphQL operation.
type OperationRequest struct {
	Name string
	// Type is query, mutation or subscription. Empty when the document
	// did not resolve to an operation.
	Type     string
	Document string
}

type OperationResponse struct {
	Errors gqlerror.List
}

// DataFetcherRequest describes the resolution of one field.
type DataFetcherRequest struct {
	FieldName  string
	Path       string
	ParentType string
	// Trivial is set for fields read straight from the parent object.
	Trivial bool
}

type operationAttrsExtractor struct {
	captureDocument bool
}

func (o *operationAttrsExtractor) OnStart(parentContext context.Context, attributes []attribute.KeyValue,
	request OperationRequest,
) ([]attribute.KeyValue, context.Context) {
	if request.Name != "" {
		attributes = append(attributes, semconv.GraphQLOperationName(request.Name))
	}
	if request.Type != "" {
		attributes = append(attributes, semconv.GraphQLOperationTypeKey.String(request.Type))
	}
	if o.captureDocument && request.Document != "" {
		attributes = append(attributes, semconv.GraphQLDocument(request.Document))
	}
	return attributes, parentContext
}

func (*operationAttrsExtractor) OnEnd(parentContext context.Context, attributes []attribute.KeyValue,
	_ OperationRequest, response OperationResponse, err error,
) ([]attribute.KeyValue, context.Context) {
	switch {
	case err != nil:
		attributes = append(attributes, errorType(err))
	case len(response.Errors) > 0:
		attributes = append(attributes, errorType(response.Errors[0]))
	}
	return attributes, parentContext
}

type dataFetcherAttrsExtractor struct{}

func (*dataFetcherAttrsExtractor) OnStart(parentContext context.Context, attributes []attribute.KeyValue,
	request DataFetcherRequest,
) ([]attribute.KeyValue, context.Context) {
	attributes = append(attributes,
		fieldNameKey.String(request.FieldName),
		fieldPathKey.String(request.Path))
	if request.ParentType != "" {
		attributes = append(attributes, parentTypeKey.String(request.ParentType))
	}
	return attributes, parentContext
}

func (*dataFetcherAttrsExtractor) OnEnd(parentContext context.Context, attributes []attribute.KeyValue,
	_ DataFetcherRequest, _ any, err error,
) ([]attribute.KeyValue, context.Context) {
	if err != nil {
		attributes = append(attributes, errorType(err))
	}
	return attributes, parentContext
}

// errorType prefers the code extension of GraphQL errors. Other GraphQL
// errors are reported as _OTHER and Go errors by their type.
func errorType(err error) attribute.KeyValue {
	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		if code, ok := gqlErr.Extensions[errorCodeExtension].(string); ok && code != "" {
			return semconv.ErrorTypeKey.String(code)
		}
		return semconv.ErrorTypeOther
	}
	return semconv.ErrorType(err)
}

type operationSpanNameExtractor struct{}

// Extract follows the "{type} {name}" convention, falling back to
// "GraphQL Operation" when the type is unknown.
func (operationSpanNameExtractor) Extract(request OperationRequest) string {
	switch {
	case request.Type == "":
		return "GraphQL Operation"
	case request.Name == "":
		return request.Type
	default:
		return request.Type + " " + request.Name
	}
}

type dataFetcherSpanNameExtractor struct{}

func (dataFetcherSpanNameExtractor) Extract(request DataFetcherRequest) string {
	return request.FieldName
}
