// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package elasticsearch

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"

	instrumenter "github.com/open-telemetry/opentelemetry-go-library-instrumentation/pkg/inst-api"
)

const (
	actionKey          = attribute.Key("elasticsearch.action")
	requestKey         = attribute.Key("elasticsearch.request")
	requestIndicesKey  = attribute.Key("elasticsearch.request.indices")
	idKey              = attribute.Key("elasticsearch.id")
	versionKey         = attribute.Key("elasticsearch.version")
	shardTotalKey      = attribute.Key("elasticsearch.shard.replication.total")
	shardSuccessfulKey = attribute.Key("elasticsearch.shard.replication.successful")
	shardFailedKey     = attribute.Key("elasticsearch.shard.replication.failed")
	responseResultKey  = attribute.Key("elasticsearch.response.result")

	writeTypeKey    = attribute.Key("elasticsearch.request.write.type")
	writeRoutingKey = attribute.Key("elasticsearch.request.write.routing")
	writeVersionKey = attribute.Key("elasticsearch.request.write.version")
)

// ExperimentalAttrsExtractor adds the elasticsearch.* attributes shared by
// every API call.
type ExperimentalAttrsExtractor struct{}

func (*ExperimentalAttrsExtractor) OnStart(parentContext context.Context, attributes []attribute.KeyValue,
	request TransportRequest,
) ([]attribute.KeyValue, context.Context) {
	if request.Action != "" {
		attributes = append(attributes, actionKey.String(request.Action))
	}
	if name := requestName(request.Request); name != "" {
		attributes = append(attributes, requestKey.String(name))
	}
	if indices := requestIndices(request.Request); len(indices) > 0 {
		attributes = append(attributes, requestIndicesKey.String(strings.Join(indices, ",")))
	}
	return attributes, parentContext
}

func (*ExperimentalAttrsExtractor) OnEnd(parentContext context.Context, attributes []attribute.KeyValue,
	_ TransportRequest, response TransportResponse, _ error,
) ([]attribute.KeyValue, context.Context) {
	if response.ID != "" {
		attributes = append(attributes, idKey.String(response.ID))
	}
	if response.Version > 0 {
		attributes = append(attributes, versionKey.Int64(response.Version))
	}
	if response.Shards.Total > 0 {
		attributes = append(attributes,
			shardTotalKey.Int64(response.Shards.Total),
			shardSuccessfulKey.Int64(response.Shards.Successful),
			shardFailedKey.Int64(response.Shards.Failed))
	}
	if response.Result != "" {
		attributes = append(attributes, responseResultKey.String(response.Result))
	}
	return attributes, parentContext
}

// WriteAttrsExtractor extends Base with the elasticsearch.request.write.*
// attributes of document write requests. Routing and version are omitted
// when the request does not set them.
type WriteAttrsExtractor struct {
	Base instrumenter.AttributesExtractor[TransportRequest, TransportResponse]
}

func (w *WriteAttrsExtractor) base() instrumenter.AttributesExtractor[TransportRequest, TransportResponse] {
	if w.Base == nil {
		return &ExperimentalAttrsExtractor{}
	}
	return w.Base
}

func (w *WriteAttrsExtractor) OnStart(parentContext context.Context, attributes []attribute.KeyValue,
	request TransportRequest,
) ([]attribute.KeyValue, context.Context) {
	attributes, parentContext = w.base().OnStart(parentContext, attributes, request)

	write, ok := AsDocWriteRequest(request.Request)
	if !ok {
		return attributes, parentContext
	}
	attributes = append(attributes, writeTypeKey.String(write.WriteType()))
	if routing, ok := write.WriteRouting(); ok {
		attributes = append(attributes, writeRoutingKey.String(routing))
	}
	if version, ok := write.WriteVersion(); ok {
		attributes = append(attributes, writeVersionKey.Int64(version))
	}
	return attributes, parentContext
}

func (w *WriteAttrsExtractor) OnEnd(parentContext context.Context, attributes []attribute.KeyValue,
	request TransportRequest, response TransportResponse, err error,
) ([]attribute.KeyValue, context.Context) {
	return w.base().OnEnd(parentContext, attributes, request, response, err)
}

// dbAttrsExtractor adds the database client semantic conventions.
type dbAttrsExtractor struct{}

func (*dbAttrsExtractor) OnStart(parentContext context.Context, attributes []attribute.KeyValue,
	request TransportRequest,
) ([]attribute.KeyValue, context.Context) {
	attributes = append(attributes, semconv.DBSystemNameElasticsearch)
	if request.Action != "" {
		attributes = append(attributes, semconv.DBOperationName(request.Action))
	}
	return attributes, parentContext
}

func (*dbAttrsExtractor) OnEnd(parentContext context.Context, attributes []attribute.KeyValue,
	_ TransportRequest, response TransportResponse, err error,
) ([]attribute.KeyValue, context.Context) {
	if response.StatusCode > 0 {
		attributes = append(attributes, semconv.DBResponseStatusCode(strconv.Itoa(response.StatusCode)))
	}
	switch {
	case err != nil:
		attributes = append(attributes, semconv.ErrorType(err))
	case response.StatusCode >= http.StatusBadRequest:
		attributes = append(attributes, semconv.ErrorTypeKey.String(strconv.Itoa(response.StatusCode)))
	}
	return attributes, parentContext
}

// serverAttrsGetter reads the explicit server address of a request.
type serverAttrsGetter struct{}

func (serverAttrsGetter) GetServerAddress(request TransportRequest) string {
	return request.ServerAddress
}

func (serverAttrsGetter) GetServerPort(request TransportRequest) int {
	return request.ServerPort
}

func requestURL(request TransportRequest) string {
	return request.URL
}

type spanNameExtractor struct{}

func (spanNameExtractor) Extract(request TransportRequest) string {
	if request.Action == "" {
		return "elasticsearch"
	}
	return request.Action
}

// spanStatusExtractor marks transport errors and error status codes.
type spanStatusExtractor struct{}

func (spanStatusExtractor) Extract(span trace.Span, _ TransportRequest, response TransportResponse, err error) {
	switch {
	case err != nil:
		span.SetStatus(codes.Error, err.Error())
	case response.StatusCode >= http.StatusBadRequest:
		span.SetStatus(codes.Error, http.StatusText(response.StatusCode))
	}
}
