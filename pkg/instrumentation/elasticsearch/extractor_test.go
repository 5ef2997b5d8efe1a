// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package elasticsearch

import (
	"context"
	"errors"
	"testing"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func intPtr(v int) *int {
	return &v
}

type customWrite struct {
	esapi.IndexRequest
}

func (customWrite) WriteType() string {
	return "index"
}

func (customWrite) WriteRouting() (string, bool) {
	return "", false
}

func (customWrite) WriteVersion() (int64, bool) {
	return 7, true
}

type pointerWrite struct {
	esapi.IndexRequest
}

func (p *pointerWrite) WriteType() string {
	return p.OpType
}

func (p *pointerWrite) WriteRouting() (string, bool) {
	return p.Routing, p.Routing != ""
}

func (p *pointerWrite) WriteVersion() (int64, bool) {
	if p.Version == nil {
		return 0, false
	}
	return int64(*p.Version), true
}

func toMap(attrs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, kv := range attrs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestWriteAttrsExtractorIndexWithRoutingWithoutVersion(t *testing.T) {
	extractor := &WriteAttrsExtractor{}
	req := esapi.IndexRequest{Index: "users", DocumentID: "1", Routing: "user-42"}

	attrs, ctx := extractor.OnStart(context.Background(), nil, newTransportRequest(req, ""))
	require.NotNil(t, ctx)

	m := toMap(attrs)
	assert.Equal(t, "index", m[writeTypeKey].AsString())
	assert.Equal(t, "user-42", m[writeRoutingKey].AsString())
	assert.NotContains(t, m, writeVersionKey)
}

func TestWriteAttrsExtractorDelegatesFirst(t *testing.T) {
	extractor := &WriteAttrsExtractor{Base: &ExperimentalAttrsExtractor{}}
	req := &esapi.DeleteRequest{Index: "users", DocumentID: "1", Version: intPtr(3)}

	attrs, _ := extractor.OnStart(context.Background(), nil, newTransportRequest(req, ""))
	assert.Equal(t, []attribute.KeyValue{
		actionKey.String("delete"),
		requestKey.String("DeleteRequest"),
		requestIndicesKey.String("users"),
		writeTypeKey.String("delete"),
		writeVersionKey.Int64(3),
	}, attrs)
}

func TestWriteAttrsExtractorVariants(t *testing.T) {
	tests := []struct {
		name     string
		request  esapi.Request
		expected []attribute.KeyValue
	}{
		{
			name:     "index op type create",
			request:  esapi.IndexRequest{Index: "a", OpType: "create", Version: intPtr(2)},
			expected: []attribute.KeyValue{writeTypeKey.String("create"), writeVersionKey.Int64(2)},
		},
		{
			name:     "create pointer",
			request:  &esapi.CreateRequest{Index: "a", DocumentID: "1", Routing: "r"},
			expected: []attribute.KeyValue{writeTypeKey.String("create"), writeRoutingKey.String("r")},
		},
		{
			name:     "update value",
			request:  esapi.UpdateRequest{Index: "a", DocumentID: "1"},
			expected: []attribute.KeyValue{writeTypeKey.String("update")},
		},
		{
			name:     "delete value with zero version",
			request:  esapi.DeleteRequest{Index: "a", DocumentID: "1", Version: intPtr(0)},
			expected: []attribute.KeyValue{writeTypeKey.String("delete"), writeVersionKey.Int64(0)},
		},
		{
			name:     "custom write request",
			request:  customWrite{},
			expected: []attribute.KeyValue{writeTypeKey.String("index"), writeVersionKey.Int64(7)},
		},
		{
			name:    "search is not a write",
			request: esapi.SearchRequest{Index: []string{"a", "b"}},
		},
		{
			name:    "nil index pointer",
			request: (*esapi.IndexRequest)(nil),
		},
		{
			name:     "custom pointer write request",
			request:  &pointerWrite{IndexRequest: esapi.IndexRequest{OpType: "create", Routing: "r"}},
			expected: []attribute.KeyValue{writeTypeKey.String("create"), writeRoutingKey.String("r")},
		},
		{
			name:    "nil custom pointer",
			request: (*pointerWrite)(nil),
		},
		{
			name: "no request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			noBase := &WriteAttrsExtractor{Base: &noopExtractor{}}
			var attrs []attribute.KeyValue
			assert.NotPanics(t, func() {
				attrs, _ = noBase.OnStart(context.Background(), nil, TransportRequest{Request: tt.request})
			})
			assert.Equal(t, tt.expected, attrs)
		})
	}
}

type noopExtractor struct {
	ended bool
}

func (*noopExtractor) OnStart(ctx context.Context, attrs []attribute.KeyValue, _ TransportRequest,
) ([]attribute.KeyValue, context.Context) {
	return attrs, ctx
}

func (n *noopExtractor) OnEnd(ctx context.Context, attrs []attribute.KeyValue, _ TransportRequest,
	_ TransportResponse, _ error,
) ([]attribute.KeyValue, context.Context) {
	n.ended = true
	return attrs, ctx
}

func TestWriteAttrsExtractorOnEndDelegates(t *testing.T) {
	base := &noopExtractor{}
	extractor := &WriteAttrsExtractor{Base: base}
	extractor.OnEnd(context.Background(), nil, TransportRequest{}, TransportResponse{}, nil)
	assert.True(t, base.ended)
}

func TestExperimentalAttrsExtractorOnEnd(t *testing.T) {
	extractor := &ExperimentalAttrsExtractor{}
	attrs, _ := extractor.OnEnd(context.Background(), nil, TransportRequest{}, TransportResponse{
		StatusCode: 201,
		ID:         "user-42",
		Version:    4,
		Result:     "created",
		Shards:     ShardInfo{Total: 2, Successful: 1},
	}, nil)
	assert.Equal(t, []attribute.KeyValue{
		idKey.String("user-42"),
		versionKey.Int64(4),
		shardTotalKey.Int64(2),
		shardSuccessfulKey.Int64(1),
		shardFailedKey.Int64(0),
		responseResultKey.String("created"),
	}, attrs)

	attrs, _ = extractor.OnEnd(context.Background(), nil, TransportRequest{}, TransportResponse{StatusCode: 200}, nil)
	assert.Empty(t, attrs)
}

func TestDBAttrsExtractor(t *testing.T) {
	extractor := &dbAttrsExtractor{}
	attrs, _ := extractor.OnStart(context.Background(), nil, TransportRequest{Action: "search"})
	assert.Equal(t, []attribute.KeyValue{
		semconv.DBSystemNameElasticsearch,
		semconv.DBOperationName("search"),
	}, attrs)

	attrs, _ = extractor.OnEnd(context.Background(), nil, TransportRequest{}, TransportResponse{StatusCode: 404}, nil)
	assert.Equal(t, []attribute.KeyValue{
		semconv.DBResponseStatusCode("404"),
		semconv.ErrorTypeKey.String("404"),
	}, attrs)

	err := errors.New("connection refused")
	attrs, _ = extractor.OnEnd(context.Background(), nil, TransportRequest{}, TransportResponse{}, err)
	assert.Equal(t, []attribute.KeyValue{semconv.ErrorType(err)}, attrs)

	attrs, _ = extractor.OnEnd(context.Background(), nil, TransportRequest{}, TransportResponse{StatusCode: 200}, nil)
	assert.Equal(t, []attribute.KeyValue{semconv.DBResponseStatusCode("200")}, attrs)
}

func TestSpanNameAndStatusExtractors(t *testing.T) {
	assert.Equal(t, "elasticsearch", spanNameExtractor{}.Extract(TransportRequest{}))
	assert.Equal(t, "index", spanNameExtractor{}.Extract(TransportRequest{Action: "index"}))

	sr := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)).Tracer("test")

	_, span := tracer.Start(context.Background(), "ok")
	spanStatusExtractor{}.Extract(span, TransportRequest{}, TransportResponse{StatusCode: 200}, nil)
	span.End()
	_, span = tracer.Start(context.Background(), "not found")
	spanStatusExtractor{}.Extract(span, TransportRequest{}, TransportResponse{StatusCode: 404}, nil)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "Not Found", spans[1].Status().Description)
}
