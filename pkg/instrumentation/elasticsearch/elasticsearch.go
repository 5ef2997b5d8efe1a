// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package elasticsearch instruments calls made with go-elasticsearch. Each
// esapi request produces a client span with the elasticsearch.* attributes
// and one db.client.operation.duration sample.
package elasticsearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	esv8 "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"

	instrumenter "github.com/open-telemetry/opentelemetry-go-library-instrumentation/pkg/inst-api"
	"github.com/open-telemetry/opentelemetry-go-library-instrumentation/pkg/inst-api-semconv/instrumenter/net"
	"github.com/open-telemetry/opentelemetry-go-library-instrumentation/pkg/inst-api-semconv/instrumenter/operation"
	"github.com/open-telemetry/opentelemetry-go-library-instrumentation/pkg/inst-api-semconv/instrumenter/utils"
	"github.com/open-telemetry/opentelemetry-go-library-instrumentation/pkg/instrumentation/shared"
)

const (
	instrumentationName = "github.com/open-telemetry/opentelemetry-go-library-instrumentation/pkg/instrumentation/elasticsearch"
	instrumentationKey  = "elasticsearch"
	defaultServerURL    = "http://localhost:9200"
)

var errNilRequest = errors.New("elasticsearch: nil request")

// DurationMetrics describes the db.client.operation.duration histogram.
func DurationMetrics() operation.DurationConfig {
	return operation.DurationConfig{
		Name:        "db.client.operation.duration",
		Description: "Duration of database client operations.",
		Buckets:     utils.DBClientDurationBuckets,
		AttributeAdvice: []attribute.Key{
			semconv.DBSystemNameKey,
			semconv.DBOperationNameKey,
			semconv.ErrorTypeKey,
		},
		// Document ids, routing and versions must never become series.
		FilterToAdvice: true,
	}
}

// Views returns the metric views honoring the attribute advice of the
// Elasticsearch metrics.
func Views() []sdkmetric.View {
	return []sdkmetric.View{DurationMetrics().View()}
}

type config struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	logger         *slog.Logger
	enabler        instrumenter.InstrumentEnabler
	serverURL      string
}

type Option func(*config)

func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = provider
	}
}

func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = provider
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithEnabler overrides the OTEL_GO_*_INSTRUMENTATIONS based gate.
func WithEnabler(enabler instrumenter.InstrumentEnabler) Option {
	return func(c *config) {
		c.enabler = enabler
	}
}

// WithServerURL sets the URL server.address and server.port are derived from.
func WithServerURL(url string) Option {
	return func(c *config) {
		c.serverURL = url
	}
}

// Instrumentation traces and measures esapi requests.
type Instrumentation struct {
	instrumenter instrumenter.Instrumenter[TransportRequest, TransportResponse]
	serverURL    string
	logger       *slog.Logger
}

func New(opts ...Option) *Instrumentation {
	c := config{serverURL: defaultServerURL}
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = shared.Logger()
	}
	if c.enabler == nil {
		c.enabler = shared.NewEnabler(instrumentationKey)
	}
	return &Instrumentation{
		instrumenter: newInstrumenter(c),
		serverURL:    c.serverURL,
		logger:       c.logger,
	}
}

func newInstrumenter(c config) instrumenter.Instrumenter[TransportRequest, TransportResponse] {
	builder := &instrumenter.Builder[TransportRequest, TransportResponse]{}
	builder.Init().
		SetInstrumentEnabler(c.enabler).
		SetSpanNameExtractor(spanNameExtractor{}).
		SetSpanKindExtractor(&instrumenter.AlwaysClientExtractor[TransportRequest]{}).
		SetSpanStatusExtractor(spanStatusExtractor{}).
		AddAttributesExtractor(
			&dbAttrsExtractor{},
			net.CreateServerAttributesExtractor[TransportRequest, TransportResponse](
				serverAttrsGetter{},
				&net.URLAddressAndPortExtractor[TransportRequest]{URL: requestURL},
			),
			&WriteAttrsExtractor{Base: &ExperimentalAttrsExtractor{}},
		).
		AddOperationMetrics(operation.Factory(DurationMetrics(), c.logger)).
		SetInstrumentationScope(instrumentation.Scope{
			Name:      instrumentationName,
			Version:   shared.ModuleVersion(),
			SchemaURL: semconv.SchemaURL,
		})
	if c.meterProvider != nil {
		builder.SetMeterProvider(c.meterProvider)
	}
	if c.tracerProvider != nil {
		return builder.BuildInstrumenterWithTracer(c.tracerProvider.Tracer(instrumentationName,
			trace.WithInstrumentationVersion(builder.Scope.Version),
			trace.WithSchemaURL(semconv.SchemaURL)))
	}
	return builder.BuildInstrumenter()
}

// Do performs req over transport inside an instrumented operation. The
// response body is left readable.
func (i *Instrumentation) Do(ctx context.Context, req esapi.Request, transport esapi.Transport,
) (*esapi.Response, error) {
	if req == nil {
		return nil, errNilRequest
	}
	request := newTransportRequest(req, i.serverURL)
	ctx = i.instrumenter.Start(ctx, request)

	res, err := req.Do(ctx, transport)
	response, decodeErr := newTransportResponse(res)
	if decodeErr != nil {
		i.logger.Debug("failed to read elasticsearch response", "action", request.Action, "error", decodeErr)
	}

	i.instrumenter.End(ctx, instrumenter.Invocation[TransportRequest, TransportResponse]{
		Request:  request,
		Response: response,
		Err:      err,
	})
	return res, err
}

// Client is an Elasticsearch client whose requests are instrumented when
// sent through Do.
type Client struct {
	*esv8.Client
	inst *Instrumentation
}

// NewClient creates a go-elasticsearch client. Its HTTP transport is wrapped
// with otelhttp and the first configured address is used as the server
// address unless WithServerURL is given.
func NewClient(cfg esv8.Config, opts ...Option) (*Client, error) {
	c := config{}
	for _, opt := range opts {
		opt(&c)
	}

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	var httpOpts []otelhttp.Option
	if c.tracerProvider != nil {
		httpOpts = append(httpOpts, otelhttp.WithTracerProvider(c.tracerProvider))
	}
	if c.meterProvider != nil {
		httpOpts = append(httpOpts, otelhttp.WithMeterProvider(c.meterProvider))
	}
	cfg.Transport = otelhttp.NewTransport(base, httpOpts...)

	es, err := esv8.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if len(cfg.Addresses) > 0 {
		opts = append([]Option{WithServerURL(cfg.Addresses[0])}, opts...)
	}
	return &Client{Client: es, inst: New(opts...)}, nil
}

func (c *Client) Do(ctx context.Context, req esapi.Request) (*esapi.Response, error) {
	return c.inst.Do(ctx, req, c.Client)
}
