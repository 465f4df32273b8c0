package apiconfig

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"api_config/internal/diagnostics"
	"api_config/internal/metrics"
	"api_config/internal/secrets"
	"api_config/internal/utils"
)

const instrumentationName = "api_config/internal/apiconfig"

type options struct {
	httpClient     *http.Client
	logger         *utils.Logger
	metrics        *metrics.Collector
	tracerProvider trace.TracerProvider
	resolver       secrets.Resolver
	sink           diagnostics.Sink
	now            func() time.Time
}

// Option configures a Fetcher, Transformer or Service.
type Option func(*options)

// WithHTTPClient replaces the HTTP client built from the API client config.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithLogger sets the root logger
func WithLogger(logger *utils.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records fetch and transform metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithTracerProvider replaces the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithResolver sets the secret resolver used for provider api keys.
func WithResolver(r secrets.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithSink publishes each cycle's diagnostics to sink.
func WithSink(sink diagnostics.Sink) Option {
	return func(o *options) { o.sink = sink }
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = utils.NewLogger("apiconfig")
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	if o.resolver == nil {
		o.resolver = secrets.NewResolver(secrets.WithLogger(o.logger.Named("secrets")))
	}
	if o.sink == nil {
		o.sink = diagnostics.NewNoopSink()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

func (o *options) tracer() trace.Tracer {
	return o.tracerProvider.Tracer(instrumentationName)
}

type cycleIDKey struct{}

// WithCycleID attaches the id of the current fetch-transform cycle to ctx.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleIDKey{}, id)
}

// CycleIDFromContext returns the cycle id attached to ctx, or "".
func CycleIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(cycleIDKey{}).(string)
	return id
}
