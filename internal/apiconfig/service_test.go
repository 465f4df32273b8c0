package apiconfig

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"api_config/internal/auth"
	"api_config/internal/config"
	"api_config/internal/diagnostics"
	"api_config/internal/metrics"
	"api_config/internal/utils"
)

// One disabled provider, one enabled provider, and a model pointing at the
// disabled provider's id.
const disabledProviderBundle = `{
	"providers": [
		{"id":"p-off","name":"legacy","provider_type":"openai","enabled":false,
		 "config":{"api_key":{"type":"literal","value":"sk-old"}}},
		{"id":"p-on","name":"anthropic-main","provider_type":"anthropic","enabled":true,
		 "config":{"api_key":{"type":"literal","value":"sk-ant"}}}
	],
	"models": [
		{"id":"m-1","key":"gpt-legacy","model_type":"chat","provider_id":"p-off","enabled":true,
		 "config_details":{"max_tokens":1024}}
	],
	"pipelines": [
		{"id":"pl-1","name":"default","pipeline_type":"chat","enabled":true,"plugins":[
			{"plugin_type":"model-router","config_data":{"models":[{"key":"gpt-legacy","priority":1}]}}
		]},
		{"id":"pl-2","name":"paused","pipeline_type":"chat","enabled":false,"plugins":[]}
	],
	"version": "2026.10.19-1"
}`

func quietLogger() *utils.Logger {
	return utils.NewLogger("apiconfig-test", utils.Critical)
}

func TestService_FullConfigDisabledProviderScenario(t *testing.T) {
	srv := newAPIServer(t, map[string]response{
		"/api/config": {http.StatusOK, disabledProviderBundle},
	})
	sink := diagnostics.NewMemorySink()

	svc, err := New(config.APIClientConfig{
		BaseURL:            srv.URL + "/api/",
		FullConfigEndpoint: "/config",
	}, WithLogger(quietLogger()), WithSink(sink))
	require.NoError(t, err)
	defer svc.Close()

	cfg, err := svc.FetchLiveConfig(context.Background())
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "anthropic-main", cfg.Providers[0].Key)
	assert.Empty(t, cfg.Models)
	require.Len(t, cfg.Pipelines, 1)
	assert.Equal(t, "default", cfg.Pipelines[0].Name)

	published := sink.Snapshot()
	require.Len(t, published, 1)
	assert.Equal(t, diagnostics.StageModel, published[0].Stage)
	assert.Equal(t, "gpt-legacy", published[0].EntityKey)
	assert.Contains(t, published[0].Reason, "p-off")

	requests := srv.recorded()
	require.Len(t, requests, 1)
	assert.Equal(t, requests[0].Headers.Get(auth.RequestIDHeader), published[0].CycleID)
}

func TestService_ProvidersFailureReturnsNoConfig(t *testing.T) {
	routes := separateRoutes()
	routes["/providers"] = response{http.StatusInternalServerError, "boom"}
	srv := newAPIServer(t, routes)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(config.MetricsConfig{Namespace: "svc"}, registry)

	svc, err := New(config.APIClientConfig{BaseURL: srv.URL},
		WithLogger(quietLogger()), WithMetrics(collector))
	require.NoError(t, err)

	cfg, err := svc.FetchLiveConfig(context.Background())
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)

	expected := `
# HELP svc_cycles_total Fetch-transform cycles by outcome
# TYPE svc_cycles_total counter
svc_cycles_total{outcome="failure"} 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "svc_cycles_total"))
}

func TestService_RunCycleSeparateEndpoints(t *testing.T) {
	srv := newAPIServer(t, separateRoutes())

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(config.MetricsConfig{Namespace: "svc"}, registry)

	svc, err := New(config.APIClientConfig{BaseURL: srv.URL},
		WithLogger(quietLogger()), WithMetrics(collector))
	require.NoError(t, err)

	result, err := svc.RunCycle(WithCycleID(context.Background(), "cycle-run"))
	require.NoError(t, err)
	assert.Empty(t, result.Diagnostics)

	require.Len(t, result.Config.Providers, 1)
	assert.Equal(t, map[string]string{"organization_id": "org-9"}, result.Config.Providers[0].Params)
	require.Len(t, result.Config.Models, 1)
	assert.Equal(t, "openai-main", result.Config.Models[0].Provider)
	assert.Equal(t, "0.7", result.Config.Models[0].Params["temperature"])
	require.Len(t, result.Config.Pipelines, 1)

	for _, r := range srv.recorded() {
		assert.Equal(t, "cycle-run", r.Headers.Get(auth.RequestIDHeader))
	}

	expected := `
# HELP svc_entities_loaded Entities in the last transformed configuration
# TYPE svc_entities_loaded gauge
svc_entities_loaded{kind="model"} 1
svc_entities_loaded{kind="pipeline"} 1
svc_entities_loaded{kind="provider"} 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "svc_entities_loaded"))
}

type failingSink struct{ calls int }

func (s *failingSink) Publish(context.Context, []diagnostics.Diagnostic) error {
	s.calls++
	return errors.New("sink down")
}

func (s *failingSink) Close() error { return nil }

func TestService_SinkFailureDoesNotFailCycle(t *testing.T) {
	srv := newAPIServer(t, map[string]response{
		"/config": {http.StatusOK, disabledProviderBundle},
	})
	sink := &failingSink{}

	svc, err := New(config.APIClientConfig{BaseURL: srv.URL, FullConfigEndpoint: "config"},
		WithLogger(quietLogger()), WithSink(sink))
	require.NoError(t, err)

	cfg, err := svc.FetchLiveConfig(context.Background())
	require.NoError(t, err)
	assert.Len(t, cfg.Providers, 1)
	assert.Equal(t, 1, sink.calls)
}

func TestService_PublishesToRedis(t *testing.T) {
	srv := newAPIServer(t, map[string]response{
		"/config": {http.StatusOK, disabledProviderBundle},
	})
	mr := miniredis.RunT(t)
	sink := diagnostics.NewRedisSinkWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "diagnostics:test", 100)

	svc, err := New(config.APIClientConfig{BaseURL: srv.URL, FullConfigEndpoint: "config"},
		WithLogger(quietLogger()), WithSink(sink))
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.FetchLiveConfig(context.Background())
	require.NoError(t, err)

	recent, err := sink.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "gpt-legacy", recent[0].EntityKey)
}

func TestService_Spans(t *testing.T) {
	srv := newAPIServer(t, map[string]response{
		"/config": {http.StatusOK, disabledProviderBundle},
	})
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	svc, err := New(config.APIClientConfig{BaseURL: srv.URL, FullConfigEndpoint: "config"},
		WithLogger(quietLogger()), WithTracerProvider(tp))
	require.NoError(t, err)

	_, err = svc.FetchLiveConfig(context.Background())
	require.NoError(t, err)

	spans := recorder.Ended()
	byName := make(map[string]sdktrace.ReadOnlySpan, len(spans))
	for _, span := range spans {
		byName[span.Name()] = span
	}
	require.Contains(t, byName, "apiconfig.RunCycle")
	require.Contains(t, byName, "apiconfig.FetchAll")
	require.Contains(t, byName, "apiconfig.fetch configuration")
	require.Contains(t, byName, "apiconfig.Transform")

	root := byName["apiconfig.RunCycle"]
	assert.Equal(t, root.SpanContext().TraceID(), byName["apiconfig.Transform"].SpanContext().TraceID())
	assert.Equal(t, root.SpanContext().SpanID(), byName["apiconfig.FetchAll"].Parent().SpanID())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(config.APIClientConfig{})
	assert.ErrorIs(t, err, ErrMissingBaseURL)

	_, err = New(config.APIClientConfig{BaseURL: "http://api", AuthHeader: "X-Key", AuthValue: "bad\r\nvalue"})
	assert.Error(t, err)
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("API_CONFIG_BASE_URL", "")
	_, err := NewFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_CONFIG_BASE_URL")

	srv := newAPIServer(t, map[string]response{
		"/full": {http.StatusOK, disabledProviderBundle},
	})
	t.Setenv("API_CONFIG_BASE_URL", srv.URL)
	t.Setenv("API_CONFIG_FULL_ENDPOINT", "full")
	t.Setenv("API_CONFIG_TIMEOUT_SECONDS", "5")
	t.Setenv("API_CONFIG_AUTH_HEADER", "X-Api-Key")
	t.Setenv("API_CONFIG_AUTH_VALUE", "from-env")

	svc, err := NewFromEnv(WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, 5, svc.fetcher.cfg.TimeoutSeconds)

	cfg, err := svc.FetchLiveConfig(context.Background())
	require.NoError(t, err)
	assert.Len(t, cfg.Providers, 1)
	assert.Equal(t, "from-env", srv.recorded()[0].Headers.Get("X-Api-Key"))
}
