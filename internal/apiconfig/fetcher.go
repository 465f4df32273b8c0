package apiconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"api_config/internal/auth"
	"api_config/internal/config"
	"api_config/internal/metrics"
	"api_config/internal/utils"
)

// Resource names used in errors, logs and metrics
const (
	ResourceFullConfig = "configuration"
	ResourceProviders  = "providers"
	ResourceModels     = "models"
	ResourcePipelines  = "pipelines"
)

// Fetcher retrieves the raw configuration bundle from the configuration API.
type Fetcher struct {
	cfg     config.APIClientConfig
	client  *http.Client
	auth    auth.Authenticator
	logger  *utils.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
}

// NewFetcher validates cfg and builds the HTTP client. It fails when the
// base URL is missing or the auth header pair is not a valid header.
func NewFetcher(cfg config.APIClientConfig, opts ...Option) (*Fetcher, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = config.DefaultTimeoutSeconds
	}

	authenticator, err := auth.NewAuthenticator(cfg)
	if err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	return newFetcher(cfg, authenticator, o), nil
}

func newFetcher(cfg config.APIClientConfig, authenticator auth.Authenticator, o *options) *Fetcher {
	client := o.httpClient
	if client == nil {
		client = &http.Client{
			Timeout: cfg.Timeout(),
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 3,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &Fetcher{
		cfg:     cfg,
		client:  client,
		auth:    authenticator,
		logger:  o.logger.Named("fetcher"),
		metrics: o.metrics,
		tracer:  o.tracer(),
	}
}

// FetchAll retrieves providers, models and pipelines. With a full-config
// endpoint configured it issues a single request; otherwise the three
// resources are fetched concurrently and any failure fails the whole call.
func (f *Fetcher) FetchAll(ctx context.Context) (*ConfigurationBundle, error) {
	if CycleIDFromContext(ctx) == "" {
		ctx = WithCycleID(ctx, uuid.NewString())
	}

	mode := "separate"
	if f.cfg.FullConfigEndpoint != "" {
		mode = "full"
	}

	ctx, span := f.tracer.Start(ctx, "apiconfig.FetchAll",
		trace.WithAttributes(
			attribute.String("apiconfig.cycle_id", CycleIDFromContext(ctx)),
			attribute.String("apiconfig.fetch_mode", mode),
		))
	defer span.End()

	var (
		bundle *ConfigurationBundle
		err    error
	)
	if f.cfg.FullConfigEndpoint != "" {
		bundle, err = f.fetchFull(ctx, f.cfg.FullConfigEndpoint)
	} else {
		bundle, err = f.fetchSeparate(ctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return bundle, nil
}

func (f *Fetcher) fetchFull(ctx context.Context, endpoint string) (*ConfigurationBundle, error) {
	var bundle ConfigurationBundle
	if err := f.fetchJSON(ctx, ResourceFullConfig, JoinURL(f.cfg.BaseURL, endpoint), &bundle); err != nil {
		return nil, err
	}
	return &bundle, nil
}

func (f *Fetcher) fetchSeparate(ctx context.Context) (*ConfigurationBundle, error) {
	var (
		providers []ProviderDTO
		models    []ModelDTO
		pipelines []PipelineDTO
	)

	// First failure cancels gctx; the remaining requests abort and their
	// results are dropped.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return f.fetchJSON(gctx, ResourceProviders, JoinURL(f.cfg.BaseURL, f.cfg.ProvidersPath()), &providers)
	})
	g.Go(func() error {
		return f.fetchJSON(gctx, ResourceModels, JoinURL(f.cfg.BaseURL, f.cfg.ModelsPath()), &models)
	})
	g.Go(func() error {
		return f.fetchJSON(gctx, ResourcePipelines, JoinURL(f.cfg.BaseURL, f.cfg.PipelinesPath()), &pipelines)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &ConfigurationBundle{
		Providers: providers,
		Models:    models,
		Pipelines: pipelines,
	}, nil
}

// fetchJSON issues one GET and decodes the body into out.
func (f *Fetcher) fetchJSON(ctx context.Context, resource, url string, out interface{}) (err error) {
	start := time.Now()

	ctx, span := f.tracer.Start(ctx, "apiconfig.fetch "+resource,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("apiconfig.resource", resource),
			attribute.String("http.url", url),
		))
	defer func() {
		f.metrics.ObserveFetch(resource, time.Since(start), err)
		var fetchErr *FetchError
		// Siblings aborted by a failed fetch are not counted as failures.
		if errors.As(err, &fetchErr) && !errors.Is(err, context.Canceled) {
			f.metrics.RecordFetchError(resource, fetchErr.kindLabel())
			span.RecordError(err)
			span.SetStatus(codes.Error, fetchErr.kindLabel())
		}
		span.End()
	}()

	f.logger.Debug("Fetching configuration resource", "resource", resource, "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &FetchError{Kind: ErrTransport, Resource: resource, URL: url, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(auth.RequestIDHeader, CycleIDFromContext(ctx))
	if err := f.auth.Apply(ctx, req); err != nil {
		return &FetchError{Kind: ErrTransport, Resource: resource, URL: url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return &FetchError{Kind: ErrTransport, Resource: resource, URL: url, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, bodyExcerptLimit))
		return &FetchError{
			Kind:       ErrUnexpectedStatus,
			Resource:   resource,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(excerpt)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{Kind: ErrDecode, Resource: resource, URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

// JoinURL resolves endpoint against base. Endpoints starting with "http"
// are absolute and returned unchanged; otherwise the two are joined with
// exactly one slash.
func JoinURL(base, endpoint string) string {
	if strings.HasPrefix(endpoint, "http") {
		return endpoint
	}
	return fmt.Sprintf("%s/%s", strings.TrimRight(base, "/"), strings.TrimLeft(endpoint, "/"))
}
