package apiconfig

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"api_config/internal/auth"
	"api_config/internal/config"
	"api_config/internal/diagnostics"
	"api_config/internal/metrics"
	"api_config/internal/models"
	"api_config/internal/utils"
)

// Service runs fetch-transform cycles against the configuration API.
type Service struct {
	fetcher     *Fetcher
	transformer *Transformer
	sink        diagnostics.Sink
	logger      *utils.Logger
	metrics     *metrics.Collector
	tracer      trace.Tracer
	opts        *options
}

// New creates a service for cfg. It fails when the base URL is missing or
// the configured auth header is invalid.
func New(cfg config.APIClientConfig, opts ...Option) (*Service, error) {
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
	return &Service{
		fetcher:     newFetcher(cfg, authenticator, o),
		transformer: newTransformer(o),
		sink:        o.sink,
		logger:      o.logger,
		metrics:     o.metrics,
		tracer:      o.tracer(),
		opts:        o,
	}, nil
}

// NewFromEnv reads the API_CONFIG_* variables and creates the service.
func NewFromEnv(opts ...Option) (*Service, error) {
	cfg, err := config.LoadAPIClientConfig()
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// FetchLiveConfig runs one cycle and returns the assembled configuration.
// Only fetch failures are returned as errors.
func (s *Service) FetchLiveConfig(ctx context.Context) (*models.GatewayConfig, error) {
	result, err := s.RunCycle(ctx)
	if err != nil {
		return nil, err
	}
	return result.Config, nil
}

// RunCycle fetches and transforms once, publishes the diagnostics and
// returns the full result.
func (s *Service) RunCycle(ctx context.Context) (*Result, error) {
	cycleID := CycleIDFromContext(ctx)
	if cycleID == "" {
		cycleID = uuid.NewString()
		ctx = WithCycleID(ctx, cycleID)
	}

	ctx, span := s.tracer.Start(ctx, "apiconfig.RunCycle",
		trace.WithAttributes(attribute.String("apiconfig.cycle_id", cycleID)))
	defer span.End()

	s.logger.Info("Fetching live configuration from external API", "cycle_id", cycleID)

	bundle, err := s.fetcher.FetchAll(ctx)
	if err != nil {
		s.logger.Error("Failed to fetch configuration", "cycle_id", cycleID, "error", err)
		s.metrics.RecordCycle(false, s.opts.now())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if bundle.Version != nil || bundle.LastUpdated != nil {
		keyvals := []interface{}{"cycle_id", cycleID}
		if bundle.Version != nil {
			keyvals = append(keyvals, "version", *bundle.Version)
		}
		if bundle.LastUpdated != nil {
			keyvals = append(keyvals, "last_updated", bundle.LastUpdated.UTC())
		}
		s.logger.Info("Received configuration bundle", keyvals...)
	}

	result := s.transformer.Transform(ctx, bundle)

	if len(result.Diagnostics) > 0 {
		if err := s.sink.Publish(ctx, result.Diagnostics); err != nil {
			s.logger.Warn("Failed to publish diagnostics", "cycle_id", cycleID, "count", len(result.Diagnostics), "error", err)
		}
	}

	s.metrics.RecordCycle(true, s.opts.now())
	return result, nil
}

// Close releases the diagnostics sink.
func (s *Service) Close() error {
	return s.sink.Close()
}
