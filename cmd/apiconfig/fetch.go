package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"api_config/internal/apiconfig"
	"api_config/internal/config"
	"api_config/internal/diagnostics"
	"api_config/internal/metrics"
	"api_config/internal/models"
	"api_config/internal/secrets"
	"api_config/internal/tracing"
	"api_config/internal/utils"
)

type fetchOptions struct {
	output          string
	showSecrets     bool
	strict          bool
	metricsTextfile string
}

func newFetchCmd() *cobra.Command {
	opts := &fetchOptions{}

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch, transform and print the gateway configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runFetch(ctx, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "json", "output format: json or yaml")
	cmd.Flags().BoolVar(&opts.showSecrets, "show-secrets", false, "print resolved api keys instead of masking them")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "exit with an error when any entity was skipped")
	cmd.Flags().StringVar(&opts.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file after the cycle")

	return cmd
}

func runFetch(ctx context.Context, opts *fetchOptions, out, errOut io.Writer) error {
	if opts.output != "json" && opts.output != "yaml" {
		return fmt.Errorf("unsupported output format %q", opts.output)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := utils.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger, err := utils.NewLoggerWithConfig("api-config", utils.LoggerConfig{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: errOut,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sink, err := diagnostics.NewSink(ctx, cfg.Diagnostics, logger.Named("diagnostics"))
	if err != nil {
		return fmt.Errorf("failed to create diagnostics sink: %w", err)
	}
	defer func() { _ = sink.Close() }()

	collector := metrics.NewCollector(cfg.Metrics, nil)
	if opts.metricsTextfile != "" {
		defer func() {
			if err := collector.WriteTextfile(opts.metricsTextfile); err != nil {
				logger.Error("Failed to write metrics textfile", "path", opts.metricsTextfile, "error", err)
			}
		}()
	}

	serviceOpts := []apiconfig.Option{
		apiconfig.WithLogger(logger),
		apiconfig.WithSink(sink),
		apiconfig.WithMetrics(collector),
	}
	if cfg.Tracing.Endpoint != "" {
		tp, err := tracing.NewProvider(ctx, cfg.Tracing, Version)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Failed to flush traces", "error", err)
			}
		}()
		serviceOpts = append(serviceOpts, apiconfig.WithTracerProvider(tp))
	}
	if cfg.Secrets.EncryptionKey != "" {
		decrypter, err := secrets.NewAESGCMFromBase64(cfg.Secrets.EncryptionKey)
		if err != nil {
			return fmt.Errorf("invalid SECRETS_ENCRYPTION_KEY: %w", err)
		}
		serviceOpts = append(serviceOpts, apiconfig.WithResolver(secrets.NewResolver(
			secrets.WithDecrypter(decrypter),
			secrets.WithLogger(logger.Named("secrets")),
		)))
	}

	svc, err := apiconfig.New(cfg.APIClient, serviceOpts...)
	if err != nil {
		return err
	}

	result, err := svc.RunCycle(ctx)
	if err != nil {
		return err
	}

	gatewayConfig := result.Config
	if !opts.showSecrets {
		gatewayConfig = gatewayConfig.Redacted()
	}
	if err := render(out, gatewayConfig, opts.output); err != nil {
		return err
	}

	for _, d := range result.Diagnostics {
		fmt.Fprintln(errOut, d.String())
	}
	if opts.strict && len(result.Diagnostics) > 0 {
		return fmt.Errorf("%d entities skipped", len(result.Diagnostics))
	}
	return nil
}

func render(w io.Writer, cfg *models.GatewayConfig, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}
}
