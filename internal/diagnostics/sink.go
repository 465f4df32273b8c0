package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"api_config/internal/config"
	"api_config/internal/utils"
)

// ErrSinkClosed is returned when publishing to a closed sink
var ErrSinkClosed = errors.New("diagnostics sink is closed")

// Sink receives the diagnostics of a configuration cycle.
type Sink interface {
	Publish(ctx context.Context, diags []Diagnostic) error
	Close() error
}

// NoopSink discards diagnostics.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Publish(context.Context, []Diagnostic) error { return nil }

func (s *NoopSink) Close() error { return nil }

// MemorySink keeps diagnostics in process, for tests and one-shot CLI runs.
type MemorySink struct {
	mu     sync.RWMutex
	items  []Diagnostic
	closed bool
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Publish appends diags.
func (s *MemorySink) Publish(ctx context.Context, diags []Diagnostic) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	s.items = append(s.items, diags...)
	return nil
}

// Snapshot returns a copy of everything published so far.
func (s *MemorySink) Snapshot() []Diagnostic {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Diagnostic, len(s.items))
	copy(out, s.items)
	return out
}

func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// NewSink builds the sink selected by cfg.Sink. Sinks that log use logger.
func NewSink(ctx context.Context, cfg config.DiagnosticsConfig, logger *utils.Logger) (Sink, error) {
	switch cfg.Sink {
	case "", "none":
		return NewNoopSink(), nil
	case "memory":
		return NewMemorySink(), nil
	case "redis":
		return NewRedisSink(ctx, cfg.Redis)
	case "s3":
		writer, err := NewS3Writer(ctx, cfg.S3, logger)
		if err != nil {
			return nil, err
		}
		return NewS3Sink(writer), nil
	default:
		return nil, fmt.Errorf("unsupported diagnostics sink %q", cfg.Sink)
	}
}
