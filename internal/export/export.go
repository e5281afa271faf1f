// Package export publishes the ranked phrase table of a finished run to
// external stores. Exports run after the report file is written and their
// failures never change the outcome of the run.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/RustyYato/search-posts/internal/report"
	"github.com/RustyYato/search-posts/pkg/config"
	apperrors "github.com/RustyYato/search-posts/pkg/errors"
	"github.com/RustyYato/search-posts/pkg/kafka"
	"github.com/RustyYato/search-posts/pkg/logger"
	"github.com/RustyYato/search-posts/pkg/metrics"
	"github.com/RustyYato/search-posts/pkg/objstore"
	"github.com/RustyYato/search-posts/pkg/postgres"
	"github.com/RustyYato/search-posts/pkg/redis"
	"github.com/RustyYato/search-posts/pkg/resilience"
)

// Run describes the aggregation run being exported.
type Run struct {
	ID        string        `json:"run_id"`
	Width     int           `json:"width"`
	Files     int           `json:"files"`
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	NoContent int           `json:"no_content"`
	Spills    int           `json:"spills"`
	Distinct  int           `json:"distinct"`
	Started   time.Time     `json:"started"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// NewRunID returns a fresh identifier for a run.
func NewRunID() string {
	return uuid.NewString()
}

// Sink is one export destination. Begin is called once, Write once per batch
// of ranked entries in rank order, then Finish once.
type Sink interface {
	Name() string
	Begin(ctx context.Context, run Run) error
	Write(ctx context.Context, run Run, batch []report.Entry) error
	Finish(ctx context.Context, run Run) error
	Close() error
}

// Exporter fans a table out to its sinks concurrently.
type Exporter struct {
	sinks   []Sink
	cfg     config.ExportConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(cfg config.ExportConfig, m *metrics.Metrics, sinks ...Sink) *Exporter {
	return &Exporter{
		sinks:   sinks,
		cfg:     cfg,
		metrics: m,
		logger:  logger.WithComponent("export"),
	}
}

// Open connects every sink enabled in cfg. Sinks that fail to connect are
// reported in the returned error and left out; the others are still returned.
func Open(ctx context.Context, cfg config.ExportConfig) ([]Sink, error) {
	var (
		sinks []Sink
		errs  []error
	)
	if cfg.Postgres.Enabled {
		client, err := postgres.New(cfg.Postgres)
		if err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		} else {
			sinks = append(sinks, NewPostgresSink(client, cfg.Postgres.Table))
		}
	}
	if cfg.Redis.Enabled {
		client, err := redis.NewClient(cfg.Redis)
		if err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		} else {
			sinks = append(sinks, NewRedisSink(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL))
		}
	}
	if cfg.Kafka.Enabled {
		sinks = append(sinks, NewKafkaSink(kafka.NewProducer(cfg.Kafka)))
	}
	if cfg.ObjectStore.Enabled {
		client, err := objstore.New(ctx, cfg.ObjectStore)
		if err != nil {
			errs = append(errs, fmt.Errorf("objstore: %w", err))
		} else {
			sinks = append(sinks, NewObjectSink(client, cfg.ObjectStore.Prefix))
		}
	}
	if len(errs) > 0 {
		return sinks, fmt.Errorf("%w: %w", apperrors.ErrExport, errors.Join(errs...))
	}
	return sinks, nil
}

// Sinks returns the configured sinks.
func (e *Exporter) Sinks() []Sink { return e.sinks }

// Export sends the top entries of t to every sink. Each sink is retried,
// batch by batch, and abandoned once its breaker opens. The returned error
// joins the failures of all sinks and wraps ErrExport.
func (e *Exporter) Export(ctx context.Context, run Run, t *report.Table) error {
	if len(e.sinks) == 0 {
		return nil
	}
	entries := t.Top(e.cfg.TopK)
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, sink := range e.sinks {
		g.Go(func() error {
			start := time.Now()
			err := e.exportTo(ctx, sink, run, entries)
			e.metrics.Exported(sink.Name(), err)
			if err != nil {
				e.logger.Error("export failed", "sink", sink.Name(), "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
				mu.Unlock()
				return nil
			}
			e.logger.Info("export complete",
				"sink", sink.Name(),
				"entries", len(entries),
				"duration", time.Since(start),
			)
			return nil
		})
	}
	_ = g.Wait()
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", apperrors.ErrExport, errors.Join(errs...))
	}
	return nil
}

func (e *Exporter) exportTo(ctx context.Context, sink Sink, run Run, entries []report.Entry) error {
	breaker := resilience.NewBreaker(sink.Name(), e.cfg.BreakerThreshold)
	retry := resilience.RetryConfig{
		MaxAttempts:    e.cfg.Retry.MaxAttempts,
		InitialDelay:   e.cfg.Retry.InitialDelay,
		MaxDelay:       e.cfg.Retry.MaxDelay,
		AttemptTimeout: e.cfg.Retry.Timeout,
	}
	step := func(op string, fn func(ctx context.Context) error) error {
		return breaker.Execute(func() error {
			return resilience.Retry(ctx, sink.Name()+" "+op, retry, fn)
		})
	}

	if err := step("begin", func(ctx context.Context) error { return sink.Begin(ctx, run) }); err != nil {
		return err
	}
	batchSize := max(e.cfg.BatchSize, 1)
	var failed []error
	for start := 0; start < len(entries); start += batchSize {
		batch := entries[start:min(start+batchSize, len(entries))]
		err := step("write", func(ctx context.Context) error { return sink.Write(ctx, run, batch) })
		if errors.Is(err, resilience.ErrCircuitOpen) {
			failed = append(failed, err)
			break
		}
		if err != nil {
			failed = append(failed, fmt.Errorf("batch at rank %d: %w", batch[0].Rank, err))
		}
	}
	if len(failed) > 0 {
		return errors.Join(failed...)
	}
	return step("finish", func(ctx context.Context) error { return sink.Finish(ctx, run) })
}

// Close closes every sink and returns their joined errors.
func (e *Exporter) Close() error {
	var errs []error
	for _, sink := range e.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
