// Package pipeline runs one complete counting job: discovery, parallel
// aggregation with spilling, external merge, the report file and the
// optional exports.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/RustyYato/search-posts/internal/aggregate"
	"github.com/RustyYato/search-posts/internal/discover"
	"github.com/RustyYato/search-posts/internal/export"
	"github.com/RustyYato/search-posts/internal/merge"
	"github.com/RustyYato/search-posts/internal/report"
	"github.com/RustyYato/search-posts/internal/spill"
	"github.com/RustyYato/search-posts/pkg/config"
	apperrors "github.com/RustyYato/search-posts/pkg/errors"
	"github.com/RustyYato/search-posts/pkg/logger"
	"github.com/RustyYato/search-posts/pkg/metrics"
)

// Result summarises a finished run.
type Result struct {
	RunID    string
	Output   string
	Stats    aggregate.Stats
	Merge    merge.Result
	Distinct int
	Groups   int
	Elapsed  time.Duration
}

type Pipeline struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	sinks   []export.Sink
	custom  bool
	logger  *slog.Logger
}

type Option func(*Pipeline)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithSinks replaces the sinks that would otherwise be opened from the
// export configuration.
func WithSinks(sinks ...export.Sink) Option {
	return func(p *Pipeline) {
		p.sinks = sinks
		p.custom = true
	}
}

func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		logger: logger.WithComponent("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run counts the phrases of every document under paths and writes the
// report. The temporary spill directory is removed on every return path.
func (p *Pipeline) Run(ctx context.Context, paths []string) (Result, error) {
	runStart := time.Now()
	res := Result{RunID: export.NewRunID(), Output: p.cfg.Report.Output}
	pc := p.cfg.Pipeline

	compression, err := spill.ParseCompression(pc.SpillCompression)
	if err != nil {
		return res, err
	}

	stage := time.Now()
	files, err := discover.Files(paths...)
	if err != nil {
		if apperrors.IsFatal(err) {
			return res, err
		}
		p.logger.Warn("some inputs could not be read", "error", err)
	}
	p.stageDone("discover", stage)
	p.logger.Info("starting run",
		"run_id", res.RunID,
		"files", len(files),
		"width", pc.Width,
		"workers", pc.Workers,
		"spill_workers", pc.SpillWorkers,
		"spill_threshold", pc.SpillThreshold,
	)

	tmp, err := os.MkdirTemp(pc.TempDir, "ngram-spill-*")
	if err != nil {
		return res, apperrors.New(fmt.Errorf("%w: %w", apperrors.ErrTempDir, err), "pipeline", pc.TempDir)
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			p.logger.Warn("failed to remove spill directory", "path", tmp, "error", err)
		}
	}()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	spiller := spill.NewManager(tmp, pc.SpillWorkers,
		spill.WithCompression(compression),
		spill.WithMetrics(p.metrics),
		spill.OnError(cancel),
	)
	sched := &aggregate.Scheduler{
		Width:          pc.Width,
		Workers:        pc.Workers,
		SpillThreshold: pc.SpillThreshold,
		FoldChunk:      pc.FoldChunk,
		MaxDepth:       pc.MaxDepth,
		Spiller:        spiller,
		Metrics:        p.metrics,
	}

	stage = time.Now()
	root, stats, runErr := sched.Run(runCtx, files)
	res.Stats = stats
	p.stageDone("aggregate", stage)

	stage = time.Now()
	// Pending writes must finish before the directory is merged or removed.
	spillErr := spiller.Wait()
	p.stageDone("spill_wait", stage)
	if spillErr != nil {
		return res, spillErr
	}
	if runErr != nil {
		return res, runErr
	}

	stage = time.Now()
	mres, err := merge.New(pc.Width, p.metrics).Merge(tmp, root)
	res.Merge = mres
	p.stageDone("merge", stage)
	if err != nil {
		return res, err
	}
	p.logger.Info("merged spill files",
		"files", mres.Files,
		"skipped", mres.Skipped,
		"entries", mres.Entries,
		"distinct", root.Len(),
	)

	stage = time.Now()
	res.Distinct = root.Len()
	p.metrics.SetDistinct(res.Distinct)
	table := report.Build(root, p.cfg.Report.SortTies)
	res.Groups = len(table.Groups)
	if err := report.WriteFile(p.cfg.Report.Output, table, p.cfg.Report.BodyLimit); err != nil {
		return res, err
	}
	p.stageDone("report", stage)
	p.logger.Info("report written",
		"path", p.cfg.Report.Output,
		"distinct", res.Distinct,
		"groups", res.Groups,
	)

	stage = time.Now()
	p.export(ctx, res, runStart, table)
	p.stageDone("export", stage)

	res.Elapsed = time.Since(runStart)
	p.logger.Info("run complete", "run_id", res.RunID, "elapsed", res.Elapsed)
	return res, nil
}

// stageDone records how long the named stage took since start.
func (p *Pipeline) stageDone(name string, start time.Time) {
	d := time.Since(start)
	p.metrics.Stage(name, d)
	p.logger.Info("stage complete", "stage", name, "duration", d)
}

func (p *Pipeline) export(ctx context.Context, res Result, start time.Time, table *report.Table) {
	sinks := p.sinks
	if !p.custom {
		var err error
		sinks, err = export.Open(ctx, p.cfg.Export)
		if err != nil {
			p.logger.Warn("some exporters could not connect", "error", err)
		}
	}
	if len(sinks) == 0 {
		return
	}
	exp := export.New(p.cfg.Export, p.metrics, sinks...)
	defer func() {
		if err := exp.Close(); err != nil {
			p.logger.Warn("closing exporters", "error", err)
		}
	}()
	run := export.Run{
		ID:        res.RunID,
		Width:     p.cfg.Pipeline.Width,
		Files:     res.Stats.Files,
		Processed: res.Stats.Processed,
		Skipped:   res.Stats.Skipped,
		NoContent: res.Stats.NoContent,
		Spills:    res.Stats.Spills,
		Distinct:  res.Distinct,
		Started:   start,
		Elapsed:   time.Since(start),
	}
	if err := exp.Export(ctx, run, table); err != nil {
		p.logger.Warn("export incomplete", "error", err)
	}
}
