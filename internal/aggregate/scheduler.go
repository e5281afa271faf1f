// Package aggregate folds input documents into phrase maps in parallel and
// reduces the partial maps pairwise, handing oversized branches to a
// spiller along the way.
package aggregate

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RustyYato/search-posts/internal/document"
	"github.com/RustyYato/search-posts/internal/phrase"
	"github.com/RustyYato/search-posts/pkg/logger"
	"github.com/RustyYato/search-posts/pkg/metrics"
)

const (
	DefaultSpillThreshold = 1_000_000
	DefaultFoldChunk      = 8
)

// Spiller takes ownership of a phrase map and persists it.
type Spiller interface {
	Spill(m *phrase.Map)
}

// Stats summarises a completed run.
type Stats struct {
	Files     int
	Processed int
	Skipped   int
	NoContent int
	Spills    int
	Phrases   int64
}

// Scheduler configures one aggregation run. Zero values select defaults.
type Scheduler struct {
	Width          int
	Workers        int
	SpillThreshold int
	FoldChunk      int
	MaxDepth       int
	// ProgressInterval throttles Info progress lines; negative logs every file.
	ProgressInterval time.Duration
	Spiller          Spiller
	Metrics          *metrics.Metrics
	Logger           *slog.Logger
}

type run struct {
	s        *Scheduler
	logger   *slog.Logger
	group    errgroup.Group
	pool     sync.Pool
	progress *Progress

	processed atomic.Int64
	skipped   atomic.Int64
	noContent atomic.Int64
	spills    atomic.Int64
	phrases   atomic.Int64
}

// worker is the reusable per-goroutine state for folding files.
type worker struct {
	buf     bytes.Buffer
	walker  *document.Walker
	scratch *phrase.Map
}

// Run folds every file into a single phrase map. Files that cannot be read
// or do not have the expected shape are logged and skipped. Run stops early
// when ctx is cancelled and returns the cancellation cause.
func (s *Scheduler) Run(ctx context.Context, files []string) (*phrase.Map, Stats, error) {
	r := &run{
		s:        s,
		logger:   s.Logger,
		progress: NewProgress(len(files), s.progressInterval()),
	}
	if r.logger == nil {
		r.logger = logger.WithComponent("aggregate")
	}
	r.pool.New = func() any {
		return &worker{
			walker:  document.NewWalker(s.Width, s.MaxDepth),
			scratch: phrase.New(s.Width),
		}
	}
	r.group.SetLimit(max(s.workers()-1, 0))

	root := r.fold(ctx, files)
	// Every forked half has been joined by its parent; this only reaps the
	// group's bookkeeping.
	_ = r.group.Wait()

	stats := Stats{
		Files:     len(files),
		Processed: int(r.processed.Load()),
		Skipped:   int(r.skipped.Load()),
		NoContent: int(r.noContent.Load()),
		Spills:    int(r.spills.Load()),
		Phrases:   r.phrases.Load(),
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, context.Cause(ctx)
	}
	r.logger.Info("aggregation complete",
		"files", stats.Files,
		"processed", stats.Processed,
		"skipped", stats.Skipped,
		"no_content", stats.NoContent,
		"spills", stats.Spills,
		"distinct", root.Len(),
		"elapsed", r.progress.Elapsed(),
	)
	return root, stats, nil
}

func (s *Scheduler) workers() int {
	if s.Workers < 1 {
		return 1
	}
	return s.Workers
}

func (s *Scheduler) threshold() int {
	if s.SpillThreshold < 1 {
		return DefaultSpillThreshold
	}
	return s.SpillThreshold
}

func (s *Scheduler) progressInterval() time.Duration {
	if s.ProgressInterval == 0 {
		return DefaultProgressInterval
	}
	return s.ProgressInterval
}

func (s *Scheduler) chunk() int {
	if s.FoldChunk < 1 {
		return DefaultFoldChunk
	}
	return s.FoldChunk
}

// fold splits files in half until a range fits in one chunk. The right half
// is forked when a worker slot is free; the goroutine that finishes the left
// half joins it and performs the reduce.
func (r *run) fold(ctx context.Context, files []string) *phrase.Map {
	if len(files) <= r.s.chunk() {
		return r.foldLeaf(ctx, files)
	}
	mid := len(files) / 2
	var right *phrase.Map
	done := make(chan struct{})
	forked := r.group.TryGo(func() error {
		defer close(done)
		right = r.fold(ctx, files[mid:])
		return nil
	})
	left := r.fold(ctx, files[:mid])
	if forked {
		<-done
	} else {
		right = r.fold(ctx, files[mid:])
	}
	return r.reduce(left, right)
}

func (r *run) foldLeaf(ctx context.Context, files []string) *phrase.Map {
	branch := phrase.New(r.s.Width)
	w := r.pool.Get().(*worker)
	defer r.pool.Put(w)
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		r.foldFile(w, branch, path)
	}
	return branch
}

// foldFile extracts path into the worker's scratch map and commits it to
// branch only when the whole document was walked.
func (r *run) foldFile(w *worker, branch *phrase.Map, path string) {
	defer r.advance(path)

	data, err := w.read(path)
	if err != nil {
		r.skipped.Add(1)
		r.s.Metrics.FileProcessed(metrics.StatusOpenError, 0)
		r.logger.Warn("failed to open input file, skipping", "path", path, "error", err)
		return
	}
	n, err := w.walker.Walk(data, w.scratch)
	if err != nil {
		w.scratch.Clear()
		r.noContent.Add(1)
		r.s.Metrics.FileProcessed(metrics.StatusNoContent, 0)
		r.logger.Warn("no usable content in input file", "path", path, "error", err)
		return
	}
	branch.Merge(w.scratch)
	r.processed.Add(1)
	r.phrases.Add(int64(n))
	r.s.Metrics.FileProcessed(metrics.StatusOK, n)
}

func (r *run) advance(path string) {
	done := r.progress.Advance()
	r.logger.Debug("file done", "path", path, "done", done)
	if r.progress.Due(done) {
		r.logger.Info("progress",
			"done", done,
			"total", r.progress.Total(),
			"elapsed", r.progress.Elapsed(),
		)
	}
}

// reduce combines two branches into one. A side over the spill threshold is
// handed off first, and the larger table absorbs the smaller.
func (r *run) reduce(a, b *phrase.Map) *phrase.Map {
	a = r.maybeSpill(a)
	b = r.maybeSpill(b)
	if a.Capacity() < b.Capacity() {
		a, b = b, a
	}
	a.Merge(b)
	r.s.Metrics.Reduced()
	return a
}

func (r *run) maybeSpill(m *phrase.Map) *phrase.Map {
	if r.s.Spiller == nil || m.Len() <= r.s.threshold() {
		return m
	}
	r.spills.Add(1)
	r.logger.Debug("branch over spill threshold", "distinct", m.Len(), "threshold", r.s.threshold())
	r.s.Spiller.Spill(m)
	return phrase.New(r.s.Width)
}

// read loads path into the worker's buffer. The returned slice is valid until
// the next read.
func (w *worker) read(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	w.buf.Reset()
	if st, err := f.Stat(); err == nil {
		w.buf.Grow(int(st.Size()) + bytes.MinRead)
	}
	if _, err := io.Copy(&w.buf, f); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}
