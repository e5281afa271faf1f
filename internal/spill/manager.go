package spill

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/RustyYato/search-posts/internal/phrase"
	apperrors "github.com/RustyYato/search-posts/pkg/errors"
	"github.com/RustyYato/search-posts/pkg/logger"
	"github.com/RustyYato/search-posts/pkg/metrics"
)

// Manager serialises handed-off phrase maps to files in dir on a bounded pool
// of background goroutines.
type Manager struct {
	dir         string
	compression Compression
	metrics     *metrics.Metrics
	onError     func(error)
	logger      *slog.Logger

	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	nextID atomic.Uint64
	count  atomic.Int64

	mu  sync.Mutex
	err error
}

// Option configures a Manager.
type Option func(*Manager)

func WithCompression(c Compression) Option {
	return func(m *Manager) { m.compression = c }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// OnError registers fn to be called once with the first write failure.
func OnError(fn func(error)) Option {
	return func(m *Manager) { m.onError = fn }
}

// NewManager returns a manager writing into dir with at most workers
// concurrent writes.
func NewManager(dir string, workers int, opts ...Option) *Manager {
	if workers < 1 {
		workers = 1
	}
	m := &Manager{
		dir:    dir,
		sem:    semaphore.NewWeighted(int64(workers)),
		logger: logger.WithComponent("spill"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the directory spill files are written to.
func (m *Manager) Dir() string { return m.dir }

// Spill takes ownership of pm and returns immediately. The map is written to
// a new file in the background and then released.
func (m *Manager) Spill(pm *phrase.Map) {
	if pm.Len() == 0 {
		return
	}
	id := m.nextID.Add(1) - 1
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		// Acquire with a background context never fails.
		_ = m.sem.Acquire(context.Background(), 1)
		defer m.sem.Release(1)
		m.write(id, pm)
	}()
}

func (m *Manager) write(id uint64, pm *phrase.Map) {
	path := filepath.Join(m.dir, fmt.Sprintf("spill-%d%s", id, Ext))
	start := time.Now()
	info, err := WriteFile(path, pm, m.compression)
	elapsed := time.Since(start)
	pm.Reset()
	m.metrics.Spilled(err, info.Bytes, elapsed)

	if err != nil {
		err = apperrors.New(fmt.Errorf("%w: %w", apperrors.ErrSpillWrite, err), "spill", path)
		m.logger.Error("spill write failed", "path", path, "error", err)
		m.fail(err)
		return
	}
	m.count.Add(1)
	m.logger.Info("spilled branch",
		"path", path,
		"entries", info.Entries,
		"bytes", info.Bytes,
		"duration", elapsed,
	)
}

func (m *Manager) fail(err error) {
	m.mu.Lock()
	first := m.err == nil
	if first {
		m.err = err
	}
	m.mu.Unlock()
	if first && m.onError != nil {
		m.onError(err)
	}
}

// Wait blocks until every handed-off map has been written and returns the
// first write error.
func (m *Manager) Wait() error {
	m.wg.Wait()
	return m.Err()
}

// Err returns the first write error observed so far.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Count returns the number of spill files successfully written.
func (m *Manager) Count() int { return int(m.count.Load()) }
