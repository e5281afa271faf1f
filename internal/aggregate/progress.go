package aggregate

import (
	"sync/atomic"
	"time"
)

// DefaultProgressInterval is how often a run reports progress at Info level.
const DefaultProgressInterval = time.Second

// Progress tracks how many input files have been handled during a run.
type Progress struct {
	total     int64
	every     time.Duration
	processed atomic.Int64
	start     time.Time
	// lastReport is the offset from start of the last report, in nanoseconds.
	lastReport atomic.Int64
}

// NewProgress returns a tracker for total files that reports at most once
// per every. A non-positive interval reports every file.
func NewProgress(total int, every time.Duration) *Progress {
	return &Progress{total: int64(total), every: every, start: time.Now()}
}

// Advance records one more handled file and returns the new count.
func (p *Progress) Advance() int64 {
	return p.processed.Add(1)
}

// Due reports whether the caller that advanced the count to done should log
// progress. The final file is always due; otherwise at most one caller per
// interval wins.
func (p *Progress) Due(done int64) bool {
	if done >= p.total || p.every <= 0 {
		return true
	}
	now := int64(time.Since(p.start))
	last := p.lastReport.Load()
	if now-last < int64(p.every) {
		return false
	}
	return p.lastReport.CompareAndSwap(last, now)
}

func (p *Progress) Processed() int64 { return p.processed.Load() }

func (p *Progress) Total() int64 { return p.total }

func (p *Progress) Elapsed() time.Duration { return time.Since(p.start) }
