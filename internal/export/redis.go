package export

import (
	"context"
	"fmt"
	"time"

	"github.com/RustyYato/search-posts/internal/report"
	"github.com/RustyYato/search-posts/pkg/redis"
)

// RedisStore is the subset of *redis.Client the sink uses.
type RedisStore interface {
	Del(ctx context.Context, keys ...string) error
	ZAddBatch(ctx context.Context, key string, members []redis.Member) error
	HSetWithTTL(ctx context.Context, key string, fields map[string]any, ttl time.Duration) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Close() error
}

// RedisSink keeps the latest ranking per phrase width in a sorted set scored
// by count, plus a summary hash per run.
type RedisSink struct {
	store  RedisStore
	prefix string
	ttl    time.Duration
}

func NewRedisSink(store RedisStore, prefix string, ttl time.Duration) *RedisSink {
	return &RedisSink{store: store, prefix: prefix, ttl: ttl}
}

func (s *RedisSink) Name() string { return "redis" }

// TopKey is the sorted set holding the ranking for phrases of width n.
func (s *RedisSink) TopKey(width int) string {
	return fmt.Sprintf("%stop:%d", s.prefix, width)
}

// RunKey is the hash holding the summary of one run.
func (s *RedisSink) RunKey(id string) string {
	return s.prefix + "run:" + id
}

func (s *RedisSink) Begin(ctx context.Context, run Run) error {
	return s.store.Del(ctx, s.TopKey(run.Width))
}

func (s *RedisSink) Write(ctx context.Context, run Run, batch []report.Entry) error {
	return s.store.ZAddBatch(ctx, s.TopKey(run.Width), zMembers(batch))
}

func (s *RedisSink) Finish(ctx context.Context, run Run) error {
	if err := s.store.HSetWithTTL(ctx, s.RunKey(run.ID), runFields(run), s.ttl); err != nil {
		return err
	}
	if s.ttl > 0 {
		return s.store.Expire(ctx, s.TopKey(run.Width), s.ttl)
	}
	return nil
}

func (s *RedisSink) Close() error { return s.store.Close() }

func zMembers(batch []report.Entry) []redis.Member {
	members := make([]redis.Member, len(batch))
	for i, e := range batch {
		members[i] = redis.Member{Score: float64(e.Count), Member: e.Phrase}
	}
	return members
}

func runFields(run Run) map[string]any {
	return map[string]any{
		"width":      run.Width,
		"files":      run.Files,
		"processed":  run.Processed,
		"skipped":    run.Skipped,
		"no_content": run.NoContent,
		"spills":     run.Spills,
		"distinct":   run.Distinct,
		"started":    run.Started.UTC().Format(time.RFC3339),
		"elapsed_ms": run.Elapsed.Milliseconds(),
	}
}
