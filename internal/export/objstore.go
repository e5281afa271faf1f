package export

import (
	"bytes"
	"context"
	"path"

	jsoniter "github.com/json-iterator/go"

	"github.com/RustyYato/search-posts/internal/report"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ObjectStore is the subset of *objstore.Client the sink uses.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Close() error
}

// ObjectSink uploads each run as two objects under <prefix><run id>/:
// top.jsonl with one ranked entry per line, and run.json with the summary.
type ObjectSink struct {
	store  ObjectStore
	prefix string
	buf    bytes.Buffer
}

func NewObjectSink(store ObjectStore, prefix string) *ObjectSink {
	return &ObjectSink{store: store, prefix: prefix}
}

func (s *ObjectSink) Name() string { return "objstore" }

// Key returns the object key of name within the run's directory.
func (s *ObjectSink) Key(runID, name string) string {
	return s.prefix + path.Join(runID, name)
}

func (s *ObjectSink) Begin(context.Context, Run) error {
	s.buf.Reset()
	return nil
}

func (s *ObjectSink) Write(_ context.Context, _ Run, batch []report.Entry) error {
	enc := json.NewEncoder(&s.buf)
	for _, e := range batch {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *ObjectSink) Finish(ctx context.Context, run Run) error {
	if err := s.store.Put(ctx, s.Key(run.ID, "top.jsonl"), s.buf.Bytes(), "application/x-ndjson"); err != nil {
		return err
	}
	summary, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, s.Key(run.ID, "run.json"), summary, "application/json")
}

func (s *ObjectSink) Close() error { return s.store.Close() }
