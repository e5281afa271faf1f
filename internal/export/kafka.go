package export

import (
	"context"

	"github.com/RustyYato/search-posts/internal/report"
	"github.com/RustyYato/search-posts/pkg/kafka"
)

// Event types published by KafkaSink.
const (
	EventPhrase     = "phrase"
	EventRunSummary = "run_summary"
)

// Publisher is the subset of *kafka.Producer the sink uses.
type Publisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
	Close() error
}

// PhraseEvent is published once per exported phrase.
type PhraseEvent struct {
	Type   string `json:"type"`
	RunID  string `json:"run_id"`
	Width  int    `json:"width"`
	Rank   int    `json:"rank"`
	Phrase string `json:"phrase"`
	Count  uint32 `json:"count"`
}

// SummaryEvent closes a run's event stream.
type SummaryEvent struct {
	Type string `json:"type"`
	Run
}

// KafkaSink streams the ranking as events keyed by run ID, so one run's
// events land on one partition in order.
type KafkaSink struct {
	producer Publisher
}

func NewKafkaSink(p Publisher) *KafkaSink {
	return &KafkaSink{producer: p}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Begin(context.Context, Run) error { return nil }

func (s *KafkaSink) Write(ctx context.Context, run Run, batch []report.Entry) error {
	return s.producer.Publish(ctx, phraseEvents(run, batch)...)
}

func (s *KafkaSink) Finish(ctx context.Context, run Run) error {
	return s.producer.Publish(ctx, kafka.Event{
		Key:   run.ID,
		Value: SummaryEvent{Type: EventRunSummary, Run: run},
	})
}

func (s *KafkaSink) Close() error { return s.producer.Close() }

func phraseEvents(run Run, batch []report.Entry) []kafka.Event {
	events := make([]kafka.Event, len(batch))
	for i, e := range batch {
		events[i] = kafka.Event{
			Key: run.ID,
			Value: PhraseEvent{
				Type:   EventPhrase,
				RunID:  run.ID,
				Width:  run.Width,
				Rank:   e.Rank,
				Phrase: e.Phrase,
				Count:  e.Count,
			},
		}
	}
	return events
}
