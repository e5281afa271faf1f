package export

import (
	"context"
	"fmt"

	"github.com/RustyYato/search-posts/internal/report"
	"github.com/RustyYato/search-posts/pkg/postgres"
)

// PostgresStore is the subset of *postgres.Client the sink uses.
type PostgresStore interface {
	Exec(ctx context.Context, query string, args ...any) error
	CopyRows(ctx context.Context, table string, columns []string, rows [][]any) error
	Close() error
}

var phraseColumns = []string{"run_id", "rank", "phrase", "count"}

// PostgresSink bulk-loads ranked phrases into a table keyed by run.
type PostgresSink struct {
	store PostgresStore
	table string
}

func NewPostgresSink(store PostgresStore, table string) *PostgresSink {
	return &PostgresSink{store: store, table: table}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Begin(ctx context.Context, _ Run) error {
	return s.store.Exec(ctx, createTableSQL(s.table))
}

func (s *PostgresSink) Write(ctx context.Context, run Run, batch []report.Entry) error {
	return s.store.CopyRows(ctx, s.table, phraseColumns, phraseRows(run.ID, batch))
}

func (s *PostgresSink) Finish(context.Context, Run) error { return nil }

func (s *PostgresSink) Close() error { return s.store.Close() }

func createTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id TEXT NOT NULL,
	rank INTEGER NOT NULL,
	phrase TEXT NOT NULL,
	count BIGINT NOT NULL,
	PRIMARY KEY (run_id, rank)
)`, postgres.QuoteIdent(table))
}

func phraseRows(runID string, batch []report.Entry) [][]any {
	rows := make([][]any, len(batch))
	for i, e := range batch {
		rows[i] = []any{runID, e.Rank, e.Phrase, int64(e.Count)}
	}
	return rows
}
