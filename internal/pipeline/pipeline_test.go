package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/RustyYato/search-posts/internal/export"
	"github.com/RustyYato/search-posts/internal/report"
	"github.com/RustyYato/search-posts/pkg/config"
	apperrors "github.com/RustyYato/search-posts/pkg/errors"
	"github.com/RustyYato/search-posts/pkg/metrics"
)

func testConfig(t *testing.T, width int) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Pipeline.Width = width
	cfg.Pipeline.Workers = 4
	cfg.Pipeline.SpillWorkers = 2
	cfg.Pipeline.TempDir = t.TempDir()
	cfg.Report.Output = filepath.Join(t.TempDir(), "out.txt")
	return cfg
}

func writeDocs(t *testing.T, docs map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, doc := range docs {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func assertSpillDirRemoved(t *testing.T, cfg *config.Config) {
	t.Helper()
	left, err := filepath.Glob(filepath.Join(cfg.Pipeline.TempDir, "ngram-spill-*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("spill directories left behind: %v", left)
	}
}

func TestRun_EndToEnd(t *testing.T) {
	dir := writeDocs(t, map[string]string{
		"doc1.json": `{"users":[{"posts":[{"text":"the cat sat"}]}]}`,
		"doc2.json": `{"users":[{"posts":[{"text":"the cat ran"}]}]}`,
	})
	cfg := testConfig(t, 2)

	res, err := New(cfg).Run(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	lines := readLines(t, cfg.Report.Output)
	if len(lines) != 2 {
		t.Fatalf("report has %d lines: %q", len(lines), lines)
	}
	if lines[0] != "2\t1\tthe cat" {
		t.Errorf("line 1 = %q", lines[0])
	}
	if lines[1] != "1\t2\tcat sat\tcat ran" && lines[1] != "1\t2\tcat ran\tcat sat" {
		t.Errorf("line 2 = %q", lines[1])
	}
	if res.Distinct != 3 || res.Groups != 2 || res.Stats.Processed != 2 {
		t.Errorf("Result = %+v", res)
	}
	assertSpillDirRemoved(t, cfg)
}

func TestRun_SpillAndMergePreservesCounts(t *testing.T) {
	docs := map[string]string{}
	want := map[string]uint64{}
	for i := 0; i < 30; i++ {
		var ws []string
		for j := 0; j < 20; j++ {
			w := fmt.Sprintf("w%d", (i*3+j)%41)
			ws = append(ws, w)
			want[w]++
		}
		docs[fmt.Sprintf("d/%02d.json", i)] = fmt.Sprintf(`{"users":[{"posts":[{"text":%q}]}]}`, strings.Join(ws, " "))
	}
	dir := writeDocs(t, docs)

	cfg := testConfig(t, 1)
	cfg.Pipeline.SpillThreshold = 5
	cfg.Pipeline.FoldChunk = 1
	cfg.Pipeline.SpillCompression = "zstd"
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, reg)

	res, err := New(cfg, WithMetrics(m)).Run(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Stats.Spills == 0 || res.Merge.Files == 0 {
		t.Fatalf("expected spills, got %+v", res)
	}
	if got := testutil.ToFloat64(m.SpillsTotal.WithLabelValues("ok")); int(got) != res.Merge.Files {
		t.Errorf("spills metric = %v, merged files = %d", got, res.Merge.Files)
	}

	got := map[string]uint64{}
	for _, line := range readLines(t, cfg.Report.Output) {
		count, _, phrases, err := report.ParseLine(line, 1)
		if err != nil {
			t.Fatalf("ParseLine(%q) error = %v", line, err)
		}
		for _, p := range phrases {
			got[p] = count
		}
	}
	if len(got) != len(want) {
		t.Fatalf("distinct = %d, want %d", len(got), len(want))
	}
	for w, c := range want {
		if got[w] != c {
			t.Errorf("count[%q] = %d, want %d", w, got[w], c)
		}
	}
	assertSpillDirRemoved(t, cfg)
}

func TestRun_NoInputsWritesEmptyReport(t *testing.T) {
	cfg := testConfig(t, 2)
	if _, err := New(cfg).Run(context.Background(), []string{t.TempDir()}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	data, err := os.ReadFile(cfg.Report.Output)
	if err != nil || len(data) != 0 {
		t.Errorf("report = %q, %v; want empty file", data, err)
	}
}

func TestRun_BadTempDir(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.Pipeline.TempDir = filepath.Join(t.TempDir(), "missing")
	_, err := New(cfg).Run(context.Background(), nil)
	if !errors.Is(err, apperrors.ErrTempDir) || !apperrors.IsFatal(err) {
		t.Errorf("Run() error = %v, want fatal ErrTempDir", err)
	}
}

func TestRun_MissingRootIsNotFatal(t *testing.T) {
	dir := writeDocs(t, map[string]string{"a.json": `{"users":[{"posts":[{"text":"x y"}]}]}`})
	cfg := testConfig(t, 2)
	missing := filepath.Join(t.TempDir(), "missing")

	res, err := New(cfg).Run(context.Background(), []string{missing, dir})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Stats.Files != 1 || res.Distinct != 1 {
		t.Errorf("Result = %+v", res)
	}
}

func TestRun_LogsStagesAtInfo(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := writeDocs(t, map[string]string{
		"a.json": `{"users":[{"posts":[{"text":"a b"}]}]}`,
		"b.json": `{"users":[{"posts":[{"text":"b c"}]}]}`,
	})
	cfg := testConfig(t, 2)
	if _, err := New(cfg).Run(context.Background(), []string{dir}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"stage=discover",
		"stage=aggregate",
		"stage=spill_wait",
		"stage=merge",
		"stage=report",
		"stage=export",
		"msg=progress",
		"done=2 total=2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_UnwritableOutput(t *testing.T) {
	dir := writeDocs(t, map[string]string{"a.json": `{"users":[{"posts":[{"text":"x"}]}]}`})
	cfg := testConfig(t, 1)
	cfg.Report.Output = filepath.Join(t.TempDir(), "no", "such", "out.txt")
	_, err := New(cfg).Run(context.Background(), []string{dir})
	if !errors.Is(err, apperrors.ErrOutput) {
		t.Errorf("Run() error = %v, want ErrOutput", err)
	}
	assertSpillDirRemoved(t, cfg)
}

func TestRun_Cancelled(t *testing.T) {
	dir := writeDocs(t, map[string]string{"a.json": `{"users":[{"posts":[{"text":"x y"}]}]}`})
	cfg := testConfig(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(cfg).Run(ctx, []string{dir}); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	assertSpillDirRemoved(t, cfg)
}

type captureSink struct {
	mu      sync.Mutex
	entries []report.Entry
	run     export.Run
	closed  bool
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) Begin(context.Context, export.Run) error { return nil }

func (c *captureSink) Finish(_ context.Context, run export.Run) error {
	c.run = run
	return nil
}

func (c *captureSink) Close() error { c.closed = true; return nil }

func (c *captureSink) Write(_ context.Context, _ export.Run, batch []report.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, batch...)
	return nil
}

func TestRun_Exports(t *testing.T) {
	dir := writeDocs(t, map[string]string{
		"doc1.json": `{"users":[{"posts":[{"text":"the cat sat"}]}]}`,
		"doc2.json": `{"users":[{"posts":[{"description":"the cat ran"}]}]}`,
	})
	cfg := testConfig(t, 2)
	cfg.Export.TopK = 2
	sink := &captureSink{}

	res, err := New(cfg, WithSinks(sink)).Run(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(sink.entries) != 2 || sink.entries[0].Phrase != "the cat" || sink.entries[0].Count != 2 {
		t.Errorf("exported %+v", sink.entries)
	}
	if sink.run.ID != res.RunID || sink.run.Distinct != 3 || sink.run.Width != 2 {
		t.Errorf("exported run = %+v", sink.run)
	}
	if !sink.closed {
		t.Error("sink not closed")
	}
}
