package report

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RustyYato/search-posts/internal/phrase"
	apperrors "github.com/RustyYato/search-posts/pkg/errors"
)

func buildMap(width int, entries map[string]uint32) *phrase.Map {
	m := phrase.New(width)
	for p, c := range entries {
		m.Add(strings.Split(p, " "), c)
	}
	return m
}

func TestBuild_OrdersByCount(t *testing.T) {
	m := buildMap(1, map[string]uint32{"a": 1, "b": 5, "c": 3, "d": 5, "e": 1})
	tbl := Build(m, true)

	if m.Len() != 0 {
		t.Errorf("Build() left %d entries in the map", m.Len())
	}
	if tbl.Distinct != 5 {
		t.Errorf("Distinct = %d, want 5", tbl.Distinct)
	}
	wantCounts := []uint32{5, 3, 1}
	if len(tbl.Groups) != len(wantCounts) {
		t.Fatalf("got %d groups, want %d", len(tbl.Groups), len(wantCounts))
	}
	for i, g := range tbl.Groups {
		if g.Count != wantCounts[i] {
			t.Errorf("group %d count = %d, want %d", i, g.Count, wantCounts[i])
		}
	}
	if got := phrase.Join(tbl.Groups[0].Phrases[0]) + "," + phrase.Join(tbl.Groups[0].Phrases[1]); got != "b,d" {
		t.Errorf("sorted ties = %s, want b,d", got)
	}
}

func TestWrite_Format(t *testing.T) {
	m := buildMap(2, map[string]uint32{"the cat": 2, "cat sat": 1})
	var buf bytes.Buffer
	if err := Write(&buf, Build(m, true), DefaultBodyLimit); err != nil {
		t.Fatal(err)
	}
	want := "2\t1\tthe cat\n1\t1\tcat sat\n"
	if buf.String() != want {
		t.Errorf("Write() = %q, want %q", buf.String(), want)
	}
}

func TestWrite_TiesOnOneLine(t *testing.T) {
	m := buildMap(2, map[string]uint32{"a b": 1, "b c": 1})
	var buf bytes.Buffer
	if err := Write(&buf, Build(m, true), DefaultBodyLimit); err != nil {
		t.Fatal(err)
	}
	if want := "1\t2\ta b\tb c\n"; buf.String() != want {
		t.Errorf("Write() = %q, want %q", buf.String(), want)
	}
}

func TestWrite_BodyLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  string
	}{
		{"below limit", 4, "7\t3\tx\ty\tz\n"},
		{"at limit", 3, "7\t3\n"},
		{"zero limit", 0, "7\t3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := buildMap(1, map[string]uint32{"x": 7, "y": 7, "z": 7})
			var buf bytes.Buffer
			if err := Write(&buf, Build(m, true), tt.limit); err != nil {
				t.Fatal(err)
			}
			if buf.String() != tt.want {
				t.Errorf("Write() = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestWriteFile_RoundTrip(t *testing.T) {
	entries := map[string]uint32{"one two": 4, "two three": 4, "three four": 1, "four five": 9}
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(path, []byte("stale contents that must disappear\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(path, Build(buildMap(2, entries), false), DefaultBodyLimit); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got := map[string]uint32{}
	var prev uint64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		count, size, phrases, err := ParseLine(sc.Text(), 2)
		if err != nil {
			t.Fatalf("ParseLine(%q) error = %v", sc.Text(), err)
		}
		if prev != 0 && count >= prev {
			t.Errorf("counts not strictly descending: %d after %d", count, prev)
		}
		prev = count
		if size != len(phrases) {
			t.Errorf("size %d, phrases %d", size, len(phrases))
		}
		for _, p := range phrases {
			got[p] = uint32(count)
		}
	}
	if len(got) != len(entries) {
		t.Fatalf("got %v, want %v", got, entries)
	}
	for p, c := range entries {
		if got[p] != c {
			t.Errorf("count[%q] = %d, want %d", p, got[p], c)
		}
	}
}

func TestWriteFile_Unwritable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.txt")
	err := WriteFile(path, &Table{}, DefaultBodyLimit)
	if !errors.Is(err, apperrors.ErrOutput) || !apperrors.IsFatal(err) {
		t.Errorf("WriteFile() error = %v, want fatal ErrOutput", err)
	}
}

func TestParseLine(t *testing.T) {
	count, size, phrases, err := ParseLine("3\t2\ta b\tc d\n", 2)
	if err != nil || count != 3 || size != 2 || len(phrases) != 2 || phrases[1] != "c d" {
		t.Errorf("ParseLine() = %d, %d, %v, %v", count, size, phrases, err)
	}
	count, size, phrases, err = ParseLine("3\t2000000", 2)
	if err != nil || count != 3 || size != 2_000_000 || phrases != nil {
		t.Errorf("capped ParseLine() = %d, %d, %v, %v", count, size, phrases, err)
	}
	for _, bad := range []string{"", "x\t1", "1\ty", "1\t2\ta b", "1\t1\ta b c"} {
		if _, _, _, err := ParseLine(bad, 2); err == nil {
			t.Errorf("ParseLine(%q) succeeded, want error", bad)
		}
	}
}

func TestTop(t *testing.T) {
	tbl := Build(buildMap(1, map[string]uint32{"a": 1, "b": 3, "c": 2, "d": 3}), true)
	top := tbl.Top(3)
	want := []Entry{{1, "b", 3}, {2, "d", 3}, {3, "c", 2}}
	if len(top) != len(want) {
		t.Fatalf("Top(3) = %v", top)
	}
	for i := range want {
		if top[i] != want[i] {
			t.Errorf("Top(3)[%d] = %v, want %v", i, top[i], want[i])
		}
	}
	if all := tbl.Top(0); len(all) != 4 {
		t.Errorf("Top(0) returned %d entries, want 4", len(all))
	}
}
