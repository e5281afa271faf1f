package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/RustyYato/search-posts/pkg/errors"
)

func TestApp_WritesReport(t *testing.T) {
	in := t.TempDir()
	doc := `{"users":[{"posts":[{"text":"the cat sat."},{"text":"the cat ran"}]}]}`
	if err := os.WriteFile(filepath.Join(in, "doc.json"), []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "out.txt")

	args := []string{"ngramcount", "-n", "2", "--workers", "2", "--sort-ties", "--temp-dir", t.TempDir(), "-o", out, in}
	if err := newApp().Run(args); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	want := "2\t1\tthe cat\n1\t2\tcat ran\tcat sat\n"
	if string(data) != want {
		t.Errorf("report = %q, want %q", data, want)
	}
}

func TestApp_RejectsInvalidWidth(t *testing.T) {
	err := newApp().Run([]string{"ngramcount", "-n", "0", t.TempDir()})
	if !errors.Is(err, apperrors.ErrConfig) {
		t.Errorf("Run() error = %v, want ErrConfig", err)
	}
}

func TestApp_RequiresPaths(t *testing.T) {
	err := newApp().Run([]string{"ngramcount", "-o", filepath.Join(t.TempDir(), "out.txt")})
	if !errors.Is(err, apperrors.ErrConfig) {
		t.Errorf("Run() error = %v, want ErrConfig", err)
	}
}
