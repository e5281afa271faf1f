package discover

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	apperrors "github.com/RustyYato/search-posts/pkg/errors"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestFiles_FiltersAndRecurses(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.json"))
	touch(t, filepath.Join(root, "notes.txt"))
	touch(t, filepath.Join(root, "nested", "deeper", "b.json"))
	touch(t, filepath.Join(root, "nested", "c.JSON"))
	if err := os.Mkdir(filepath.Join(root, "dir.json"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := Files(root)
	if err != nil {
		t.Fatalf("Files() error = %v", err)
	}
	want := []string{
		filepath.Join(root, "a.json"),
		filepath.Join(root, "nested", "deeper", "b.json"),
	}
	slices.Sort(got)
	if !slices.Equal(got, want) {
		t.Errorf("Files() = %v, want %v", got, want)
	}
}

func TestFiles_ExplicitFileRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.dump")
	touch(t, path)
	got, err := Files(path)
	if err != nil || len(got) != 1 || got[0] != path {
		t.Errorf("Files(%s) = %v, %v", path, got, err)
	}
}

func TestFiles_SkipsSymlinkedDirs(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	touch(t, filepath.Join(other, "x.json"))
	if err := os.Symlink(other, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	got, err := Files(root)
	if err != nil || len(got) != 0 {
		t.Errorf("Files() = %v, %v; want nothing", got, err)
	}
}

func TestFiles_MissingRoot(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.json"))
	missing := filepath.Join(root, "nope")

	got, err := Files(missing, root)
	if !errors.Is(err, apperrors.ErrOpenInput) {
		t.Errorf("Files() error = %v, want ErrOpenInput", err)
	}
	if apperrors.IsFatal(err) {
		t.Error("missing root should not be fatal")
	}
	if len(got) != 1 {
		t.Errorf("Files() = %v, want the file from the remaining root", got)
	}
}
