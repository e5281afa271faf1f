// Package discover expands input paths into the list of JSON documents to
// aggregate.
package discover

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/RustyYato/search-posts/pkg/errors"
	"github.com/RustyYato/search-posts/pkg/logger"
)

// Ext is the suffix of files picked up from walked directories.
const Ext = ".json"

// Files walks each root recursively and returns every regular file ending in
// Ext, in walk order. A root naming a regular file is returned as is.
// Symlinked directories are not followed and unreadable directories are
// skipped with a warning. A root that cannot be stat'ed is
// reported in the returned error, wrapping ErrOpenInput, while the remaining
// roots are still walked.
func Files(roots ...string) ([]string, error) {
	log := logger.WithComponent("discover")
	var (
		files []string
		errs  []error
	)
	for _, root := range roots {
		if _, err := os.Lstat(root); err != nil {
			errs = append(errs, apperrors.New(fmt.Errorf("%w: %w", apperrors.ErrOpenInput, err), "discover", root))
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				log.Warn("skipping unreadable path", "path", path, "error", err)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() && (path == root || strings.HasSuffix(d.Name(), Ext)) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			errs = append(errs, apperrors.New(fmt.Errorf("%w: %w", apperrors.ErrOpenInput, err), "discover", root))
		}
	}
	log.Debug("discovered input files", "roots", len(roots), "files", len(files))
	return files, errors.Join(errs...)
}
