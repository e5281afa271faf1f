// Package merge folds completed spill files back into the final phrase map.
package merge

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/RustyYato/search-posts/internal/phrase"
	"github.com/RustyYato/search-posts/internal/spill"
	apperrors "github.com/RustyYato/search-posts/pkg/errors"
	"github.com/RustyYato/search-posts/pkg/logger"
	"github.com/RustyYato/search-posts/pkg/metrics"
)

// Result summarises one merge pass.
type Result struct {
	Files   int
	Skipped int
	Entries int
	Bytes   int64
}

// Merger reads spill files from a directory into a phrase map.
type Merger struct {
	width   int
	metrics *metrics.Metrics
	logger  *slog.Logger
	buf     bytes.Buffer
}

func New(width int, m *metrics.Metrics) *Merger {
	return &Merger{
		width:   width,
		metrics: m,
		logger:  logger.WithComponent("merge"),
	}
}

// Merge decodes every completed spill file in dir directly into into. Files
// that cannot be opened are logged and skipped; a file that fails to decode
// aborts the merge with ErrCorruptSpill.
func Merge(dir string, width int, into *phrase.Map) (Result, error) {
	return New(width, nil).Merge(dir, into)
}

func (mg *Merger) Merge(dir string, into *phrase.Map) (Result, error) {
	var res Result
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, apperrors.New(fmt.Errorf("%w: reading spill directory: %w", apperrors.ErrTempDir, err), "merge", dir)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), spill.Ext) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := mg.read(path)
		if err != nil {
			mg.logger.Warn("failed to open spill file, skipping",
				"path", path,
				"error", err,
			)
			mg.metrics.SpillMerged("skipped")
			res.Skipped++
			continue
		}
		n, err := spill.Decode(data, mg.width, into)
		if err != nil {
			mg.metrics.SpillMerged("corrupt")
			return res, apperrors.New(err, "merge", path)
		}
		mg.metrics.SpillMerged("ok")
		res.Files++
		res.Entries += n
		res.Bytes += int64(len(data))
		mg.logger.Debug("merged spill file",
			"path", path,
			"entries", n,
			"distinct", into.Len(),
		)
	}
	return res, nil
}

// read loads path into the merger's reusable buffer. The returned slice is
// valid until the next call.
func (mg *Merger) read(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	mg.buf.Reset()
	if st, err := f.Stat(); err == nil {
		mg.buf.Grow(int(st.Size()))
	}
	if _, err := io.Copy(&mg.buf, f); err != nil {
		return nil, err
	}
	return mg.buf.Bytes(), nil
}
