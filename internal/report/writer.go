package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	apperrors "github.com/RustyYato/search-posts/pkg/errors"
	"github.com/RustyYato/search-posts/pkg/logger"
)

// DefaultBodyLimit is the group size at which phrase lists are omitted.
const DefaultBodyLimit = 1_000_000

const writeBufferSize = 1 << 20

// Write emits one line per group: the count and the group size, followed by
// each phrase (tab-prefixed, words space-joined) only when the group holds
// fewer than bodyLimit phrases.
func Write(w io.Writer, t *Table, bodyLimit int) error {
	log := logger.WithComponent("report")
	bw := bufio.NewWriterSize(w, writeBufferSize)
	buf := make([]byte, 0, 64)
	for i, g := range t.Groups {
		buf = strconv.AppendUint(buf[:0], uint64(g.Count), 10)
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, int64(len(g.Phrases)), 10)
		if _, err := bw.Write(buf); err != nil {
			return err
		}
		if len(g.Phrases) < bodyLimit {
			for _, p := range g.Phrases {
				bw.WriteByte('\t')
				for j, word := range p {
					if j > 0 {
						bw.WriteByte(' ')
					}
					bw.WriteString(word)
				}
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
		log.Debug("wrote group", "group", i+1, "groups", len(t.Groups), "phrases", len(g.Phrases))
	}
	return bw.Flush()
}

// WriteFile creates or truncates path and writes t to it.
func WriteFile(path string, t *Table, bodyLimit int) error {
	f, err := os.Create(path)
	if err != nil {
		return apperrors.New(fmt.Errorf("%w: %w", apperrors.ErrOutput, err), "report", path)
	}
	if err := Write(f, t, bodyLimit); err != nil {
		f.Close()
		return apperrors.New(fmt.Errorf("%w: %w", apperrors.ErrOutput, err), "report", path)
	}
	if err := f.Close(); err != nil {
		return apperrors.New(fmt.Errorf("%w: %w", apperrors.ErrOutput, err), "report", path)
	}
	return nil
}

// ParseLine splits one report line back into its count, group size and
// phrases. Phrases are omitted on capped lines, so len(phrases) is either 0
// or size.
func ParseLine(line string, width int) (count uint64, size int, phrases []string, err error) {
	fields := strings.Split(strings.TrimSuffix(line, "\n"), "\t")
	if len(fields) < 2 {
		return 0, 0, nil, fmt.Errorf("report line has %d fields, want at least 2", len(fields))
	}
	count, err = strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("parsing count: %w", err)
	}
	size, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, nil, fmt.Errorf("parsing group size: %w", err)
	}
	phrases = fields[2:]
	if len(phrases) != 0 && len(phrases) != size {
		return 0, 0, nil, fmt.Errorf("line lists %d phrases, group size is %d", len(phrases), size)
	}
	for _, p := range phrases {
		if n := len(strings.Split(p, " ")); n != width {
			return 0, 0, nil, fmt.Errorf("phrase %q has %d words, want %d", p, n, width)
		}
	}
	if len(phrases) == 0 {
		phrases = nil
	}
	return count, size, phrases, nil
}
