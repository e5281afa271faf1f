// Package phrase provides the sharded phrase → count table used by every
// aggregation stage.
//
// A phrase is a fixed-width []string. Borrowed phrases may alias a document's
// text; owned phrases have words that share one backing string allocated by
// Clone, so a stored phrase never pins the document it came from.
package phrase

import (
	"strings"
)

// Clone returns an owned copy of p whose words share a single allocation.
func Clone(p []string) []string {
	size := 0
	for _, w := range p {
		size += len(w)
	}
	var b strings.Builder
	b.Grow(size)
	for _, w := range p {
		b.WriteString(w)
	}
	buf := b.String()
	out := make([]string, len(p))
	off := 0
	for i, w := range p {
		out[i] = buf[off : off+len(w)]
		off += len(w)
	}
	return out
}

// Equal reports whether a and b hold the same words in the same order.
func Equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Join renders p with single spaces between words, as written in reports.
func Join(p []string) string {
	return strings.Join(p, " ")
}
