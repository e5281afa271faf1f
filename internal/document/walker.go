package document

import (
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/RustyYato/search-posts/internal/tokenizer"
	apperrors "github.com/RustyYato/search-posts/pkg/errors"
)

// DefaultMaxDepth bounds object/array nesting when no limit is configured.
const DefaultMaxDepth = 512

// ErrTooDeep is returned when a document nests deeper than the walker allows.
var ErrTooDeep = errors.New("document nesting exceeds depth limit")

// ErrTrailingData is returned when anything but whitespace follows the
// top-level value.
var ErrTrailingData = errors.New("trailing data after top-level value")

// Walker scans JSON bytes and feeds phrases from post text fields into a
// Sink. A Walker keeps its iterator between documents and must not be shared
// between goroutines.
type Walker struct {
	width    int
	maxDepth int
	iter     *jsoniter.Iterator
	sink     Sink
	depth    int
	err      error
	phrases  int
}

// NewWalker returns a Walker producing phrases of the given width.
func NewWalker(width, maxDepth int) *Walker {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Walker{
		width:    width,
		maxDepth: maxDepth,
		iter:     jsoniter.NewIterator(jsoniter.ConfigDefault),
	}
}

// Walk extracts phrases from data into sink and returns how many were
// emitted. Any error wraps apperrors.ErrNoContent; phrases emitted before the
// error was detected have already reached sink, so callers that need
// all-or-nothing semantics should stage into a scratch sink.
func (w *Walker) Walk(data []byte, sink Sink) (int, error) {
	w.iter.ResetBytes(data)
	w.iter.Error = nil
	w.sink = sink
	w.depth = 0
	w.err = nil
	w.phrases = 0
	defer func() { w.sink = nil }()

	if next := w.iter.WhatIsNext(); next != jsoniter.ObjectValue {
		return 0, fmt.Errorf("%w: top-level value is not an object", apperrors.ErrNoContent)
	}
	w.walkObject(Outside)
	if w.err != nil {
		return w.phrases, fmt.Errorf("%w: %w", apperrors.ErrNoContent, w.err)
	}
	if w.iter.Error != nil {
		return w.phrases, fmt.Errorf("%w: %w", apperrors.ErrNoContent, w.iter.Error)
	}
	if err := expectEOF(w.iter); err != nil {
		return w.phrases, fmt.Errorf("%w: %w", apperrors.ErrNoContent, err)
	}
	return w.phrases, nil
}

// expectEOF consumes trailing whitespace and fails if any other input is
// left. A bytes-backed iterator reports the end of input as io.EOF, which is
// cleared so the iterator stays reusable.
func expectEOF(it *jsoniter.Iterator) error {
	it.WhatIsNext()
	switch it.Error {
	case io.EOF:
		it.Error = nil
		return nil
	case nil:
		return ErrTrailingData
	default:
		return it.Error
	}
}

func (w *Walker) ok() bool {
	return w.err == nil && w.iter.Error == nil
}

func (w *Walker) enter() bool {
	w.depth++
	if w.depth > w.maxDepth {
		w.err = fmt.Errorf("%w (%d)", ErrTooDeep, w.maxDepth)
		return false
	}
	return true
}

func (w *Walker) walkValue(loc Location) {
	switch w.iter.WhatIsNext() {
	case jsoniter.ObjectValue:
		w.walkObject(loc)
	case jsoniter.ArrayValue:
		w.walkArray(loc)
	default:
		w.iter.Skip()
	}
}

func (w *Walker) walkObject(loc Location) {
	if !w.enter() {
		return
	}
	defer func() { w.depth-- }()
	w.iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
		next := Transition(loc, key)
		switch {
		case next == Unknown:
			it.Skip()
		case IsTextField(next, key) && it.WhatIsNext() == jsoniter.StringValue:
			w.emit(it.ReadString())
		default:
			w.walkValue(next)
		}
		return w.ok()
	})
}

func (w *Walker) walkArray(loc Location) {
	if !w.enter() {
		return
	}
	defer func() { w.depth-- }()
	w.iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
		w.walkValue(loc)
		return w.ok()
	})
}

func (w *Walker) emit(text string) {
	for p := range tokenizer.Windows(text, w.width) {
		w.sink.Add(p, 1)
		w.phrases++
	}
}
