package document

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/RustyYato/search-posts/internal/tokenizer"
	apperrors "github.com/RustyYato/search-posts/pkg/errors"
)

// Kind tags a Value.
type Kind uint8

const (
	Ignored Kind = iota
	Text
	Sequence
	Mapping
)

// Value is a materialised document reduced to what extraction can use:
// scalars other than strings collapse to Ignored.
type Value struct {
	Kind   Kind
	Text   string
	Items  []Value
	Fields []Field
}

// Field is one key/value pair of a Mapping. Fields keep document order and
// duplicates, so extraction sees exactly what the streaming walker sees.
type Field struct {
	Key   string
	Value Value
}

// Parse materialises data as a Value tree, rejecting nesting deeper than
// maxDepth.
func Parse(data []byte, maxDepth int) (Value, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	it := jsoniter.ParseBytes(jsoniter.ConfigDefault, data)
	p := &parser{iter: it, maxDepth: maxDepth}
	v := p.value()
	if p.err != nil {
		return Value{}, p.err
	}
	if it.Error != nil {
		return Value{}, fmt.Errorf("parsing document: %w", it.Error)
	}
	if err := expectEOF(it); err != nil {
		return Value{}, fmt.Errorf("parsing document: %w", err)
	}
	return v, nil
}

type parser struct {
	iter     *jsoniter.Iterator
	maxDepth int
	depth    int
	err      error
}

func (p *parser) value() Value {
	switch p.iter.WhatIsNext() {
	case jsoniter.StringValue:
		return Value{Kind: Text, Text: p.iter.ReadString()}
	case jsoniter.ArrayValue:
		if !p.enter() {
			return Value{}
		}
		defer func() { p.depth-- }()
		v := Value{Kind: Sequence}
		p.iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			v.Items = append(v.Items, p.value())
			return p.err == nil && it.Error == nil
		})
		return v
	case jsoniter.ObjectValue:
		if !p.enter() {
			return Value{}
		}
		defer func() { p.depth-- }()
		v := Value{Kind: Mapping}
		p.iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
			v.Fields = append(v.Fields, Field{Key: key, Value: p.value()})
			return p.err == nil && it.Error == nil
		})
		return v
	default:
		p.iter.Skip()
		return Value{}
	}
}

func (p *parser) enter() bool {
	p.depth++
	if p.depth > p.maxDepth {
		p.err = fmt.Errorf("%w (%d)", ErrTooDeep, p.maxDepth)
		return false
	}
	return true
}

// Extract applies the walker's rules to a materialised document and returns
// the number of phrases sent to sink.
func Extract(v Value, width int, sink Sink) (int, error) {
	if v.Kind != Mapping {
		return 0, fmt.Errorf("%w: top-level value is not an object", apperrors.ErrNoContent)
	}
	e := extractor{width: width, sink: sink}
	e.walk(v, Outside)
	return e.phrases, nil
}

type extractor struct {
	width   int
	sink    Sink
	phrases int
}

func (e *extractor) walk(v Value, loc Location) {
	switch v.Kind {
	case Sequence:
		for _, item := range v.Items {
			e.walk(item, loc)
		}
	case Mapping:
		for _, f := range v.Fields {
			next := Transition(loc, f.Key)
			switch {
			case next == Unknown:
			case IsTextField(next, f.Key) && f.Value.Kind == Text:
				for p := range tokenizer.Windows(f.Value.Text, e.width) {
					e.sink.Add(p, 1)
					e.phrases++
				}
			default:
				e.walk(f.Value, next)
			}
		}
	}
}
