// Package tokenizer turns text into overlapping fixed-width word windows.
// Text is split into sentences and then words using Unicode UAX #29
// segmentation; windows never span a sentence boundary.
package tokenizer

import (
	"iter"
	"unicode"

	"github.com/rivo/uniseg"
)

// Windows returns every run of n consecutive words, sentence by sentence, in
// left-to-right order. The yielded slice is reused between iterations and its
// elements alias text, so callers that keep a window must copy it.
func Windows(text string, n int) iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		if n < 1 {
			return
		}
		words := make([]string, 0, 32)
		rest := text
		state := -1
		var sentence string
		for len(rest) > 0 {
			sentence, rest, state = uniseg.FirstSentenceInString(rest, state)
			words = appendWords(words[:0], sentence)
			for i := 0; i+n <= len(words); i++ {
				if !yield(words[i : i+n]) {
					return
				}
			}
		}
	}
}

// Sentences splits text into UAX #29 sentences.
func Sentences(text string) []string {
	var out []string
	rest := text
	state := -1
	var sentence string
	for len(rest) > 0 {
		sentence, rest, state = uniseg.FirstSentenceInString(rest, state)
		out = append(out, sentence)
	}
	return out
}

// Words returns the word segments of text that contain at least one letter
// or number.
func Words(text string) []string {
	return appendWords(nil, text)
}

func appendWords(dst []string, text string) []string {
	rest := text
	state := -1
	var word string
	for len(rest) > 0 {
		word, rest, state = uniseg.FirstWordInString(rest, state)
		if isWord(word) {
			dst = append(dst, word)
		}
	}
	return dst
}

// isWord drops whitespace and punctuation segments.
func isWord(segment string) bool {
	for _, r := range segment {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}
