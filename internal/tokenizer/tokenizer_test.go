package tokenizer

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func collect(text string, n int) [][]string {
	var out [][]string
	for w := range Windows(text, n) {
		out = append(out, append([]string(nil), w...))
	}
	return out
}

func TestWindows(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want [][]string
	}{
		{"bigrams", "a b c d", 2, [][]string{{"a", "b"}, {"b", "c"}, {"c", "d"}}},
		{"full width", "a b c d", 4, [][]string{{"a", "b", "c", "d"}}},
		{"too short", "a b c", 4, nil},
		{"unigrams", "the cat", 1, [][]string{{"the"}, {"cat"}}},
		{"empty", "", 2, nil},
		{"punctuation only", "... !!! ???", 1, nil},
		{"zero width", "a b c", 0, nil},
		{"punctuation dropped", "the cat, the hat", 2, [][]string{{"the", "cat"}, {"cat", "the"}, {"the", "hat"}}},
		{"case preserved", "The Cat", 2, [][]string{{"The", "Cat"}}},
		{"one word sentences", "Cats. Dogs.", 2, nil},
		{"per sentence", "The cat sat. A dog ran.", 2, [][]string{
			{"The", "cat"}, {"cat", "sat"}, {"A", "dog"}, {"dog", "ran"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collect(tt.text, tt.n)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Windows(%q, %d) = %v, want %v", tt.text, tt.n, got, tt.want)
			}
		})
	}
}

func TestWindows_Restartable(t *testing.T) {
	seq := Windows("one two three. Four five six.", 2)
	first := 0
	for range seq {
		first++
	}
	second := 0
	for range seq {
		second++
	}
	if first != 4 || second != 4 {
		t.Errorf("iterations = %d, %d; want 4, 4", first, second)
	}
}

func TestWindows_EarlyStop(t *testing.T) {
	count := 0
	for range Windows("a b c d e f", 1) {
		count++
		if count == 2 {
			break
		}
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestWords_Unicode(t *testing.T) {
	got := Words("Café au lait, don't stop: 3.14 ünïcödé!")
	want := []string{"Café", "au", "lait", "don't", "stop", "3.14", "ünïcödé"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Words() = %q, want %q", got, want)
	}
}

func TestSentences(t *testing.T) {
	got := Sentences("First one. Second one! Third?")
	if len(got) != 3 {
		t.Fatalf("Sentences() returned %d sentences (%q), want 3", len(got), got)
	}
	if strings.TrimSpace(got[0]) != "First one." {
		t.Errorf("first sentence = %q", got[0])
	}
}

func BenchmarkWindows(b *testing.B) {
	text := strings.Repeat("Information retrieval systems form the backbone of modern search infrastructure. ", 50)
	for _, n := range []int{1, 2, 3, 5} {
		b.Run(fmt.Sprintf("n_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				for w := range Windows(text, n) {
					_ = w
				}
			}
		})
	}
}
