// Package report ranks the final phrase counts and writes them out.
package report

import (
	"slices"
	"sort"

	"github.com/RustyYato/search-posts/internal/phrase"
)

// Group holds every phrase that occurred exactly Count times.
type Group struct {
	Count   uint32
	Phrases [][]string
}

// Table is the frequency table: groups ordered by strictly descending count.
type Table struct {
	Groups   []Group
	Distinct int
}

// Entry is one ranked phrase.
type Entry struct {
	Rank   int    `json:"rank"`
	Phrase string `json:"phrase"`
	Count  uint32 `json:"count"`
}

// Build inverts m into a Table and resets m. Phrases sharing a count keep the
// order in which m yields them unless sortTies is set, in which case they are
// ordered word by word.
func Build(m *phrase.Map, sortTies bool) *Table {
	index := make(map[uint32]int)
	t := &Table{Distinct: m.Len()}
	for p, count := range m.All() {
		i, ok := index[count]
		if !ok {
			i = len(t.Groups)
			index[count] = i
			t.Groups = append(t.Groups, Group{Count: count})
		}
		t.Groups[i].Phrases = append(t.Groups[i].Phrases, p)
	}
	m.Reset()

	sort.Slice(t.Groups, func(i, j int) bool {
		return t.Groups[i].Count > t.Groups[j].Count
	})
	if sortTies {
		for _, g := range t.Groups {
			slices.SortFunc(g.Phrases, slices.Compare[[]string])
		}
	}
	return t
}

// Top returns up to k phrases from the highest counts down, ranked from 1.
// k <= 0 returns every phrase.
func (t *Table) Top(k int) []Entry {
	if k <= 0 || k > t.Distinct {
		k = t.Distinct
	}
	out := make([]Entry, 0, k)
	for _, g := range t.Groups {
		for _, p := range g.Phrases {
			if len(out) == k {
				return out
			}
			out = append(out, Entry{Rank: len(out) + 1, Phrase: phrase.Join(p), Count: g.Count})
		}
	}
	return out
}
