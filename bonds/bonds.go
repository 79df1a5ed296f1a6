// Package bonds builds and holds directional adjacency-count tables
// ("bonds") at the three levels the engine works with: byte→char within
// multi-byte characters, char→char within words, and token→token within a
// document stream.
package bonds

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Table levels. A level names one persisted bond table.
const (
	LevelByteChar = "byte_char"
	LevelCharWord = "char_word"
	LevelWordWord = "word_word"
)

// Pair is a directional bond key.
type Pair struct {
	A, B string
}

// Table is a directional bond-count table for one level. The zero value is
// not usable; construct with New.
type Table struct {
	level  string
	counts map[Pair]int64
}

// New returns an empty table for the given level.
func New(level string) *Table {
	return &Table{level: level, counts: make(map[Pair]int64)}
}

// Level returns the level name the table was created with.
func (t *Table) Level() string { return t.level }

// Add accumulates n onto the (a, b) bond. Adding the same pair twice sums.
func (t *Table) Add(a, b string, n int64) {
	if n <= 0 {
		return
	}
	t.counts[Pair{A: a, B: b}] += n
}

// Count returns the count for (a, b), 0 when absent.
func (t *Table) Count(a, b string) int64 {
	return t.counts[Pair{A: a, B: b}]
}

// Len returns the number of distinct pairs.
func (t *Table) Len() int { return len(t.counts) }

// Total returns the sum of all counts.
func (t *Table) Total() (total int64) {
	for _, c := range t.counts {
		total += c
	}
	return
}

// Max returns the largest single count, 0 for an empty table.
func (t *Table) Max() (max int64) {
	for _, c := range t.counts {
		if c > max {
			max = c
		}
	}
	return
}

// Range calls fn for every pair until fn returns false. Iteration order is
// unspecified.
func (t *Table) Range(fn func(p Pair, count int64) bool) {
	for p, c := range t.counts {
		if !fn(p, c) {
			return
		}
	}
}

// SortedPairs returns every pair ordered by (A, B), for deterministic
// persistence and display.
func (t *Table) SortedPairs() []Pair {
	pairs := make([]Pair, 0, len(t.counts))
	for p := range t.counts {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs
}

// Equal reports whether two tables hold identical pair counts.
func (t *Table) Equal(other *Table) bool {
	if t.Len() != other.Len() {
		return false
	}
	for p, c := range t.counts {
		if other.counts[p] != c {
			return false
		}
	}
	return true
}

// AddWord accumulates the char→word bonds of one word form: every adjacent
// codepoint pair contributes one count. Words of fewer than two codepoints
// contribute nothing. Decoding is UTF-8 aware; a malformed byte sequence is
// treated as a single-byte codepoint.
func (t *Table) AddWord(word string) {
	prev := ""
	for ii := 0; ii < len(word); {
		r, size := utf8.DecodeRuneInString(word[ii:])
		var cur string
		if r == utf8.RuneError && size <= 1 {
			cur = word[ii : ii+1]
			size = 1
		} else {
			cur = word[ii : ii+size]
		}
		if prev != "" {
			t.Add(prev, cur, 1)
		}
		prev = cur
		ii += size
	}
}

// AddCharBytes accumulates the byte→char bonds of one character's encoded
// byte array: every adjacent byte pair contributes one count, each byte
// keyed as uppercase 2-digit hex. Single-byte characters contribute nothing.
func (t *Table) AddCharBytes(b []byte) {
	for ii := 0; ii+1 < len(b); ii++ {
		t.Add(hexByte(b[ii]), hexByte(b[ii+1]), 1)
	}
}

// AddStream accumulates token→token bonds over a document token stream in
// emission order.
func (t *Table) AddStream(ids []string) {
	for ii := 0; ii+1 < len(ids); ii++ {
		t.Add(ids[ii], ids[ii+1], 1)
	}
}

func hexByte(b byte) string {
	return fmt.Sprintf("%02X", b)
}

// CompileCharWord builds the char→word table by iterating all word forms.
// iterate must call its argument once per word and stop when it returns
// false (it never does here).
func CompileCharWord(iterate func(fn func(word string) bool) error) (*Table, error) {
	t := New(LevelCharWord)
	err := iterate(func(word string) bool {
		t.AddWord(word)
		return true
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CompileByteChar builds the byte→char table by iterating all character
// records that carry an explicit byte array.
func CompileByteChar(iterate func(fn func(b []byte) bool) error) (*Table, error) {
	t := New(LevelByteChar)
	err := iterate(func(b []byte) bool {
		t.AddCharBytes(b)
		return true
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}
