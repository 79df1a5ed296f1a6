// Package tiers partitions the vocabulary into (word_length, first_char)
// buckets ranked by aggregate bond mass, and assigns each entry a frequency
// tier. The particle beds stage their settlement cascade over these tiers.
package tiers

import (
	"sort"

	"github.com/Human-Cognome-Project/human-cognome-project-sub000/bonds"
)

// Default per-bucket tier capacities: tier 0 holds the strongest entries.
// Entries beyond the last tier are excluded and resolve through the
// variable-mint path instead.
var DefaultTierMax = []int{100, 200, 500}

// Entry is one tiered vocabulary word.
type Entry struct {
	Word      string
	TokenID   string
	BondCount int64
	Tier      int
}

// Bucket groups all tiered entries of one (length, first char) cell.
type Bucket struct {
	Length int
	First  byte

	// Entries sorted by BondCount descending.
	Entries []Entry

	// Boundaries holds the cumulative start index of each tier in Entries.
	Boundaries []int

	// TierCount is the number of non-empty tiers.
	TierCount int
}

// Key packs (length, first char) the way buckets are addressed everywhere:
// `(word_length << 8) | first_char_lower`.
func Key(length int, first byte) uint32 {
	return uint32(length)<<8 | uint32(lower(first))
}

// Config controls tier capacities.
type Config struct {
	// TierMax holds the per-bucket capacity of each tier, in tier order.
	// Nil means DefaultTierMax.
	TierMax []int
}

func (c Config) tierMax() []int {
	if c.TierMax == nil {
		return DefaultTierMax
	}
	return c.TierMax
}

// Assembly is the full tiered vocabulary.
type Assembly struct {
	cfg     Config
	buckets map[uint32]*Bucket
}

// Assemble builds the tier assembly. iterate must call its argument once per
// (word, tokenID) vocabulary pair; table is the char→word bond table used to
// score entries. Only words of length ≥ 2 whose lowercase form is entirely
// ASCII a..z participate.
func Assemble(iterate func(fn func(word, tokenID string) bool) error, table *bonds.Table, cfg Config) (*Assembly, error) {
	a := &Assembly{cfg: cfg, buckets: make(map[uint32]*Bucket)}
	err := iterate(func(word, tokenID string) bool {
		lw, ok := asciiLower(word)
		if !ok || len(lw) < 2 {
			return true
		}
		key := Key(len(lw), lw[0])
		bucket := a.buckets[key]
		if bucket == nil {
			bucket = &Bucket{Length: len(lw), First: lw[0]}
			a.buckets[key] = bucket
		}
		bucket.Entries = append(bucket.Entries, Entry{
			Word:      lw,
			TokenID:   tokenID,
			BondCount: BondCount(lw, table),
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	for _, bucket := range a.buckets {
		bucket.finish(cfg.tierMax())
	}
	return a, nil
}

// BondCount scores a lowercase ASCII word against the char→word table:
// the sum of bond strengths over every adjacent character pair.
func BondCount(word string, table *bonds.Table) (sum int64) {
	for ii := 0; ii+1 < len(word); ii++ {
		sum += table.Count(word[ii:ii+1], word[ii+1:ii+2])
	}
	return
}

// finish sorts the bucket, assigns tiers and drops the remainder.
func (b *Bucket) finish(tierMax []int) {
	sort.SliceStable(b.Entries, func(i, j int) bool {
		if b.Entries[i].BondCount != b.Entries[j].BondCount {
			return b.Entries[i].BondCount > b.Entries[j].BondCount
		}
		return b.Entries[i].Word < b.Entries[j].Word
	})
	capacity := 0
	for _, m := range tierMax {
		capacity += m
	}
	if len(b.Entries) > capacity {
		b.Entries = b.Entries[:capacity]
	}
	b.Boundaries = b.Boundaries[:0]
	start := 0
	for tier, m := range tierMax {
		if start >= len(b.Entries) {
			break
		}
		b.Boundaries = append(b.Boundaries, start)
		end := start + m
		if end > len(b.Entries) {
			end = len(b.Entries)
		}
		for ii := start; ii < end; ii++ {
			b.Entries[ii].Tier = tier
		}
		start = end
		b.TierCount = tier + 1
	}
}

// TierRange returns the [from, to) slice bounds of one tier inside Entries.
func (b *Bucket) TierRange(tier int) (from, to int) {
	if tier < 0 || tier >= b.TierCount {
		return 0, 0
	}
	from = b.Boundaries[tier]
	if tier+1 < b.TierCount {
		to = b.Boundaries[tier+1]
	} else {
		to = len(b.Entries)
	}
	return
}

// Bucket returns the bucket for (length, first char), nil when the cell has
// no tiered vocabulary.
func (a *Assembly) Bucket(length int, first byte) *Bucket {
	return a.buckets[Key(length, first)]
}

// Lengths returns the distinct word lengths with at least one bucket,
// ascending.
func (a *Assembly) Lengths() []int {
	seen := make(map[int]bool)
	for _, b := range a.buckets {
		seen[b.Length] = true
	}
	lengths := make([]int, 0, len(seen))
	for l := range seen {
		lengths = append(lengths, l)
	}
	sort.Ints(lengths)
	return lengths
}

// MaxTierCount returns the largest tier count over the buckets of one
// length, 0 when the length has no buckets.
func (a *Assembly) MaxTierCount(length int) (max int) {
	for _, b := range a.buckets {
		if b.Length == length && b.TierCount > max {
			max = b.TierCount
		}
	}
	return
}

// NumBuckets returns the number of non-empty buckets.
func (a *Assembly) NumBuckets() int { return len(a.buckets) }

// asciiLower lowercases word and reports whether the result is entirely
// ASCII a..z.
func asciiLower(word string) (string, bool) {
	buf := make([]byte, len(word))
	for ii := 0; ii < len(word); ii++ {
		c := word[ii]
		switch {
		case c >= 'a' && c <= 'z':
			buf[ii] = c
		case c >= 'A' && c <= 'Z':
			buf[ii] = c + ('a' - 'A')
		default:
			return "", false
		}
	}
	return string(buf), true
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
