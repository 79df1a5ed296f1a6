package vocab

import (
	"sort"
	"strings"

	"k8s.io/klog/v2"
)

// AffixDirection distinguishes suffixes from prefixes.
type AffixDirection int

const (
	Suffix AffixDirection = iota
	Prefix
)

// AffixEntry is one loaded affix: the surface without its positional
// hyphen, its token id and the direction the hyphen implied.
type AffixEntry struct {
	Stripped  string
	TokenID   string
	Direction AffixDirection
}

// RawAffix is an affix row as persisted: surface still carrying the hyphen
// (`-ing` is a suffix, `pre-` a prefix).
type RawAffix struct {
	Form    string
	TokenID string
}

// AffixIndex buckets affixes for longest-match-first decomposition:
// suffixes by the last character of the stripped form, prefixes by the
// first. Within a bucket, entries are ordered by stripped length
// descending, so the first match wins.
type AffixIndex struct {
	suffixes map[byte][]AffixEntry
	prefixes map[byte][]AffixEntry
	total    int
}

// NewAffixIndex returns an empty index.
func NewAffixIndex() *AffixIndex {
	return &AffixIndex{
		suffixes: make(map[byte][]AffixEntry),
		prefixes: make(map[byte][]AffixEntry),
	}
}

// Load replaces the index content with the given rows. Rows hyphenated on
// both sides are skipped.
func (a *AffixIndex) Load(rows []RawAffix) {
	a.suffixes = make(map[byte][]AffixEntry)
	a.prefixes = make(map[byte][]AffixEntry)
	a.total = 0
	for _, row := range rows {
		isSuffix := strings.HasPrefix(row.Form, "-")
		isPrefix := strings.HasSuffix(row.Form, "-")
		if isSuffix == isPrefix { // both or neither
			continue
		}
		if isSuffix {
			stripped := row.Form[1:]
			if stripped == "" {
				continue
			}
			last := stripped[len(stripped)-1]
			a.suffixes[last] = append(a.suffixes[last], AffixEntry{
				Stripped: stripped, TokenID: row.TokenID, Direction: Suffix,
			})
		} else {
			stripped := row.Form[:len(row.Form)-1]
			if stripped == "" {
				continue
			}
			first := stripped[0]
			a.prefixes[first] = append(a.prefixes[first], AffixEntry{
				Stripped: stripped, TokenID: row.TokenID, Direction: Prefix,
			})
		}
		a.total++
	}
	for _, bucket := range a.suffixes {
		sortByLengthDesc(bucket)
	}
	for _, bucket := range a.prefixes {
		sortByLengthDesc(bucket)
	}
	klog.V(1).Infof("vocab: loaded %d affixes", a.total)
}

func sortByLengthDesc(bucket []AffixEntry) {
	sort.SliceStable(bucket, func(i, j int) bool {
		return len(bucket[i].Stripped) > len(bucket[j].Stripped)
	})
}

// Len returns the number of loaded affixes.
func (a *AffixIndex) Len() int { return a.total }

// SuffixesFor returns the length-descending suffix bucket for a final
// character, nil when empty.
func (a *AffixIndex) SuffixesFor(c byte) []AffixEntry { return a.suffixes[c] }

// PrefixesFor returns the length-descending prefix bucket for an initial
// character, nil when empty.
func (a *AffixIndex) PrefixesFor(c byte) []AffixEntry { return a.prefixes[c] }

// MatchSuffix returns the candidate suffixes of core, longest first. A
// candidate matches when core ends with the stripped form and a non-empty
// stem remains.
func (a *AffixIndex) MatchSuffix(core string) []AffixEntry {
	if core == "" {
		return nil
	}
	bucket := a.suffixes[core[len(core)-1]]
	var out []AffixEntry
	for _, e := range bucket {
		if len(core) > len(e.Stripped) && strings.HasSuffix(core, e.Stripped) {
			out = append(out, e)
		}
	}
	return out
}

// MatchPrefix is the symmetric query for prefixes.
func (a *AffixIndex) MatchPrefix(core string) []AffixEntry {
	if core == "" {
		return nil
	}
	bucket := a.prefixes[core[0]]
	var out []AffixEntry
	for _, e := range bucket {
		if len(core) > len(e.Stripped) && strings.HasPrefix(core, e.Stripped) {
			out = append(out, e)
		}
	}
	return out
}

// LoadAffixes bulk-loads the affix list into the cache's index.
func (c *Cache) LoadAffixes(rows []RawAffix) {
	c.affixes.Load(rows)
}
