package vocab

import (
	"unicode/utf8"
)

// Continuation is the outcome of a forward-walk probe.
type Continuation int

const (
	// ContinuationMiss: the probed sequence is not a known prefix.
	ContinuationMiss Continuation = iota

	// ContinuationContinue: the probed sequence is a proper prefix of at
	// least one known sequence.
	ContinuationContinue

	// ContinuationComplete: the probed sequence is itself a known
	// sequence; the id accompanies the result.
	ContinuationComplete
)

// Cache is the read-through vocabulary cache. Reads hit the environment
// first; misses route through the resolver (when one is attached), whose
// successful resolutions are visible to every subsequent reader atomically.
type Cache struct {
	env      *Env
	resolver *Resolver
	affixes  *AffixIndex
}

// New builds a cache over env. resolver may be nil, in which case every
// miss stays a miss (useful for read-only consumers).
func New(env *Env, resolver *Resolver) *Cache {
	return &Cache{env: env, resolver: resolver, affixes: NewAffixIndex()}
}

// Affixes returns the loaded affix index.
func (c *Cache) Affixes() *AffixIndex { return c.affixes }

// LookupWord resolves a word surface to its token id, consulting the miss
// resolver on a cache miss.
func (c *Cache) LookupWord(word string) (string, bool) {
	return c.lookup(SubWords, word, true)
}

// LookupWordLocal is LookupWord without the resolver: misses are expected
// and frequent on speculative affix-stem checks, and must not hit the
// external dictionary.
func (c *Cache) LookupWordLocal(word string) (string, bool) {
	return c.lookup(SubWords, word, false)
}

// LookupChar resolves one character (keyed by its encoded bytes) to its
// token id. The character handler mints without external storage, so this
// never misses for a non-empty key when a resolver is attached.
func (c *Cache) LookupChar(cp rune) (string, bool) {
	return c.lookup(SubChars, string(cp), true)
}

// LookupLabel resolves a structural name (`newline`, `tab`,
// `document_start`, ...).
func (c *Cache) LookupLabel(name string) (string, bool) {
	return c.lookup(SubLabels, name, true)
}

func (c *Cache) lookup(sub, key string, resolve bool) (string, bool) {
	if key == "" {
		return "", false
	}
	value, ok, err := c.env.get(sub, key)
	if err != nil {
		return "", false
	}
	if ok {
		return value, true
	}
	if !resolve || c.resolver == nil {
		return "", false
	}
	value, ok, err = c.resolver.Resolve(sub, key)
	if err != nil || !ok {
		// Resolver faults degrade to misses; the caller's fallback
		// stack (or a later re-read) takes over.
		return "", false
	}
	return value, true
}

// CheckContinuation probes the forward cache for `accumulated + " " + next`.
// Absent or "0" is a miss, "1" means the walk may continue, and any other
// value is the id of a complete sequence.
func (c *Cache) CheckContinuation(accumulated, next string) (Continuation, string) {
	value, ok, err := c.env.get(SubForward, accumulated+" "+next)
	if err != nil || !ok || value == "" || value == "0" {
		return ContinuationMiss, ""
	}
	if value == "1" {
		return ContinuationContinue, ""
	}
	return ContinuationComplete, value
}

// PutForward seeds one forward-cache entry. Used when loading multi-word
// vocabulary sequences.
func (c *Cache) PutForward(key, value string) error {
	return c.env.commit([]Write{{Sub: SubForward, Key: key, Value: value}})
}

// PutReverseWord seeds one reverse word-table entry directly. Affix ids
// map to their hyphen-stripped surfaces and sequence ids to their full
// phrases, neither of which the miss resolver ever produces.
func (c *Cache) PutReverseWord(tokenID, surface string) error {
	return c.env.commit([]Write{{Sub: SubTokenWords, Key: tokenID, Value: surface}})
}

// TokenToWord reverse-resolves a word token id to its surface.
func (c *Cache) TokenToWord(tokenID string) (string, bool) {
	value, ok, err := c.env.get(SubTokenWords, tokenID)
	if err != nil {
		return "", false
	}
	return value, ok
}

// TokenToChar reverse-resolves a character token id to its bytes.
func (c *Cache) TokenToChar(tokenID string) (string, bool) {
	value, ok, err := c.env.get(SubTokenChars, tokenID)
	if err != nil {
		return "", false
	}
	return value, ok
}

// IterateWords streams the reverse word table as (surface, token id),
// early-terminable by returning false.
func (c *Cache) IterateWords(fn func(word, tokenID string) bool) error {
	return c.env.iterate(SubTokenWords, func(key, value string) bool {
		return fn(value, key)
	})
}

// IterateChars streams the reverse character table as (bytes, token id).
func (c *Cache) IterateChars(fn func(char string, tokenID string) bool) error {
	return c.env.iterate(SubTokenChars, func(key, value string) bool {
		return fn(value, key)
	})
}

// IterateCharBytes streams the byte arrays of every cached character that
// is longer than one byte, for byte→char bond compilation.
func (c *Cache) IterateCharBytes(fn func(b []byte) bool) error {
	return c.env.iterate(SubTokenChars, func(key, value string) bool {
		if utf8.RuneCountInString(value) == 1 && len(value) > 1 {
			return fn([]byte(value))
		}
		return true
	})
}

// Counts reports the number of cached words, characters and labels, for
// the health surface.
func (c *Cache) Counts() (words, chars, labels int) {
	words, _ = c.env.count(SubWords)
	chars, _ = c.env.count(SubChars)
	labels, _ = c.env.count(SubLabels)
	return
}
