package vocab

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Human-Cognome-Project/human-cognome-project-sub000/tokens"
)

// fakeDict is an in-memory Dictionary keyed by (name, layer).
type fakeDict struct {
	entries map[[2]string]string
	fail    bool
}

func (d *fakeDict) FindToken(name, layer string) (string, bool, error) {
	if d.fail {
		return "", false, errors.New("dictionary unavailable")
	}
	id, ok := d.entries[[2]string{name, layer}]
	return id, ok, nil
}

type fakeMinter struct {
	serial uint64
	bySurface map[string]string
}

func (m *fakeMinter) FindOrMintVariable(surface, category string) (string, error) {
	if m.bySurface == nil {
		m.bySurface = make(map[string]string)
	}
	if id, ok := m.bySurface[surface]; ok {
		return id, nil
	}
	id, err := tokens.VarID(m.serial)
	if err != nil {
		return "", err
	}
	m.serial++
	m.bySurface[surface] = id
	return id, nil
}

func testEnv(t *testing.T) *Env {
	t.Helper()
	env, err := OpenEnv(filepath.Join(t.TempDir(), "vocab.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func testCache(t *testing.T, dict *fakeDict) (*Cache, *fakeMinter) {
	t.Helper()
	env := testEnv(t)
	minter := &fakeMinter{}
	resolver := NewResolver(env).
		Register(NewWordHandler(dict)).
		Register(NewCharHandler()).
		Register(NewLabelHandler(dict)).
		Register(NewVarHandler(minter))
	return New(env, resolver), minter
}

func TestWordLookupReadThrough(t *testing.T) {
	dict := &fakeDict{entries: map[[2]string]string{
		{"walk", "word"}: "AB.AB.AA.AA.AB",
	}}
	cache, _ := testCache(t, dict)

	id, ok := cache.LookupWord("walk")
	require.True(t, ok)
	assert.Equal(t, "AB.AB.AA.AA.AB", id)

	// Both sides of the resolution are observable.
	surface, ok := cache.TokenToWord(id)
	require.True(t, ok)
	assert.Equal(t, "walk", surface)

	// Second lookup is a pure cache hit even with a failing dictionary.
	dict.fail = true
	id2, ok := cache.LookupWord("walk")
	require.True(t, ok)
	assert.Equal(t, id, id2)
}

func TestWordLookupExactCase(t *testing.T) {
	dict := &fakeDict{entries: map[[2]string]string{
		{"the", "word"}: "AB.AB.AA.AA.AC",
	}}
	cache, _ := testCache(t, dict)

	// Lookups are exact-case: the tokenizer decides when a capital is
	// positional and folds before asking.
	_, ok := cache.LookupWord("The")
	assert.False(t, ok)

	id, ok := cache.LookupWord("the")
	require.True(t, ok)
	assert.Equal(t, "AB.AB.AA.AA.AC", id)

	// A capitalized surface left no cache entry behind.
	_, ok = cache.LookupWordLocal("The")
	assert.False(t, ok)

	surface, _ := cache.TokenToWord(id)
	assert.Equal(t, "the", surface)
}

func TestLookupWordLocalSkipsResolver(t *testing.T) {
	dict := &fakeDict{entries: map[[2]string]string{
		{"walk", "word"}: "AB.AB.AA.AA.AB",
	}}
	cache, _ := testCache(t, dict)

	_, ok := cache.LookupWordLocal("walk")
	assert.False(t, ok, "local lookup must not consult the dictionary")
	_, ok = cache.LookupWord("walk")
	assert.True(t, ok)
}

func TestFailedResolutionLeavesNoPartialWrites(t *testing.T) {
	dict := &fakeDict{fail: true}
	cache, _ := testCache(t, dict)

	_, ok := cache.LookupWord("ghost")
	require.False(t, ok)

	_, ok = cache.LookupWordLocal("ghost")
	assert.False(t, ok, "no forward write after failed resolution")
	found := false
	require.NoError(t, cache.IterateWords(func(word, id string) bool {
		found = true
		return false
	}))
	assert.False(t, found, "no reverse write after failed resolution")
}

func TestCharLookupMintsDirectly(t *testing.T) {
	cache, _ := testCache(t, &fakeDict{})

	id, ok := cache.LookupChar('-')
	require.True(t, ok)
	assert.Equal(t, tokens.CharID('-'), id)

	back, ok := cache.TokenToChar(id)
	require.True(t, ok)
	assert.Equal(t, "-", back)

	// Multi-byte codepoints work the same way.
	id, ok = cache.LookupChar('—')
	require.True(t, ok)
	assert.Equal(t, tokens.CharID('—'), id)
}

func TestLabelFallsBackToMarkerLayer(t *testing.T) {
	dict := &fakeDict{entries: map[[2]string]string{
		{"newline", "label"}:         "AA.AE.AA.AA.AB",
		{"document_start", "marker"}: "AA.AE.AA.AA.AC",
	}}
	cache, _ := testCache(t, dict)

	id, ok := cache.LookupLabel("newline")
	require.True(t, ok)
	assert.Equal(t, "AA.AE.AA.AA.AB", id)

	id, ok = cache.LookupLabel("document_start")
	require.True(t, ok)
	assert.Equal(t, "AA.AE.AA.AA.AC", id)

	_, ok = cache.LookupLabel("no_such_label")
	assert.False(t, ok)
}

func TestVarRequestReroutesFromAnySub(t *testing.T) {
	cache, minter := testCache(t, &fakeDict{})

	req := tokens.VarRequest("Zaphod")
	id, ok := cache.LookupWord(req)
	require.True(t, ok)
	assert.True(t, tokens.IsVarID(id))

	// Same surface resolves to the same variable, from any entry point.
	id2, ok := cache.LookupLabel(req)
	require.True(t, ok)
	assert.Equal(t, id, id2)
	assert.Len(t, minter.bySurface, 1)

	// The surface itself is now a word-slot hit.
	id3, ok := cache.LookupWordLocal("Zaphod")
	require.True(t, ok)
	assert.Equal(t, id, id3)
	surface, _ := cache.TokenToWord(id)
	assert.Equal(t, "Zaphod", surface)
}

func TestCheckContinuation(t *testing.T) {
	cache, _ := testCache(t, &fakeDict{})
	require.NoError(t, cache.PutForward("new york", "1"))
	require.NoError(t, cache.PutForward("new york city", "AB.AB.AA.AB.AA"))
	require.NoError(t, cache.PutForward("dead end", "0"))

	state, id := cache.CheckContinuation("new", "york")
	assert.Equal(t, ContinuationContinue, state)
	assert.Empty(t, id)

	state, id = cache.CheckContinuation("new york", "city")
	assert.Equal(t, ContinuationComplete, state)
	assert.Equal(t, "AB.AB.AA.AB.AA", id)

	state, _ = cache.CheckContinuation("dead", "end")
	assert.Equal(t, ContinuationMiss, state, `"0" encodes a miss`)

	state, _ = cache.CheckContinuation("no", "entry")
	assert.Equal(t, ContinuationMiss, state)
}

func TestIterateWordsEarlyStop(t *testing.T) {
	dict := &fakeDict{entries: map[[2]string]string{
		{"alpha", "word"}: "AB.AB.AA.AA.AB",
		{"beta", "word"}:  "AB.AB.AA.AA.AC",
	}}
	cache, _ := testCache(t, dict)
	cache.LookupWord("alpha")
	cache.LookupWord("beta")

	count := 0
	require.NoError(t, cache.IterateWords(func(word, id string) bool {
		count++
		return false
	}))
	assert.Equal(t, 1, count)
}

func TestCounts(t *testing.T) {
	dict := &fakeDict{entries: map[[2]string]string{
		{"walk", "word"}:     "AB.AB.AA.AA.AB",
		{"newline", "label"}: "AA.AE.AA.AA.AB",
	}}
	cache, _ := testCache(t, dict)
	cache.LookupWord("walk")
	cache.LookupChar('x')
	cache.LookupLabel("newline")

	words, chars, labels := cache.Counts()
	assert.Equal(t, 1, words)
	assert.Equal(t, 1, chars)
	assert.Equal(t, 1, labels)
}

func TestAffixIndex(t *testing.T) {
	idx := NewAffixIndex()
	idx.Load([]RawAffix{
		{Form: "-ing", TokenID: "a1"},
		{Form: "-ling", TokenID: "a2"},
		{Form: "-s", TokenID: "a3"},
		{Form: "un-", TokenID: "a4"},
		{Form: "under-", TokenID: "a5"},
		{Form: "-both-", TokenID: "skip"},
		{Form: "plain", TokenID: "skip"},
	})
	assert.Equal(t, 5, idx.Len())

	// Longest stripped form first within a bucket.
	g := idx.SuffixesFor('g')
	require.Len(t, g, 2)
	assert.Equal(t, "ling", g[0].Stripped)
	assert.Equal(t, "ing", g[1].Stripped)

	// Suffix match needs a non-empty residual stem.
	matches := idx.MatchSuffix("walking")
	require.NotEmpty(t, matches)
	assert.Equal(t, "ling", matches[0].Stripped, "longest candidate first")
	assert.Empty(t, idx.MatchSuffix("ing"), "|core| must exceed |stripped|")

	matches = idx.MatchPrefix("undergo")
	require.Len(t, matches, 2)
	assert.Equal(t, "under", matches[0].Stripped)
	assert.Equal(t, "un", matches[1].Stripped)
	assert.Empty(t, idx.MatchPrefix("un"))
}
