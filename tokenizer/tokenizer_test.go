package tokenizer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Human-Cognome-Project/human-cognome-project-sub000/tokens"
	"github.com/Human-Cognome-Project/human-cognome-project-sub000/vocab"
)

type testDict struct {
	entries map[[2]string]string
}

func (d *testDict) FindToken(name, layer string) (string, bool, error) {
	id, ok := d.entries[[2]string{name, layer}]
	return id, ok, nil
}

type testMinter struct {
	serial    uint64
	bySurface map[string]string
}

func (m *testMinter) FindOrMintVariable(surface, category string) (string, error) {
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

// testVocab builds a cache over a dictionary seeded with the given words,
// affixes and the newline label.
func testVocab(t *testing.T, words []string, affixes []string) (*vocab.Cache, *testDict) {
	t.Helper()
	dict := &testDict{entries: make(map[[2]string]string)}
	serial := uint64(1)
	for _, w := range words {
		id, err := tokens.WordID(serial)
		require.NoError(t, err)
		serial++
		dict.entries[[2]string{w, "word"}] = id
	}
	dict.entries[[2]string{"newline", "label"}] = "AA.AE.AA.AA.AB"

	env, err := vocab.OpenEnv(filepath.Join(t.TempDir(), "vocab.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	resolver := vocab.NewResolver(env).
		Register(vocab.NewWordHandler(dict)).
		Register(vocab.NewCharHandler()).
		Register(vocab.NewLabelHandler(dict)).
		Register(vocab.NewVarHandler(&testMinter{}))
	cache := vocab.New(env, resolver)

	var raw []vocab.RawAffix
	for _, a := range affixes {
		id, err := tokens.WordID(serial)
		require.NoError(t, err)
		serial++
		dict.entries[[2]string{a, "affix"}] = id
		raw = append(raw, vocab.RawAffix{Form: a, TokenID: id})
	}
	cache.LoadAffixes(raw)
	return cache, dict
}

func wordID(t *testing.T, dict *testDict, name string) string {
	t.Helper()
	id, ok := dict.entries[[2]string{name, "word"}]
	if !ok {
		id, ok = dict.entries[[2]string{name, "affix"}]
	}
	require.True(t, ok, "dictionary is missing %q", name)
	return id
}

func TestSimpleSentence(t *testing.T) {
	cache, dict := testVocab(t, []string{"the", "quick", "brown", "fox"}, nil)
	st := New(cache).Tokenize("The quick brown fox.")

	want := []string{
		tokens.StreamStart,
		wordID(t, dict, "the"),
		wordID(t, dict, "quick"),
		wordID(t, dict, "brown"),
		wordID(t, dict, "fox"),
		tokens.CharID('.'),
		tokens.StreamEnd,
	}
	assert.Equal(t, want, st.IDs)
	assert.Equal(t, []int64{0, 1, 3, 5, 7, 8, 9}, st.Positions)
	assert.Equal(t, int64(10), st.TotalSlots)
	for ii := 1; ii < len(st.Positions); ii++ {
		assert.Greater(t, st.Positions[ii], st.Positions[ii-1])
	}
}

func TestDotValueOpacity(t *testing.T) {
	cache, dict := testVocab(t, []string{"visit", "today"}, nil)
	st := New(cache).Tokenize("Visit www.gutenberg.org today.")

	var varToks []string
	for _, id := range st.IDs {
		if tokens.IsVarRequest(id) {
			varToks = append(varToks, id)
		}
	}
	require.Len(t, varToks, 1, "exactly one variable request")
	surface, _ := tokens.VarRequestSurface(varToks[0])
	assert.Equal(t, "www.gutenberg.org", surface)
	assert.Contains(t, st.IDs, wordID(t, dict, "visit"))
	assert.Contains(t, st.IDs, tokens.CharID('.'))
}

func TestAffixDecomposition(t *testing.T) {
	cache, dict := testVocab(t, []string{"walk"}, []string{"-ing"})
	st := New(cache).Tokenize("walking")

	want := []string{
		tokens.StreamStart,
		wordID(t, dict, "walk"),
		wordID(t, dict, "-ing"),
		tokens.StreamEnd,
	}
	assert.Equal(t, want, st.IDs)
	// Stem and suffix are slot-adjacent: no space on reconstruction.
	assert.Equal(t, []int64{0, 1, 2, 3}, st.Positions)
}

func TestPrefixDecomposition(t *testing.T) {
	cache, dict := testVocab(t, []string{"done"}, []string{"un-"})
	st := New(cache).Tokenize("undone")
	want := []string{
		tokens.StreamStart,
		wordID(t, dict, "un-"),
		wordID(t, dict, "done"),
		tokens.StreamEnd,
	}
	assert.Equal(t, want, st.IDs)
}

func TestDashSplit(t *testing.T) {
	cache, dict := testVocab(t, []string{"state", "of", "the", "art"}, nil)
	st := New(cache).Tokenize("state-of-the-art")

	dash := tokens.CharID('-')
	want := []string{
		tokens.StreamStart,
		wordID(t, dict, "state"), dash,
		wordID(t, dict, "of"), dash,
		wordID(t, dict, "the"), dash,
		wordID(t, dict, "art"),
		tokens.StreamEnd,
	}
	assert.Equal(t, want, st.IDs)
}

func TestDashSplitUnresolvedSide(t *testing.T) {
	cache, dict := testVocab(t, []string{"self"}, nil)
	st := New(cache).Tokenize("self-zorgle")

	require.Len(t, st.IDs, 5)
	assert.Equal(t, wordID(t, dict, "self"), st.IDs[1])
	assert.Equal(t, tokens.CharID('-'), st.IDs[2])
	surface, ok := tokens.VarRequestSurface(st.IDs[3])
	require.True(t, ok)
	assert.Equal(t, "zorgle", surface)
}

func TestGreedyWalk(t *testing.T) {
	cache, dict := testVocab(t, []string{"sun", "flower"}, nil)
	// Warm the cache: the greedy walk probes locally only.
	cache.LookupWord("sun")
	cache.LookupWord("flower")

	st := New(cache).Tokenize("sunflower")
	want := []string{
		tokens.StreamStart,
		wordID(t, dict, "sun"),
		wordID(t, dict, "flower"),
		tokens.StreamEnd,
	}
	assert.Equal(t, want, st.IDs)
}

func TestVariableMintingAndDocCache(t *testing.T) {
	cache, _ := testVocab(t, []string{"met"}, nil)
	st := New(cache).Tokenize("Zaphod met Zaphod met Zaphod")

	var varToks []string
	for _, id := range st.IDs {
		if tokens.IsVarRequest(id) {
			varToks = append(varToks, id)
		}
	}
	require.Len(t, varToks, 3)
	assert.Equal(t, varToks[0], varToks[1])
	assert.Equal(t, varToks[1], varToks[2], "per-document cache reuses the same request")
}

func TestCapitalizationSuppression(t *testing.T) {
	cache, dict := testVocab(t, []string{"this", "he", "left"}, nil)
	st := New(cache).Tokenize("This. He left.")

	// Both capitals are positional: the lowercase ids are stored.
	assert.Equal(t, wordID(t, dict, "this"), st.IDs[1])
	assert.Equal(t, tokens.CharID('.'), st.IDs[2])
	assert.Equal(t, wordID(t, dict, "he"), st.IDs[3])
	assert.Equal(t, wordID(t, dict, "left"), st.IDs[4])
}

func TestIntrinsicCapsPreserved(t *testing.T) {
	cache, _ := testVocab(t, []string{"nasa", "says"}, nil)
	st := New(cache).Tokenize("says NASA")

	// "NASA" must not fold onto the lowercase entry mid-sentence; the
	// surface survives as a variable request.
	surface, ok := tokens.VarRequestSurface(st.IDs[2])
	require.True(t, ok)
	assert.Equal(t, "NASA", surface)
}

func TestNewlineAndCR(t *testing.T) {
	cache, dict := testVocab(t, []string{"one", "two"}, nil)
	st := New(cache).Tokenize("one\r\ntwo")

	want := []string{
		tokens.StreamStart,
		wordID(t, dict, "one"),
		"AA.AE.AA.AA.AB", // newline label
		wordID(t, dict, "two"),
		tokens.StreamEnd,
	}
	assert.Equal(t, want, st.IDs)
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, st.Positions)
}

func TestMultipleSpacesWidenGap(t *testing.T) {
	cache, dict := testVocab(t, []string{"a", "b"}, nil)
	st := New(cache).Tokenize("a   b")
	require.Equal(t, []string{
		tokens.StreamStart, wordID(t, dict, "a"), wordID(t, dict, "b"), tokens.StreamEnd,
	}, st.IDs)
	assert.Equal(t, []int64{0, 1, 5, 6}, st.Positions)
	assert.Equal(t, int64(3), st.Positions[2]-st.Positions[1]-1, "three spaces in the gap")
}

func TestForwardWalkContinuation(t *testing.T) {
	cache, dict := testVocab(t, []string{"new", "york", "city"}, nil)
	seqID, err := tokens.WordID(900)
	require.NoError(t, err)
	require.NoError(t, cache.PutForward("new york", "1"))
	require.NoError(t, cache.PutForward("new york city", seqID))

	st := New(cache).Tokenize("in new york city now")
	assert.Contains(t, st.IDs, seqID)
	assert.NotContains(t, st.IDs, wordID(t, dict, "york"), "walked chunks are consumed")
}

func TestForwardWalkBacksOut(t *testing.T) {
	cache, dict := testVocab(t, []string{"new", "shoes"}, nil)
	require.NoError(t, cache.PutForward("new york", "1"))

	st := New(cache).Tokenize("new shoes")
	assert.Contains(t, st.IDs, wordID(t, dict, "new"))
	assert.Contains(t, st.IDs, wordID(t, dict, "shoes"))
}

func TestEdgePunctuation(t *testing.T) {
	cache, dict := testVocab(t, []string{"hello"}, nil)
	st := New(cache).Tokenize(`(hello!)`)
	want := []string{
		tokens.StreamStart,
		tokens.CharID('('),
		wordID(t, dict, "hello"),
		tokens.CharID('!'),
		tokens.CharID(')'),
		tokens.StreamEnd,
	}
	assert.Equal(t, want, st.IDs)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, `"ok" it's`, Normalize("“ok” it’s"))
	assert.Equal(t, "x", Normalize("\uFEFFx™"))
	assert.Equal(t, "a—b", Normalize("a—b"), "em-dash is structural")
}

func TestNoInputErrors(t *testing.T) {
	cache, _ := testVocab(t, nil, nil)
	for _, text := range []string{"", " ", "\n", "\x80\xff garbled", "...", "\t\t"} {
		st := New(cache).Tokenize(text)
		require.GreaterOrEqual(t, len(st.IDs), 2, "markers always present for %q", text)
		assert.Equal(t, tokens.StreamStart, st.IDs[0])
		assert.Equal(t, tokens.StreamEnd, st.IDs[len(st.IDs)-1])
	}
}
