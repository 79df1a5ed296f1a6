package engine

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Human-Cognome-Project/human-cognome-project-sub000/storage"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(storage.Sqlite, filepath.Join(dir, "pbm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	e, err := New(store, Config{VocabPath: filepath.Join(dir, "vocab.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func seed(t *testing.T, e *Engine, list string) SeedStats {
	t.Helper()
	stats, err := e.SeedVocabulary(strings.NewReader(list), false)
	require.NoError(t, err)
	return stats
}

func TestIngestRoundTrip(t *testing.T) {
	e := testEngine(t)
	seed(t, e, "the\nquick\nbrown\nfox\n")

	text := "The quick brown fox."
	res, err := e.ProcessText(text, "fox", "AB", nil)
	require.NoError(t, err)
	docID := res.DocID
	assert.True(t, strings.HasPrefix(docID, "vA.AB.AB."), "doc id %s", docID)
	assert.Equal(t, 7, res.Tokens)
	assert.Equal(t, 6, res.Bonds)

	out, err := e.Reassemble(docID)
	require.NoError(t, err)
	assert.Equal(t, text, out)
}

func TestVariableRoundTrip(t *testing.T) {
	e := testEngine(t)
	seed(t, e, "met\nthe\nfox\n")

	text := "Zaphod met the fox. Zaphod left."
	res, err := e.ProcessText(text, "zaphod", "AB", nil)
	require.NoError(t, err)
	docID := res.DocID

	out, err := e.Reassemble(docID)
	require.NoError(t, err)
	assert.Equal(t, text, out)

	info, err := e.Info(docID)
	require.NoError(t, err)
	// "Zaphod" and "left" both minted; "Zaphod" twice under one id.
	require.Len(t, info.Variables, 2)
	for _, v := range info.Variables {
		if v.Surface == "Zaphod" {
			assert.Equal(t, int64(2), v.Count)
		}
	}
}

func TestTrailingWhitespaceRoundTrip(t *testing.T) {
	e := testEngine(t)
	seed(t, e, "the\nfox\n")

	text := "The fox.  "
	res, err := e.ProcessText(text, "trail", "AB", nil)
	require.NoError(t, err)

	out, err := e.Reassemble(res.DocID)
	require.NoError(t, err)
	assert.Equal(t, text, out)
}

func TestVariableAcrossDocuments(t *testing.T) {
	e := testEngine(t)
	seed(t, e, "met\nthe\nfox\nhere\n")

	res1, err := e.ProcessText("Zaphod met the fox.", "first", "AB", nil)
	require.NoError(t, err)
	require.Equal(t, 1, res1.Variables)

	// Mid-sentence, the surface resolves straight from the cache to the
	// minted id; the second document must still get its own occurrence
	// rows.
	res2, err := e.ProcessText("The fox met Zaphod.", "second", "AB", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res2.Variables)

	info, err := e.Info(res2.DocID)
	require.NoError(t, err)
	require.Len(t, info.Variables, 1)
	assert.Equal(t, "Zaphod", info.Variables[0].Surface)
	assert.Equal(t, int64(1), info.Variables[0].Count)

	first, err := e.Info(res1.DocID)
	require.NoError(t, err)
	require.Len(t, first.Variables, 1)
	assert.Equal(t, info.Variables[0].VarID, first.Variables[0].VarID,
		"both documents reference the one minted id")

	out, err := e.Reassemble(res2.DocID)
	require.NoError(t, err)
	assert.Equal(t, "The fox met Zaphod.", out)
}

func TestDotValueRoundTrip(t *testing.T) {
	e := testEngine(t)
	seed(t, e, "visit\ntoday\n")

	text := "Visit www.gutenberg.org today."
	res, err := e.ProcessText(text, "gutenberg", "AB", nil)
	require.NoError(t, err)
	docID := res.DocID
	out, err := e.Reassemble(docID)
	require.NoError(t, err)
	assert.Equal(t, text, out)
}

func TestAffixRoundTrip(t *testing.T) {
	e := testEngine(t)
	stats := seed(t, e, "walk\nhere\n-ing\n")
	assert.Equal(t, 2, stats.Words)
	assert.Equal(t, 1, stats.Affixes)

	text := "Walking here."
	res, err := e.ProcessText(text, "walking", "AB", nil)
	require.NoError(t, err)
	docID := res.DocID
	out, err := e.Reassemble(docID)
	require.NoError(t, err)
	assert.Equal(t, text, out)
}

func TestSequenceRoundTrip(t *testing.T) {
	e := testEngine(t)
	stats := seed(t, e, "visited\nyesterday\nnew york city\n")
	assert.Equal(t, 1, stats.Sequences)

	text := "We visited new york city yesterday."
	res, err := e.ProcessText(text, "nyc", "AB", nil)
	require.NoError(t, err)
	docID := res.DocID
	out, err := e.Reassemble(docID)
	require.NoError(t, err)
	assert.Equal(t, text, out)
}

func TestNewlineRoundTrip(t *testing.T) {
	e := testEngine(t)
	seed(t, e, "one\ntwo\nlabel:newline\n")

	text := "One two.\nTwo one."
	res, err := e.ProcessText(text, "lines", "AB", nil)
	require.NoError(t, err)
	docID := res.DocID
	out, err := e.Reassemble(docID)
	require.NoError(t, err)
	assert.Equal(t, text, out)
}

func TestMetadataRouting(t *testing.T) {
	e := testEngine(t)
	seed(t, e, "the\n")

	res, err := e.ProcessText("The the.", "meta", "AB", map[string]any{
		"title":   "Test Title",
		"authors": []string{"Someone"},
		"custom":  "kept",
	})
	require.NoError(t, err)
	docID := res.DocID

	info, err := e.Info(docID)
	require.NoError(t, err)
	require.NotNil(t, info.Provenance)
	assert.Equal(t, "Test Title", info.Provenance.Title)
	assert.Contains(t, string(info.Document.Metadata), "unreviewed")
	assert.Contains(t, string(info.Document.Metadata), "kept")

	set, removed, err := e.UpdateMetadata(docID, map[string]any{"note": "x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, set)
	assert.Zero(t, removed)
}

func TestPhysResolve(t *testing.T) {
	e := testEngine(t)
	seed(t, e, "the\nquick\nbrown\nfox\n")

	results, err := e.PhysResolve("The quick dragon.")
	require.NoError(t, err)
	require.Len(t, results, 3)

	byText := make(map[string]bool)
	for _, r := range results {
		byText[strings.ToLower(r.Run.Text)] = r.Resolved
	}
	assert.True(t, byText["the"])
	assert.True(t, byText["quick"])
	assert.False(t, byText["dragon"], "not in the vocabulary")
}

func TestPhysResolveWithoutVocabulary(t *testing.T) {
	e := testEngine(t)
	_, err := e.PhysResolve("anything")
	assert.Error(t, err)
}

func TestCheckHealth(t *testing.T) {
	e := testEngine(t)
	seed(t, e, "the\nquick\n")
	_, err := e.ProcessText("The quick.", "h", "AB", nil)
	require.NoError(t, err)

	h, err := e.CheckHealth()
	require.NoError(t, err)
	assert.Equal(t, int64(2), h.DictWords)
	assert.Equal(t, 1, h.Documents)
	assert.Greater(t, h.CachedWords, 0)
}

func TestListDocuments(t *testing.T) {
	e := testEngine(t)
	seed(t, e, "the\n")
	_, err := e.ProcessText("The the.", "a", "AB", nil)
	require.NoError(t, err)
	_, err = e.ProcessText("The.", "b", "AB", nil)
	require.NoError(t, err)

	docs, err := e.ListDocuments()
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].Name)
	assert.NotEqual(t, docs[0].DocID, docs[1].DocID)
}
