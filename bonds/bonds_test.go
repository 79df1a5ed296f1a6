package bonds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAccumulates(t *testing.T) {
	tbl := New(LevelCharWord)
	tbl.Add("t", "h", 1)
	tbl.Add("t", "h", 1)
	tbl.Add("h", "e", 3)
	assert.Equal(t, int64(2), tbl.Count("t", "h"))
	assert.Equal(t, int64(3), tbl.Count("h", "e"))
	assert.Equal(t, int64(0), tbl.Count("e", "h"), "bonds are directional")
	assert.Equal(t, int64(5), tbl.Total())
	assert.Equal(t, int64(3), tbl.Max())
	assert.Equal(t, 2, tbl.Len())
}

func TestAddWord(t *testing.T) {
	tbl := New(LevelCharWord)
	tbl.AddWord("the")
	tbl.AddWord("then")
	assert.Equal(t, int64(2), tbl.Count("t", "h"))
	assert.Equal(t, int64(2), tbl.Count("h", "e"))
	assert.Equal(t, int64(1), tbl.Count("e", "n"))

	// Short words contribute nothing.
	before := tbl.Total()
	tbl.AddWord("a")
	tbl.AddWord("")
	assert.Equal(t, before, tbl.Total())
}

func TestAddWordUTF8(t *testing.T) {
	tbl := New(LevelCharWord)
	tbl.AddWord("café")
	assert.Equal(t, int64(1), tbl.Count("f", "é"))

	// Malformed sequences degrade to single bytes.
	tbl2 := New(LevelCharWord)
	tbl2.AddWord("a\xffb")
	assert.Equal(t, int64(1), tbl2.Count("a", "\xff"))
	assert.Equal(t, int64(1), tbl2.Count("\xff", "b"))
}

func TestAddCharBytes(t *testing.T) {
	tbl := New(LevelByteChar)
	tbl.AddCharBytes([]byte{0xE2, 0x80, 0x94}) // em-dash
	assert.Equal(t, int64(1), tbl.Count("E2", "80"))
	assert.Equal(t, int64(1), tbl.Count("80", "94"))

	tbl.AddCharBytes([]byte{0x61}) // ASCII contributes nothing
	assert.Equal(t, 2, tbl.Len())
}

func TestAddStream(t *testing.T) {
	tbl := New(LevelWordWord)
	tbl.AddStream([]string{"x", "y", "x", "y"})
	assert.Equal(t, int64(2), tbl.Count("x", "y"))
	assert.Equal(t, int64(1), tbl.Count("y", "x"))
}

func TestSortedPairsDeterministic(t *testing.T) {
	tbl := New(LevelCharWord)
	tbl.Add("b", "a", 1)
	tbl.Add("a", "b", 1)
	tbl.Add("a", "a", 1)
	pairs := tbl.SortedPairs()
	require.Equal(t, []Pair{{"a", "a"}, {"a", "b"}, {"b", "a"}}, pairs)
}

func TestEqual(t *testing.T) {
	a, b := New(LevelCharWord), New(LevelCharWord)
	a.AddWord("walk")
	b.AddWord("walk")
	assert.True(t, a.Equal(b))
	b.Add("w", "a", 1)
	assert.False(t, a.Equal(b))
}

func TestCompileCharWord(t *testing.T) {
	words := []string{"the", "quick", "thin"}
	tbl, err := CompileCharWord(func(fn func(string) bool) error {
		for _, w := range words {
			if !fn(w) {
				break
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), tbl.Count("t", "h"))
	assert.Equal(t, LevelCharWord, tbl.Level())
}
