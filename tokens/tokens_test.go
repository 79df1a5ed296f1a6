package tokens

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlphabet(t *testing.T) {
	require.Len(t, Alphabet, 50)
	assert.NotContains(t, Alphabet, "O")
	assert.NotContains(t, Alphabet, "o")
	seen := make(map[byte]bool)
	for ii := 0; ii < len(Alphabet); ii++ {
		assert.Falsef(t, seen[Alphabet[ii]], "glyph %c repeated", Alphabet[ii])
		seen[Alphabet[ii]] = true
	}
}

func TestPairRoundTrip(t *testing.T) {
	for v := 0; v < PairRange; v++ {
		pair, err := EncodePair(v)
		require.NoError(t, err)
		require.Len(t, pair, 2)
		got, err := DecodePair(pair)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestEncodePairRange(t *testing.T) {
	_, err := EncodePair(-1)
	assert.True(t, errors.Is(err, ErrEncodeRange))
	_, err = EncodePair(PairRange)
	assert.True(t, errors.Is(err, ErrEncodeRange))
}

func TestDecodePairRejectsForeignGlyphs(t *testing.T) {
	for _, pair := range []string{"", "A", "AAA", "O!", "Oo", "0A"} {
		_, err := DecodePair(pair)
		assert.Truef(t, errors.Is(err, ErrMalformedID), "pair %q", pair)
	}
}

func TestSplitID(t *testing.T) {
	parts, err := SplitID("AA.AE.AF.AA.AC")
	require.NoError(t, err)
	assert.Equal(t, [5]string{"AA", "AE", "AF", "AA", "AC"}, parts)

	for _, bad := range []string{"", "AA", "AA.AE.AF.AA", "AA.AE.AF.AA.AC.AA", "AA.AE.AF.AA.O!", "AAAE.AF.AA.AC"} {
		_, err := SplitID(bad)
		assert.Truef(t, errors.Is(err, ErrMalformedID), "id %q", bad)
	}
}

func TestCharIDRoundTrip(t *testing.T) {
	for _, cp := range []rune{0, 'a', 'Z', '-', 0x7F, 0xE9, 0x2014, 0xFFFD, 0x10FFFF} {
		id := CharID(cp)
		require.True(t, strings.HasPrefix(id, CharPrefix+"."))
		got, err := DecodeCharID(id)
		require.NoError(t, err)
		require.Equal(t, cp, got)
	}
}

func TestDecodeCharIDRejectsOtherNamespaces(t *testing.T) {
	_, err := DecodeCharID(StreamStart)
	assert.True(t, errors.Is(err, ErrMalformedID))
}

func TestReservedIDsAreValid(t *testing.T) {
	for _, id := range []string{StreamStart, StreamEnd, VarSentinel} {
		assert.True(t, IsValidID(id))
		assert.True(t, IsMarkerID(id))
		assert.False(t, IsWordID(id))
	}
}

func TestWordAndVarNamespaces(t *testing.T) {
	w, err := WordID(0)
	require.NoError(t, err)
	assert.Equal(t, "AB.AB.AA.AA.AA", w)
	assert.True(t, IsWordID(w))
	assert.False(t, IsVarID(w))

	v, err := VarID(0)
	require.NoError(t, err)
	assert.Equal(t, "AB.AB.zz.AA.AA", v)
	assert.True(t, IsWordID(v))
	assert.True(t, IsVarID(v))

	// A word serial can never land in the variable block.
	_, err = WordID((PairRange - 1) * PairRange * PairRange)
	assert.True(t, errors.Is(err, ErrEncodeRange))
	_, err = VarID(PairRange * PairRange)
	assert.True(t, errors.Is(err, ErrEncodeRange))
}

func TestWordIDDistinct(t *testing.T) {
	seen := make(map[string]bool)
	for ii := uint64(0); ii < 3000; ii++ {
		id, err := WordID(ii)
		require.NoError(t, err)
		require.False(t, seen[id])
		require.True(t, IsValidID(id))
		seen[id] = true
	}
}

func TestVarRequest(t *testing.T) {
	tok := VarRequest("www.gutenberg.org")
	assert.True(t, IsVarRequest(tok))
	surface, ok := VarRequestSurface(tok)
	require.True(t, ok)
	assert.Equal(t, "www.gutenberg.org", surface)

	_, ok = VarRequestSurface("AB.AB.AA.AA.AA")
	assert.False(t, ok)
}
