// Package tokens implements the base-50 token-id address codec and the
// process-wide id constants: the glyph alphabet, the reserved marker ids and
// the namespace prefixes every other package routes on.
//
// A token id is a dotted address of five base-50 pairs, `p1.p2.p3.p4.p5`.
// Each pair encodes a value in 0..2499 as two glyphs from a 50-glyph
// alphabet ('O' and 'o' are omitted to avoid digit confusion).
package tokens

import (
	"strings"

	"github.com/pkg/errors"
)

// Alphabet is the exact 50-glyph set used by every pair of a token address.
// Index in this string is the glyph's numeric value.
const Alphabet = "ABCDEFGHIJKLMNPQRSTUVWXYZabcdefghijklmnpqrstuvwxyz"

const (
	// Base is the radix of a single glyph.
	Base = 50

	// PairRange is the number of distinct values a 2-glyph pair encodes.
	PairRange = Base * Base // 2500

	// NumPairs is the number of dotted pairs in a full token address.
	NumPairs = 5
)

// Reserved marker ids. These are fixed addresses known to every component.
const (
	// StreamStart marks the beginning of a token stream.
	StreamStart = "AA.AE.AF.AA.AA"

	// StreamEnd marks the end of a token stream.
	StreamEnd = "AA.AE.AF.AA.AB"

	// VarSentinel prefixes an inline variable-request token. The literal
	// surface form follows after a single space.
	VarSentinel = "AA.AE.AF.AA.AC"
)

// Namespace prefixes. Bond routing and reverse-lookup dispatch key on these.
const (
	// WordPrefix is the leading two pairs of every word, affix and
	// variable token id.
	WordPrefix = "AB.AB"

	// MarkerPrefix is the leading two pairs of structural labels and the
	// reserved marker ids.
	MarkerPrefix = "AA.AE"

	// CharPrefix is the leading three pairs of every character token id;
	// the remaining two pairs encode the Unicode codepoint.
	CharPrefix = "AA.AA.AA"

	// LabelPrefix is the leading three pairs of structural label ids
	// (newline, tab, document_start, ...).
	LabelPrefix = "AA.AE.AA"

	// varBlock is the p3 pair reserved for variable tokens inside the
	// word namespace, so dictionary serials and variable serials can
	// never produce the same address.
	varBlock = "zz"
)

var (
	// ErrEncodeRange is returned when a pair value is outside 0..2499 or a
	// serial exceeds its namespace capacity.
	ErrEncodeRange = errors.New("token pair value out of range")

	// ErrMalformedID is returned when an address does not parse as five
	// dotted base-50 pairs.
	ErrMalformedID = errors.New("malformed token id")
)

// glyphValues maps a glyph byte to its numeric value, or -1.
var glyphValues [256]int8

func init() {
	for ii := range glyphValues {
		glyphValues[ii] = -1
	}
	for ii := 0; ii < len(Alphabet); ii++ {
		glyphValues[Alphabet[ii]] = int8(ii)
	}
}

// EncodePair encodes v in 0..2499 as a 2-glyph string.
func EncodePair(v int) (string, error) {
	if v < 0 || v >= PairRange {
		return "", errors.WithMessagef(ErrEncodeRange, "value %d", v)
	}
	return string([]byte{Alphabet[v/Base], Alphabet[v%Base]}), nil
}

// MustEncodePair is like EncodePair but panics on a range violation. It is
// meant for values already bounded by construction (modulo PairRange).
func MustEncodePair(v int) string {
	s, err := EncodePair(v)
	if err != nil {
		panic(err)
	}
	return s
}

// DecodePair decodes a 2-glyph pair back to its value in 0..2499.
func DecodePair(pair string) (int, error) {
	if len(pair) != 2 {
		return 0, errors.WithMessagef(ErrMalformedID, "pair %q", pair)
	}
	hi, lo := glyphValues[pair[0]], glyphValues[pair[1]]
	if hi < 0 || lo < 0 {
		return 0, errors.WithMessagef(ErrMalformedID, "pair %q has glyphs outside the alphabet", pair)
	}
	return int(hi)*Base + int(lo), nil
}

// SplitID splits a dotted address into its five pairs, validating every glyph.
func SplitID(id string) ([NumPairs]string, error) {
	var parts [NumPairs]string
	split := strings.Split(id, ".")
	if len(split) != NumPairs {
		return parts, errors.WithMessagef(ErrMalformedID, "id %q has %d segments, want %d", id, len(split), NumPairs)
	}
	for ii, pair := range split {
		if _, err := DecodePair(pair); err != nil {
			return parts, errors.WithMessagef(ErrMalformedID, "id %q segment %d", id, ii+1)
		}
		parts[ii] = pair
	}
	return parts, nil
}

// IsValidID reports whether id parses as a well-formed five-pair address.
func IsValidID(id string) bool {
	_, err := SplitID(id)
	return err == nil
}

// CharID returns the character-token address for a Unicode codepoint:
// `AA.AA.AA.<cp/2500>.<cp%2500>`. All codepoints up to 0x10FFFF fit.
func CharID(cp rune) string {
	v := int(cp)
	if v < 0 {
		v = 0
	}
	return CharPrefix + "." + MustEncodePair(v/PairRange%PairRange) + "." + MustEncodePair(v%PairRange)
}

// DecodeCharID recovers the codepoint from a character-token address.
// Returns ErrMalformedID if id is not in the character namespace.
func DecodeCharID(id string) (rune, error) {
	parts, err := SplitID(id)
	if err != nil {
		return 0, err
	}
	if parts[0]+"."+parts[1]+"."+parts[2] != CharPrefix {
		return 0, errors.WithMessagef(ErrMalformedID, "id %q is not a character token", id)
	}
	hi, err := DecodePair(parts[3])
	if err != nil {
		return 0, err
	}
	lo, err := DecodePair(parts[4])
	if err != nil {
		return 0, err
	}
	return rune(hi*PairRange + lo), nil
}

// IsCharID reports whether id lives in the character namespace.
func IsCharID(id string) bool {
	return strings.HasPrefix(id, CharPrefix+".")
}

// IsWordID reports whether id lives in the word namespace (words, affixes
// and variable tokens). Bond rows for these route to the word sub-table.
func IsWordID(id string) bool {
	return strings.HasPrefix(id, WordPrefix+".")
}

// IsMarkerID reports whether id lives in the marker namespace (structural
// labels and reserved markers). Bond rows for these route to the marker
// sub-table.
func IsMarkerID(id string) bool {
	return strings.HasPrefix(id, MarkerPrefix+".")
}

// IsVarID reports whether id is a minted variable token.
func IsVarID(id string) bool {
	return strings.HasPrefix(id, WordPrefix+"."+varBlock+".")
}

// WordID builds the address for the dictionary serial n, zero-based.
// Serials occupy three pairs, minus the reserved variable block, so the
// namespace holds (2500-1)*2500*2500 entries before exhausting.
func WordID(n uint64) (string, error) {
	p3 := n / (PairRange * PairRange)
	if p3 >= PairRange-1 { // top p3 block belongs to variables
		return "", errors.WithMessagef(ErrEncodeRange, "word serial %d exhausts the namespace", n)
	}
	rest := n % (PairRange * PairRange)
	return WordPrefix + "." +
		MustEncodePair(int(p3)) + "." +
		MustEncodePair(int(rest/PairRange)) + "." +
		MustEncodePair(int(rest%PairRange)), nil
}

// VarID builds the address for the variable serial n, zero-based. The
// variable block holds 2500*2500 = 6,250,000 entries.
func VarID(n uint64) (string, error) {
	if n >= PairRange*PairRange {
		return "", errors.WithMessagef(ErrEncodeRange, "variable serial %d exhausts the namespace", n)
	}
	return WordPrefix + "." + varBlock + "." +
		MustEncodePair(int(n/PairRange)) + "." +
		MustEncodePair(int(n%PairRange)), nil
}

// LabelID builds the address for the structural-label serial n, zero-based.
func LabelID(n uint64) (string, error) {
	if n >= PairRange*PairRange {
		return "", errors.WithMessagef(ErrEncodeRange, "label serial %d exhausts the namespace", n)
	}
	return LabelPrefix + "." +
		MustEncodePair(int(n/PairRange)) + "." +
		MustEncodePair(int(n%PairRange)), nil
}

// VarRequest builds the inline form of a variable-request token: the
// sentinel id, one space, then the literal surface.
func VarRequest(surface string) string {
	return VarSentinel + " " + surface
}

// IsVarRequest reports whether tok is an inline variable-request.
func IsVarRequest(tok string) bool {
	return strings.HasPrefix(tok, VarSentinel+" ")
}

// VarRequestSurface extracts the literal surface from an inline
// variable-request token. The second result is false if tok is not one.
func VarRequestSurface(tok string) (string, bool) {
	if !IsVarRequest(tok) {
		return "", false
	}
	return tok[len(VarSentinel)+1:], true
}
