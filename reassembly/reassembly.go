// Package reassembly rebuilds document text from a positional token
// stream. Spacing is purely positional: the slot gap between two adjacent
// tokens is the exact number of spaces between their surfaces, so
// reconstruction is length-preserving without any per-token stickiness
// state.
package reassembly

import (
	"fmt"
	"strings"

	"github.com/Human-Cognome-Project/human-cognome-project-sub000/tokens"
)

// Vocabulary is the reverse-lookup slice of the vocabulary cache.
type Vocabulary interface {
	TokenToWord(tokenID string) (string, bool)
	TokenToChar(tokenID string) (string, bool)
}

// Reassembler turns ordered (token id, position) streams back into text.
type Reassembler struct {
	vocab  Vocabulary
	labels map[string]string
}

// New builds a reassembler. Structural labels map to their literal control
// sequences through MapLabel; the newline label is what resets the
// capitalization cursor.
func New(vocab Vocabulary) *Reassembler {
	return &Reassembler{vocab: vocab, labels: make(map[string]string)}
}

// MapLabel binds a structural label token to its literal surface.
func (r *Reassembler) MapLabel(tokenID, literal string) {
	r.labels[tokenID] = literal
}

// Text reconstructs the surface of a positional stream. ids and positions
// are parallel and ascending in position; stream markers are consumed
// silently. Word capitalization is reapplied positionally: the first word
// after a sentence terminator, a newline or the stream start regains its
// capital.
func (r *Reassembler) Text(ids []string, positions []int64) string {
	var b strings.Builder
	prev := int64(-1)
	sentenceStart := true
	for ii, id := range ids {
		pos := prev + 1
		if ii < len(positions) {
			pos = positions[ii]
		}
		// Gap first: trailing spaces live in the end marker's position.
		if gap := pos - prev - 1; gap > 0 {
			b.WriteString(strings.Repeat(" ", int(gap)))
		}
		prev = pos
		if id == tokens.StreamStart || id == tokens.StreamEnd {
			continue
		}

		if literal, ok := r.labels[id]; ok {
			b.WriteString(literal)
			if strings.ContainsRune(literal, '\n') {
				sentenceStart = true
			}
			continue
		}
		if surface, ok := tokens.VarRequestSurface(id); ok {
			b.WriteString(surface)
			sentenceStart = false
			continue
		}
		if tokens.IsCharID(id) {
			surface := r.charSurface(id)
			b.WriteString(surface)
			if endsSentence(surface) {
				sentenceStart = true
			}
			continue
		}
		if surface, ok := r.vocab.TokenToWord(id); ok {
			// Variable surfaces are verbatim; only dictionary words had
			// their positional capital folded away.
			if sentenceStart && !tokens.IsVarID(id) {
				surface = capitalize(surface)
			}
			b.WriteString(surface)
			sentenceStart = false
			continue
		}
		b.WriteString(fmt.Sprintf("[marker:%s]", id))
	}
	return b.String()
}

func (r *Reassembler) charSurface(id string) string {
	if cp, err := tokens.DecodeCharID(id); err == nil {
		return string(cp)
	}
	if surface, ok := r.vocab.TokenToChar(id); ok {
		return surface
	}
	return fmt.Sprintf("[marker:%s]", id)
}

func endsSentence(surface string) bool {
	switch surface {
	case ".", "?", "!":
		return true
	}
	return false
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-('a'-'A')) + s[1:]
}
