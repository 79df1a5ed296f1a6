// Package tokenizer implements the rule-driven tokenizer: typesetting
// normalization, chunk collection and the layered resolution stack that
// turns a text stream into a positioned token-id stream.
//
// No input produces an error here. Material the resolution stack cannot
// place collapses into inline variable-request tokens, which storage later
// resolves into minted variable ids.
package tokenizer

import (
	"strings"
	"unicode/utf8"

	"k8s.io/klog/v2"

	"github.com/Human-Cognome-Project/human-cognome-project-sub000/tokens"
	"github.com/Human-Cognome-Project/human-cognome-project-sub000/vocab"
)

// Stream is a positioned token stream. Positions are slot indices that
// include whitespace gaps: a gap of N between adjacent positions represents
// N spaces. Every emitted token occupies exactly one slot.
type Stream struct {
	IDs        []string
	Positions  []int64
	TotalSlots int64
}

// Tokenizer resolves text against a vocabulary cache. It is not safe for
// concurrent use; the engine serializes document work.
type Tokenizer struct {
	vocab *vocab.Cache

	// docVars caches variable-request tokens minted within the current
	// document, keyed by lowercased surface, for instant reuse.
	docVars map[string]string
}

// New builds a tokenizer over the given cache.
func New(cache *vocab.Cache) *Tokenizer {
	return &Tokenizer{vocab: cache}
}

// Tokenize converts text into a positioned token stream, bracketed by the
// stream-start and stream-end markers.
func (t *Tokenizer) Tokenize(text string) *Stream {
	t.docVars = make(map[string]string)
	items := lex(Normalize(text))
	e := &emitter{stream: &Stream{}}
	e.emit(tokens.StreamStart)
	sentenceStart := true
	for idx := 0; idx < len(items); idx++ {
		switch it := items[idx]; it.kind {
		case itemSpaces:
			e.slot += int64(it.n)
		case itemNewline:
			e.emit(t.newlineToken())
			sentenceStart = true
		case itemChunk:
			idx += t.emitChunk(e, items, idx, &sentenceStart)
		}
	}
	e.emit(tokens.StreamEnd)
	e.stream.TotalSlots = e.slot
	return e.stream
}

// --- chunk collection ---

type itemKind int

const (
	itemChunk itemKind = iota
	itemSpaces
	itemNewline
)

type item struct {
	kind itemKind
	text string
	n    int
}

// lex splits normalized text into chunks, space runs and newlines. Space
// and tab separate chunks and advance the slot counter; CR is discarded;
// LF is structural.
func lex(text string) []item {
	var items []item
	start := -1
	flush := func(end int) {
		if start >= 0 {
			items = append(items, item{kind: itemChunk, text: text[start:end]})
			start = -1
		}
	}
	space := func() {
		if n := len(items); n > 0 && items[n-1].kind == itemSpaces {
			items[n-1].n++
			return
		}
		items = append(items, item{kind: itemSpaces, n: 1})
	}
	for ii := 0; ii < len(text); ii++ {
		switch text[ii] {
		case ' ', '\t':
			flush(ii)
			space()
		case '\r':
			flush(ii)
		case '\n':
			flush(ii)
			items = append(items, item{kind: itemNewline})
		default:
			if start < 0 {
				start = ii
			}
		}
	}
	flush(len(text))
	return items
}

// --- emission ---

type emitter struct {
	stream *Stream
	slot   int64
}

func (e *emitter) emit(tok string) {
	e.stream.IDs = append(e.stream.IDs, tok)
	e.stream.Positions = append(e.stream.Positions, e.slot)
	e.slot++
}

func (t *Tokenizer) newlineToken() string {
	if id, ok := t.vocab.LookupLabel("newline"); ok {
		return id
	}
	id, _ := t.vocab.LookupChar('\n')
	return id
}

// emitChunk resolves one chunk, possibly consuming following items through
// the forward-walk continuation. It returns the number of extra items
// consumed.
func (t *Tokenizer) emitChunk(e *emitter, items []item, idx int, sentenceStart *bool) int {
	chunk := items[idx].text

	// Per-document variable cache, on the raw chunk.
	if varTok, ok := t.docVars[strings.ToLower(chunk)]; ok {
		e.emit(varTok)
		*sentenceStart = false
		return 0
	}

	// Dot-value detection: an internal dot flanked by alphanumerics makes
	// the chunk opaque (initialism, section number, URL).
	if hasInternalDot(chunk) {
		lead, core, trail := stripEdges(chunk, true)
		t.emitPunct(e, lead)
		e.emit(t.varToken(core))
		t.emitPunct(e, trail)
		*sentenceStart = endsSentence(trail)
		return 0
	}

	// Whole-chunk lowercase lookup, with the forward-walk continuation.
	lower := strings.ToLower(chunk)
	if !intrinsicCaps(chunk, *sentenceStart) {
		if id, ok := t.vocab.LookupWord(lower); ok {
			if consumed, seqID := t.forwardWalk(lower, items, idx); consumed > 0 {
				e.emit(seqID)
				*sentenceStart = false
				return consumed
			}
			e.emit(id)
			*sentenceStart = false
			return 0
		}
	}

	// Edge punctuation, then the core resolution stack.
	lead, core, trail := stripEdges(chunk, false)
	t.emitPunct(e, lead)
	if core != "" {
		if toks, ok := t.resolveCore(core, *sentenceStart); ok {
			for _, tok := range toks {
				e.emit(tok)
			}
		} else {
			e.emit(t.varToken(core))
		}
	}
	t.emitPunct(e, trail)
	if trail != "" {
		*sentenceStart = endsSentence(trail)
	} else if core != "" {
		*sentenceStart = false
	}
	return 0
}

func (t *Tokenizer) emitPunct(e *emitter, punct string) {
	for _, r := range punct {
		if id, ok := t.vocab.LookupChar(r); ok {
			e.emit(id)
		}
	}
}

// forwardWalk peeks ahead through following chunks while the continuation
// cache reports Continue. On Complete it returns the consumed item count
// and the sequence id; on Miss it backs out.
func (t *Tokenizer) forwardWalk(acc string, items []item, idx int) (int, string) {
	j := idx + 1
	for {
		k := j
		if k < len(items) && items[k].kind == itemSpaces && items[k].n == 1 {
			k++
		}
		if k >= len(items) || items[k].kind != itemChunk {
			return 0, ""
		}
		next := strings.ToLower(items[k].text)
		state, seqID := t.vocab.CheckContinuation(acc, next)
		switch state {
		case vocab.ContinuationComplete:
			return k - idx, seqID
		case vocab.ContinuationContinue:
			acc = acc + " " + next
			j = k + 1
		default:
			return 0, ""
		}
	}
}

// resolveCore runs the layered stack on an edge-stripped core. Intrinsic
// capitalization (caps the position does not explain) restricts resolution
// to the exact-case path so the surface survives the round trip.
func (t *Tokenizer) resolveCore(core string, sentenceStart bool) ([]string, bool) {
	if intrinsicCaps(core, sentenceStart) {
		if id, ok := t.vocab.LookupWord(core); ok {
			return []string{id}, true
		}
		return nil, false
	}
	return t.resolveLower(strings.ToLower(core))
}

// resolveLower is the case-free resolution stack: word lookup, single-char
// fallback, affix decomposition, dash split, then the greedy longest-word
// walk.
func (t *Tokenizer) resolveLower(core string) ([]string, bool) {
	if core == "" {
		return nil, false
	}
	if id, ok := t.vocab.LookupWord(core); ok {
		return []string{id}, true
	}
	if utf8.RuneCountInString(core) == 1 {
		r, _ := utf8.DecodeRuneInString(core)
		if id, ok := t.vocab.LookupChar(r); ok {
			return []string{id}, true
		}
	}
	if toks, ok := t.affixDecompose(core); ok {
		return toks, true
	}
	if toks, ok := t.dashSplit(core); ok {
		return toks, true
	}
	if allASCIIAlpha(core) {
		if toks, ok := t.greedyWalk(core); ok {
			return toks, true
		}
	}
	return nil, false
}

// affixDecompose tries longest-match suffixes then longest-match prefixes.
// Stems are checked locally first (misses are expected and frequent); a
// second pass consults the resolver so a dictionary word not yet cached can
// still anchor a decomposition.
func (t *Tokenizer) affixDecompose(core string) ([]string, bool) {
	affixes := t.vocab.Affixes()
	lookups := []func(string) (string, bool){t.vocab.LookupWordLocal, t.vocab.LookupWord}
	for _, lookup := range lookups {
		for _, e := range affixes.MatchSuffix(core) {
			stem := core[:len(core)-len(e.Stripped)]
			if id, ok := lookup(stem); ok {
				return []string{id, e.TokenID}, true
			}
		}
		for _, e := range affixes.MatchPrefix(core) {
			stem := core[len(e.Stripped):]
			if id, ok := lookup(stem); ok {
				return []string{e.TokenID, id}, true
			}
		}
	}
	return nil, false
}

// dashSplit resolves left-of-dash and right-of-dash recursively, emitting
// the dash token between. Unresolved sides become inline variable-request
// tokens.
func (t *Tokenizer) dashSplit(core string) ([]string, bool) {
	at, width, dashTok := t.findDash(core)
	if at < 0 {
		return nil, false
	}
	var out []string
	if left := core[:at]; left != "" {
		if toks, ok := t.resolveLower(left); ok {
			out = append(out, toks...)
		} else {
			out = append(out, t.varToken(left))
		}
	}
	out = append(out, dashTok)
	if right := core[at+width:]; right != "" {
		if toks, ok := t.resolveLower(right); ok {
			out = append(out, toks...)
		} else {
			out = append(out, t.varToken(right))
		}
	}
	return out, true
}

// findDash locates the first hyphen, em-dash or en-dash and returns its
// token.
func (t *Tokenizer) findDash(core string) (at, width int, tok string) {
	for ii, r := range core {
		switch r {
		case '-':
			id, _ := t.vocab.LookupChar('-')
			return ii, 1, id
		case '—':
			return ii, 3, t.dashWord("emdash", r)
		case '–':
			return ii, 3, t.dashWord("endash", r)
		}
	}
	return -1, 0, ""
}

func (t *Tokenizer) dashWord(name string, r rune) string {
	if id, ok := t.vocab.LookupWord(name); ok {
		return id
	}
	id, _ := t.vocab.LookupChar(r)
	return id
}

// greedyWalk segments an all-alphabetic core into known words, longest
// prefix first with 2-split early termination: if the whole remainder of a
// matched prefix also resolves, the pair is accepted outright.
func (t *Tokenizer) greedyWalk(core string) ([]string, bool) {
	var out []string
	rest := core
	for rest != "" {
		length, id := t.longestPrefix(rest)
		if length == 0 {
			return nil, false
		}
		out = append(out, id)
		if length == len(rest) {
			break
		}
		rest = rest[length:]
		if restID, ok := t.vocab.LookupWordLocal(rest); ok {
			out = append(out, restID)
			break
		}
	}
	return out, true
}

func (t *Tokenizer) longestPrefix(s string) (int, string) {
	for k := len(s); k >= 1; k-- {
		if id, ok := t.vocab.LookupWordLocal(s[:k]); ok {
			return k, id
		}
	}
	return 0, ""
}

// varToken returns the inline variable-request token for a surface,
// caching it in the per-document map.
func (t *Tokenizer) varToken(surface string) string {
	key := strings.ToLower(surface)
	if tok, ok := t.docVars[key]; ok {
		return tok
	}
	tok := tokens.VarRequest(surface)
	t.docVars[key] = tok
	klog.V(2).Infof("tokenizer: variable request for %q", surface)
	return tok
}

// --- classification helpers ---

// intrinsicCaps reports whether the surface carries capitalization the
// position does not explain. A capital on the first character immediately
// after a sentence terminator (or at stream start) is positional and
// suppressible; any other capital is intrinsic.
func intrinsicCaps(s string, sentenceStart bool) bool {
	for ii, r := range s {
		if r < 'A' || r > 'Z' {
			continue
		}
		if ii == 0 && sentenceStart {
			continue
		}
		return true
	}
	return false
}

func endsSentence(trail string) bool {
	if trail == "" {
		return false
	}
	switch trail[len(trail)-1] {
	case '.', '?', '!':
		return true
	}
	return false
}

// hasInternalDot reports whether chunk contains a '.' flanked by
// alphanumerics on both sides.
func hasInternalDot(chunk string) bool {
	for ii := 1; ii+1 < len(chunk); ii++ {
		if chunk[ii] == '.' && isAlnum(chunk[ii-1]) && isAlnum(chunk[ii+1]) {
			return true
		}
	}
	return false
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

// isEdgePunct reports whether c is strippable ASCII edge punctuation.
func isEdgePunct(c byte, keepDots bool) bool {
	if c >= 0x80 || isAlnum(c) {
		return false
	}
	if keepDots && c == '.' {
		return false
	}
	return c > ' ' && c < 0x7F
}

// stripEdges splits a chunk into lead punctuation, core and trail
// punctuation. Only ASCII punctuation strips; keepDots preserves '.' at
// the edges (the dot-value path).
func stripEdges(chunk string, keepDots bool) (lead, core, trail string) {
	start, end := 0, len(chunk)
	for start < end && isEdgePunct(chunk[start], keepDots) {
		start++
	}
	for end > start && isEdgePunct(chunk[end-1], keepDots) {
		end--
	}
	return chunk[:start], chunk[start:end], chunk[end:]
}

func allASCIIAlpha(s string) bool {
	for ii := 0; ii < len(s); ii++ {
		c := s[ii]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}
