package bed

// Run is one candidate word extracted from settled character output,
// carrying its capitalization fingerprint. Beds match on the folded text;
// the capitalization metadata travels with the result so reconstruction
// can restore the surface.
type Run struct {
	Text  string
	Start int64

	// FirstCap and AllCaps summarize the surface; CapMask records the
	// uppercase positions of the first 64 characters bitwise.
	FirstCap bool
	AllCaps  bool
	CapMask  uint64
}

// NewRun builds a run from a raw surface. A capital confined to the first
// character is positional when the run opens a sentence (or the stream) and
// is suppressed: the flags and mask clear because the capitalization
// carries no lexical information there.
func NewRun(text string, start int64, sentenceStart bool) Run {
	r := Run{Text: text, Start: start}
	letters, caps := 0, 0
	for ii := 0; ii < len(text) && ii < 64; ii++ {
		c := text[ii]
		if c >= 'A' && c <= 'Z' {
			r.CapMask |= 1 << uint(ii)
			caps++
			letters++
		} else if c >= 'a' && c <= 'z' {
			letters++
		}
	}
	r.FirstCap = r.CapMask&1 != 0
	r.AllCaps = letters >= 2 && caps == letters
	if sentenceStart && r.CapMask == 1 {
		r.FirstCap = false
		r.CapMask = 0
	}
	return r
}

// folded returns the ASCII-lowercased text and whether every character is
// a letter the vocabulary buckets can hold.
func (r Run) folded() (string, bool) {
	buf := make([]byte, len(r.Text))
	for ii := 0; ii < len(r.Text); ii++ {
		c := r.Text[ii]
		switch {
		case c >= 'a' && c <= 'z' || c == '-':
			buf[ii] = c
		case c >= 'A' && c <= 'Z':
			buf[ii] = c + ('a' - 'A')
		default:
			return "", false
		}
	}
	return string(buf), true
}

// Result is the outcome of resolving one run.
type Result struct {
	Run Run

	// Word is the matched vocabulary surface; TokenIDs the token sequence
	// the run resolved to (a single id for a direct match, several when
	// the hyphen cascade split the run).
	Word     string
	TokenIDs []string

	Resolved bool

	// NoVocab marks a run no bed or bucket could host.
	NoVocab bool
}
