package tokenizer

import "strings"

// typesetting replacements: typographic quotes become their ASCII forms,
// the BOM and the trademark sign vanish. Em-dash and en-dash are structural
// separators, not typesetting variants, and pass through untouched.
var typesetting = strings.NewReplacer(
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"‚", "'", // low single quote
	"‛", "'", // reversed single quote
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"„", `"`, // low double quote
	"‟", `"`, // reversed double quote
	"\uFEFF", "", // BOM
	"™", "", // trademark
)

// Normalize applies the typesetting phase. Malformed UTF-8 passes through
// byte-for-byte; only exact multi-byte matches are rewritten.
func Normalize(text string) string {
	return typesetting.Replace(text)
}
