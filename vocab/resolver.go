package vocab

import (
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Human-Cognome-Project/human-cognome-project-sub000/tokens"
)

// Dictionary is the slice of the relational dictionary the resolver needs.
// ok is false on a clean miss; err reports storage faults.
type Dictionary interface {
	FindToken(name, layer string) (tokenID string, ok bool, err error)
}

// VariableMinter finds or mints a global variable token for a surface.
type VariableMinter interface {
	FindOrMintVariable(surface, category string) (varID string, err error)
}

// Handler resolves one sub-database's misses. Handlers are stateless with
// respect to the cache; everything they touch arrives through their
// construction dependencies. A handler returns the resolved value plus the
// batch of writes that make the resolution durable; ok is false on a clean
// miss.
type Handler interface {
	// Sub names the sub-database this handler serves.
	Sub() string

	// Resolve the missed key.
	Resolve(key string) (value string, writes []Write, ok bool, err error)
}

// Resolver routes lookup misses to per-sub-database handlers and commits
// each successful resolution as one atomic batch on the environment it
// borrows. It never owns or closes the environment.
type Resolver struct {
	env      *Env
	handlers map[string]Handler
}

// NewResolver builds a resolver over env with no handlers registered.
func NewResolver(env *Env) *Resolver {
	return &Resolver{env: env, handlers: make(map[string]Handler)}
}

// Register installs a handler under its sub-database name, replacing any
// previous one.
func (r *Resolver) Register(h Handler) *Resolver {
	r.handlers[h.Sub()] = h
	return r
}

// Resolve routes the missed key. Keys carrying the variable-request
// sentinel reroute to the variable handler regardless of sub. If the
// write batch fails, the lookup reports a miss; the caller re-reads later.
func (r *Resolver) Resolve(sub, key string) (string, bool, error) {
	if tokens.IsVarRequest(key) {
		sub = SubVar
	}
	h, registered := r.handlers[sub]
	if !registered {
		return "", false, nil
	}
	value, writes, ok, err := h.Resolve(key)
	if err != nil || !ok {
		return "", false, err
	}
	if err = r.env.commit(writes); err != nil {
		klog.Errorf("vocab: resolution batch for %s[%q] failed: %v", sub, key, err)
		return "", false, err
	}
	return value, true, nil
}

// WordHandler resolves w2t misses against the relational dictionary. The
// surface is queried exactly as keyed: case folding is the tokenizer's
// business, and a capitalized surface that reached this handler must not
// fold onto its lowercase entry or the original casing is lost on
// reconstruction.
type WordHandler struct {
	Dict Dictionary
}

// NewWordHandler returns the standard word handler.
func NewWordHandler(dict Dictionary) *WordHandler { return &WordHandler{Dict: dict} }

// Sub implements Handler.
func (h *WordHandler) Sub() string { return SubWords }

// Resolve implements Handler.
func (h *WordHandler) Resolve(key string) (string, []Write, bool, error) {
	id, ok, err := h.Dict.FindToken(key, "word")
	if err != nil || !ok {
		return "", nil, false, err
	}
	writes := []Write{
		{Sub: SubWords, Key: key, Value: id},
		{Sub: SubTokenWords, Key: id, Value: key},
	}
	return id, writes, true, nil
}

// CharHandler resolves c2t misses. No external storage is consulted: the
// character address is a pure function of the codepoint.
type CharHandler struct{}

// NewCharHandler returns the standard character handler.
func NewCharHandler() *CharHandler { return &CharHandler{} }

// Sub implements Handler.
func (h *CharHandler) Sub() string { return SubChars }

// Resolve implements Handler. A key that is not valid UTF-8 is treated as
// a single-byte codepoint.
func (h *CharHandler) Resolve(key string) (string, []Write, bool, error) {
	if key == "" {
		return "", nil, false, nil
	}
	cp, size := utf8.DecodeRuneInString(key)
	if cp == utf8.RuneError && size <= 1 {
		cp = rune(key[0])
	}
	id := tokens.CharID(cp)
	writes := []Write{
		{Sub: SubChars, Key: key, Value: id},
		{Sub: SubTokenChars, Key: id, Value: key},
	}
	return id, writes, true, nil
}

// LabelHandler resolves l2t misses: structural names like `newline` or
// `document_start`. It tries the language label table first, then the
// structural marker table. Only the forward side is cached.
type LabelHandler struct {
	Dict Dictionary
}

// NewLabelHandler returns the standard label handler.
func NewLabelHandler(dict Dictionary) *LabelHandler { return &LabelHandler{Dict: dict} }

// Sub implements Handler.
func (h *LabelHandler) Sub() string { return SubLabels }

// Resolve implements Handler.
func (h *LabelHandler) Resolve(key string) (string, []Write, bool, error) {
	id, ok, err := h.Dict.FindToken(key, "label")
	if err != nil {
		return "", nil, false, err
	}
	if !ok {
		id, ok, err = h.Dict.FindToken(key, "marker")
		if err != nil || !ok {
			return "", nil, false, err
		}
	}
	return id, []Write{{Sub: SubLabels, Key: key, Value: id}}, true, nil
}

// VarHandler resolves variable-request keys: `<sentinel> <surface>`. An
// active variable with the same surface is reused; otherwise the next
// serial is minted. Variable ids occupy word slots, so both w2t and t2w
// are written.
type VarHandler struct {
	Vars VariableMinter
}

// NewVarHandler returns the standard variable-mint handler.
func NewVarHandler(vars VariableMinter) *VarHandler { return &VarHandler{Vars: vars} }

// Sub implements Handler.
func (h *VarHandler) Sub() string { return SubVar }

// Resolve implements Handler.
func (h *VarHandler) Resolve(key string) (string, []Write, bool, error) {
	surface, ok := tokens.VarRequestSurface(key)
	if !ok || surface == "" {
		return "", nil, false, errors.Errorf("malformed variable request %q", key)
	}
	category := "proper"
	if strings.ContainsRune(surface, '.') {
		category = "uri_metadata"
	}
	varID, err := h.Vars.FindOrMintVariable(surface, category)
	if err != nil {
		return "", nil, false, err
	}
	writes := []Write{
		{Sub: SubWords, Key: surface, Value: varID},
		{Sub: SubTokenWords, Key: varID, Value: surface},
	}
	return varID, writes, true, nil
}
