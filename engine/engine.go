// Package engine composes the pipeline: tokenizer, vocabulary cache,
// bond derivation, storage kernel, physics-analog resolver and
// reassembly, behind a façade the server dispatches onto. The engine
// admits one writer at a time; every operation serializes on the engine
// mutex.
package engine

import (
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Human-Cognome-Project/human-cognome-project-sub000/bed"
	"github.com/Human-Cognome-Project/human-cognome-project-sub000/bonds"
	"github.com/Human-Cognome-Project/human-cognome-project-sub000/reassembly"
	"github.com/Human-Cognome-Project/human-cognome-project-sub000/storage"
	"github.com/Human-Cognome-Project/human-cognome-project-sub000/tokenizer"
	"github.com/Human-Cognome-Project/human-cognome-project-sub000/tokens"
	"github.com/Human-Cognome-Project/human-cognome-project-sub000/vocab"
)

// structuralLabels maps the seeded label names to their literal surfaces.
var structuralLabels = map[string]string{
	"newline":        "\n",
	"tab":            "\t",
	"document_start": "",
}

// Config tunes the engine.
type Config struct {
	// VocabPath is the bbolt cache file.
	VocabPath string

	// TierMax overrides the per-bucket tier capacities; nil keeps the
	// defaults.
	TierMax []int

	// Bed tunes the bed manager.
	Bed bed.Config
}

// Engine is the pipeline façade.
type Engine struct {
	mu sync.Mutex

	store *storage.Store
	env   *vocab.Env
	cache *vocab.Cache
	reasm *reassembly.Reassembler

	cfg  Config
	beds *bed.Manager
}

// dictAdapter exposes the relational dictionary to the vocabulary
// resolver.
type dictAdapter struct {
	store *storage.Store
}

func (d dictAdapter) FindToken(name, layer string) (string, bool, error) {
	id, err := d.store.LookupToken(name, layer)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// minterAdapter exposes the variable mint.
type minterAdapter struct {
	store *storage.Store
}

func (m minterAdapter) FindOrMintVariable(surface, category string) (string, error) {
	return m.store.MintVariable(surface, category)
}

// New wires the engine over an open store. The structural labels are
// seeded idempotently; affixes load from the dictionary into the cache's
// index.
func New(store *storage.Store, cfg Config) (*Engine, error) {
	env, err := vocab.OpenEnv(cfg.VocabPath)
	if err != nil {
		return nil, err
	}
	resolver := vocab.NewResolver(env).
		Register(vocab.NewWordHandler(dictAdapter{store})).
		Register(vocab.NewCharHandler()).
		Register(vocab.NewLabelHandler(dictAdapter{store})).
		Register(vocab.NewVarHandler(minterAdapter{store}))
	cache := vocab.New(env, resolver)

	e := &Engine{
		store: store,
		env:   env,
		cache: cache,
		reasm: reassembly.New(cache),
		cfg:   cfg,
	}
	for name, literal := range structuralLabels {
		id, err := store.InsertToken(name, storage.LayerLabel, "structural")
		if err != nil {
			return nil, errors.WithMessagef(err, "seeding label %q", name)
		}
		if literal != "" {
			e.reasm.MapLabel(id, literal)
		}
	}
	if err := e.reloadAffixes(); err != nil {
		return nil, err
	}
	return e, nil
}

// Close releases the vocabulary environment. The store is owned by the
// caller.
func (e *Engine) Close() error {
	return e.env.Close()
}

func (e *Engine) reloadAffixes() error {
	rows, err := e.store.SelectAffixes()
	if err != nil {
		return err
	}
	raw := make([]vocab.RawAffix, 0, len(rows))
	for _, row := range rows {
		raw = append(raw, vocab.RawAffix{Form: row.Form, TokenID: row.TokenID})
		// Reverse entries carry the stripped surface so decomposed words
		// rejoin without their positional hyphen.
		stripped := strings.Trim(row.Form, "-")
		if stripped != "" {
			if err := e.cache.PutReverseWord(row.TokenID, stripped); err != nil {
				return err
			}
		}
	}
	e.cache.LoadAffixes(raw)
	return nil
}

// IngestResult summarizes one stored document.
type IngestResult struct {
	DocID      string `json:"doc_id"`
	Tokens     int    `json:"tokens"`
	Unique     int    `json:"unique"`
	Bonds      int    `json:"bonds"`
	TotalPairs int64  `json:"total_pairs"`
	Variables  int    `json:"variables"`
}

// ProcessText ingests a document: tokenize, resolve inline variable
// requests into minted variable ids, derive the positional bond map, and
// persist everything in one transaction. The allocated doc_id returns on
// success.
func (e *Engine) ProcessText(text, docName, century string, metadata map[string]any) (IngestResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	stream := tokenizer.New(e.cache).Tokenize(text)
	ids := make([]string, len(stream.IDs))
	var varSources []storage.VarSource
	for ii, id := range stream.IDs {
		if !tokens.IsVarRequest(id) {
			ids[ii] = id
			// A surface minted by an earlier document resolves straight
			// to its variable id; the occurrence still belongs to this
			// document's source rows.
			if tokens.IsVarID(id) {
				varSources = append(varSources, storage.VarSource{VarID: id, Position: stream.Positions[ii]})
			}
			continue
		}
		varID, ok := e.cache.LookupWord(id)
		if !ok {
			surface, _ := tokens.VarRequestSurface(id)
			return IngestResult{}, errors.Errorf("minting variable for %q failed", surface)
		}
		ids[ii] = varID
		varSources = append(varSources, storage.VarSource{VarID: varID, Position: stream.Positions[ii]})
	}

	table := bonds.New(bonds.LevelWordWord)
	table.AddStream(ids)
	pbm := &storage.PBM{Bonds: table}
	if len(ids) >= 2 {
		pbm.FirstA, pbm.FirstB = ids[0], ids[1]
	}
	docID, _, err := e.store.StoreDocument(docName, century, pbm, ids, stream.Positions,
		stream.TotalSlots, metadata, varSources)
	if err != nil {
		return IngestResult{}, err
	}
	klog.Infof("engine: ingested %q as %s (%d tokens, %d variables)",
		docName, docID, len(ids), len(varSources))
	return IngestResult{
		DocID:      docID,
		Tokens:     len(ids),
		Unique:     countUnique(ids),
		Bonds:      table.Len(),
		TotalPairs: table.Total(),
		Variables:  len(varSources),
	}, nil
}

func countUnique(ids []string) int {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	return len(seen)
}

// Reassemble reconstructs a stored document's text from its positional
// record.
func (e *Engine) Reassemble(docID string) (string, error) {
	res, err := e.Retrieve(docID)
	return res.Text, err
}

// RetrieveResult carries a reassembled document plus the load timing the
// request façade reports.
type RetrieveResult struct {
	Text       string
	Tokens     int
	LoadMillis int64
}

// Retrieve loads a document's positional record and reconstructs its
// text.
func (e *Engine) Retrieve(docID string) (RetrieveResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	ids, positions, _, err := e.store.LoadPositions(docID)
	if err != nil {
		return RetrieveResult{}, err
	}
	load := time.Since(start).Milliseconds()
	return RetrieveResult{
		Text:       e.reasm.Text(ids, positions),
		Tokens:     len(ids),
		LoadMillis: load,
	}, nil
}

// Tokenize runs the tokenizer without persisting anything. Variable
// requests stay inline.
func (e *Engine) Tokenize(text string) *tokenizer.Stream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return tokenizer.New(e.cache).Tokenize(text)
}

// PhysResolve settles the candidate runs of a text against the particle
// beds. RebuildTiers must have run at least once.
func (e *Engine) PhysResolve(text string) ([]bed.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.beds == nil {
		return nil, errors.New("no tier assembly loaded; seed a vocabulary first")
	}
	return e.beds.Resolve(runsFrom(tokenizer.Normalize(text)))
}

// runsFrom extracts candidate runs: whitespace-separated chunks with edge
// punctuation trimmed, capitalization fingerprinted with positional
// suppression.
func runsFrom(text string) []bed.Run {
	var runs []bed.Run
	sentenceStart := true
	for _, field := range fieldsWithOffsets(text) {
		core, trail := trimRun(field.text)
		if core != "" {
			runs = append(runs, bed.NewRun(core, field.offset, sentenceStart))
		}
		sentenceStart = endsSentence(trail) || strings.ContainsRune(field.text, '\n')
	}
	return runs
}

type field struct {
	text   string
	offset int64
}

func fieldsWithOffsets(text string) []field {
	var out []field
	start := -1
	for ii := 0; ii < len(text); ii++ {
		switch text[ii] {
		case ' ', '\t', '\n', '\r':
			if start >= 0 {
				out = append(out, field{text[start:ii], int64(start)})
				start = -1
			}
			if text[ii] == '\n' {
				out = append(out, field{"\n", int64(ii)})
			}
		default:
			if start < 0 {
				start = ii
			}
		}
	}
	if start >= 0 {
		out = append(out, field{text[start:], int64(start)})
	}
	return out
}

func trimRun(chunk string) (core, trail string) {
	start, end := 0, len(chunk)
	for start < end && !isRunByte(chunk[start]) {
		start++
	}
	for end > start && !isRunByte(chunk[end-1]) {
		end--
	}
	return chunk[start:end], chunk[end:]
}

func isRunByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '-'
}

func endsSentence(trail string) bool {
	for ii := 0; ii < len(trail); ii++ {
		switch trail[ii] {
		case '.', '?', '!':
			return true
		}
	}
	return false
}
