package engine

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/Human-Cognome-Project/human-cognome-project-sub000/bed"
	"github.com/Human-Cognome-Project/human-cognome-project-sub000/bonds"
	"github.com/Human-Cognome-Project/human-cognome-project-sub000/storage"
	"github.com/Human-Cognome-Project/human-cognome-project-sub000/tiers"
	"github.com/Human-Cognome-Project/human-cognome-project-sub000/vocab"
)

// SeedStats summarizes one vocabulary load.
type SeedStats struct {
	Words     int `json:"words"`
	Affixes   int `json:"affixes"`
	Labels    int `json:"labels"`
	Sequences int `json:"sequences"`
}

// SeedVocabulary ingests a vocabulary list: one entry per line. Plain
// lines are words, `-form` / `form-` lines are affixes, `label:<name>`
// lines are structural labels, and multi-word lines become forward-cache
// sequences. Comments (`#`) and blank lines are skipped. Bonds, tiers and
// beds rebuild afterwards.
func (e *Engine) SeedVocabulary(r io.Reader, showProgress bool) (SeedStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return SeedStats{}, errors.Wrap(err, "reading vocabulary list")
	}

	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.Default(int64(len(lines)), "seeding vocabulary")
	}
	var stats SeedStats
	for _, line := range lines {
		if err := e.seedLine(line, &stats); err != nil {
			return stats, err
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if err := e.reloadAffixes(); err != nil {
		return stats, err
	}
	if err := e.rebuildLocked(); err != nil {
		return stats, err
	}
	klog.Infof("engine: seeded %d words, %d affixes, %d labels, %d sequences",
		stats.Words, stats.Affixes, stats.Labels, stats.Sequences)
	return stats, nil
}

func (e *Engine) seedLine(line string, stats *SeedStats) error {
	switch {
	case strings.HasPrefix(line, "label:"):
		name := strings.TrimSpace(strings.TrimPrefix(line, "label:"))
		id, err := e.store.InsertToken(name, storage.LayerLabel, "structural")
		if err != nil {
			return err
		}
		if literal, ok := structuralLabels[name]; ok && literal != "" {
			e.reasm.MapLabel(id, literal)
		}
		stats.Labels++
	case strings.ContainsRune(line, ' '):
		if err := e.seedSequence(strings.ToLower(line)); err != nil {
			return err
		}
		stats.Sequences++
	case strings.HasPrefix(line, "-") || strings.HasSuffix(line, "-"):
		if _, err := e.store.InsertToken(strings.ToLower(line), storage.LayerAffix, ""); err != nil {
			return err
		}
		stats.Affixes++
	default:
		if _, err := e.store.InsertToken(strings.ToLower(line), storage.LayerWord, ""); err != nil {
			return err
		}
		stats.Words++
	}
	return nil
}

// seedSequence loads one multi-word phrase: every member word joins the
// dictionary, the phrase gets its own word-layer id, and the forward cache
// gets a continue marker per proper prefix plus the completing id. A
// prefix that is itself a complete phrase keeps its id.
func (e *Engine) seedSequence(phrase string) error {
	words := strings.Fields(phrase)
	for _, w := range words {
		if _, err := e.store.InsertToken(w, storage.LayerWord, ""); err != nil {
			return err
		}
	}
	phraseID, err := e.store.InsertToken(strings.Join(words, " "), storage.LayerWord, "sequence")
	if err != nil {
		return err
	}
	if err = e.cache.PutReverseWord(phraseID, strings.Join(words, " ")); err != nil {
		return err
	}
	for k := 2; k < len(words); k++ {
		acc := strings.Join(words[:k-1], " ")
		state, _ := e.cache.CheckContinuation(acc, words[k-1])
		if state == vocab.ContinuationComplete {
			continue
		}
		if err := e.cache.PutForward(strings.Join(words[:k], " "), "1"); err != nil {
			return err
		}
	}
	return e.cache.PutForward(strings.Join(words, " "), phraseID)
}

// RebuildBonds recompiles and persists the char→word and byte→char bond
// tables from the current dictionary and cache.
func (e *Engine) RebuildBonds() (*bonds.Table, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rebuildBondsLocked()
}

func (e *Engine) rebuildBondsLocked() (*bonds.Table, error) {
	charWord, err := bonds.CompileCharWord(func(fn func(word string) bool) error {
		return e.store.IterateTokens(storage.LayerWord, func(name, tokenID string) bool {
			return fn(name)
		})
	})
	if err != nil {
		return nil, err
	}
	if err = e.store.SaveBondTable(charWord); err != nil {
		return nil, err
	}
	byteChar, err := bonds.CompileByteChar(e.cache.IterateCharBytes)
	if err != nil {
		return nil, err
	}
	if err = e.store.SaveBondTable(byteChar); err != nil {
		return nil, err
	}
	return charWord, nil
}

// RebuildTiers reassembles the tiered vocabulary and rebuilds the particle
// beds over a fresh scene.
func (e *Engine) RebuildTiers() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rebuildLocked()
}

func (e *Engine) rebuildLocked() error {
	charWord, err := e.rebuildBondsLocked()
	if err != nil {
		return err
	}
	assembly, err := tiers.Assemble(func(fn func(word, tokenID string) bool) error {
		return e.store.IterateTokens(storage.LayerWord, fn)
	}, charWord, tiers.Config{TierMax: e.cfg.TierMax})
	if err != nil {
		return err
	}
	e.beds = bed.NewManager(bed.NewCPUSimulator(), assembly, e.cache, e.cfg.Bed)
	return nil
}

// Health reports the cache and store counters.
type Health struct {
	CachedWords  int   `json:"cached_words"`
	CachedChars  int   `json:"cached_chars"`
	CachedLabels int   `json:"cached_labels"`
	DictWords    int64 `json:"dict_words"`
	Documents    int   `json:"documents"`
}

// CheckHealth gathers the health counters.
func (e *Engine) CheckHealth() (Health, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var h Health
	h.CachedWords, h.CachedChars, h.CachedLabels = e.cache.Counts()
	dictWords, err := e.store.CountTokens(storage.LayerWord)
	if err != nil {
		return h, err
	}
	h.DictWords = dictWords
	docs, err := e.store.ListDocuments()
	if err != nil {
		return h, err
	}
	h.Documents = len(docs)
	return h, nil
}

// ListDocuments returns the stored document summaries.
func (e *Engine) ListDocuments() ([]storage.DocumentSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.ListDocuments()
}

// DocumentInfo is the retrieve-side detail record.
type DocumentInfo struct {
	Document   storage.Document    `json:"document"`
	Provenance *storage.Provenance `json:"provenance,omitempty"`
	Variables  []storage.DocVar    `json:"variables,omitempty"`
	Starters   []string            `json:"starters,omitempty"`
}

// Info fetches one document's detail: the row, its provenance, its
// variables and its starters.
func (e *Engine) Info(docID string) (*DocumentInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, err := e.store.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	info := &DocumentInfo{Document: doc}
	if info.Provenance, err = e.store.GetProvenance(doc.PK); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		info.Provenance = nil
	}
	if info.Variables, err = e.store.GetDocVarsExtended(doc.PK); err != nil {
		return nil, err
	}
	if info.Starters, err = e.store.GetAllStarters(doc.PK); err != nil {
		return nil, err
	}
	return info, nil
}

// UpdateMetadata merges set into a document's metadata and removes the
// given keys, reporting how many fields changed.
func (e *Engine) UpdateMetadata(docID string, set map[string]any, removeKeys []string) (int, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, err := e.store.GetDocument(docID)
	if err != nil {
		return 0, 0, err
	}
	return e.store.UpdateMetadata(doc.PK, set, removeKeys)
}

// BondDetail is one outgoing bond with its resolved surface.
type BondDetail struct {
	Token   string `json:"token"`
	Surface string `json:"surface,omitempty"`
	Count   int64  `json:"count"`
}

// BondsForToken returns a document's outgoing bonds from one token, or
// its starters when tokenA is empty, surfaces attached where the cache
// can resolve them.
func (e *Engine) BondsForToken(docID, tokenA string) ([]BondDetail, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, err := e.store.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	var out []BondDetail
	if tokenA == "" {
		starters, err := e.store.GetAllStarters(doc.PK)
		if err != nil {
			return nil, err
		}
		for _, s := range starters {
			out = append(out, BondDetail{Token: s, Surface: e.surfaceOf(s)})
		}
		return out, nil
	}
	rows, err := e.store.GetBondsForToken(doc.PK, tokenA)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out = append(out, BondDetail{Token: row.TokenB, Surface: e.surfaceOf(row.TokenB), Count: row.Count})
	}
	return out, nil
}

func (e *Engine) surfaceOf(tokenID string) string {
	if surface, ok := e.cache.TokenToWord(tokenID); ok {
		return surface
	}
	if surface, ok := e.cache.TokenToChar(tokenID); ok {
		return surface
	}
	return ""
}
