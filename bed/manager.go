package bed

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/Human-Cognome-Project/human-cognome-project-sub000/tiers"
)

// Lexicon is the vocabulary slice the hyphen cascade consults. The vocab
// cache satisfies it directly.
type Lexicon interface {
	LookupWord(word string) (string, bool)
	LookupChar(cp rune) (string, bool)
}

// Config tunes the manager.
type Config struct {
	// ParticleBudget caps the particle count of each bed; 0 means
	// DefaultParticleBudget.
	ParticleBudget int

	// SettleSteps is the number of simulator time steps advanced per tier.
	// 0 means DefaultSettleSteps.
	SettleSteps int
}

// DefaultSettleSteps is the per-tier simulator step budget.
const DefaultSettleSteps = 60

// Manager composes the per-length beds over one shared simulator and
// drives the tier cascade.
type Manager struct {
	sim  Simulator
	lex  Lexicon
	cfg  Config
	beds map[int]*Bed
}

// NewManager builds one bed per vocabulary length in the assembly. Bed
// construction uploads the static vocabulary once; the beds persist across
// Resolve batches.
func NewManager(sim Simulator, assembly *tiers.Assembly, lex Lexicon, cfg Config) *Manager {
	if cfg.SettleSteps <= 0 {
		cfg.SettleSteps = DefaultSettleSteps
	}
	m := &Manager{sim: sim, lex: lex, cfg: cfg, beds: make(map[int]*Bed)}
	for _, length := range assembly.Lengths() {
		m.beds[length] = NewBed(sim, length, assembly, cfg.ParticleBudget)
	}
	klog.Infof("bed manager: %d beds over lengths %v", len(m.beds), assembly.Lengths())
	return m
}

// Resolve settles a batch of candidate runs against the vocabulary beds.
// Runs without a hosting bed come back unresolved with NoVocab set;
// overflowed runs are re-batched until every run has had a bed pass. The
// hyphen cascade then reworks the hyphenated leftovers.
func (m *Manager) Resolve(runs []Run) ([]Result, error) {
	results := make([]Result, 0, len(runs))
	pending := runs
	for len(pending) > 0 {
		batch, overflow, err := m.resolveBatch(pending)
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)
		if len(overflow) >= len(pending) {
			// No bed admitted anything; stop rather than spin.
			for _, run := range overflow {
				results = append(results, Result{Run: run, NoVocab: true})
			}
			break
		}
		pending = overflow
	}
	for ii := range results {
		if !results[ii].Resolved && strings.ContainsRune(results[ii].Run.Text, '-') {
			m.cascadeHyphens(&results[ii])
		}
	}
	resolved := 0
	for _, r := range results {
		if r.Resolved {
			resolved++
		}
	}
	klog.V(1).Infof("bed manager: %d/%d runs resolved", resolved, len(results))
	return results, nil
}

// resolveBatch runs one load/cascade/collect cycle over all beds.
func (m *Manager) resolveBatch(runs []Run) (results []Result, overflow []Run, err error) {
	byLength := make(map[int][]Run)
	for _, run := range runs {
		if bed := m.beds[len(run.Text)]; bed != nil {
			byLength[len(run.Text)] = append(byLength[len(run.Text)], run)
			continue
		}
		results = append(results, Result{Run: run, NoVocab: true})
	}
	if len(byLength) == 0 {
		return results, nil, nil
	}

	// Beds own disjoint particle ranges, so loading is parallel.
	type loaded struct {
		overflow, noVocab []Run
	}
	var active []*Bed
	var batches [][]Run
	for length, batch := range byLength {
		active = append(active, m.beds[length])
		batches = append(batches, batch)
	}
	outs := make([]loaded, len(active))
	var g errgroup.Group
	for ii := range active {
		ii := ii
		g.Go(func() error {
			var err error
			outs[ii].overflow, outs[ii].noVocab, err = active[ii].LoadRuns(batches[ii])
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	for _, out := range outs {
		overflow = append(overflow, out.overflow...)
		for _, run := range out.noVocab {
			results = append(results, Result{Run: run, NoVocab: true})
		}
	}

	maxTier := 0
	for _, bed := range active {
		if bed.MaxTierCount() > maxTier {
			maxTier = bed.MaxTierCount()
		}
	}
	for tier := 0; tier < maxTier; tier++ {
		m.sim.Advance(m.cfg.SettleSteps)
		unresolved := 0
		for _, bed := range active {
			bed.CheckSettlement(tier)
			unresolved += bed.Unresolved()
		}
		if unresolved == 0 {
			break
		}
		for _, bed := range active {
			if bed.Unresolved() > 0 {
				bed.FlipToTier(tier + 1)
			}
		}
	}
	for _, bed := range active {
		results = append(results, bed.Results()...)
		bed.ResetDynamics()
	}
	return results, overflow, nil
}

// cascadeHyphens reworks an unresolved hyphenated run. Step two strips the
// hyphens and resolves the concatenation as one word; step three splits on
// hyphens and accepts the run only if every segment resolves, hyphen
// tokens interleaved.
func (m *Manager) cascadeHyphens(r *Result) {
	text := strings.ToLower(r.Run.Text)

	joined := strings.ReplaceAll(text, "-", "")
	if id, ok := m.lex.LookupWord(joined); ok {
		r.Word = joined
		r.TokenIDs = []string{id}
		r.Resolved = true
		r.NoVocab = false
		return
	}

	segments := strings.Split(text, "-")
	var ids []string
	for ii, seg := range segments {
		if ii > 0 {
			dash, ok := m.lex.LookupChar('-')
			if !ok {
				return
			}
			ids = append(ids, dash)
		}
		if seg == "" {
			continue
		}
		if id, ok := m.resolveSegment(seg); ok {
			ids = append(ids, id)
			continue
		}
		return
	}
	r.Word = text
	r.TokenIDs = ids
	r.Resolved = true
	r.NoVocab = false
}

func (m *Manager) resolveSegment(seg string) (string, bool) {
	if id, ok := m.lex.LookupWord(seg); ok {
		return id, true
	}
	if utf8.RuneCountInString(seg) == 1 {
		cp, _ := utf8.DecodeRuneInString(seg)
		return m.lex.LookupChar(cp)
	}
	return "", false
}
