package bed

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Human-Cognome-Project/human-cognome-project-sub000/tiers"
)

// DefaultParticleBudget bounds the particle count of one bed.
const DefaultParticleBudget = 60000

// MaxSlotsPerGroup bounds the replication factor of a first-character group.
const MaxSlotsPerGroup = 256

// group is one first-character partition of a bed: the bucket's entries
// replicated over slotsPerGroup columns, plus one dynamic column range.
type group struct {
	first   byte
	bucket  *tiers.Bucket
	ordinal int

	// dynBase is the base particle index of the group's dynamic columns.
	dynBase int

	// nextSlot is the next free dynamic column.
	nextSlot int
}

// slot tracks one loaded dynamic column.
type slot struct {
	group *group
	index int
	base  int

	run    Run
	folded string

	tier      int
	resolved  bool
	exhausted bool
	word      string
	tokenID   string
}

// Bed is the persistent arena for one word length. The static region is
// uploaded once; dynamic columns are reused batch after batch.
type Bed struct {
	sim    Simulator
	length int

	slotsPerGroup int
	groups        map[byte]*group

	inertPhase int32
	tierPhases []int32

	slots []*slot
}

// NewBed lays out and uploads the arena for one word length. Buckets come
// from the tier assembly; the particle budget caps the per-group
// replication factor.
func NewBed(sim Simulator, length int, assembly *tiers.Assembly, budget int) *Bed {
	if budget <= 0 {
		budget = DefaultParticleBudget
	}
	b := &Bed{sim: sim, length: length, groups: make(map[byte]*group)}

	perSlot := 0
	ordinal := 0
	for c := byte('a'); c <= 'z'; c++ {
		bucket := assembly.Bucket(length, c)
		if bucket == nil || len(bucket.Entries) == 0 {
			continue
		}
		b.groups[c] = &group{first: c, bucket: bucket, ordinal: ordinal}
		ordinal++
		// Static replicas plus the dynamic column, per group slot.
		perSlot += (len(bucket.Entries) + 1) * length
	}
	if len(b.groups) == 0 {
		return b
	}
	b.slotsPerGroup = budget / perSlot
	if b.slotsPerGroup < 1 {
		b.slotsPerGroup = 1
	}
	if b.slotsPerGroup > MaxSlotsPerGroup {
		b.slotsPerGroup = MaxSlotsPerGroup
	}

	b.inertPhase = sim.NewPhase(false)
	maxTiers := assembly.MaxTierCount(length)
	for tier := 0; tier < maxTiers; tier++ {
		b.tierPhases = append(b.tierPhases, sim.NewPhase(true))
	}

	for _, g := range b.groups {
		for _, e := range g.bucket.Entries {
			base := sim.Alloc(length * b.slotsPerGroup)
			for s := 0; s < b.slotsPerGroup; s++ {
				for ii := 0; ii < length; ii++ {
					sim.Set(base+s*length+ii, Particle{
						X:     b.column(g, s, ii),
						Y:     0,
						Z:     zOf(e.Word[ii]),
						Mass:  0,
						Phase: b.tierPhases[e.Tier],
					})
				}
			}
		}
		g.dynBase = sim.Alloc(length * b.slotsPerGroup)
		for i := 0; i < length*b.slotsPerGroup; i++ {
			sim.Set(g.dynBase+i, Particle{Mass: 1, Phase: b.inertPhase})
		}
	}
	klog.V(1).Infof("bed[len=%d]: %d groups, %d slots/group, %d static entries",
		length, len(b.groups), b.slotsPerGroup, b.staticEntries())
	return b
}

func (b *Bed) staticEntries() (n int) {
	for _, g := range b.groups {
		n += len(g.bucket.Entries)
	}
	return
}

// column returns the X coordinate of character ii in column s of group g.
// The same expression positions static replicas and dynamic runs, so the
// support query matches exactly.
func (b *Bed) column(g *group, s, ii int) float32 {
	stride := b.slotsPerGroup*b.length + b.length
	return float32(g.ordinal*stride + s*b.length + ii)
}

func zOf(c byte) float32 { return float32(c) * ZScale }

// MaxTierCount returns the number of tier phases this bed cascades over.
func (b *Bed) MaxTierCount() int { return len(b.tierPhases) }

// LoadRuns assigns each run a dynamic column in its first-character group
// and writes its particles at the drop offset in the tier-0 phase. Runs
// whose group is full come back as overflow; runs with no hosting group (or
// non-letter content) come back as noVocab.
func (b *Bed) LoadRuns(runs []Run) (overflow, noVocab []Run, err error) {
	for _, run := range runs {
		folded, ok := run.folded()
		if !ok || folded == "" {
			noVocab = append(noVocab, run)
			continue
		}
		if len(folded) != b.length {
			return nil, nil, errors.Errorf("bed[len=%d]: run %q routed to wrong bed", b.length, run.Text)
		}
		g := b.groups[folded[0]]
		if g == nil {
			noVocab = append(noVocab, run)
			continue
		}
		if g.nextSlot >= b.slotsPerGroup {
			overflow = append(overflow, run)
			continue
		}
		s := g.nextSlot
		g.nextSlot++
		base := g.dynBase + s*b.length
		for ii := 0; ii < b.length; ii++ {
			b.sim.Set(base+ii, Particle{
				X:     b.column(g, s, ii),
				Y:     DropOffset,
				Z:     zOf(folded[ii]),
				Mass:  1,
				Phase: b.tierPhases[0],
			})
		}
		b.slots = append(b.slots, &slot{
			group: g, index: s, base: base, run: run, folded: folded,
		})
	}
	return overflow, noVocab, nil
}

// CheckSettlement inspects every unresolved slot currently cascading at
// the given tier. A slot settles when all its particles are inside the
// settlement window; the settled run then binds to the group entry whose
// text matches exactly. A settled slot with no exact match (per-character
// coincidence across different words) stays unresolved and cascades on.
func (b *Bed) CheckSettlement(tier int) {
	for _, sl := range b.slots {
		if sl.resolved || sl.exhausted || sl.tier != tier {
			continue
		}
		settled := true
		for ii := 0; ii < b.length; ii++ {
			p := b.sim.Get(sl.base + ii)
			if abs(p.Y) >= SettleY || abs(p.VY) >= VelocityThreshold {
				settled = false
				break
			}
		}
		if !settled {
			continue
		}
		for _, e := range sl.group.bucket.Entries {
			if e.Word == sl.folded {
				sl.resolved = true
				sl.word = e.Word
				sl.tokenID = e.TokenID
				b.park(sl)
				break
			}
		}
	}
}

// FlipToTier resets every unresolved slot to the drop offset and migrates
// it to the next tier's phase. Slots past the last tier are exhausted and
// parked unresolved.
func (b *Bed) FlipToTier(next int) {
	for _, sl := range b.slots {
		if sl.resolved || sl.exhausted {
			continue
		}
		if next >= len(b.tierPhases) {
			sl.exhausted = true
			b.park(sl)
			continue
		}
		sl.tier = next
		for ii := 0; ii < b.length; ii++ {
			p := b.sim.Get(sl.base + ii)
			p.Y = DropOffset
			p.VY = 0
			p.Phase = b.tierPhases[next]
			b.sim.Set(sl.base+ii, p)
		}
	}
}

func (b *Bed) park(sl *slot) {
	for ii := 0; ii < b.length; ii++ {
		p := b.sim.Get(sl.base + ii)
		p.Phase = b.inertPhase
		b.sim.Set(sl.base+ii, p)
	}
}

// Unresolved counts the slots still cascading.
func (b *Bed) Unresolved() (n int) {
	for _, sl := range b.slots {
		if !sl.resolved && !sl.exhausted {
			n++
		}
	}
	return
}

// Results reports the outcome of every loaded slot.
func (b *Bed) Results() []Result {
	out := make([]Result, 0, len(b.slots))
	for _, sl := range b.slots {
		r := Result{Run: sl.run, Resolved: sl.resolved}
		if sl.resolved {
			r.Word = sl.word
			r.TokenIDs = []string{sl.tokenID}
		}
		out = append(out, r)
	}
	return out
}

// ResetDynamics parks every dynamic column and frees the slots for the
// next batch.
func (b *Bed) ResetDynamics() {
	for _, sl := range b.slots {
		b.park(sl)
	}
	b.slots = b.slots[:0]
	for _, g := range b.groups {
		g.nextSlot = 0
	}
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
