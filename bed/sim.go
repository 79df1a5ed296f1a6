// Package bed implements the physics-analog resolver: per-length particle
// beds holding the tiered vocabulary as static shapes, a shared simulator
// that drops candidate character runs onto them, and the manager that
// cascades unsettled runs through the frequency tiers.
package bed

// Scene constants. X is the horizontal column axis, Y the drop axis, Z the
// char-identity encoding. A dynamic particle can only find support from a
// static particle sharing its exact column and Z identity, so settlement
// implies a per-position character match against the vocabulary.
const (
	ZScale            float32 = 0.05
	DropOffset        float32 = 2.0
	SettleY           float32 = 0.05
	VelocityThreshold float32 = 0.05

	gravity  float32 = -9.8
	timeStep float32 = 1.0 / 60.0

	// settleRate contracts a supported particle's height geometrically per
	// step, so a supported run is always inside the settlement window after
	// a tier's step budget.
	settleRate float32 = 0.5
)

// Particle is one kinematic point in the shared scene. Static vocabulary
// particles carry mass 0 and never move; dynamic run particles carry mass 1.
type Particle struct {
	X, Y, Z float32
	VY      float32
	Mass    float32
	Phase   int32
}

// Simulator is the shared scene all beds upload into. Beds own disjoint
// index ranges, so concurrent Set calls from different beds are safe;
// Advance must not run concurrently with any other call.
type Simulator interface {
	// Alloc reserves n particle slots and returns the base index.
	Alloc(n int) int

	// Set overwrites the particle at index i.
	Set(i int, p Particle)

	// Get reads back the particle at index i.
	Get(i int) Particle

	// NewPhase creates a phase; inactive phases are excluded from
	// integration (parked particles).
	NewPhase(active bool) int32

	// Advance integrates every dynamic particle in an active phase over
	// the given number of time steps.
	Advance(steps int)
}

type supportKey struct {
	phase int32
	x, z  float32
}

// CPUSimulator is the accelerator-free scene implementation. Support
// queries use an exact index over the static particles: column and identity
// values are computed by the same code path on both sides, so float
// equality is well defined.
type CPUSimulator struct {
	particles []Particle
	active    map[int32]bool
	nextPhase int32
	support   map[supportKey]int
}

// NewCPUSimulator returns an empty scene.
func NewCPUSimulator() *CPUSimulator {
	return &CPUSimulator{
		active:  make(map[int32]bool),
		support: make(map[supportKey]int),
	}
}

// Alloc implements Simulator.
func (s *CPUSimulator) Alloc(n int) int {
	base := len(s.particles)
	s.particles = append(s.particles, make([]Particle, n)...)
	return base
}

// Set implements Simulator.
func (s *CPUSimulator) Set(i int, p Particle) {
	if old := s.particles[i]; old.Mass == 0 && (old.X != 0 || old.Z != 0) {
		s.support[supportKey{old.Phase, old.X, old.Z}]--
	}
	s.particles[i] = p
	if p.Mass == 0 && (p.X != 0 || p.Z != 0) {
		s.support[supportKey{p.Phase, p.X, p.Z}]++
	}
}

// Get implements Simulator.
func (s *CPUSimulator) Get(i int) Particle { return s.particles[i] }

// NewPhase implements Simulator.
func (s *CPUSimulator) NewPhase(active bool) int32 {
	id := s.nextPhase
	s.nextPhase++
	s.active[id] = active
	return id
}

// Advance implements Simulator. A supported dynamic particle contracts
// toward the bed plane; an unsupported one free-falls, so its velocity
// leaves the settlement window within a handful of steps.
func (s *CPUSimulator) Advance(steps int) {
	for n := 0; n < steps; n++ {
		for i := range s.particles {
			p := &s.particles[i]
			if p.Mass == 0 || !s.active[p.Phase] {
				continue
			}
			if s.support[supportKey{p.Phase, p.X, p.Z}] > 0 {
				p.VY = -p.Y * settleRate
				p.Y += p.VY
			} else {
				p.VY += gravity * timeStep
				p.Y += p.VY * timeStep
			}
		}
	}
}
