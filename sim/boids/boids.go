// Package boids implements the flocking benchmark used to measure how the
// engine scales with agent population and worker count. Every bird reads the
// positions and headings its flock published at the previous tick and stages
// its own move for the next one.
package boids

import (
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/goab-dev/goab/engine"
	"github.com/goab-dev/goab/engine/field"
	"github.com/goab-dev/goab/util/dbmap"
)

// Params weighs the flocking rules of the birds.
type Params struct {
	Cohesion    float64 `toml:"cohesion"`
	Avoidance   float64 `toml:"avoidance"`
	Randomness  float64 `toml:"randomness"`
	Consistency float64 `toml:"consistency"`
	Momentum    float64 `toml:"momentum"`
	// Jump is the distance a bird travels per tick.
	Jump float64 `toml:"jump"`
	// Radius is the neighborhood distance of the flocking rules.
	Radius float64 `toml:"radius"`
}

// DefaultParams returns the parameter set of the scaling benchmark.
func DefaultParams() Params {
	return Params{
		Cohesion:    1.0,
		Avoidance:   1.0,
		Randomness:  1.0,
		Consistency: 1.0,
		Momentum:    1.0,
		Jump:        0.7,
		Radius:      10.0,
	}
}

var _ engine.State = (*Flock)(nil)

// Flock is the simulation state of the benchmark: a toroidal field of birds
// plus a double-buffered map of their headings.
type Flock struct {
	Field  *field.Field2D[*Bird]
	Params Params

	width, height float64
	population    int

	headings *dbmap.Map[*Bird, mgl64.Vec2]

	r *rand.Rand
}

// NewFlock creates a benchmark state over a toroidal w×h field discretized
// at pitch d, populated with n birds at Init.
func NewFlock(w, h, d float64, n int, params Params) *Flock {
	return &Flock{
		Field:      field.NewField2D[*Bird](w, h, d, true),
		Params:     params,
		width:      w,
		height:     h,
		population: n,
		headings:   dbmap.New[*Bird, mgl64.Vec2](),
		r:          rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Reset empties the field and the heading map.
func (f *Flock) Reset() {
	f.Field.Reset()
	f.headings.Reset()
}

// Init places the population at random locations and schedules every bird as
// a repeating agent at time 0.
func (f *Flock) Init(s *engine.Schedule) {
	for i := 0; i < f.population; i++ {
		// Every bird carries its own generator: steps run concurrently and
		// rand.Rand is not safe for shared use.
		b := &Bird{flock: f, r: rand.New(rand.NewPCG(f.r.Uint64(), f.r.Uint64()))}
		b.loc = mgl64.Vec2{f.r.Float64() * f.width, f.r.Float64() * f.height}
		f.Field.SetObjectLocation(b, b.loc)
		f.headings.Insert(b, mgl64.Vec2{})
		s.ScheduleRepeating(b, 0, 0)
	}
}

// Update publishes field placements and headings at the tick barrier.
func (f *Flock) Update(step uint64) {
	f.Field.Update()
	f.headings.Update()
}

// Bird is a flocking agent. Its step combines cohesion, avoidance,
// consistency, randomness and momentum into a bounded jump.
type Bird struct {
	flock *Flock
	loc   mgl64.Vec2
	last  mgl64.Vec2
	r     *rand.Rand
}

// Step reads the neighborhood published at the previous barrier and stages
// the bird's next position and heading.
func (b *Bird) Step(engine.State) {
	f := b.flock
	p := f.Params

	neighbors := f.Field.GetNeighborsWithinDistance(b.loc, p.Radius)

	var (
		cohesion    mgl64.Vec2
		avoidance   mgl64.Vec2
		consistency mgl64.Vec2
		count       float64
	)
	for _, other := range neighbors {
		if other == b {
			continue
		}
		loc, ok := f.Field.GetLocation(other)
		if !ok {
			continue
		}
		dx := toroidalDiff(b.loc[0], loc[0], f.width)
		dy := toroidalDiff(b.loc[1], loc[1], f.height)

		cohesion = cohesion.Add(mgl64.Vec2{dx, dy})
		sq := dx*dx + dy*dy
		avoidance = avoidance.Add(mgl64.Vec2{dx / (sq + 1), dy / (sq + 1)})
		if heading, ok := f.headings.Get(other); ok {
			consistency = consistency.Add(heading)
		}
		count++
	}
	if count > 0 {
		// Cohesion steers towards the neighborhood's center of mass, so the
		// mean displacement is inverted; avoidance keeps its sign, pushing
		// away from close neighbors.
		cohesion = cohesion.Mul(-1.0 / (10.0 * count))
		avoidance = avoidance.Mul(400.0 / count)
		consistency = consistency.Mul(1.0 / count)
	}
	random := mgl64.Vec2{b.r.Float64()*2 - 1, b.r.Float64()*2 - 1}

	dir := mgl64.Vec2{}
	dir = dir.Add(cohesion.Mul(p.Cohesion))
	dir = dir.Add(avoidance.Mul(p.Avoidance))
	dir = dir.Add(consistency.Mul(p.Consistency))
	dir = dir.Add(random.Mul(p.Randomness))
	dir = dir.Add(b.last.Mul(p.Momentum))
	if sum := p.Cohesion + p.Avoidance + p.Consistency + p.Randomness + p.Momentum; sum > 0 {
		dir = dir.Mul(1.0 / sum)
	}
	if l := dir.Len(); l > 1 {
		dir = dir.Mul(1.0 / l)
	}

	b.last = dir
	b.loc = mgl64.Vec2{
		field.ToroidalTransform(b.loc[0]+dir[0]*p.Jump, f.width),
		field.ToroidalTransform(b.loc[1]+dir[1]*p.Jump, f.height),
	}
	f.Field.SetObjectLocation(b, b.loc)
	f.headings.Insert(b, b.last)
}

// toroidalDiff returns the signed difference a-b along the shortest arc of a
// circle of circumference l.
func toroidalDiff(a, b, l float64) float64 {
	d := a - b
	if d > l/2 {
		d -= l
	} else if d < -l/2 {
		d += l
	}
	return d
}
