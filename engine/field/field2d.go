package field

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/segmentio/fasthash/fnv1a"

	"github.com/goab-dev/goab/internal/sliceutil"
	"github.com/goab-dev/goab/util/dbmap"
)

// Int2D is the discretized bucket coordinate of a location in a Field2D.
type Int2D struct {
	X, Y int32
}

func int2DHasher(b Int2D) uint64 {
	return fnv1a.HashUint64(uint64(uint32(b.X))<<32 | uint64(uint32(b.Y)))
}

// Field2D is a continuous rectangle [0,w) × [0,h) discretized into square
// buckets of pitch d for neighbor queries. Objects of type O are placed at
// mgl64.Vec2 locations; the torus flag controls wrap-around in placement and
// distance. Two double-buffered maps are held, object→location and
// bucket→objects, swapped together by a single Update.
type Field2D[O comparable] struct {
	width, height float64
	pitch         float64
	toroidal      bool

	// Grid dimensions in buckets.
	bw, bh int32

	locs    *dbmap.Map[O, mgl64.Vec2]
	buckets *dbmap.Map[Int2D, []O]
}

// NewField2D creates a field of the given extent and discretization pitch.
// It panics if the extent is not finite and positive or if the pitch is not
// positive.
func NewField2D[O comparable](w, h, d float64, toroidal bool) *Field2D[O] {
	if !(w > 0) || !(h > 0) || math.IsInf(w, 0) || math.IsInf(h, 0) {
		panic(fmt.Sprintf("field: field extent must be finite and positive, got %vx%v", w, h))
	}
	if !(d > 0) || math.IsInf(d, 0) {
		panic(fmt.Sprintf("field: discretization pitch must be positive, got %v", d))
	}
	return &Field2D[O]{
		width:    w,
		height:   h,
		pitch:    d,
		toroidal: toroidal,
		bw:       int32(math.Ceil(w / d)),
		bh:       int32(math.Ceil(h / d)),
		locs:     dbmap.New[O, mgl64.Vec2](),
		buckets:  dbmap.NewWithHasher[Int2D, []O](int2DHasher, 64),
	}
}

// Width returns the horizontal extent of the field.
func (f *Field2D[O]) Width() float64 { return f.width }

// Height returns the vertical extent of the field.
func (f *Field2D[O]) Height() float64 { return f.height }

// Toroidal reports whether the field wraps around at its edges.
func (f *Field2D[O]) Toroidal() bool { return f.toroidal }

func (f *Field2D[O]) bucket(pos mgl64.Vec2) Int2D {
	return Int2D{
		X: int32(math.Floor(pos[0] / f.pitch)),
		Y: int32(math.Floor(pos[1] / f.pitch)),
	}
}

// SetObjectLocation stages the placement of obj at pos. On a toroidal field
// the position is wrapped into the rectangle first; on a bounded field a
// position outside [0,w) × [0,h) is an invariant violation and panics. The
// placement becomes visible to readers after the next Update.
func (f *Field2D[O]) SetObjectLocation(obj O, pos mgl64.Vec2) {
	if f.toroidal {
		pos = mgl64.Vec2{ToroidalTransform(pos[0], f.width), ToroidalTransform(pos[1], f.height)}
	} else if pos[0] < 0 || pos[0] >= f.width || pos[1] < 0 || pos[1] >= f.height {
		panic(fmt.Sprintf("field: location %v outside bounded field %vx%v", pos, f.width, f.height))
	}

	b := f.bucket(pos)
	if prev, ok := f.locs.GetStaged(obj); ok {
		if pb := f.bucket(prev); pb != b {
			f.buckets.Upsert(pb, func(objs []O, _ bool) []O {
				return sliceutil.DeleteVal(objs, obj)
			})
		}
	}
	f.buckets.Upsert(b, func(objs []O, _ bool) []O {
		if sliceutil.Index(objs, obj) >= 0 {
			return objs
		}
		return append(objs, obj)
	})
	f.locs.Insert(obj, pos)
}

// GetLocation returns the published location of obj.
func (f *Field2D[O]) GetLocation(obj O) (mgl64.Vec2, bool) {
	return f.locs.Get(obj)
}

// GetObjectsAtLocation returns the published contents of the bucket that
// contains pos.
func (f *Field2D[O]) GetObjectsAtLocation(pos mgl64.Vec2) []O {
	if f.toroidal {
		pos = mgl64.Vec2{ToroidalTransform(pos[0], f.width), ToroidalTransform(pos[1], f.height)}
	}
	objs, _ := f.buckets.Get(f.bucket(pos))
	return objs
}

// RemoveObject stages the removal of obj from the field.
func (f *Field2D[O]) RemoveObject(obj O) {
	if prev, ok := f.locs.GetStaged(obj); ok {
		f.buckets.Upsert(f.bucket(prev), func(objs []O, _ bool) []O {
			return sliceutil.DeleteVal(objs, obj)
		})
	}
	f.locs.Remove(obj)
}

// GetNeighborsWithinDistance returns every published object whose distance
// from center does not exceed r under the field's metric. The scan covers the
// square of buckets spanning the disk of radius r; on a toroidal field bucket
// coordinates wrap, and objects across the wrap are returned once.
func (f *Field2D[O]) GetNeighborsWithinDistance(center mgl64.Vec2, r float64) []O {
	if r < 0 {
		return nil
	}
	if f.toroidal {
		center = mgl64.Vec2{ToroidalTransform(center[0], f.width), ToroidalTransform(center[1], f.height)}
	}

	span := int32(math.Ceil(r / f.pitch))
	if f.toroidal && (float64(f.bw)*f.pitch > f.width || float64(f.bh)*f.pitch > f.height) {
		// The last bucket column or row is narrower than the pitch, so a scan
		// crossing the wrap covers less distance; one extra ring keeps the
		// whole disk of radius r inside the scanned square.
		span++
	}
	cb := f.bucket(center)

	seen := make(map[Int2D]struct{}, (2*span+1)*(2*span+1))
	var out []O
	for dx := -span; dx <= span; dx++ {
		for dy := -span; dy <= span; dy++ {
			b := Int2D{X: cb.X + dx, Y: cb.Y + dy}
			if f.toroidal {
				b.X = wrapBucket(b.X, f.bw)
				b.Y = wrapBucket(b.Y, f.bh)
			} else if b.X < 0 || b.X >= f.bw || b.Y < 0 || b.Y >= f.bh {
				continue
			}
			if _, dup := seen[b]; dup {
				continue
			}
			seen[b] = struct{}{}

			objs, ok := f.buckets.Get(b)
			if !ok {
				continue
			}
			for _, obj := range objs {
				loc, ok := f.locs.Get(obj)
				if !ok {
					continue
				}
				if f.distance(center, loc) <= r {
					out = append(out, obj)
				}
			}
		}
	}
	return out
}

func (f *Field2D[O]) distance(a, b mgl64.Vec2) float64 {
	if f.toroidal {
		dx := ToroidalDistance(a[0], b[0], f.width)
		dy := ToroidalDistance(a[1], b[1], f.height)
		return math.Hypot(dx, dy)
	}
	return a.Sub(b).Len()
}

func wrapBucket(v, n int32) int32 {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

// NumObjects returns the number of objects in the published view.
func (f *Field2D[O]) NumObjects() int {
	return f.locs.Len()
}

// Update promotes both inner maps in a single publication step.
func (f *Field2D[O]) Update() {
	f.locs.Update()
	f.buckets.Update()
}

// LazyUpdate promotes both inner maps only where writes are pending.
func (f *Field2D[O]) LazyUpdate() {
	f.locs.LazyUpdate()
	f.buckets.LazyUpdate()
}

// Reset empties the field entirely, read and write views both.
func (f *Field2D[O]) Reset() {
	f.locs.Reset()
	f.buckets.Reset()
}

// ToroidalTransform maps any real coordinate into [0,l) by mod-like
// reduction, negative values included.
func ToroidalTransform(v, l float64) float64 {
	v = math.Mod(v, l)
	if v < 0 {
		v += l
	}
	if v >= l {
		v = 0
	}
	return v
}

// ToroidalDistance returns the wrap-around distance between two coordinates
// on a circle of circumference l: min(|a-b|, l-|a-b|).
func ToroidalDistance(a, b, l float64) float64 {
	d := math.Abs(ToroidalTransform(a, l) - ToroidalTransform(b, l))
	return math.Min(d, l-d)
}
