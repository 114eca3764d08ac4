// Package marker implements the geometric primitives of the marker-merge
// engine: the marker record itself, its derived radius, the signed overlap
// distance between two markers, and the centroid-weighted merge operation.
package marker

import "math"

// Kind selects the footprint shape and its overlap-distance formula.
type Kind int

const (
	// Circle markers use Euclidean center distance minus both radii.
	Circle Kind = iota
	// Square markers use an axis-aligned corner-distance approximation.
	Square
)

// sqrt1Pi is 1/sqrt(pi), the circle radius-scale constant.
const sqrt1Pi = 0.564189583547756286948079451560772585844050629328998856844085

// Info holds the parameters of the distance function and merging for one
// merge call. It is immutable once built by NewInfo / DefaultInfo.
type Info struct {
	Kind  Kind
	Scale float64 // user scale applied to radii during distance computation
	c     float64 // derived: scale/2 for square, scale/sqrt(pi) for circle
}

// DefaultInfo returns the default marker info: circle kind, unit scale.
func DefaultInfo() Info {
	return Info{Kind: Circle, Scale: 1, c: sqrt1Pi}
}

// NewInfo builds marker info for the given kind and scale.
func NewInfo(kind Kind, scale float64) Info {
	c := scale * sqrt1Pi
	if kind == Square {
		c = scale * 0.5
	}
	return Info{Kind: kind, Scale: scale, c: c}
}

// SizeToRadius converts a population size to a rendered footprint radius
// under this Info's kind and scale.
func (info Info) SizeToRadius(size float64) float64 {
	return info.c * math.Sqrt(size)
}

// Marker is an aggregated population rendered as a disc or square.
//
// PartA is the sentinel -1 for an original, unmerged marker; otherwise
// PartA and PartB name the two markers (at strictly smaller array indices)
// that produced this one via merging, embedding a binary merge tree in the
// marker array.
type Marker struct {
	Size    float64
	X, Y    float64
	R       float64
	XSum    float64
	YSum    float64
	Deleted bool
	PartA   int
	PartB   int
}

// New creates a single original marker at (x, y) with the given population
// size, under the given Info.
func New(info Info, x, y, size float64) Marker {
	return Marker{
		Size:  size,
		X:     x,
		Y:     y,
		R:     info.SizeToRadius(size),
		XSum:  x * size,
		YSum:  y * size,
		PartA: -1,
	}
}

// Merged reports whether m was produced by merging two other markers.
func (m *Marker) Merged() bool { return m.PartA >= 0 }

// West, East, South, North return the edges of m's axis-aligned bounding
// box (the square enclosing a circular footprint, or the square footprint
// itself).
func (m *Marker) West() float64  { return m.X - m.R }
func (m *Marker) East() float64  { return m.X + m.R }
func (m *Marker) South() float64 { return m.Y - m.R }
func (m *Marker) North() float64 { return m.Y + m.R }

// Distance returns the signed overlap distance between a and b: negative
// means the footprints overlap, zero means tangent, positive means disjoint.
func Distance(info Info, a, b *Marker) float64 {
	if info.Kind == Square {
		rSum := a.R + b.R
		dx := math.Abs(b.X-a.X) - rSum
		dy := math.Abs(b.Y-a.Y) - rSum
		if dx < 0 && dy < 0 {
			return math.Max(dx, dy)
		}
		return math.Sqrt(dx*dx + dy*dy)
	}
	dx := b.X - a.X
	dy := b.Y - a.Y
	return math.Sqrt(dx*dx+dy*dy) - a.R - b.R
}

// Overlaps reports whether a and b's footprints overlap (d < 0).
func Overlaps(info Info, a, b *Marker) bool {
	return Distance(info, a, b) < 0
}

// Merge combines a and b into merged: size is the sum, the center is the
// size-weighted centroid, and the merge-tree parent pointers record ia
// and ib. merged.Deleted is left false.
func Merge(info Info, merged, a, b *Marker, ia, ib int) {
	merged.Deleted = false
	merged.Size = a.Size + b.Size
	merged.R = info.SizeToRadius(merged.Size)
	merged.XSum = a.XSum + b.XSum
	merged.YSum = a.YSum + b.YSum
	merged.X = merged.XSum / merged.Size
	merged.Y = merged.YSum / merged.Size
	merged.PartA = ia
	merged.PartB = ib
}

// Extent is the axis-aligned bounding box enclosing a set of markers'
// footprints.
type Extent struct {
	X, Y, W, H float64
}

// ArrayExtent computes the bounding box of markers[:n]. Callers must pass
// n > 0; an empty slice has no meaningful extent.
func ArrayExtent(markers []Marker, n int) Extent {
	w := markers[0].West()
	e := markers[0].East()
	s := markers[0].South()
	north := markers[0].North()
	for i := 1; i < n; i++ {
		m := &markers[i]
		if v := m.West(); v < w {
			w = v
		}
		if v := m.East(); v > e {
			e = v
		}
		if v := m.South(); v < s {
			s = v
		}
		if v := m.North(); v > north {
			north = v
		}
	}
	return Extent{X: w, Y: s, W: e - w, H: north - s}
}

// ResetParts clears the merge-tree parent pointers, restoring the marker
// to "original" status. Used by compaction: once a merge tree's internals
// are gone, retained markers no longer name ancestors by index.
func (m *Marker) ResetParts() {
	m.PartA = -1
	m.PartB = 0
}
