// Package quadtree implements the marker-merge engine's spatial index: a
// depth-bounded region quadtree over marker footprints, supporting insert,
// delete, and the engine's core query — among the markers at a smaller
// array index that overlap a given one, the one with the smallest
// (most negative) overlap distance.
//
// Because markers have extent rather than being points, a single marker
// may be stored at more than one node (every node whose region it
// touches), and because the distance function is non-Euclidean, no
// minimum-possible-distance pruning of subtrees is attempted: every
// touched node is visited. Touch-code pruning (which quadrants a marker's
// bounding box can reach) is the only pruning performed.
package quadtree

import (
	"github.com/azybler/markermerge/pkg/marker"
)

// Quadrant bit assignments: bit 0 (1's place) is the east/west split, bit
// 1 (2's place) is the north/south split.
const (
	sw = 0
	se = 1
	nw = 2
	ne = 3
)

// node is either a leaf (children == nil) holding a list of marker indices
// whose footprints overlap the node's region, or an internal node with
// exactly four children.
type node struct {
	children []node
	indices  []int
}

func (n *node) isLeaf() bool { return n.children == nil }

func (n *node) addIndex(i int) {
	n.indices = append(n.indices, i)
}

func (n *node) removeIndex(i int) {
	for k, idx := range n.indices {
		if idx == i {
			last := len(n.indices) - 1
			n.indices[k] = n.indices[last]
			n.indices = n.indices[:last]
			return
		}
	}
}

func (n *node) subdivide() {
	if n.isLeaf() {
		n.children = make([]node, 4)
	}
}

func (n *node) emptyLeaves() bool {
	for i := range n.children {
		if !n.children[i].isLeaf() || len(n.children[i].indices) > 0 {
			return false
		}
	}
	return true
}

// Tree is a marker quadtree over a fixed root bounding box, with max depth
// chosen once at setup. It stores references (array indices) into a
// caller-owned marker slice; the slice must outlive the Tree and must not
// be reallocated (grown via append) while the Tree is in use — the merge
// engine arena is pre-sized to 2n-1 for exactly this reason.
type Tree struct {
	x, y, w, h float64
	maxDepth   int
	info       marker.Info
	markers    []marker.Marker
	root       node
}

// HighBitPosition returns the 0-based index of n's highest set bit, or -1
// if n is zero.
func HighBitPosition(n int) int {
	p := -1
	for n > 0 {
		p++
		n >>= 1
	}
	return p
}

// DepthForCount is the heuristic max_depth = floor(high_bit_position(n)/4) + 3
// used to size a quadtree for n markers. Deeper subdivision helps only up
// to a point for fixed-density inputs; this is a tuning parameter, not a
// correctness requirement.
func DepthForCount(n int) int {
	return HighBitPosition(n)/4 + 3
}

// New creates a quadtree over the given bounding box and marker slice.
// markers must have stable backing storage for the lifetime of the tree.
func New(ext marker.Extent, maxDepth int, info marker.Info, markers []marker.Marker) *Tree {
	return &Tree{
		x: ext.X, y: ext.Y, w: ext.W, h: ext.H,
		maxDepth: maxDepth,
		info:     info,
		markers:  markers,
	}
}

// boundsInsideMarker reports whether the box (x,y,w,h) lies entirely
// inside the marker's axis-aligned bounding box, including the boundary.
func boundsInsideMarker(x, y, w, h float64, m *marker.Marker) bool {
	return m.West() <= x && x+w <= m.East() && m.South() <= y && y+h <= m.North()
}

// touchCode returns a 4-bit mask of which quadrants of box (x,y,w,h) the
// marker's bounding box overlaps.
func touchCode(x, y, w, h float64, m *marker.Marker) int {
	xm := x + 0.5*w
	ym := y + 0.5*h
	code := 1<<sw | 1<<se | 1<<nw | 1<<ne
	if m.East() < xm {
		code &^= 1<<ne | 1<<se
	}
	if m.West() > xm {
		code &^= 1<<nw | 1<<sw
	}
	if m.North() < ym {
		code &^= 1<<nw | 1<<ne
	}
	if m.South() > ym {
		code &^= 1<<sw | 1<<se
	}
	return code
}

// toQuadrant narrows box (x,y,w,h) to the given quadrant of itself.
func toQuadrant(q int, x, y, w, h float64) (float64, float64, float64, float64) {
	w *= 0.5
	h *= 0.5
	if q&1 != 0 {
		x += w
	}
	if q&2 != 0 {
		y += h
	}
	return x, y, w, h
}

// Insert adds a marker's index to the tree, descending into every
// quadrant its footprint touches (or storing it at the current node if
// the node's region is wholly inside the marker, or depth is exhausted).
// No-op if the marker's bounding box doesn't intersect the root region.
func (t *Tree) Insert(index int) {
	m := &t.markers[index]
	if m.East() < t.x || m.West() > t.x+t.w || m.North() < t.y || m.South() > t.y+t.h {
		return
	}
	insert(&t.root, t.maxDepth, t.x, t.y, t.w, t.h, m, index)
}

func insert(n *node, levels int, x, y, w, h float64, m *marker.Marker, index int) {
	if boundsInsideMarker(x, y, w, h, m) || levels == 0 {
		n.addIndex(index)
		return
	}
	n.subdivide()
	code := touchCode(x, y, w, h, m)
	for q := 0; q < 4; q++ {
		if code&(1<<q) != 0 {
			xx, yy, ww, hh := toQuadrant(q, x, y, w, h)
			insert(&n.children[q], levels-1, xx, yy, ww, hh, m, index)
		}
	}
}

// Delete removes a marker's index from the tree, descending the same
// path insertion would have taken (the marker's geometry is unchanged
// since insertion), and trims any internal node whose four children have
// all become empty leaves.
func (t *Tree) Delete(index int) {
	m := &t.markers[index]
	deleteIndex(&t.root, t.maxDepth, t.x, t.y, t.w, t.h, m, index)
}

func deleteIndex(n *node, levels int, x, y, w, h float64, m *marker.Marker, index int) {
	if boundsInsideMarker(x, y, w, h, m) || levels == 0 {
		n.removeIndex(index)
		return
	}
	if n.isLeaf() {
		return
	}
	code := touchCode(x, y, w, h, m)
	for q := 0; q < 4; q++ {
		if code&(1<<q) != 0 {
			xx, yy, ww, hh := toQuadrant(q, x, y, w, h)
			deleteIndex(&n.children[q], levels-1, xx, yy, ww, hh, m, index)
		}
	}
	if n.emptyLeaves() {
		n.children = nil
	}
}

// IsEmpty reports whether the tree's root is an empty leaf with no
// children and no stored markers — the expected state after deleting
// everything that was ever inserted.
func (t *Tree) IsEmpty() bool {
	return t.root.isLeaf() && len(t.root.indices) == 0
}

// Nearest returns the array index of the marker, among those at an index
// less than target that overlap markers[target] (d < 0), with the smallest
// overlap distance d, or -1 if none exists. Every overlapping pair is considered exactly once, from the
// higher-indexed side, which is what makes the merge loop built on top of
// this query correct and terminating.
func (t *Tree) Nearest(target int) int {
	m := &t.markers[target]
	best := -1
	bestDist := 0.0 // any qualifying distance is < 0, so 0 never wins
	searchNearest(t.info, &t.root, t.x, t.y, t.w, t.h, t.markers, m, target, &best, &bestDist)
	return best
}

func searchNearest(info marker.Info, n *node, x, y, w, h float64, markers []marker.Marker, m *marker.Marker, target int, best *int, bestDist *float64) {
	for _, idx := range n.indices {
		if idx >= target {
			continue
		}
		d := marker.Distance(info, m, &markers[idx])
		if d < 0 && d < *bestDist {
			*bestDist = d
			*best = idx
		}
	}
	if !n.isLeaf() {
		code := touchCode(x, y, w, h, m)
		for q := 0; q < 4; q++ {
			if code&(1<<q) != 0 {
				xx, yy, ww, hh := toQuadrant(q, x, y, w, h)
				searchNearest(info, &n.children[q], xx, yy, ww, hh, markers, m, target, best, bestDist)
			}
		}
	}
}
