// Package markerlist is the host-facing collection type that wraps the
// merge engine: callers add markers, call Merge to fold overlapping ones
// together, and call Compress to reclaim the memory of markers the merge
// discarded. It mirrors the lifecycle the original C extension's
// marker-list host object exposed, translated into a Go value type with
// explicit error returns instead of host-language exceptions.
package markerlist

import (
	"errors"
	"fmt"

	"github.com/azybler/markermerge/pkg/marker"
	"github.com/azybler/markermerge/pkg/merge"
)

// ErrIndexRange is returned when a caller addresses a marker index outside
// [0, Len()).
var ErrIndexRange = errors.New("markerlist: index out of range")

// PartsKind classifies the result of a Parts query.
type PartsKind int

const (
	// Single marks a marker that was never merged and was never absorbed
	// by a later merge: it is both a leaf and a root of its trivial tree.
	Single PartsKind = iota
	// Leaf marks an original marker that was absorbed into a merge.
	Leaf
	// Root marks a merge result that currently survives (not itself later
	// absorbed into a further merge).
	Root
	// Merged marks a merge result that was itself later absorbed into a
	// further merge.
	Merged
)

// Parts describes one marker's position in its merge tree.
type Parts struct {
	Kind PartsKind
	A, B int // valid only when Kind is Root or Merged; -1 otherwise
}

// List is a growable collection of markers plus the merge-tree bookkeeping
// their merge history accumulates. The zero value is not ready to use;
// construct with New.
type List struct {
	info    marker.Info
	markers []marker.Marker
	n       int // count of live-or-historical markers currently populated
}

// New creates an empty list under the given marker Info.
func New(info marker.Info) *List {
	return &List{info: info}
}

// SetInfo replaces the list's marker Info. Existing markers' cached radii
// are not recomputed; call SetInfo only before adding markers; a
// recompute-in-place would silently invalidate any quadtree state left
// over from a previous Merge, which the list does not track.
func (l *List) SetInfo(info marker.Info) {
	l.info = info
}

// Info returns the list's current marker Info.
func (l *List) Info() marker.Info {
	return l.info
}

// ensureHeadroom grows the backing array so that it has room for an
// additional merge pass over n live markers: 2n-1 slots, mirroring the
// original host binding's arena-doubling discipline.
func (l *List) ensureHeadroom(n int) {
	needed := n
	if n > 0 {
		needed = 2*n - 1
	}
	if cap(l.markers) >= needed {
		return
	}
	grown := make([]marker.Marker, len(l.markers), needed)
	copy(grown, l.markers)
	l.markers = grown
}

// Add appends a new original marker at (x, y) with the given population
// size and returns its index.
func (l *List) Add(x, y, size float64) int {
	l.ensureHeadroom(l.n + 1)
	l.markers = append(l.markers, marker.New(l.info, x, y, size))
	idx := l.n
	l.n++
	return idx
}

// Len returns the number of marker slots currently populated, including
// ones marked Deleted by a prior Merge.
func (l *List) Len() int {
	return l.n
}

// Marker returns a copy of the marker at index i.
func (l *List) Marker(i int) (marker.Marker, error) {
	if i < 0 || i >= l.n {
		return marker.Marker{}, fmt.Errorf("%w: %d", ErrIndexRange, i)
	}
	return l.markers[i], nil
}

// Deleted reports whether the marker at index i was discarded by a merge
// (folded into a later, surviving marker).
func (l *List) Deleted(i int) (bool, error) {
	if i < 0 || i >= l.n {
		return false, fmt.Errorf("%w: %d", ErrIndexRange, i)
	}
	return l.markers[i].Deleted, nil
}

// Parts reports marker i's position in its merge tree.
func (l *List) Parts(i int) (Parts, error) {
	if i < 0 || i >= l.n {
		return Parts{}, fmt.Errorf("%w: %d", ErrIndexRange, i)
	}
	m := &l.markers[i]
	switch {
	case !m.Merged() && !m.Deleted:
		return Parts{Kind: Single, A: -1, B: -1}, nil
	case !m.Merged() && m.Deleted:
		return Parts{Kind: Leaf, A: -1, B: -1}, nil
	case m.Merged() && !m.Deleted:
		return Parts{Kind: Root, A: m.PartA, B: m.PartB}, nil
	default:
		return Parts{Kind: Merged, A: m.PartA, B: m.PartB}, nil
	}
}

// Merge runs the merge engine over the list's current markers, folding
// overlapping ones together until no two survivors overlap. Safe to call
// repeatedly: each call treats the current live (non-Deleted, non-merge-
// history) population as input, though callers typically Compress between
// calls to avoid re-scanning history markers that can never overlap
// anything (they are already Deleted).
//
// Live markers (see liveIndices) are extracted into a dense prefix so
// the merge engine, which only understands a dense markers[:n] prefix,
// doesn't have to special-case history entries.
func (l *List) Merge() error {
	live := l.liveIndices()
	n := len(live)
	if n == 0 {
		return nil
	}

	packed := make([]marker.Marker, 2*n-1)
	for i, orig := range live {
		packed[i] = l.markers[orig]
		packed[i].ResetParts()
	}

	total := merge.Merge(l.info, packed, n)

	l.markers = l.markers[:0]
	l.markers = append(l.markers, packed[:total]...)
	l.n = total
	return nil
}

// liveIndices returns, in index order, every marker index that is not
// Deleted — the set Merge treats as its input population.
func (l *List) liveIndices() []int {
	var live []int
	for i := 0; i < l.n; i++ {
		if !l.markers[i].Deleted {
			live = append(live, i)
		}
	}
	return live
}

// Compress discards every Deleted marker, renumbering the survivors into a
// dense prefix and resetting each retained marker's merge-tree parent
// pointers to "original" status — mirroring the original host binding's
// compress step, which severs the merge history once callers have already
// recorded whatever ancestry they needed from Parts. Compress is
// idempotent: compressing an already-compressed list is a no-op.
func (l *List) Compress() {
	kept := l.markers[:0]
	for i := 0; i < l.n; i++ {
		if !l.markers[i].Deleted {
			m := l.markers[i]
			m.ResetParts()
			kept = append(kept, m)
		}
	}
	l.markers = kept
	l.n = len(kept)
}

// Clear empties the list, discarding all markers and merge history.
func (l *List) Clear() {
	l.markers = l.markers[:0]
	l.n = 0
}

// Copy returns a deep copy of the list: mutating the copy's markers never
// affects the original, and vice versa.
func (l *List) Copy() *List {
	cp := &List{info: l.info, n: l.n}
	cp.markers = make([]marker.Marker, len(l.markers))
	copy(cp.markers, l.markers)
	return cp
}
