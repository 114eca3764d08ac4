// Package cluster provides a brute-force reference connected-components
// grouping over a marker field's overlap graph, independent of the
// quadtree-accelerated merge engine. It exists so property tests (and the
// stats API) can cross-check that the merge engine's output groups each
// connected region of overlapping markers into exactly one survivor,
// without trusting the engine's own bookkeeping to grade itself.
package cluster

import "github.com/azybler/markermerge/pkg/marker"

// UnionFind is a disjoint-set data structure with path halving and union
// by rank, the same construction the merge engine's teacher lineage uses
// for connected-component queries over a road graph, repurposed here for
// marker overlap groups.
type UnionFind struct {
	parent []int
	rank   []byte
	size   []int
}

// NewUnionFind creates a UnionFind over n singleton sets.
func NewUnionFind(n int) *UnionFind {
	parent := make([]int, n)
	size := make([]int, n)
	for i := range parent {
		parent[i] = i
		size[i] = 1
	}
	return &UnionFind{parent: parent, rank: make([]byte, n), size: size}
}

// Find returns the representative of the set containing x, path-halving
// along the way.
func (uf *UnionFind) Find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// Union merges the sets containing x and y, by rank. Returns false if x
// and y were already in the same set.
func (uf *UnionFind) Union(x, y int) bool {
	rx, ry := uf.Find(x), uf.Find(y)
	if rx == ry {
		return false
	}
	if uf.rank[rx] < uf.rank[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	uf.size[rx] += uf.size[ry]
	if uf.rank[rx] == uf.rank[ry] {
		uf.rank[rx]++
	}
	return true
}

// Size returns the size of the set containing x.
func (uf *UnionFind) Size(x int) int {
	return uf.size[uf.Find(x)]
}

// Components computes the overlap graph's connected components over
// markers[:n] by brute-force O(n^2) pairwise distance checks and returns
// the resulting UnionFind, whose Find gives each marker index's component
// representative. This is deliberately not spatially accelerated: it is a
// ground-truth oracle for tests, not a hot path, and n stays small wherever
// it's used.
func Components(info marker.Info, markers []marker.Marker, n int) *UnionFind {
	uf := NewUnionFind(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if marker.Overlaps(info, &markers[i], &markers[j]) {
				uf.Union(i, j)
			}
		}
	}
	return uf
}

// Root walks a completed merge arena's PartA/PartB chain backward from an
// original marker's index to find the index of the single surviving
// marker it was ultimately folded into (itself, if it was never merged).
// markers must be the full engine output array (length total), with
// inverse[i] precomputed by InverseParts.
func Root(markers []marker.Marker, inverse []int, i int) int {
	for inverse[i] >= 0 {
		i = inverse[i]
	}
	return i
}

// InverseParts builds, for each index in a completed merge arena, the
// index of the marker it was merged into, or -1 if it was never absorbed
// by a later merge. This inverts the forward PartA/PartB links that each
// merge marker records about its two inputs.
func InverseParts(markers []marker.Marker, total int) []int {
	inverse := make([]int, total)
	for i := range inverse {
		inverse[i] = -1
	}
	for i := 0; i < total; i++ {
		if markers[i].Merged() {
			inverse[markers[i].PartA] = i
			inverse[markers[i].PartB] = i
		}
	}
	return inverse
}
