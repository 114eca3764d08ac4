// Package merge implements the marker-merge engine's main loop: the
// orchestration that ties the priority queue and quadtree together,
// maintaining per-marker nearest-neighbor values and inverse-neighbor
// lists so that deletions can be repaired in amortized near-logarithmic
// time.
//
// The engine performs no I/O, no goroutines, and no callbacks into caller
// code during a Merge call — it is a pure, single-threaded bulk transform
// over a pre-sized marker arena.
package merge

import (
	"log"
	"sync"

	"github.com/azybler/markermerge/pkg/marker"
	"github.com/azybler/markermerge/pkg/pqueue"
	"github.com/azybler/markermerge/pkg/quadtree"
)

// noNeighbor marks that a marker currently has no recorded nearest
// overlapping neighbor.
const noNeighbor = -1

// scratch holds the per-call working arrays the merge loop needs, all of
// length 2n-1. Kept in a sync.Pool and reused across Merge calls the way
// the teacher's routing.Engine pools its QueryState: the pool amortizes
// allocation, but each pooled scratch is privately owned for the duration
// of one Merge call, so concurrent callers never share mutable state.
type scratch struct {
	nNghbr  []int
	mindist []float64
	invHead []int
	invNext []int
	tmp     []int
	heap    []int
}

func newScratch(capacity int) *scratch {
	s := &scratch{
		nNghbr:  make([]int, capacity),
		mindist: make([]float64, capacity),
		invHead: make([]int, capacity),
		invNext: make([]int, capacity),
		tmp:     make([]int, 0, capacity),
		heap:    make([]int, 0, capacity),
	}
	return s
}

func (s *scratch) reset(capacity int) {
	if cap(s.nNghbr) < capacity {
		*s = *newScratch(capacity)
	}
	s.nNghbr = s.nNghbr[:capacity]
	s.mindist = s.mindist[:capacity]
	s.invHead = s.invHead[:capacity]
	s.invNext = s.invNext[:capacity]
	s.tmp = s.tmp[:0]
	s.heap = s.heap[:0]
	for i := 0; i < capacity; i++ {
		s.invHead[i] = noNeighbor
		s.invNext[i] = noNeighbor
	}
}

var scratchPool = sync.Pool{}

func getScratch(capacity int) *scratch {
	if v := scratchPool.Get(); v != nil {
		s := v.(*scratch)
		s.reset(capacity)
		return s
	}
	s := newScratch(capacity)
	s.reset(capacity)
	return s
}

func putScratch(s *scratch) {
	scratchPool.Put(s)
}

// Merge repeatedly merges the pair of overlapping markers[:n] with the
// smallest overlap distance until no two remaining markers overlap.
//
// markers must have length at least 2n-1 (the caller's pre-sized arena);
// only markers[:n] need be initialized on entry. The engine appends
// merged markers starting at index n. The total marker count (originals
// plus merges) is returned; callers identify live markers via the
// Deleted flag. An empty input (n == 0) returns 0 with no work.
func Merge(info marker.Info, markers []marker.Marker, n int) int {
	if n == 0 {
		return 0
	}
	augmented := 2*n - 1
	if len(markers) < augmented {
		panic("merge: markers slice shorter than the required 2n-1 arena")
	}

	s := getScratch(augmented)
	defer putScratch(s)

	ext := marker.ArrayExtent(markers, n)
	depth := quadtree.DepthForCount(n)
	qt := quadtree.New(ext, depth, info, markers)
	for i := 0; i < n; i++ {
		qt.Insert(i)
	}

	// Seed the heap with one entry per marker a that overlaps some b < a
	// (keyed by its nearest such b), and build the inverse-neighbor linked
	// lists as we go.
	for a := 0; a < n; a++ {
		b := qt.Nearest(a)
		if b >= 0 {
			s.nNghbr[a] = b
			s.mindist[a] = marker.Distance(info, &markers[a], &markers[b])
			s.heap = append(s.heap, a)
			s.invNext[a] = s.invHead[b]
			s.invHead[b] = a
		}
	}

	var pq pqueue.Queue
	pq.SetUpHeap(s.heap, s.mindist, augmented)

	nMarkers := n
	for !pq.Empty() {
		a := pq.GetMin()
		b := s.nNghbr[a]

		pq.Delete(b)
		qt.Delete(a)
		qt.Delete(b)
		markers[a].Deleted = true
		markers[b].Deleted = true

		// Capture the inverse-neighbor set of both a and b before it's
		// invalidated by the merge below.
		tmpSize := 0
		for p := s.invHead[a]; p >= 0; p = s.invNext[p] {
			if !markers[p].Deleted {
				s.tmp = append(s.tmp, p)
				tmpSize++
			}
		}
		for p := s.invHead[b]; p >= 0; p = s.invNext[p] {
			if !markers[p].Deleted {
				s.tmp = append(s.tmp, p)
				tmpSize++
			}
		}

		aa := nMarkers
		nMarkers++
		marker.Merge(info, &markers[aa], &markers[a], &markers[b], a, b)
		qt.Insert(aa)

		// Appending aa after every existing index means nothing already
		// on the heap could have had it as a nearest neighbor.
		if bb := qt.Nearest(aa); bb >= 0 {
			s.nNghbr[aa] = bb
			s.mindist[aa] = marker.Distance(info, &markers[aa], &markers[bb])
			pq.Add(aa)
			s.invNext[aa] = s.invHead[bb]
			s.invHead[bb] = aa
		}

		for _, p := range s.tmp[len(s.tmp)-tmpSize:] {
			bb := qt.Nearest(p)
			if bb >= 0 && bb < p {
				s.nNghbr[p] = bb
				s.mindist[p] = marker.Distance(info, &markers[p], &markers[bb])
				pq.Update(p)
				s.invNext[p] = s.invHead[bb]
				s.invHead[bb] = p
			} else {
				pq.Delete(p)
			}
		}
		s.tmp = s.tmp[:len(s.tmp)-tmpSize]
	}

	log.Printf("merge: %d markers in, %d markers out (%d merges)", n, nMarkers, nMarkers-n)
	return nMarkers
}
