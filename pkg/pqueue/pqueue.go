// Package pqueue implements an indexed min-heap priority queue: a heap of
// integer indices keyed by a caller-owned values array, with a reverse
// location map supporting decrease-key-style updates and arbitrary-index
// deletion.
//
// The queue never owns the values array. After SetUpHeap, it does own the
// heap index array handed to it (as lulu's pq.c documents for
// pq_set_up_heap).
package pqueue

// noLoc marks an index as not present in the heap.
const noLoc = -1

// Queue is an indexed min-heap. The zero value is ready to use after a
// call to SetUp or SetUpHeap.
type Queue struct {
	heap   []int     // heap of indices into values
	locs   []int     // locs[i] = heap position of index i, or noLoc
	values []float64 // values referred to by the heap; not owned
}

// Len returns the number of indices currently on the heap.
func (q *Queue) Len() int { return len(q.heap) }

// Empty reports whether the queue holds no indices.
func (q *Queue) Empty() bool { return len(q.heap) == 0 }

// SetUp heapifies the identity permutation [0, n) using values as keys.
// values must have length >= n and remain valid for the life of the queue.
func (q *Queue) SetUp(values []float64, n int) {
	q.values = values
	q.heap = make([]int, n)
	q.locs = make([]int, n)
	for i := 0; i < n; i++ {
		q.heap[i] = i
		q.locs[i] = i
	}
	for j := n/2 - 1; j >= 0; j-- {
		q.siftDown(j)
	}
}

// SetUpHeap adopts a pre-filled slice of indices as the heap's backing
// array. Ownership of heap transfers to the Queue: it must not be reused
// by the caller afterward. maxSize bounds the index space that locs must
// cover (every index 0..maxSize-1 that might ever be Added or Updated).
func (q *Queue) SetUpHeap(heap []int, values []float64, maxSize int) {
	q.values = values
	q.heap = heap
	q.locs = make([]int, maxSize)
	for i := range q.locs {
		q.locs[i] = noLoc
	}
	for j, idx := range q.heap {
		q.locs[idx] = j
	}
	for j := len(q.heap)/2 - 1; j >= 0; j-- {
		q.siftDown(j)
	}
}

// PeekMin returns the index with the smallest value, or -1 if empty.
func (q *Queue) PeekMin() int {
	if len(q.heap) == 0 {
		return -1
	}
	return q.heap[0]
}

// GetMin removes and returns the index with the smallest value, or -1 if
// the queue is empty.
func (q *Queue) GetMin() int {
	if len(q.heap) == 0 {
		return -1
	}
	i := q.heap[0]
	q.locs[i] = noLoc
	n := len(q.heap) - 1
	if n > 0 {
		q.heap[0] = q.heap[n]
		q.heap = q.heap[:n]
		q.siftDown(0)
	} else {
		q.heap = q.heap[:0]
	}
	return i
}

// Add inserts index i into the queue. Precondition: i is not already
// present and values[i] is set. A no-op if the backing locs array is too
// small to address i (mirrors the source's defensive full-queue no-op;
// see DESIGN.md).
func (q *Queue) Add(i int) {
	if i >= len(q.locs) {
		return
	}
	j := len(q.heap)
	q.heap = append(q.heap, i)
	q.locs[i] = j
	q.siftUp(j)
}

// Update restores the heap property after the value at index i has
// changed. Runs both down-sift and up-sift since the direction of change
// is unknown to the queue.
func (q *Queue) Update(i int) {
	j := q.locs[i]
	if j < 0 {
		return
	}
	q.siftDown(j)
	q.siftUp(j)
}

// Delete removes index i from the queue if present; a no-op otherwise.
func (q *Queue) Delete(i int) {
	j := q.locs[i]
	if j < 0 {
		return
	}
	q.locs[i] = noLoc
	n := len(q.heap) - 1
	if j < n {
		q.heap[j] = q.heap[n]
		q.heap = q.heap[:n]
		q.locs[q.heap[j]] = j
		q.siftDown(j)
		q.siftUp(j)
	} else {
		q.heap = q.heap[:n]
	}
}

// siftUp moves the index at heap position j upward until its parent's
// value is no larger. Hole-sift: the floating entry is saved once and
// written back at the end, rather than swapped at every level.
func (q *Queue) siftUp(j int) {
	i := q.heap[j]
	val := q.values[i]
	for j > 0 {
		parent := (j - 1) / 2
		if q.values[q.heap[parent]] <= val {
			break
		}
		q.heap[j] = q.heap[parent]
		q.locs[q.heap[j]] = j
		j = parent
	}
	q.heap[j] = i
	q.locs[i] = j
}

// siftDown moves the index at heap position j downward until its
// children's values are no smaller. Bottleneck code for the merge loop;
// compares against both children once per level.
func (q *Queue) siftDown(j int) {
	i := q.heap[j]
	val := q.values[i]
	n := len(q.heap)
	for {
		right := 2*j + 2
		left := right - 1
		switch {
		case right < n:
			valLeft := q.values[q.heap[left]]
			valRight := q.values[q.heap[right]]
			if valLeft < valRight {
				if val <= valLeft {
					q.heap[j] = i
					q.locs[i] = j
					return
				}
				q.heap[j] = q.heap[left]
				q.locs[q.heap[j]] = j
				j = left
			} else {
				if val <= valRight {
					q.heap[j] = i
					q.locs[i] = j
					return
				}
				q.heap[j] = q.heap[right]
				q.locs[q.heap[j]] = j
				j = right
			}
		case left < n:
			if val <= q.values[q.heap[left]] {
				q.heap[j] = i
				q.locs[i] = j
				return
			}
			q.heap[j] = q.heap[left]
			q.locs[q.heap[j]] = j
			j = left
			q.heap[j] = i
			q.locs[i] = j
			return
		default:
			q.heap[j] = i
			q.locs[i] = j
			return
		}
	}
}

// Loc returns the heap position of index i, or -1 if i is not present.
// Exposed for property tests that verify heap[locs[i]] == i.
func (q *Queue) Loc(i int) int {
	if i >= len(q.locs) {
		return noLoc
	}
	return q.locs[i]
}

// Index returns the index stored at heap position j.
func (q *Queue) Index(j int) int { return q.heap[j] }
