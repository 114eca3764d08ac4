package merge

import (
	"math"
	"math/rand"
	"testing"

	"github.com/azybler/markermerge/pkg/marker"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// newArena builds the 2n-1 pre-sized arena the engine requires, with the
// first n slots populated from points.
func newArena(info marker.Info, points [][3]float64) []marker.Marker {
	n := len(points)
	arena := make([]marker.Marker, 2*n-1)
	for i, p := range points {
		arena[i] = marker.New(info, p[0], p[1], p[2])
	}
	return arena
}

func totalMass(markers []marker.Marker, n int) float64 {
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += markers[i].Size
	}
	return sum
}

// liveMass sums the size of every marker in the full output array that is
// a root of its merge tree (never merged into something else) and not
// itself deleted by having been merged away. A root marker has PartA < 0
// (never merged) XOR has been merged but nothing supersedes it — since the
// engine never creates a marker without eventually either leaving it alone
// or merging it, "live" here means !Deleted.
func liveMass(markers []marker.Marker, total int) float64 {
	sum := 0.0
	for i := 0; i < total; i++ {
		if !markers[i].Deleted {
			sum += markers[i].Size
		}
	}
	return sum
}

func TestTwoTouchingCirclesMerge(t *testing.T) {
	info := marker.NewInfo(marker.Circle, 1)
	// Two unit-size circles close enough to overlap.
	arena := newArena(info, [][3]float64{
		{0, 0, 1},
		{0.2, 0, 1},
	})
	originalMass := totalMass(arena, 2)

	total := Merge(info, arena, 2)
	if total != 3 {
		t.Fatalf("total markers = %d, want 3 (2 originals + 1 merge)", total)
	}
	if arena[0].Deleted != true || arena[1].Deleted != true {
		t.Fatalf("both original markers should be deleted after merging")
	}
	if arena[2].Deleted {
		t.Fatalf("the merged marker should remain live")
	}
	if got := liveMass(arena, total); !almostEqual(got, originalMass, 1e-9) {
		t.Fatalf("mass not conserved: got %v, want %v", got, originalMass)
	}
	// The popped marker (index 1) is PartA, its neighbor (index 0) PartB.
	if arena[2].PartA != 1 || arena[2].PartB != 0 {
		t.Fatalf("merged marker parts = (%d, %d), want (1, 0)", arena[2].PartA, arena[2].PartB)
	}
	// Centroid must lie on the segment between the two inputs, weighted
	// toward equal mass markers at the midpoint.
	if !almostEqual(arena[2].X, 0.1, 1e-9) || !almostEqual(arena[2].Y, 0, 1e-9) {
		t.Fatalf("merged centroid = (%v, %v), want (0.1, 0)", arena[2].X, arena[2].Y)
	}
}

func TestTwoDisjointCirclesNoMerge(t *testing.T) {
	info := marker.NewInfo(marker.Circle, 1)
	arena := newArena(info, [][3]float64{
		{0, 0, 1},
		{100, 100, 1},
	})
	total := Merge(info, arena, 2)
	if total != 2 {
		t.Fatalf("total = %d, want 2 (no merges for disjoint markers)", total)
	}
	if arena[0].Deleted || arena[1].Deleted {
		t.Fatalf("disjoint markers should never be marked deleted")
	}
}

func TestThreeCollinearCirclesChainMerge(t *testing.T) {
	info := marker.NewInfo(marker.Circle, 1)
	arena := newArena(info, [][3]float64{
		{0, 0, 1},
		{0.2, 0, 1},
		{0.4, 0, 1},
	})
	originalMass := totalMass(arena, 3)
	total := Merge(info, arena, 3)

	if total != 5 {
		t.Fatalf("total = %d, want 5 (3 originals + 2 merges to converge to one)", total)
	}
	liveCount := 0
	for i := 0; i < total; i++ {
		if !arena[i].Deleted {
			liveCount++
		}
	}
	if liveCount != 1 {
		t.Fatalf("expected exactly one surviving marker, got %d", liveCount)
	}
	if got := liveMass(arena, total); !almostEqual(got, originalMass, 1e-9) {
		t.Fatalf("mass not conserved across chain merge: got %v, want %v", got, originalMass)
	}
}

func TestDuplicateCoincidentMarkersMerge(t *testing.T) {
	info := marker.NewInfo(marker.Circle, 1)
	arena := newArena(info, [][3]float64{
		{5, 5, 2},
		{5, 5, 2},
	})
	total := Merge(info, arena, 2)
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if !almostEqual(arena[2].X, 5, 1e-9) || !almostEqual(arena[2].Y, 5, 1e-9) {
		t.Fatalf("merged coincident markers should stay at (5,5), got (%v,%v)", arena[2].X, arena[2].Y)
	}
	if !almostEqual(arena[2].Size, 4, 1e-9) {
		t.Fatalf("merged size = %v, want 4", arena[2].Size)
	}
}

func TestSquareKindScenario(t *testing.T) {
	info := marker.NewInfo(marker.Square, 1)
	arena := newArena(info, [][3]float64{
		{0, 0, 4},
		{1.5, 0, 4},
	})
	originalMass := totalMass(arena, 2)
	total := Merge(info, arena, 2)
	if total < 2 {
		t.Fatalf("total = %d, want at least 2", total)
	}
	if got := liveMass(arena, total); !almostEqual(got, originalMass, 1e-9) {
		t.Fatalf("mass not conserved for square markers: got %v, want %v", got, originalMass)
	}
}

// TestEmptyInput exercises the n == 0 fast path.
func TestEmptyInput(t *testing.T) {
	info := marker.DefaultInfo()
	if got := Merge(info, nil, 0); got != 0 {
		t.Fatalf("Merge on empty input = %d, want 0", got)
	}
}

// TestNoOverlapsNoOutputGrowth is the termination property: when nothing
// overlaps, the engine must halt immediately without growing the marker
// count beyond the originals.
func TestNoOverlapsNoOutputGrowth(t *testing.T) {
	info := marker.NewInfo(marker.Circle, 0.1)
	r := rand.New(rand.NewSource(42))
	const n = 30
	points := make([][3]float64, n)
	for i := range points {
		// Spread far enough apart (grid spacing 1000) that a tiny-scale
		// marker info can never produce overlapping footprints.
		points[i] = [3]float64{float64(i%6) * 1000, float64(i/6) * 1000, 1 + r.Float64()}
	}
	arena := newArena(info, points)
	total := Merge(info, arena, n)
	if total != n {
		t.Fatalf("total = %d, want %d (no overlaps, no merges)", total, n)
	}
}

// TestMassConservedUnderRandomMerge exercises mass conservation across a
// denser random field that's expected to produce several merges.
func TestMassConservedUnderRandomMerge(t *testing.T) {
	info := marker.NewInfo(marker.Circle, 2)
	r := rand.New(rand.NewSource(7))
	const n = 60
	points := make([][3]float64, n)
	for i := range points {
		points[i] = [3]float64{r.Float64() * 20, r.Float64() * 20, 1 + r.Float64()*4}
	}
	arena := newArena(info, points)
	originalMass := totalMass(arena, n)

	total := Merge(info, arena, n)
	if got := liveMass(arena, total); !almostEqual(got, originalMass, 1e-6) {
		t.Fatalf("mass not conserved: got %v, want %v", got, originalMass)
	}

	// Tree validity: every merged marker's parts must be smaller, earlier
	// indices, and every deleted marker, original or merged, must have been
	// superseded by exactly one merge that points back at it.
	referencedAsPart := make(map[int]int, total)
	for i := n; i < total; i++ {
		if arena[i].PartA < 0 || arena[i].PartA >= i || arena[i].PartB >= i {
			t.Fatalf("marker %d has invalid parts (%d, %d)", i, arena[i].PartA, arena[i].PartB)
		}
		referencedAsPart[arena[i].PartA]++
		referencedAsPart[arena[i].PartB]++
	}
	for i := 0; i < total; i++ {
		if arena[i].Deleted && referencedAsPart[i] != 1 {
			t.Fatalf("deleted marker %d referenced as a part %d times, want exactly 1", i, referencedAsPart[i])
		}
		if !arena[i].Deleted && referencedAsPart[i] != 0 {
			t.Fatalf("live marker %d unexpectedly referenced as a merge part", i)
		}
	}
}

// TestNoRemainingOverlapsAmongSurvivors checks the main correctness
// invariant end to end: brute-force pairwise distance among every
// surviving marker in the output must be non-negative.
func TestNoRemainingOverlapsAmongSurvivors(t *testing.T) {
	info := marker.NewInfo(marker.Circle, 1.5)
	r := rand.New(rand.NewSource(99))
	const n = 50
	points := make([][3]float64, n)
	for i := range points {
		points[i] = [3]float64{r.Float64() * 15, r.Float64() * 15, 1 + r.Float64()*3}
	}
	arena := newArena(info, points)
	total := Merge(info, arena, n)

	var survivors []int
	for i := 0; i < total; i++ {
		if !arena[i].Deleted {
			survivors = append(survivors, i)
		}
	}
	for i := 0; i < len(survivors); i++ {
		for j := i + 1; j < len(survivors); j++ {
			a, b := survivors[i], survivors[j]
			if marker.Overlaps(info, &arena[a], &arena[b]) {
				t.Fatalf("survivors %d and %d still overlap after merge completed", a, b)
			}
		}
	}
}

// TestMergeReusesPooledScratch exercises the sync.Pool scratch path across
// repeated calls of varying size, guarding against stale state bleeding
// between calls (e.g. leftover inverse-neighbor links pointing at indices
// that don't exist in a later, smaller call).
func TestMergeReusesPooledScratch(t *testing.T) {
	info := marker.NewInfo(marker.Circle, 1)
	for i := 0; i < 5; i++ {
		r := rand.New(rand.NewSource(int64(i)))
		n := 5 + r.Intn(40)
		points := make([][3]float64, n)
		for k := range points {
			points[k] = [3]float64{r.Float64() * 10, r.Float64() * 10, 1 + r.Float64()*2}
		}
		arena := newArena(info, points)
		mass := totalMass(arena, n)
		total := Merge(info, arena, n)
		if got := liveMass(arena, total); !almostEqual(got, mass, 1e-6) {
			t.Fatalf("iteration %d: mass not conserved: got %v, want %v", i, got, mass)
		}
	}
}
