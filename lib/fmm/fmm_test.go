package fmm

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/fastmultipole/boxfmm/lib/kernel"
	"github.com/fastmultipole/boxfmm/lib/tree"
)

func randomPoints(rng *rand.Rand, n, dim int, clustered bool) [][3]float64 {
	pts := make([][3]float64, n)
	for i := range pts {
		for d := 0; d < dim; d++ { pts[i][d] = rng.Float64() }
	}
	if clustered {
		// Half the points crowd one corner to force uneven refinement, so
		// the runs below exercise the coarse-leaf and small-box lists too.
		for i := 0; i < n/2; i++ {
			for d := 0; d < dim; d++ { pts[i][d] *= 0.05 }
		}
	}
	return pts
}

func buildTraversal(t *testing.T, pts [][3]float64, dim, maxParticles int) *tree.Traversal {
	tr, err := tree.New(pts, nil, dim, maxParticles)
	if err != nil { t.Fatalf("Unexpected tree error: '%s'.", err.Error()) }
	return tree.BuildTraversal(tr)
}

// TestConstantWranglerConservation runs the constant kernel over several
// geometries. Each potential must equal the total weight: every deviation is
// a source-target pair some interaction list missed or double-counted.
func TestConstantWranglerConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	tests := []struct{
		n, dim, maxParticles int
		clustered, unitWeights bool
	} {
		{5, 2, 10, false, true},
		{50, 2, 5, false, true},
		{1000, 2, 10, false, true},
		{1000, 2, 10, true, true},
		{1000, 3, 20, false, true},
		{1000, 2, 10, true, false},
	}

	for i := range tests {
		pts := randomPoints(rng, tests[i].n, tests[i].dim, tests[i].clustered)
		trav := buildTraversal(t, pts, tests[i].dim, tests[i].maxParticles)

		weights := make([]float64, tests[i].n)
		for j := range weights {
			if tests[i].unitWeights {
				weights[j] = 1
			} else {
				weights[j] = rng.Float64()*2 - 1
			}
		}
		want := floats.Sum(weights)

		pot, err := Drive(NewConstantWrangler(trav), weights)
		if err != nil {
			t.Errorf("%d) Unexpected Drive error: '%s'.", i, err.Error())
			continue
		}

		tol := 1e-10 * float64(tests[i].n)
		for j := range pot {
			if math.Abs(real(pot[j]) - want) > tol || imag(pot[j]) != 0 {
				t.Errorf("%d) Expected every potential to be %g, got %g " +
					"at %d.", i, want, pot[j], j)
				break
			}
		}
	}
}

func TestConstantWranglerConservationLarge(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping the 100k-point conservation run")
	}

	n := 100000
	rng := rand.New(rand.NewSource(12))
	pts := randomPoints(rng, n, 2, false)
	trav := buildTraversal(t, pts, 2, 30)

	weights := make([]float64, n)
	for i := range weights { weights[i] = 1 }

	pot, err := Drive(NewConstantWrangler(trav), weights)
	if err != nil { t.Fatalf("Unexpected Drive error: '%s'.", err.Error()) }

	tol := 1e-8 * float64(n)
	for i := range pot {
		if math.Abs(real(pot[i]) - float64(n)) > tol {
			t.Errorf("Expected every potential to be %d, got %g at %d.",
				n, real(pot[i]), i)
			break
		}
	}
}

// directPotential is the exact user-order reference the FMM approximates.
func directPotential(k kernel.Kernel, pts [][3]float64, weights []float64) []complex128 {
	pot := make([]complex128, len(pts))
	k.EvalDirect(pts, weights, pts, pot)
	k.FinalizePotentials(pot)
	return pot
}

func TestKernelWranglerAccuracy(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	k, err := kernel.New(kernel.Laplace, 2, 0)
	if err != nil { t.Fatalf("Unexpected kernel error: '%s'.", err.Error()) }

	tests := []struct{
		n, maxParticles int
		clustered bool
	} {
		{200, 10, false},
		{400, 15, false},
		{400, 10, true},
	}

	for i := range tests {
		pts := randomPoints(rng, tests[i].n, 2, tests[i].clustered)
		trav := buildTraversal(t, pts, 2, tests[i].maxParticles)

		weights := make([]float64, tests[i].n)
		for j := range weights { weights[j] = rng.Float64()*2 - 1 }

		wr, err := NewKernelWrangler(trav, k, func(level int) int { return 30 })
		if err != nil {
			t.Errorf("%d) Unexpected wrangler error: '%s'.", i, err.Error())
			continue
		}

		pot, err := Drive(wr, weights)
		if err != nil {
			t.Errorf("%d) Unexpected Drive error: '%s'.", i, err.Error())
			continue
		}

		want := directPotential(k, pts, weights)
		diffs := make([]float64, len(pot))
		refs := make([]float64, len(pot))
		for j := range pot {
			diffs[j] = real(pot[j]) - real(want[j])
			refs[j] = real(want[j])
			if imag(pot[j]) != 0 {
				t.Errorf("%d) Expected a real potential at %d, got %g.",
					i, j, pot[j])
				break
			}
		}

		relErr := floats.Norm(diffs, 2) / floats.Norm(refs, 2)
		if relErr > 1e-6 {
			t.Errorf("%d) Expected relative error below 1e-6, got %g.",
				i, relErr)
		}
	}
}

// TestKernelWranglerExercisesAllLists pins down that the clustered geometry
// used by the accuracy test actually reaches the coarse-leaf and small-box
// passes, so passing it means those passes are correct, not skipped.
func TestKernelWranglerExercisesAllLists(t *testing.T) {
	rng := rand.New(rand.NewSource(14))
	pts := randomPoints(rng, 400, 2, true)
	trav := buildTraversal(t, pts, 2, 10)

	if len(trav.SepSiblings.Lists) == 0 {
		t.Errorf("Expected a non-empty same-level separated list.")
	}
	if len(trav.SepBigger.Lists) == 0 {
		t.Errorf("Expected a non-empty bigger-separated list.")
	}
	nW := 0
	for _, csr := range trav.SepSmallerByLevel { nW += len(csr.Lists) }
	if nW == 0 {
		t.Errorf("Expected a non-empty smaller-separated list.")
	}
}

// TestInteractionMatrix builds the full n-by-n interaction matrix column by
// column through the FMM and compares it against the directly assembled one.
// This localizes a failure to individual source-target pairs in a way the
// aggregate accuracy test cannot.
func TestInteractionMatrix(t *testing.T) {
	n := 60
	rng := rand.New(rand.NewSource(15))
	k, err := kernel.New(kernel.Laplace, 2, 0)
	if err != nil { t.Fatalf("Unexpected kernel error: '%s'.", err.Error()) }

	pts := randomPoints(rng, n, 2, false)
	trav := buildTraversal(t, pts, 2, 5)
	wr, err := NewKernelWrangler(trav, k, func(level int) int { return 30 })
	if err != nil { t.Fatalf("Unexpected wrangler error: '%s'.", err.Error()) }

	got := mat.NewDense(n, n, nil)
	weights := make([]float64, n)
	for j := 0; j < n; j++ {
		weights[j] = 1
		pot, err := Drive(wr, weights)
		if err != nil { t.Fatalf("Unexpected Drive error: '%s'.", err.Error()) }
		weights[j] = 0

		for i := 0; i < n; i++ { got.Set(i, j, real(pot[i])) }
	}

	want := mat.NewDense(n, n, nil)
	scale := -1 / (2 * math.Pi)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			if i == j { continue }
			dx := pts[i][0] - pts[j][0]
			dy := pts[i][1] - pts[j][1]
			want.Set(i, j, scale * math.Log(math.Hypot(dx, dy)))
		}
	}

	diff := mat.NewDense(n, n, nil)
	diff.Sub(got, want)
	worst := 0.0
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			if d := math.Abs(diff.At(i, j)); d > worst { worst = d }
		}
	}
	if worst > 1e-7 {
		t.Errorf("Expected every matrix entry within 1e-7 of the direct " +
			"one, got a worst deviation of %g.", worst)
	}
}

func TestNewKernelWranglerErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(16))
	k, err := kernel.New(kernel.Laplace, 2, 0)
	if err != nil { t.Fatalf("Unexpected kernel error: '%s'.", err.Error()) }

	pts2 := randomPoints(rng, 50, 2, false)
	trav2 := buildTraversal(t, pts2, 2, 10)
	pts3 := randomPoints(rng, 50, 3, false)
	trav3 := buildTraversal(t, pts3, 3, 10)

	// A 2-dimensional kernel cannot serve a 3-dimensional tree.
	if _, err := NewKernelWrangler(trav3, k,
		func(level int) int { return 10 }); err == nil {
		t.Errorf("Expected a dimension mismatch error.")
	}
	// Negative orders are rejected up front.
	if _, err := NewKernelWrangler(trav2, k,
		func(level int) int { return -1 }); err == nil {
		t.Errorf("Expected a negative-order error.")
	}
	if _, err := NewKernelWrangler(trav2, k,
		func(level int) int { return 10 }); err != nil {
		t.Errorf("Unexpected wrangler error: '%s'.", err.Error())
	}
}

func TestReorderRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	pts := randomPoints(rng, 200, 2, true)
	tr, err := tree.New(pts, nil, 2, 10)
	if err != nil { t.Fatalf("Unexpected tree error: '%s'.", err.Error()) }

	weights := make([]float64, len(pts))
	for i := range weights { weights[i] = float64(i) }

	sorted := reorderSources(tr, weights)
	for i := range sorted {
		if sorted[i] != float64(tr.UserSourceIDs[i]) {
			t.Errorf("Expected tree-order weight %d to come from user " +
				"index %g.", i, sorted[i])
			break
		}
	}

	// Tree-order potentials tagged with their position come back to the
	// user index that owns them.
	pot := make([]complex128, len(pts))
	for i := range pot { pot[i] = complex(float64(i), 0) }
	user := reorderPotentials(tr, pot)
	for u := range user {
		if user[u] != complex(float64(tr.SortedTargetIDs[u]), 0) {
			t.Errorf("Expected user potential %d to come from tree " +
				"position %d, got %g.", u, tr.SortedTargetIDs[u], user[u])
			break
		}
	}

	// With sources doubling as targets, sorting into tree order and back is
	// the identity.
	tagged := make([]complex128, len(sorted))
	for i := range tagged { tagged[i] = complex(sorted[i], 0) }
	back := reorderPotentials(tr, tagged)
	for u := range back {
		if back[u] != complex(weights[u], 0) {
			t.Errorf("Expected the reorder round trip to return %g at %d, " +
				"got %g.", weights[u], u, back[u])
			break
		}
	}
}

// reverseCSR reverses the entries within every segment of a CSR list.
func reverseCSR(csr tree.CSR) tree.CSR {
	out := tree.CSR{ Starts: csr.Starts, Lists: make([]int32, len(csr.Lists)) }
	for i := 0; i+1 < len(csr.Starts); i++ {
		start, stop := csr.Starts[i], csr.Starts[i+1]
		for j := start; j < stop; j++ {
			out.Lists[j] = csr.Lists[stop - 1 - (j - start)]
		}
	}
	return out
}

// TestAccumulationOrderInsensitive permutes the per-box entries of every
// interaction list and checks that the potentials only move within
// floating-point accumulation tolerance.
func TestAccumulationOrderInsensitive(t *testing.T) {
	rng := rand.New(rand.NewSource(22))
	k, err := kernel.New(kernel.Laplace, 2, 0)
	if err != nil { t.Fatalf("Unexpected kernel error: '%s'.", err.Error()) }

	pts := randomPoints(rng, 300, 2, true)
	trav := buildTraversal(t, pts, 2, 10)
	weights := make([]float64, len(pts))
	for i := range weights { weights[i] = rng.Float64()*2 - 1 }

	rev := *trav
	rev.NeighborSourceBoxes = reverseCSR(trav.NeighborSourceBoxes)
	rev.SepSiblings = reverseCSR(trav.SepSiblings)
	rev.SepBigger = reverseCSR(trav.SepBigger)
	rev.SepSmallerByLevel = make([]tree.CSR, len(trav.SepSmallerByLevel))
	for i := range rev.SepSmallerByLevel {
		rev.SepSmallerByLevel[i] = reverseCSR(trav.SepSmallerByLevel[i])
	}

	order := func(level int) int { return 25 }
	wr1, err := NewKernelWrangler(trav, k, order)
	if err != nil { t.Fatalf("Unexpected wrangler error: '%s'.", err.Error()) }
	wr2, err := NewKernelWrangler(&rev, k, order)
	if err != nil { t.Fatalf("Unexpected wrangler error: '%s'.", err.Error()) }

	pot1, err := Drive(wr1, weights)
	if err != nil { t.Fatalf("Unexpected Drive error: '%s'.", err.Error()) }
	pot2, err := Drive(wr2, weights)
	if err != nil { t.Fatalf("Unexpected Drive error: '%s'.", err.Error()) }

	for i := range pot1 {
		if math.Abs(real(pot1[i]) - real(pot2[i])) > 1e-11 {
			t.Errorf("Expected order-independent potentials, got %g and " +
				"%g at %d.", real(pot1[i]), real(pot2[i]), i)
			break
		}
	}
}

// emptyCheckKernel fails the test if any forming or evaluating call reaches
// the kernel with an empty particle range.
type emptyCheckKernel struct {
	kernel.Kernel
	t *testing.T
}

func (k *emptyCheckKernel) FormMultipole(rscale float64, sources [][3]float64,
	weights []float64, center [3]float64, nterms int, out []complex128) error {

	if len(sources) == 0 {
		k.t.Errorf("FormMultipole was called with zero sources.")
	}
	return k.Kernel.FormMultipole(rscale, sources, weights, center, nterms, out)
}

func (k *emptyCheckKernel) FormLocal(rscale float64, sources [][3]float64,
	weights []float64, center [3]float64, nterms int, out []complex128) error {

	if len(sources) == 0 {
		k.t.Errorf("FormLocal was called with zero sources.")
	}
	return k.Kernel.FormLocal(rscale, sources, weights, center, nterms, out)
}

func (k *emptyCheckKernel) EvalMultipole(rscale float64, center [3]float64,
	expn []complex128, targets [][3]float64, pot []complex128) error {

	if len(targets) == 0 {
		k.t.Errorf("EvalMultipole was called with zero targets.")
	}
	return k.Kernel.EvalMultipole(rscale, center, expn, targets, pot)
}

func (k *emptyCheckKernel) EvalLocal(rscale float64, center [3]float64,
	expn []complex128, targets [][3]float64, pot []complex128) error {

	if len(targets) == 0 {
		k.t.Errorf("EvalLocal was called with zero targets.")
	}
	return k.Kernel.EvalLocal(rscale, center, expn, targets, pot)
}

func (k *emptyCheckKernel) EvalDirect(sources [][3]float64, weights []float64,
	targets [][3]float64, pot []complex128) {

	if len(sources) == 0 || len(targets) == 0 {
		k.t.Errorf("EvalDirect was called with an empty particle range.")
	}
	k.Kernel.EvalDirect(sources, weights, targets, pot)
}

// TestEmptyRangesSkipKernelCalls splits sources and targets into disjoint
// point sets, so many leaves own only one kind of particle. Boxes with an
// empty range must be skipped outright, and the answer must still match the
// direct sum.
func TestEmptyRangesSkipKernelCalls(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	base, err := kernel.New(kernel.Laplace, 2, 0)
	if err != nil { t.Fatalf("Unexpected kernel error: '%s'.", err.Error()) }
	k := &emptyCheckKernel{ base, t }

	// Sources fill the left half of the square and targets the right, with
	// a gap in between, so entire subtrees are source-only or target-only.
	sources := make([][3]float64, 200)
	for i := range sources {
		sources[i] = [3]float64{rng.Float64() * 0.4, rng.Float64(), 0}
	}
	targets := make([][3]float64, 150)
	for i := range targets {
		targets[i] = [3]float64{0.6 + rng.Float64()*0.4, rng.Float64(), 0}
	}
	weights := make([]float64, len(sources))
	for i := range weights { weights[i] = rng.Float64()*2 - 1 }

	tr, err := tree.New(sources, targets, 2, 10)
	if err != nil { t.Fatalf("Unexpected tree error: '%s'.", err.Error()) }
	trav := tree.BuildTraversal(tr)

	wr, err := NewKernelWrangler(trav, k, func(level int) int { return 30 })
	if err != nil { t.Fatalf("Unexpected wrangler error: '%s'.", err.Error()) }

	pot, err := Drive(wr, weights)
	if err != nil { t.Fatalf("Unexpected Drive error: '%s'.", err.Error()) }

	want := make([]complex128, len(targets))
	base.EvalDirect(sources, weights, targets, want)
	base.FinalizePotentials(want)

	diffs := make([]float64, len(pot))
	refs := make([]float64, len(pot))
	for j := range pot {
		diffs[j] = real(pot[j]) - real(want[j])
		refs[j] = real(want[j])
	}
	if relErr := floats.Norm(diffs, 2) / floats.Norm(refs, 2); relErr > 1e-6 {
		t.Errorf("Expected relative error below 1e-6, got %g.", relErr)
	}
}

// TestVaryingOrderPerLevel runs the delegating wrangler with a per-level
// truncation order, which makes the two sides of every translation use
// different coefficient counts.
func TestVaryingOrderPerLevel(t *testing.T) {
	rng := rand.New(rand.NewSource(18))
	k, err := kernel.New(kernel.Laplace, 2, 0)
	if err != nil { t.Fatalf("Unexpected kernel error: '%s'.", err.Error()) }

	pts := randomPoints(rng, 300, 2, false)
	trav := buildTraversal(t, pts, 2, 10)
	weights := make([]float64, len(pts))
	for i := range weights { weights[i] = rng.Float64()*2 - 1 }

	wr, err := NewKernelWrangler(trav, k, func(level int) int {
		return 36 - 2*level
	})
	if err != nil { t.Fatalf("Unexpected wrangler error: '%s'.", err.Error()) }

	pot, err := Drive(wr, weights)
	if err != nil { t.Fatalf("Unexpected Drive error: '%s'.", err.Error()) }

	want := directPotential(k, pts, weights)
	diffs := make([]float64, len(pot))
	refs := make([]float64, len(pot))
	for j := range pot {
		diffs[j] = real(pot[j]) - real(want[j])
		refs[j] = real(want[j])
	}
	if relErr := floats.Norm(diffs, 2) / floats.Norm(refs, 2); relErr > 1e-6 {
		t.Errorf("Expected relative error below 1e-6, got %g.", relErr)
	}
}
