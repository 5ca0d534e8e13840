/*package fmm contains the expansion wrangler and the driver that runs the
FMM passes over a tree and its interaction lists. The wrangler owns the
bookkeeping between tree boxes and expansion storage; the analytic series
math lives behind the kernel.Kernel interface.*/
package fmm

import (
	"fmt"
	"math"

	"github.com/fastmultipole/boxfmm/lib/expansion"
	"github.com/fastmultipole/boxfmm/lib/kernel"
	"github.com/fastmultipole/boxfmm/lib/tree"
)

// Wrangler implements the FMM passes over some expansion representation.
// Expansion buffers and potentials are opaque to the driver: it only threads
// them between passes in the fixed dependency order (see Drive). Potentials
// are indexed by tree-order target position until ReorderPotentials.
//
// KernelWrangler delegates the math to a kernel.Kernel; ConstantWrangler
// implements the counting semantics used to test the orchestration itself.
type Wrangler interface {
	// ReorderSources brings user-order source weights into tree order.
	ReorderSources(weights []float64) []float64
	// ReorderPotentials brings tree-order potentials back into user order.
	ReorderPotentials(pot []complex128) []complex128

	// FormMultipoles creates multipole expansions from the sources owned by
	// each box. (P2M)
	FormMultipoles(weights []float64) ([]complex128, error)
	// CoarsenMultipoles translates child multipoles into their parents,
	// deepest level first. (M2M)
	CoarsenMultipoles(mpoles []complex128) error
	// EvalDirect sums the near-field pairwise interactions. (P2P)
	EvalDirect(weights []float64) ([]complex128, error)
	// MultipoleToLocal translates well-separated multipoles into local
	// expansions, level by level. (M2L)
	MultipoleToLocal(mpoles []complex128) ([]complex128, error)
	// EvalMultipoles evaluates the multipoles of small well-separated boxes
	// directly at target points. (M2P)
	EvalMultipoles(mpoles []complex128) ([]complex128, error)
	// FormLocals creates local expansions directly from the sources of
	// boxes whose multipoles cannot be used. (P2L)
	FormLocals(weights []float64) ([]complex128, error)
	// RefineLocals pushes each box's local expansion down into its
	// children, top level first. (L2L)
	RefineLocals(locals []complex128) error
	// EvalLocals evaluates each box's local expansion at the targets it
	// owns. (L2P)
	EvalLocals(locals []complex128) ([]complex128, error)

	// FinalizePotentials applies the kernel's normalization to the
	// accumulated potential. Pure; called exactly once, last.
	FinalizePotentials(pot []complex128) []complex128
}

// Type assertions
var (
	_ Wrangler = &KernelWrangler{ }
	_ Wrangler = &ConstantWrangler{ }
)

// KernelWrangler implements Wrangler by delegating the analytic math to a
// kernel.Kernel. Expansion coefficients live in two flat buffers (one
// multipole, one local) with per-level regions, since the truncation order
// may change with level.
type KernelWrangler struct {
	tree *tree.Tree
	trav *tree.Traversal
	kern kernel.Kernel

	levelNTerms []int
	mpoles      *expansion.Layout
	locals      *expansion.Layout
}

// NewKernelWrangler creates a wrangler over a traversal's tree. levelToNTerms
// maps a tree level to the truncation order used there; it is called once per
// level at construction. Configuration problems (mismatched dimensionality,
// invalid orders) are reported here, before any pass runs.
func NewKernelWrangler(
	trav *tree.Traversal, kern kernel.Kernel, levelToNTerms func(level int) int,
) (*KernelWrangler, error) {
	t := trav.Tree
	if kern.Dim() != t.Dim {
		return nil, fmt.Errorf("The kernel is %d-dimensional, but the tree " +
			"is %d-dimensional.", kern.Dim(), t.Dim)
	}

	levelNTerms := make([]int, t.NLevels)
	for lev := range levelNTerms {
		levelNTerms[lev] = levelToNTerms(lev)
		if levelNTerms[lev] < 0 {
			return nil, fmt.Errorf("levelToNTerms(%d) returned the negative " +
				"order %d.", lev, levelNTerms[lev])
		}
	}

	// Multipole and local expansions share a shape at a given order, but not
	// a buffer layout, since their roles differ box by box.
	shape := func(nterms int) expansion.Shape { return kern.Shape(nterms) }
	return &KernelWrangler{
		tree: t, trav: trav, kern: kern,
		levelNTerms: levelNTerms,
		mpoles: expansion.NewLayout(t.LevelStartBoxNrs, levelNTerms, shape),
		locals: expansion.NewLayout(t.LevelStartBoxNrs, levelNTerms, shape),
	}, nil
}

// rscale is the per-level length scale handed to every kernel call.
func (w *KernelWrangler) rscale(level int) float64 {
	return w.tree.RootExtent * math.Pow(2, -float64(level))
}

func (w *KernelWrangler) sourceSlice(ibox int32) ([][3]float64, int32, int32) {
	start := w.tree.SourceStarts[ibox]
	stop := start + w.tree.SourceCounts[ibox]
	return w.tree.Sources[start:stop], start, stop
}

func (w *KernelWrangler) targetSlice(ibox int32) ([][3]float64, int32, int32) {
	start := w.tree.TargetStarts[ibox]
	stop := start + w.tree.TargetCounts[ibox]
	return w.tree.Targets[start:stop], start, stop
}

func (w *KernelWrangler) ReorderSources(weights []float64) []float64 {
	return reorderSources(w.tree, weights)
}

func (w *KernelWrangler) ReorderPotentials(pot []complex128) []complex128 {
	return reorderPotentials(w.tree, pot)
}

func (w *KernelWrangler) FormMultipoles(weights []float64) ([]complex128, error) {
	mpoles := w.mpoles.Zeros()
	for lev := 0; lev < w.tree.NLevels; lev++ {
		start := w.trav.LevelStartSourceBoxNrs[lev]
		stop := w.trav.LevelStartSourceBoxNrs[lev+1]
		if start == stop { continue }

		view := w.mpoles.View(mpoles, lev)
		rscale := w.rscale(lev)

		for _, ibox := range w.trav.SourceBoxes[start:stop] {
			src, pstart, pstop := w.sourceSlice(ibox)
			if pstart == pstop { continue }

			err := w.kern.FormMultipole(
				rscale, src, weights[pstart:pstop],
				w.tree.Centers[ibox], w.levelNTerms[lev], view.Box(ibox),
			)
			if err != nil {
				return nil, fmt.Errorf("FormMultipoles: kernel evaluation " +
					"failed: %s", err.Error())
			}
		}
	}
	return mpoles, nil
}

func (w *KernelWrangler) CoarsenMultipoles(mpoles []complex128) error {
	t := w.tree

	// nlevels-1 is the deepest level; levels 0 and 1 never hold a box that
	// is well-separated from another, so the coarsest translation target is
	// level 2.
	for srcLevel := t.NLevels - 1; srcLevel >= 3; srcLevel-- {
		tgtLevel := srcLevel - 1
		start := w.trav.LevelStartSourceParentBoxNrs[tgtLevel]
		stop := w.trav.LevelStartSourceParentBoxNrs[tgtLevel+1]

		srcView := w.mpoles.View(mpoles, srcLevel)
		tgtView := w.mpoles.View(mpoles, tgtLevel)
		srcRscale, tgtRscale := w.rscale(srcLevel), w.rscale(tgtLevel)

		for _, ibox := range w.trav.SourceParentBoxes[start:stop] {
			for _, child := range t.ChildIDs(ibox) {
				if child == 0 { continue }

				err := w.kern.TranslateMultipole(
					srcRscale, t.Centers[child], srcView.Box(child),
					tgtRscale, t.Centers[ibox], w.levelNTerms[tgtLevel],
					tgtView.Box(ibox),
				)
				if err != nil {
					return fmt.Errorf("CoarsenMultipoles: kernel " +
						"evaluation failed: %s", err.Error())
				}
			}
		}
	}
	return nil
}

func (w *KernelWrangler) EvalDirect(weights []float64) ([]complex128, error) {
	pot := make([]complex128, len(w.tree.Targets))
	u := w.trav.NeighborSourceBoxes

	for itgt, ibox := range w.trav.TargetBoxes {
		tgt, tstart, tstop := w.targetSlice(ibox)
		if tstart == tstop { continue }

		for _, src := range u.Lists[u.Starts[itgt]:u.Starts[itgt+1]] {
			srcPts, pstart, pstop := w.sourceSlice(src)
			if pstart == pstop { continue }

			w.kern.EvalDirect(srcPts, weights[pstart:pstop], tgt,
				pot[tstart:tstop])
		}
	}
	return pot, nil
}

func (w *KernelWrangler) MultipoleToLocal(mpoles []complex128) ([]complex128, error) {
	t := w.tree
	locals := w.locals.Zeros()
	v := w.trav.SepSiblings

	for lev := 0; lev < t.NLevels; lev++ {
		lstart := w.trav.LevelStartTargetOrTargetParentBoxNrs[lev]
		lstop := w.trav.LevelStartTargetOrTargetParentBoxNrs[lev+1]
		if lstart == lstop { continue }

		nTgt := int(lstop - lstart)
		base := v.Starts[lstart]
		if v.Starts[lstop] == base { continue }

		relStarts := make([]int32, nTgt+1)
		for i := range relStarts {
			relStarts[i] = v.Starts[int(lstart)+i] - base
		}

		srcView := w.mpoles.View(mpoles, lev)
		tgtView := w.locals.View(locals, lev)
		tgtBoxes := w.trav.TargetOrTargetParentBoxes[lstart:lstop]
		lists := v.Lists[base:v.Starts[lstop]]
		rscale := w.rscale(lev)

		// One batched call per level: amortizes per-pair overhead in the
		// asymptotically dominant pass, and fails as a unit.
		err := w.kern.TranslateMultipolesToLocals(&kernel.M2LBatch{
			RScale1: rscale, RScale2: rscale,
			NTerms2: w.levelNTerms[lev],
			NTargets: nTgt,
			Starts: relStarts,
			SrcCenter: func(j int) [3]float64 { return t.Centers[lists[j]] },
			SrcExpn: func(j int) []complex128 { return srcView.Box(lists[j]) },
			TgtCenter: func(i int) [3]float64 { return t.Centers[tgtBoxes[i]] },
			TgtExpn: func(i int) []complex128 { return tgtView.Box(tgtBoxes[i]) },
		})
		if err != nil {
			return nil, fmt.Errorf("MultipoleToLocal: kernel evaluation " +
				"failed: %s", err.Error())
		}
	}
	return locals, nil
}

func (w *KernelWrangler) EvalMultipoles(mpoles []complex128) ([]complex128, error) {
	t := w.tree
	pot := make([]complex128, len(t.Targets))

	for srcLevel, csr := range w.trav.SepSmallerByLevel {
		if len(csr.Lists) == 0 { continue }

		srcView := w.mpoles.View(mpoles, srcLevel)
		rscale := w.rscale(srcLevel)

		for itgt, ibox := range w.trav.TargetBoxes {
			tgt, tstart, tstop := w.targetSlice(ibox)
			if tstart == tstop { continue }

			for _, src := range csr.Lists[csr.Starts[itgt]:csr.Starts[itgt+1]] {
				err := w.kern.EvalMultipole(
					rscale, t.Centers[src], srcView.Box(src),
					tgt, pot[tstart:tstop],
				)
				if err != nil {
					return nil, fmt.Errorf("EvalMultipoles: kernel " +
						"evaluation failed: %s", err.Error())
				}
			}
		}
	}
	return pot, nil
}

func (w *KernelWrangler) FormLocals(weights []float64) ([]complex128, error) {
	t := w.tree
	locals := w.locals.Zeros()
	x := w.trav.SepBigger

	for lev := 0; lev < t.NLevels; lev++ {
		lstart := w.trav.LevelStartTargetOrTargetParentBoxNrs[lev]
		lstop := w.trav.LevelStartTargetOrTargetParentBoxNrs[lev+1]
		if lstart == lstop { continue }

		tgtView := w.locals.View(locals, lev)
		rscale := w.rscale(lev)

		for i, ibox := range w.trav.TargetOrTargetParentBoxes[lstart:lstop] {
			itgt := int(lstart) + i
			for _, src := range x.Lists[x.Starts[itgt]:x.Starts[itgt+1]] {
				srcPts, pstart, pstop := w.sourceSlice(src)
				if pstart == pstop { continue }

				err := w.kern.FormLocal(
					rscale, srcPts, weights[pstart:pstop],
					t.Centers[ibox], w.levelNTerms[lev], tgtView.Box(ibox),
				)
				if err != nil {
					return nil, fmt.Errorf("FormLocals: kernel evaluation " +
						"failed: %s", err.Error())
				}
			}
		}
	}
	return locals, nil
}

func (w *KernelWrangler) RefineLocals(locals []complex128) error {
	t := w.tree

	// Strictly sequential across levels: a child's local expansion needs its
	// parent's refined one.
	for tgtLevel := 1; tgtLevel < t.NLevels; tgtLevel++ {
		start := w.trav.LevelStartTargetOrTargetParentBoxNrs[tgtLevel]
		stop := w.trav.LevelStartTargetOrTargetParentBoxNrs[tgtLevel+1]
		if start == stop { continue }

		srcView := w.locals.View(locals, tgtLevel-1)
		tgtView := w.locals.View(locals, tgtLevel)
		srcRscale, tgtRscale := w.rscale(tgtLevel-1), w.rscale(tgtLevel)

		for _, ibox := range w.trav.TargetOrTargetParentBoxes[start:stop] {
			parent := t.ParentIDs[ibox]
			err := w.kern.TranslateLocal(
				srcRscale, t.Centers[parent], srcView.Box(parent),
				tgtRscale, t.Centers[ibox], w.levelNTerms[tgtLevel],
				tgtView.Box(ibox),
			)
			if err != nil {
				return fmt.Errorf("RefineLocals: kernel evaluation " +
					"failed: %s", err.Error())
			}
		}
	}
	return nil
}

func (w *KernelWrangler) EvalLocals(locals []complex128) ([]complex128, error) {
	t := w.tree
	pot := make([]complex128, len(t.Targets))

	for lev := 0; lev < t.NLevels; lev++ {
		start := w.trav.LevelStartTargetBoxNrs[lev]
		stop := w.trav.LevelStartTargetBoxNrs[lev+1]
		if start == stop { continue }

		view := w.locals.View(locals, lev)
		rscale := w.rscale(lev)

		for _, ibox := range w.trav.TargetBoxes[start:stop] {
			tgt, tstart, tstop := w.targetSlice(ibox)
			if tstart == tstop { continue }

			err := w.kern.EvalLocal(
				rscale, t.Centers[ibox], view.Box(ibox),
				tgt, pot[tstart:tstop],
			)
			if err != nil {
				return nil, fmt.Errorf("EvalLocals: kernel evaluation " +
					"failed: %s", err.Error())
			}
		}
	}
	return pot, nil
}

func (w *KernelWrangler) FinalizePotentials(pot []complex128) []complex128 {
	w.kern.FinalizePotentials(pot)
	return pot
}

// reorderSources maps user-order weights to tree order.
func reorderSources(t *tree.Tree, weights []float64) []float64 {
	out := make([]float64, len(weights))
	for i, u := range t.UserSourceIDs {
		out[i] = weights[u]
	}
	return out
}

// reorderPotentials maps tree-order potentials back to user order.
func reorderPotentials(t *tree.Tree, pot []complex128) []complex128 {
	out := make([]complex128, len(pot))
	for u, i := range t.SortedTargetIDs {
		out[u] = pot[i]
	}
	return out
}
