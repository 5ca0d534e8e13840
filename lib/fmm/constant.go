package fmm

import (
	"gonum.org/v1/gonum/floats"

	"github.com/fastmultipole/boxfmm/lib/tree"
)

// ConstantWrangler implements Wrangler for the kernel G(x, y) = 1. Every
// expansion is a single number, the total weight it accounts for, so a
// potential computed through the full pass sequence equals the sum of all
// source weights exactly when each source-target pair is covered exactly
// once by the interaction lists.
type ConstantWrangler struct {
	tree *tree.Tree
	trav *tree.Traversal
}

func NewConstantWrangler(trav *tree.Traversal) *ConstantWrangler {
	return &ConstantWrangler{ trav.Tree, trav }
}

func (w *ConstantWrangler) sourceSum(weights []float64, ibox int32) float64 {
	start := w.tree.SourceStarts[ibox]
	stop := start + w.tree.SourceCounts[ibox]
	return floats.Sum(weights[start:stop])
}

func (w *ConstantWrangler) targetRange(ibox int32) (start, stop int32) {
	start = w.tree.TargetStarts[ibox]
	return start, start + w.tree.TargetCounts[ibox]
}

func (w *ConstantWrangler) ReorderSources(weights []float64) []float64 {
	return reorderSources(w.tree, weights)
}

func (w *ConstantWrangler) ReorderPotentials(pot []complex128) []complex128 {
	return reorderPotentials(w.tree, pot)
}

func (w *ConstantWrangler) FormMultipoles(weights []float64) ([]complex128, error) {
	mpoles := make([]complex128, w.tree.NBoxes())
	for _, ibox := range w.trav.SourceBoxes {
		mpoles[ibox] += complex(w.sourceSum(weights, ibox), 0)
	}
	return mpoles, nil
}

func (w *ConstantWrangler) CoarsenMultipoles(mpoles []complex128) error {
	// Same level cutoff as the delegating wrangler: multipoles above level 2
	// are never consumed, so they are never built.
	for srcLevel := w.tree.NLevels - 1; srcLevel >= 3; srcLevel-- {
		tgtLevel := srcLevel - 1
		start := w.trav.LevelStartSourceParentBoxNrs[tgtLevel]
		stop := w.trav.LevelStartSourceParentBoxNrs[tgtLevel+1]

		for _, ibox := range w.trav.SourceParentBoxes[start:stop] {
			for _, child := range w.tree.ChildIDs(ibox) {
				if child != 0 { mpoles[ibox] += mpoles[child] }
			}
		}
	}
	return nil
}

func (w *ConstantWrangler) EvalDirect(weights []float64) ([]complex128, error) {
	pot := make([]complex128, len(w.tree.Targets))
	u := w.trav.NeighborSourceBoxes

	for itgt, ibox := range w.trav.TargetBoxes {
		sum := 0.0
		for _, src := range u.Lists[u.Starts[itgt]:u.Starts[itgt+1]] {
			sum += w.sourceSum(weights, src)
		}

		start, stop := w.targetRange(ibox)
		for i := start; i < stop; i++ {
			pot[i] += complex(sum, 0)
		}
	}
	return pot, nil
}

func (w *ConstantWrangler) MultipoleToLocal(mpoles []complex128) ([]complex128, error) {
	locals := make([]complex128, w.tree.NBoxes())
	v := w.trav.SepSiblings

	for itgt, ibox := range w.trav.TargetOrTargetParentBoxes {
		for _, src := range v.Lists[v.Starts[itgt]:v.Starts[itgt+1]] {
			locals[ibox] += mpoles[src]
		}
	}
	return locals, nil
}

func (w *ConstantWrangler) EvalMultipoles(mpoles []complex128) ([]complex128, error) {
	pot := make([]complex128, len(w.tree.Targets))

	for _, csr := range w.trav.SepSmallerByLevel {
		if len(csr.Lists) == 0 { continue }

		for itgt, ibox := range w.trav.TargetBoxes {
			sum := complex128(0)
			for _, src := range csr.Lists[csr.Starts[itgt]:csr.Starts[itgt+1]] {
				sum += mpoles[src]
			}

			start, stop := w.targetRange(ibox)
			for i := start; i < stop; i++ {
				pot[i] += sum
			}
		}
	}
	return pot, nil
}

func (w *ConstantWrangler) FormLocals(weights []float64) ([]complex128, error) {
	locals := make([]complex128, w.tree.NBoxes())
	x := w.trav.SepBigger

	for itgt, ibox := range w.trav.TargetOrTargetParentBoxes {
		for _, src := range x.Lists[x.Starts[itgt]:x.Starts[itgt+1]] {
			locals[ibox] += complex(w.sourceSum(weights, src), 0)
		}
	}
	return locals, nil
}

func (w *ConstantWrangler) RefineLocals(locals []complex128) error {
	for tgtLevel := 1; tgtLevel < w.tree.NLevels; tgtLevel++ {
		start := w.trav.LevelStartTargetOrTargetParentBoxNrs[tgtLevel]
		stop := w.trav.LevelStartTargetOrTargetParentBoxNrs[tgtLevel+1]

		for _, ibox := range w.trav.TargetOrTargetParentBoxes[start:stop] {
			locals[ibox] += locals[w.tree.ParentIDs[ibox]]
		}
	}
	return nil
}

func (w *ConstantWrangler) EvalLocals(locals []complex128) ([]complex128, error) {
	pot := make([]complex128, len(w.tree.Targets))
	for _, ibox := range w.trav.TargetBoxes {
		start, stop := w.targetRange(ibox)
		for i := start; i < stop; i++ {
			pot[i] += locals[ibox]
		}
	}
	return pot, nil
}

func (w *ConstantWrangler) FinalizePotentials(pot []complex128) []complex128 {
	return pot
}
