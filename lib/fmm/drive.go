package fmm

import (
	"gonum.org/v1/gonum/cmplxs"
)

// Drive runs the full FMM pass sequence for one set of source weights and
// returns the user-order potentials. The pass order is fixed by data
// dependencies: multipoles must be complete before any pass reads them, and
// local expansions must be fully accumulated before they are refined.
// The first kernel failure aborts the computation.
func Drive(w Wrangler, srcWeights []float64) ([]complex128, error) {
	weights := w.ReorderSources(srcWeights)

	mpoles, err := w.FormMultipoles(weights)
	if err != nil { return nil, err }
	if err := w.CoarsenMultipoles(mpoles); err != nil { return nil, err }

	pot, err := w.EvalDirect(weights)
	if err != nil { return nil, err }

	locals, err := w.MultipoleToLocal(mpoles)
	if err != nil { return nil, err }

	mpot, err := w.EvalMultipoles(mpoles)
	if err != nil { return nil, err }
	cmplxs.Add(pot, mpot)

	directLocals, err := w.FormLocals(weights)
	if err != nil { return nil, err }
	cmplxs.Add(locals, directLocals)

	if err := w.RefineLocals(locals); err != nil { return nil, err }

	lpot, err := w.EvalLocals(locals)
	if err != nil { return nil, err }
	cmplxs.Add(pot, lpot)

	return w.FinalizePotentials(w.ReorderPotentials(pot)), nil
}
