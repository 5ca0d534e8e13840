/*package kernel contains the analytic expansion math consumed by the FMM
passes. The orchestration code never looks inside an expansion: it only moves
coefficient slices between tree levels and calls the routines defined here.
Every routine is parameterized by a truncation order and a per-level length
scale (rscale), which keeps coefficients from over/underflowing as box sizes
shrink geometrically with depth.*/
package kernel

import (
	"fmt"

	"github.com/fastmultipole/boxfmm/lib/expansion"
)

// Family identifies the kernel family of the pairwise interaction.
type Family int

const (
	// Laplace is the non-oscillatory 1/r (log r in 2-D) potential.
	Laplace Family = iota
	// Helmholtz is the oscillatory potential with wavenumber k.
	Helmholtz
)

// String returns a human-readable name for the Family.
func (f Family) String() string {
	switch f {
	case Laplace: return "Laplace"
	case Helmholtz: return "Helmholtz"
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// ExpansionShape returns the coefficient layout of a truncated expansion for
// a kernel family and dimensionality. It is a pure function of its arguments.
// Dimensions other than 2 and 3 are a programming error (constructors reject
// them before any expansion exists) and panic.
func ExpansionShape(family Family, dim, nterms int) expansion.Shape {
	switch {
	case dim == 2 && family == Laplace:
		return expansion.Shape{ Rows: nterms + 1, Cols: 1 }
	case dim == 2 && family == Helmholtz:
		return expansion.Shape{ Rows: 2*nterms + 1, Cols: 1 }
	case dim == 3:
		return expansion.Shape{ Rows: 2*nterms + 1, Cols: nterms + 1 }
	}
	panic(fmt.Sprintf("Internal error: no expansion shape for %d dimensions.",
		dim))
}

// M2LBatch describes one level's worth of multipole-to-local translations.
// For target i (0 <= i < NTargets), the flattened pair indices are
// Starts[i]:Starts[i+1]; SrcCenter and SrcExpn are indexed by pair index,
// TgtCenter and TgtExpn by target index. TgtExpn slices are accumulated into.
type M2LBatch struct {
	RScale1, RScale2 float64
	NTerms2          int
	NTargets         int
	Starts           []int32
	SrcCenter        func(j int) [3]float64
	SrcExpn          func(j int) []complex128
	TgtCenter        func(i int) [3]float64
	TgtExpn          func(i int) []complex128
}

// Kernel is the call contract between the FMM passes and the analytic series
// math. Expansion coefficients are opaque []complex128 slices whose length
// matches Shape(nterms).Size() for the order in play. A non-nil error from
// any routine means the numerical configuration is invalid; callers treat it
// as fatal and never retry.
type Kernel interface {
	// Dim returns the dimensionality the kernel was built for.
	Dim() int
	// Shape returns the coefficient layout at a given truncation order.
	Shape(nterms int) expansion.Shape

	// FormMultipole expands the field of point sources about center,
	// overwriting out. (P2M)
	FormMultipole(rscale float64, sources [][3]float64, weights []float64,
		center [3]float64, nterms int, out []complex128) error
	// TranslateMultipole re-centers a multipole expansion, accumulating the
	// order-nterms2 result into out. (M2M)
	TranslateMultipole(rscale1 float64, center1 [3]float64, expn1 []complex128,
		rscale2 float64, center2 [3]float64, nterms2 int, out []complex128) error
	// TranslateMultipolesToLocals converts a batch of multipole expansions
	// into local expansions, accumulating into the batch's targets. The batch
	// fails as a whole: there is no partial success. (M2L)
	TranslateMultipolesToLocals(b *M2LBatch) error
	// FormLocal expands the incoming field of point sources about center,
	// accumulating into out. (P2L)
	FormLocal(rscale float64, sources [][3]float64, weights []float64,
		center [3]float64, nterms int, out []complex128) error
	// TranslateLocal re-centers a local expansion, accumulating the
	// order-nterms2 result into out. (L2L)
	TranslateLocal(rscale1 float64, center1 [3]float64, expn1 []complex128,
		rscale2 float64, center2 [3]float64, nterms2 int, out []complex128) error

	// EvalMultipole evaluates a multipole expansion at target points,
	// accumulating into pot (indexed like targets). (M2P)
	EvalMultipole(rscale float64, center [3]float64, expn []complex128,
		targets [][3]float64, pot []complex128) error
	// EvalLocal evaluates a local expansion at target points, accumulating
	// into pot. (L2P)
	EvalLocal(rscale float64, center [3]float64, expn []complex128,
		targets [][3]float64, pot []complex128) error
	// EvalDirect accumulates exact pairwise contributions into pot.
	// Coincident source/target pairs contribute nothing. (P2P)
	EvalDirect(sources [][3]float64, weights []float64,
		targets [][3]float64, pot []complex128)

	// FinalizePotentials applies the family- and dimension-dependent
	// normalization in place. For real-valued families this also discards
	// the expected-zero imaginary remainder.
	FinalizePotentials(pot []complex128)
}

// New resolves a kernel family and dimensionality into a Kernel once, at
// construction. helmholtzK is the Helmholtz wavenumber and must be zero for
// Laplace. boxfmm ships native series math for the 2-D Laplace kernel;
// every other combination needs a caller-supplied Kernel implementation.
func New(family Family, dim int, helmholtzK float64) (Kernel, error) {
	if dim != 2 && dim != 3 {
		return nil, fmt.Errorf("Kernels can only be built in 2 or 3 " +
			"dimensions, not %d.", dim)
	}
	if family == Laplace && helmholtzK != 0 {
		return nil, fmt.Errorf("The Laplace kernel has no wavenumber, but " +
			"k = %g was given.", helmholtzK)
	}
	if family == Helmholtz && helmholtzK == 0 {
		return nil, fmt.Errorf("The Helmholtz kernel requires a non-zero " +
			"wavenumber.")
	}

	if family == Laplace && dim == 2 {
		return NewLaplace2D(), nil
	}
	return nil, fmt.Errorf("No native series implementation for the %s " +
		"kernel in %d dimensions: supply your own Kernel.", family, dim)
}
