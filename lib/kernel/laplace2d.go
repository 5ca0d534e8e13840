package kernel

/* laplace2d.go implements the 2-D Laplace series operators. In two dimensions
the potential of a unit charge at z0 is Re log(z - z0) over the complex plane,
so multipole expansions are truncated Laurent series and local expansions are
truncated Taylor series. A multipole about center c with scale r reads

	phi(z) = M[0] log(z-c) + sum_k M[k] (r/(z-c))^k

and a local expansion reads

	phi(z) = sum_l L[l] ((z-c)/r)^l.

The translation operators below are the classic Greengard-Rokhlin binomial
identities, written in the scaled coefficients directly so that no
intermediate power of a box size appears. Imaginary parts pick up arbitrary
log branch offsets along the way; only the real part is the potential, and
FinalizePotentials discards the rest. */

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/stat/combin"

	"github.com/fastmultipole/boxfmm/lib/expansion"
)

// Laplace2D implements Kernel for the 2-D Laplace potential. It is not safe
// for concurrent use: the binomial table grows lazily.
type Laplace2D struct {
	binom [][]float64
}

// Type assertion
var (
	_ Kernel = &Laplace2D{ }
)

// NewLaplace2D creates a 2-D Laplace kernel.
func NewLaplace2D() *Laplace2D { return &Laplace2D{ } }

func (k *Laplace2D) Dim() int { return 2 }

func (k *Laplace2D) Shape(nterms int) expansion.Shape {
	return ExpansionShape(Laplace, 2, nterms)
}

// c returns the binomial coefficient C(n, j), growing the cached table as
// needed.
func (k *Laplace2D) c(n, j int) float64 {
	for len(k.binom) <= n {
		m := len(k.binom)
		row := make([]float64, m+1)
		for i := range row {
			row[i] = combin.GeneralizedBinomial(float64(m), float64(i))
		}
		k.binom = append(k.binom, row)
	}
	return k.binom[n][j]
}

// z2 maps a point to its complex-plane coordinate.
func z2(x [3]float64) complex128 { return complex(x[0], x[1]) }

// powers returns [1, z, z^2, ..., z^n].
func powers(z complex128, n int) []complex128 {
	p := make([]complex128, n+1)
	p[0] = 1
	for i := 1; i <= n; i++ {
		p[i] = p[i-1] * z
	}
	return p
}

// check validates the (order, rscale, coefficient-count) triple every routine
// receives.
func check(name string, nterms int, rscale float64, expn []complex128) error {
	if nterms < 0 {
		return fmt.Errorf("%s: order %d is negative.", name, nterms)
	}
	if rscale <= 0 {
		return fmt.Errorf("%s: rscale = %g is not positive.", name, rscale)
	}
	if len(expn) != nterms + 1 {
		return fmt.Errorf("%s: expansion has %d coefficients, but order %d " +
			"needs %d.", name, len(expn), nterms, nterms+1)
	}
	return nil
}

func (k *Laplace2D) FormMultipole(
	rscale float64, sources [][3]float64, weights []float64,
	center [3]float64, nterms int, out []complex128,
) error {
	if err := check("FormMultipole", nterms, rscale, out); err != nil {
		return err
	}

	for i := range out { out[i] = 0 }
	c := z2(center)
	for i, x := range sources {
		q := complex(weights[i], 0)
		w := (z2(x) - c) / complex(rscale, 0)

		out[0] += q
		wk := complex(1, 0)
		for l := 1; l <= nterms; l++ {
			wk *= w
			out[l] -= q * wk / complex(float64(l), 0)
		}
	}
	return nil
}

func (k *Laplace2D) TranslateMultipole(
	rscale1 float64, center1 [3]float64, expn1 []complex128,
	rscale2 float64, center2 [3]float64, nterms2 int, out []complex128,
) error {
	nterms1 := len(expn1) - 1
	if err := check("TranslateMultipole", nterms1, rscale1, expn1); err != nil {
		return err
	}
	if err := check("TranslateMultipole", nterms2, rscale2, out); err != nil {
		return err
	}

	// zr is the child center relative to the parent, in parent scale units.
	zr := (z2(center1) - z2(center2)) / complex(rscale2, 0)
	rr := rscale1 / rscale2

	zrPow := powers(zr, nterms2)

	out[0] += expn1[0]
	for l := 1; l <= nterms2; l++ {
		b := -expn1[0] * zrPow[l] / complex(float64(l), 0)

		rrk := 1.0
		for kk := 1; kk <= l && kk <= nterms1; kk++ {
			rrk *= rr
			b += expn1[kk] * complex(k.c(l-1, kk-1)*rrk, 0) * zrPow[l-kk]
		}
		out[l] += b
	}
	return nil
}

// mploc translates one multipole expansion into one local expansion,
// accumulating into out.
func (k *Laplace2D) mploc(
	rscale1 float64, center1 [3]float64, expn1 []complex128,
	rscale2 float64, center2 [3]float64, nterms2 int, out []complex128,
) error {
	nterms1 := len(expn1) - 1
	if err := check("TranslateMultipolesToLocals", nterms1, rscale1, expn1); err != nil {
		return err
	}
	if err := check("TranslateMultipolesToLocals", nterms2, rscale2, out); err != nil {
		return err
	}

	z0 := z2(center1) - z2(center2)
	if z0 == 0 {
		return fmt.Errorf("TranslateMultipolesToLocals: source and target " +
			"expansions share a center.")
	}
	s := complex(rscale1, 0) / z0
	t := complex(rscale2, 0) / z0

	// sum_k M[k] (-s)^k and its C(l+k-1, k-1)-weighted variants.
	b0 := expn1[0] * cmplx.Log(-z0)
	sk := complex(1, 0)
	for kk := 1; kk <= nterms1; kk++ {
		sk *= -s
		b0 += expn1[kk] * sk
	}
	out[0] += b0

	tl := complex(1, 0)
	for l := 1; l <= nterms2; l++ {
		tl *= t
		b := -expn1[0] / complex(float64(l), 0)

		sk = complex(1, 0)
		for kk := 1; kk <= nterms1; kk++ {
			sk *= -s
			b += expn1[kk] * complex(k.c(l+kk-1, kk-1), 0) * sk
		}
		out[l] += b * tl
	}
	return nil
}

func (k *Laplace2D) TranslateMultipolesToLocals(b *M2LBatch) error {
	for i := 0; i < b.NTargets; i++ {
		tgtExpn := b.TgtExpn(i)
		tgtCenter := b.TgtCenter(i)
		for j := b.Starts[i]; j < b.Starts[i+1]; j++ {
			err := k.mploc(
				b.RScale1, b.SrcCenter(int(j)), b.SrcExpn(int(j)),
				b.RScale2, tgtCenter, b.NTerms2, tgtExpn,
			)
			if err != nil { return err }
		}
	}
	return nil
}

func (k *Laplace2D) FormLocal(
	rscale float64, sources [][3]float64, weights []float64,
	center [3]float64, nterms int, out []complex128,
) error {
	if err := check("FormLocal", nterms, rscale, out); err != nil {
		return err
	}

	c := z2(center)
	for i, x := range sources {
		q := complex(weights[i], 0)
		v := z2(x) - c
		if v == 0 {
			return fmt.Errorf("FormLocal: a source sits on the expansion " +
				"center.")
		}

		out[0] += q * cmplx.Log(-v)
		rv := complex(rscale, 0) / v
		rvl := complex(1, 0)
		for l := 1; l <= nterms; l++ {
			rvl *= rv
			out[l] -= q * rvl / complex(float64(l), 0)
		}
	}
	return nil
}

func (k *Laplace2D) TranslateLocal(
	rscale1 float64, center1 [3]float64, expn1 []complex128,
	rscale2 float64, center2 [3]float64, nterms2 int, out []complex128,
) error {
	nterms1 := len(expn1) - 1
	if err := check("TranslateLocal", nterms1, rscale1, expn1); err != nil {
		return err
	}
	if err := check("TranslateLocal", nterms2, rscale2, out); err != nil {
		return err
	}

	// zr is the child center relative to the parent, in parent scale units.
	zr := (z2(center2) - z2(center1)) / complex(rscale1, 0)
	rr := rscale2 / rscale1

	rrl := 1.0
	for l := 0; l <= nterms2; l++ {
		if l > 0 { rrl *= rr }

		b := complex(0, 0)
		zrkl := complex(1, 0)
		for kk := l; kk <= nterms1; kk++ {
			b += expn1[kk] * complex(k.c(kk, l), 0) * zrkl
			zrkl *= zr
		}
		out[l] += b * complex(rrl, 0)
	}
	return nil
}

func (k *Laplace2D) EvalMultipole(
	rscale float64, center [3]float64, expn []complex128,
	targets [][3]float64, pot []complex128,
) error {
	nterms := len(expn) - 1
	if err := check("EvalMultipole", nterms, rscale, expn); err != nil {
		return err
	}

	c := z2(center)
	for i, x := range targets {
		w := z2(x) - c
		if w == 0 {
			return fmt.Errorf("EvalMultipole: a target sits on the " +
				"expansion center.")
		}

		phi := expn[0] * cmplx.Log(w)
		rw := complex(rscale, 0) / w
		rwk := complex(1, 0)
		for kk := 1; kk <= nterms; kk++ {
			rwk *= rw
			phi += expn[kk] * rwk
		}
		pot[i] += phi
	}
	return nil
}

func (k *Laplace2D) EvalLocal(
	rscale float64, center [3]float64, expn []complex128,
	targets [][3]float64, pot []complex128,
) error {
	nterms := len(expn) - 1
	if err := check("EvalLocal", nterms, rscale, expn); err != nil {
		return err
	}

	c := z2(center)
	for i, x := range targets {
		w := (z2(x) - c) / complex(rscale, 0)

		// Horner evaluation of the Taylor series.
		phi := complex(0, 0)
		for l := nterms; l >= 0; l-- {
			phi = phi*w + expn[l]
		}
		pot[i] += phi
	}
	return nil
}

func (k *Laplace2D) EvalDirect(
	sources [][3]float64, weights []float64,
	targets [][3]float64, pot []complex128,
) {
	for i, xt := range targets {
		zt := z2(xt)
		for j, xs := range sources {
			d := zt - z2(xs)
			if d == 0 { continue }
			pot[i] += complex(weights[j], 0) * cmplx.Log(d)
		}
	}
}

func (k *Laplace2D) FinalizePotentials(pot []complex128) {
	scale := -1 / (2 * math.Pi)
	for i := range pot {
		pot[i] = complex(real(pot[i]) * scale, 0)
	}
}
