package main

import (
	"flag"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"os"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/fastmultipole/boxfmm/lib/error"
	"github.com/fastmultipole/boxfmm/lib/fmm"
	"github.com/fastmultipole/boxfmm/lib/kernel"
	"github.com/fastmultipole/boxfmm/lib/snapshot"
	"github.com/fastmultipole/boxfmm/lib/thread"
	"github.com/fastmultipole/boxfmm/lib/tree"
)

func main() {
	if len(os.Args) < 2 {
		error.External("boxfmm must be run as 'boxfmm <mode> [flags]', " +
			"where <mode> is 'help', 'bench', or 'selftest'.")
	}

	mode := os.Args[1]
	switch mode {
	case "help":
		PrintHelp()
	case "bench":
		Bench(os.Args[2:])
	case "selftest":
		SelfTest(os.Args[2:])
	default:
		error.External(
			"You attempted to run boxfmm in the mode '%s', but the only " +
				"valid modes are 'help', 'bench', and 'selftest'.", mode,
		)
	}
}

func PrintHelp() {
	fmt.Println(`boxfmm evaluates N-body potentials with the fast multipole method.

Modes:
    help      print this message
    bench     time a 2D Laplace evaluation on random points and report the
              error against a direct sum on a sample of targets
    selftest  run the interaction-list completeness check on random points

Run 'boxfmm <mode> -h' for the flags of each mode.`)
}

// Bench times a full 2D Laplace evaluation on uniform random points and
// reports the relative error against direct summation on a target sample.
func Bench(args []string) {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	n := fs.Int("n", 100000, "Number of source/target points.")
	nterms := fs.Int("nterms", 20, "Truncation order of the expansions.")
	maxParticles := fs.Int("max-particles", 30,
		"Largest number of points a tree box may hold without splitting.")
	nCheck := fs.Int("check", 100,
		"Number of targets compared against a direct sum.")
	threads := fs.Int("threads", -1,
		"Number of threads used. -1 uses all available cores.")
	seed := fs.Int64("seed", 0, "Random seed.")
	out := fs.String("o", "", "If set, write a snapshot file to this path.")
	fs.Parse(args)

	thread.Set(*threads)
	rng := rand.New(rand.NewSource(*seed))

	pts := make([][3]float64, *n)
	weights := make([]float64, *n)
	for i := range pts {
		pts[i] = [3]float64{rng.Float64(), rng.Float64(), 0}
		weights[i] = rng.Float64()*2 - 1
	}

	t0 := time.Now()
	t, err := tree.New(pts, nil, 2, *maxParticles)
	if err != nil { error.External(err.Error()) }
	trav := tree.BuildTraversal(t)
	tTree := time.Since(t0)

	kern, err := kernel.New(kernel.Laplace, 2, 0)
	if err != nil { error.External(err.Error()) }
	wr, err := fmm.NewKernelWrangler(trav, kern,
		func(level int) int { return *nterms })
	if err != nil { error.External(err.Error()) }

	t0 = time.Now()
	pot, err := fmm.Drive(wr, weights)
	if err != nil { error.External(err.Error()) }
	tEval := time.Since(t0)

	fmt.Printf("points:        %d\n", *n)
	fmt.Printf("tree levels:   %d (%d boxes)\n", t.NLevels, t.NBoxes())
	fmt.Printf("tree build:    %v\n", tTree)
	fmt.Printf("fmm eval:      %v\n", tEval)
	fmt.Printf("rel l2 error:  %g\n", sampleError(rng, pts, weights, pot, *nCheck))

	if *out != "" {
		err := snapshot.Write(*out, 2, pts, pot)
		if err != nil { error.External(err.Error()) }
		fmt.Printf("snapshot:      %s\n", *out)
	}
}

// sampleError compares pot against a direct 2D Laplace sum at nCheck random
// targets and returns the relative l2 error over that sample.
func sampleError(rng *rand.Rand, pts [][3]float64, weights []float64,
	pot []complex128, nCheck int) float64 {

	if nCheck > len(pts) { nCheck = len(pts) }

	errs := make([]float64, nCheck)
	refs := make([]float64, nCheck)
	for i := 0; i < nCheck; i++ {
		j := rng.Intn(len(pts))

		exact := 0.0
		zt := complex(pts[j][0], pts[j][1])
		for k := range pts {
			if k == j { continue }
			zs := complex(pts[k][0], pts[k][1])
			exact += weights[k] * real(cmplx.Log(zt-zs))
		}
		exact *= -1 / (2 * math.Pi)

		errs[i] = real(pot[j]) - exact
		refs[i] = exact
	}

	return floats.Norm(errs, 2) / floats.Norm(refs, 2)
}

// SelfTest runs the constant-kernel completeness check: with unit weights
// and G = 1, every potential must equal the number of sources.
func SelfTest(args []string) {
	fs := flag.NewFlagSet("selftest", flag.ExitOnError)
	n := fs.Int("n", 100000, "Number of source/target points.")
	dim := fs.Int("dim", 2, "Dimension of the point distribution (2 or 3).")
	maxParticles := fs.Int("max-particles", 30,
		"Largest number of points a tree box may hold without splitting.")
	seed := fs.Int64("seed", 0, "Random seed.")
	fs.Parse(args)

	rng := rand.New(rand.NewSource(*seed))
	pts := make([][3]float64, *n)
	weights := make([]float64, *n)
	for i := range pts {
		for d := 0; d < *dim; d++ { pts[i][d] = rng.Float64() }
		weights[i] = 1
	}

	t, err := tree.New(pts, nil, *dim, *maxParticles)
	if err != nil { error.External(err.Error()) }
	trav := tree.BuildTraversal(t)

	pot, err := fmm.Drive(fmm.NewConstantWrangler(trav), weights)
	if err != nil { error.External(err.Error()) }

	worst := 0.0
	for i := range pot {
		diff := math.Abs(real(pot[i]) - float64(*n))
		if diff > worst { worst = diff }
	}

	if worst > 1e-8*float64(*n) {
		error.External("Self-test failed: with unit weights and a constant " +
			"kernel every potential should be %d, but the worst deviation " +
			"is %g.", *n, worst)
	}
	fmt.Printf("ok: %d points, worst deviation %g\n", *n, worst)
}
