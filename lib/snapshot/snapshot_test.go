package snapshot

import (
	"io/ioutil"
	"math/rand"
	"os"
	"path"
	"testing"

	"github.com/fastmultipole/boxfmm/lib/eq"
)

func randomSnapshot(rng *rand.Rand, n int) ([][3]float64, []complex128) {
	targets := make([][3]float64, n)
	potentials := make([]complex128, n)
	for i := range targets {
		targets[i] = [3]float64{rng.Float64(), rng.Float64(), 0}
		potentials[i] = complex(rng.Float64()*2 - 1, 0)
	}
	return targets, potentials
}

func TestWriteRead(t *testing.T) {
	dir, err := ioutil.TempDir("", "boxfmm_snapshot_test")
	if err != nil { t.Fatalf("Unexpected error: '%s'.", err.Error()) }
	defer os.RemoveAll(dir)

	rng := rand.New(rand.NewSource(19))
	tests := []struct{
		n, dim int
	} {
		{1, 2},
		{100, 2},
		{100, 3},
	}

	for i := range tests {
		targets, potentials := randomSnapshot(rng, tests[i].n)
		fname := path.Join(dir, "snap.dat")

		err := Write(fname, tests[i].dim, targets, potentials)
		if err != nil {
			t.Errorf("%d) Unexpected Write error: '%s'.", i, err.Error())
			continue
		}

		snap, err := Read(fname)
		if err != nil {
			t.Errorf("%d) Unexpected Read error: '%s'.", i, err.Error())
			continue
		}

		if snap.Dim != int64(tests[i].dim) {
			t.Errorf("%d) Expected dimension %d, got %d.",
				i, tests[i].dim, snap.Dim)
		}
		if len(snap.Targets) != tests[i].n {
			t.Errorf("%d) Expected %d targets, got %d.",
				i, tests[i].n, len(snap.Targets))
			continue
		}
		for j := range targets {
			if snap.Targets[j] != targets[j] {
				t.Errorf("%d) Expected target %d to be %v, got %v.",
					i, j, targets[j], snap.Targets[j])
				break
			}
		}
		if !eq.Complex128s(snap.Potentials, potentials) {
			t.Errorf("%d) Expected potentials %v, got %v.",
				i, potentials, snap.Potentials)
		}
	}
}

func TestWriteErrors(t *testing.T) {
	targets, potentials := randomSnapshot(rand.New(rand.NewSource(20)), 10)

	tests := []struct{
		dim int
		targets [][3]float64
		potentials []complex128
	} {
		{2, targets, potentials[:5]},
		{1, targets, potentials},
		{4, targets, potentials},
	}

	for i := range tests {
		err := Write("unwritten.dat", tests[i].dim,
			tests[i].targets, tests[i].potentials)
		if err == nil {
			t.Errorf("%d) Expected Write to fail.", i)
		}
	}
}

func TestReadErrors(t *testing.T) {
	dir, err := ioutil.TempDir("", "boxfmm_snapshot_test")
	if err != nil { t.Fatalf("Unexpected error: '%s'.", err.Error()) }
	defer os.RemoveAll(dir)

	rng := rand.New(rand.NewSource(21))
	targets, potentials := randomSnapshot(rng, 20)
	good := path.Join(dir, "good.dat")
	if err := Write(good, 2, targets, potentials); err != nil {
		t.Fatalf("Unexpected Write error: '%s'.", err.Error())
	}
	b, err := ioutil.ReadFile(good)
	if err != nil { t.Fatalf("Unexpected error: '%s'.", err.Error()) }

	// Wrong magic number.
	bad := make([]byte, len(b))
	copy(bad, b)
	bad[0] = 0
	// Wrong version.
	badVersion := make([]byte, len(b))
	copy(badVersion, b)
	badVersion[8] = 99
	// Truncated in the header and in the compressed block.
	short := b[:10]
	cut := b[:len(b)-4]

	tests := [][]byte{ bad, badVersion, short, cut, { } }
	for i := range tests {
		fname := path.Join(dir, "bad.dat")
		if err := ioutil.WriteFile(fname, tests[i], 0644); err != nil {
			t.Fatalf("%d) Unexpected error: '%s'.", i, err.Error())
		}
		if _, err := Read(fname); err == nil {
			t.Errorf("%d) Expected Read to fail.", i)
		}
	}

	if _, err := Read(path.Join(dir, "missing.dat")); err == nil {
		t.Errorf("Expected Read of a missing file to fail.")
	}
}
