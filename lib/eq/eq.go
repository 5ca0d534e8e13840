/*package eq is a simple package for telling whether two arrays are equal to
one another.*/
package eq

import (
	"math/cmplx"
)

// Ints returns true if two []int arrays are the same and false otherwise.
func Ints(x, y []int) bool {
	if len(x) != len(y) { return false }
	for i := range x {
		if x[i] != y[i] { return false }
	}
	return true
}

// Int32s returns true if two []int32 arrays are the same and false otherwise.
func Int32s(x, y []int32) bool {
	if len(x) != len(y) { return false }
	for i := range x {
		if x[i] != y[i] { return false }
	}
	return true
}

// Float64s returns true if two []float64 arrays are the same and false
// otherwise.
func Float64s(x, y []float64) bool {
	if len(x) != len(y) { return false }
	for i := range x {
		if x[i] != y[i] { return false }
	}
	return true
}

// Float64sEps returns true if the two []float64 arrays are within eps of one
// another and false otherwise.
func Float64sEps(x, y []float64, eps float64) bool {
	if len(x) != len(y) { return false }
	for i := range x {
		if x[i] + eps < y[i] || x[i] - eps > y[i] {
			return false
		}
	}
	return true
}

// Complex128s returns true if two []complex128 arrays are the same and false
// otherwise.
func Complex128s(x, y []complex128) bool {
	if len(x) != len(y) { return false }
	for i := range x {
		if x[i] != y[i] { return false }
	}
	return true
}

// Complex128sEps returns true if the two []complex128 arrays are within eps of
// one another, element by element in modulus, and false otherwise.
func Complex128sEps(x, y []complex128, eps float64) bool {
	if len(x) != len(y) { return false }
	for i := range x {
		if cmplx.Abs(x[i] - y[i]) > eps { return false }
	}
	return true
}
