/*package expansion contains the flat per-level storage for multipole and
local expansion coefficients. The truncation order varies by level, so
coefficient strides do too: a Layout maps each level to its (offset, stride,
shape) triple inside one contiguous buffer, and every box-level access goes
through it. This trades a little offset bookkeeping for never allocating
per box.*/
package expansion

import (
	"fmt"
)

// Shape is the coefficient layout of one box's expansion. Linear layouts have
// Cols == 1; the 3-D series use a matrix layout.
type Shape struct {
	Rows, Cols int
}

// Size returns the number of coefficients in the shape.
func (s Shape) Size() int { return s.Rows * s.Cols }

// Layout maps tree levels to regions of a flat coefficient buffer. It is
// computed once per wrangler and never mutated.
type Layout struct {
	levelStarts   []int
	strides       []int
	shapes        []Shape
	levelStartBox []int32
	nLevels       int
}

// NewLayout computes the per-level offsets for a tree with the given
// per-level box-id ranges and truncation orders. shape must be a pure
// function of the order.
func NewLayout(
	levelStartBoxNrs []int32, levelNTerms []int, shape func(nterms int) Shape,
) *Layout {
	nLevels := len(levelNTerms)
	l := &Layout{
		levelStarts: make([]int, nLevels+1),
		strides: make([]int, nLevels),
		shapes: make([]Shape, nLevels),
		levelStartBox: levelStartBoxNrs,
		nLevels: nLevels,
	}

	for lev := 0; lev < nLevels; lev++ {
		nBoxes := int(levelStartBoxNrs[lev+1] - levelStartBoxNrs[lev])
		l.shapes[lev] = shape(levelNTerms[lev])
		l.strides[lev] = l.shapes[lev].Size()
		l.levelStarts[lev+1] = l.levelStarts[lev] + l.strides[lev]*nBoxes
	}
	return l
}

// NLevels returns the number of levels the Layout covers.
func (l *Layout) NLevels() int { return l.nLevels }

// TotalSize returns the length of a buffer holding every level's region.
func (l *Layout) TotalSize() int { return l.levelStarts[l.nLevels] }

// LevelStarts returns the cumulative per-level offsets into a flat buffer.
// The slice has NLevels+1 entries and must not be modified.
func (l *Layout) LevelStarts() []int { return l.levelStarts }

// Zeros allocates a zero-filled buffer sized for the whole Layout.
func (l *Layout) Zeros() []complex128 {
	return make([]complex128, l.TotalSize())
}

// View addresses one level's region of a buffer. Asking for a level outside
// the Layout is a programming error and panics.
func (l *Layout) View(buf []complex128, level int) LevelView {
	if level < 0 || level >= l.nLevels {
		panic(fmt.Sprintf("Internal error: level %d is outside the Layout's "+
			"%d levels.", level, l.nLevels))
	}
	return LevelView{
		buf: buf[l.levelStarts[level]:l.levelStarts[level+1]],
		startBox: l.levelStartBox[level],
		stride: l.strides[level],
		shape: l.shapes[level],
	}
}

// LevelView is a window onto the coefficients of one level's boxes.
type LevelView struct {
	buf      []complex128
	startBox int32
	stride   int
	shape    Shape
}

// StartBox returns the id of the first box on the view's level.
func (v LevelView) StartBox() int32 { return v.startBox }

// Shape returns the per-box coefficient shape on the view's level.
func (v LevelView) Shape() Shape { return v.shape }

// Box returns the coefficient slice of a box. The box must be on the view's
// level; anything else is a programming error and panics via the bounds
// check.
func (v LevelView) Box(ibox int32) []complex128 {
	i := int(ibox - v.startBox)
	return v.buf[i*v.stride : (i+1)*v.stride]
}
