/*package tree contains the hierarchical spatial decomposition and the
interaction lists consumed by the FMM passes. A Tree is immutable once built:
the expansion wrangler only ever reads it.*/
package tree

import (
	"fmt"
	"math"
)

const (
	// MaxDepth is the deepest level a Tree will refine to, even if a box
	// still holds more particles than requested. Duplicate and near-duplicate
	// points make unbounded refinement possible otherwise.
	MaxDepth = 24

	// adjacencyEps pads the box-touching test against the rounding of center
	// coordinates accumulated across level-by-level halving.
	adjacencyEps = 1e-7
)

// Tree is a level-ordered 2^dim-ary spatial decomposition of a set of source
// and target points. Boxes are numbered level by level, so a box's id is
// always larger than its parent's. Particles are owned by leaves and stored
// in tree order: each leaf's particles form a contiguous range of the Sources
// and Targets arrays.
type Tree struct {
	Dim     int
	NLevels int

	// RootExtent is the side length of the level-0 box, and RootCenter its
	// center. Only the first Dim components of any [3]float64 are used.
	RootExtent float64
	RootCenter [3]float64

	// LevelStartBoxNrs[lev] is the id of the first box on level lev; the
	// array has NLevels+1 entries, the last being the total box count.
	LevelStartBoxNrs []int32
	Levels           []int32
	Centers          [][3]float64
	ParentIDs        []int32
	// childIDs is flat with stride 2^Dim. Id 0 marks an absent child: box 0
	// is the root, which is never anybody's child.
	childIDs []int32

	// Owned particle ranges. Internal boxes own no particles.
	SourceStarts, SourceCounts []int32
	TargetStarts, TargetCounts []int32

	// Sources and Targets are the points in tree order.
	Sources, Targets [][3]float64

	// UserSourceIDs maps a tree-order source position to the user-order
	// index it came from. SortedTargetIDs maps a user-order target index to
	// its tree-order position.
	UserSourceIDs   []int32
	SortedTargetIDs []int32
}

// NBoxes returns the total number of boxes in the tree.
func (t *Tree) NBoxes() int { return len(t.Centers) }

// NChild returns the branching factor, 2^Dim.
func (t *Tree) NChild() int { return 1 << uint(t.Dim) }

// ChildIDs returns the child-id slots of a box. A zero entry means the child
// is absent.
func (t *Tree) ChildIDs(ibox int32) []int32 {
	n := t.NChild()
	return t.childIDs[int(ibox)*n : (int(ibox)+1)*n]
}

// IsLeaf returns true if a box has no children.
func (t *Tree) IsLeaf(ibox int32) bool {
	for _, c := range t.ChildIDs(ibox) {
		if c != 0 { return false }
	}
	return true
}

// Radius returns the half-extent of boxes on a given level.
func (t *Tree) Radius(level int32) float64 {
	return t.RootExtent * math.Pow(0.5, float64(level)) / 2
}

// Adjacent returns true if two boxes touch or overlap. Touching at a corner
// counts.
func (t *Tree) Adjacent(a, b int32) bool {
	lim := (t.Radius(t.Levels[a]) + t.Radius(t.Levels[b])) * (1 + adjacencyEps)
	for d := 0; d < t.Dim; d++ {
		if math.Abs(t.Centers[a][d]-t.Centers[b][d]) > lim { return false }
	}
	return true
}

// buildNode is the mutable form of a box used during construction.
type buildNode struct {
	center   [3]float64
	level    int32
	src, tgt []int32
	children []*buildNode
	parent   *buildNode
	id       int32
}

// New builds a Tree over the given user-order points. targets may be nil, in
// which case the sources are also the targets. A box is refined while it
// holds more than maxParticles points (sources and targets combined) and is
// shallower than MaxDepth; empty child boxes are pruned.
func New(sources, targets [][3]float64, dim, maxParticles int) (*Tree, error) {
	if dim != 2 && dim != 3 {
		return nil, fmt.Errorf("Trees can only be built in 2 or 3 dimensions, not %d.", dim)
	}
	if maxParticles < 1 {
		return nil, fmt.Errorf("maxParticles must be positive, but is %d.", maxParticles)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("Cannot build a Tree with zero sources.")
	}
	if targets == nil {
		targets = sources
	}

	center, extent := boundingCube(sources, targets, dim)

	root := &buildNode{ center: center, level: 0 }
	root.src = make([]int32, len(sources))
	for i := range root.src { root.src[i] = int32(i) }
	root.tgt = make([]int32, len(targets))
	for i := range root.tgt { root.tgt[i] = int32(i) }

	refine(root, sources, targets, extent, dim, maxParticles)

	return assemble(root, sources, targets, extent, dim), nil
}

// boundingCube returns the center and side length of the smallest axis-aligned
// cube containing every point.
func boundingCube(
	sources, targets [][3]float64, dim int,
) (center [3]float64, extent float64) {
	min, max := sources[0], sources[0]
	for _, pts := range [][][3]float64{ sources, targets } {
		for _, x := range pts {
			for d := 0; d < dim; d++ {
				if x[d] < min[d] { min[d] = x[d] }
				if x[d] > max[d] { max[d] = x[d] }
			}
		}
	}

	for d := 0; d < dim; d++ {
		center[d] = (min[d] + max[d]) / 2
		if max[d] - min[d] > extent { extent = max[d] - min[d] }
	}
	if extent == 0 { extent = 1 }
	return center, extent
}

// refine recursively splits a node until it is small enough or too deep.
func refine(
	n *buildNode, sources, targets [][3]float64,
	rootExtent float64, dim, maxParticles int,
) {
	if len(n.src) + len(n.tgt) <= maxParticles || n.level >= MaxDepth {
		return
	}

	nChild := 1 << uint(dim)
	srcBins := make([][]int32, nChild)
	tgtBins := make([][]int32, nChild)
	for _, i := range n.src {
		srcBins[childSlot(sources[i], n.center, dim)] =
			append(srcBins[childSlot(sources[i], n.center, dim)], i)
	}
	for _, i := range n.tgt {
		tgtBins[childSlot(targets[i], n.center, dim)] =
			append(tgtBins[childSlot(targets[i], n.center, dim)], i)
	}

	quarter := rootExtent * math.Pow(0.5, float64(n.level)) / 4
	n.children = make([]*buildNode, nChild)
	for slot := 0; slot < nChild; slot++ {
		if len(srcBins[slot]) == 0 && len(tgtBins[slot]) == 0 { continue }

		child := &buildNode{
			center: n.center, level: n.level + 1,
			src: srcBins[slot], tgt: tgtBins[slot], parent: n,
		}
		for d := 0; d < dim; d++ {
			if slot & (1 << uint(d)) != 0 {
				child.center[d] += quarter
			} else {
				child.center[d] -= quarter
			}
		}
		n.children[slot] = child
		refine(child, sources, targets, rootExtent, dim, maxParticles)
	}
	n.src, n.tgt = nil, nil
}

// childSlot returns the child index of the octant/quadrant that x falls in
// relative to a box center: bit d is set if x[d] is on the high side.
func childSlot(x, center [3]float64, dim int) int {
	slot := 0
	for d := 0; d < dim; d++ {
		if x[d] >= center[d] { slot |= 1 << uint(d) }
	}
	return slot
}

// assemble numbers the boxes level by level and flattens the build nodes into
// a Tree, sorting the particles into tree order along the way.
func assemble(
	root *buildNode, sources, targets [][3]float64,
	extent float64, dim int,
) *Tree {
	// Level-order box numbering.
	levels := [][]*buildNode{ { root } }
	for len(levels[len(levels)-1]) > 0 {
		var next []*buildNode
		for _, n := range levels[len(levels)-1] {
			for _, c := range n.children {
				if c != nil { next = append(next, c) }
			}
		}
		if len(next) == 0 { break }
		levels = append(levels, next)
	}

	nLevels := len(levels)
	nBoxes := 0
	levelStart := make([]int32, nLevels+1)
	for lev, boxes := range levels {
		levelStart[lev] = int32(nBoxes)
		for _, n := range boxes {
			n.id = int32(nBoxes)
			nBoxes++
		}
	}
	levelStart[nLevels] = int32(nBoxes)

	nChild := 1 << uint(dim)
	t := &Tree{
		Dim: dim, NLevels: nLevels,
		RootExtent: extent, RootCenter: root.center,
		LevelStartBoxNrs: levelStart,
		Levels: make([]int32, nBoxes),
		Centers: make([][3]float64, nBoxes),
		ParentIDs: make([]int32, nBoxes),
		childIDs: make([]int32, nBoxes*nChild),
		SourceStarts: make([]int32, nBoxes),
		SourceCounts: make([]int32, nBoxes),
		TargetStarts: make([]int32, nBoxes),
		TargetCounts: make([]int32, nBoxes),
		Sources: make([][3]float64, len(sources)),
		Targets: make([][3]float64, len(targets)),
		UserSourceIDs: make([]int32, 0, len(sources)),
		SortedTargetIDs: make([]int32, len(targets)),
	}

	srcCur, tgtCur := int32(0), int32(0)
	for _, boxes := range levels {
		for _, n := range boxes {
			i := n.id
			t.Levels[i] = n.level
			t.Centers[i] = n.center
			if n.parent != nil { t.ParentIDs[i] = n.parent.id }
			for slot, c := range n.children {
				if c != nil { t.childIDs[int(i)*nChild+slot] = c.id }
			}

			t.SourceStarts[i], t.SourceCounts[i] = srcCur, int32(len(n.src))
			for _, u := range n.src {
				t.Sources[srcCur] = sources[u]
				t.UserSourceIDs = append(t.UserSourceIDs, u)
				srcCur++
			}
			t.TargetStarts[i], t.TargetCounts[i] = tgtCur, int32(len(n.tgt))
			for _, u := range n.tgt {
				t.Targets[tgtCur] = targets[u]
				t.SortedTargetIDs[u] = tgtCur
				tgtCur++
			}
		}
	}

	return t
}
