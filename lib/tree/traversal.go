package tree

/* traversal.go builds the interaction lists that drive the FMM passes. The
lists are the classic adaptive decomposition: for a target leaf, U holds the
adjacent source leaves (direct evaluation), W holds well-separated smaller
boxes whose multipoles are evaluated at the leaf's targets, and for any target
box, V holds the well-separated same-level boxes (multipole-to-local) and X
holds the bigger source leaves whose particles form a local expansion
directly. Together with the up/down translations, the four lists cover every
source-target pair exactly once. */

// CSR is a compact list-of-lists: entity i's entries are
// Lists[Starts[i]:Starts[i+1]].
type CSR struct {
	Starts, Lists []int32
}

// Traversal holds the precomputed interaction lists of a Tree. The box-id
// arrays are in tree (level) order, with per-level start offsets indexing
// into them.
type Traversal struct {
	Tree *Tree

	// Boxes owning sources, and the boxes above them.
	SourceBoxes                  []int32
	LevelStartSourceBoxNrs       []int32
	SourceParentBoxes            []int32
	LevelStartSourceParentBoxNrs []int32

	// Boxes owning targets, and those plus every ancestor of one.
	TargetBoxes                          []int32
	LevelStartTargetBoxNrs               []int32
	TargetOrTargetParentBoxes            []int32
	LevelStartTargetOrTargetParentBoxNrs []int32

	// NeighborSourceBoxes (U) is indexed like TargetBoxes.
	NeighborSourceBoxes CSR
	// SepSiblings (V) is indexed like TargetOrTargetParentBoxes.
	SepSiblings CSR
	// SepSmallerByLevel (W) has one CSR per source level, each indexed like
	// TargetBoxes.
	SepSmallerByLevel []CSR
	// SepBigger (X) is indexed like TargetOrTargetParentBoxes.
	SepBigger CSR
}

// BuildTraversal computes the interaction lists of a Tree.
func BuildTraversal(t *Tree) *Traversal {
	nBoxes := t.NBoxes()

	// Subtree occupancy, bottom up. Children always have larger ids than
	// their parents, so a reverse scan sees every child first.
	hasSource := make([]bool, nBoxes)
	hasTarget := make([]bool, nBoxes)
	for i := nBoxes - 1; i >= 0; i-- {
		ibox := int32(i)
		hasSource[i] = t.SourceCounts[i] > 0
		hasTarget[i] = t.TargetCounts[i] > 0
		for _, c := range t.ChildIDs(ibox) {
			if c == 0 { continue }
			hasSource[i] = hasSource[i] || hasSource[c]
			hasTarget[i] = hasTarget[i] || hasTarget[c]
		}
	}

	trav := &Traversal{ Tree: t }

	trav.SourceBoxes, trav.LevelStartSourceBoxNrs = selectBoxes(t,
		func(i int32) bool { return t.SourceCounts[i] > 0 })
	trav.SourceParentBoxes, trav.LevelStartSourceParentBoxNrs = selectBoxes(t,
		func(i int32) bool { return !t.IsLeaf(i) && hasSource[i] })
	trav.TargetBoxes, trav.LevelStartTargetBoxNrs = selectBoxes(t,
		func(i int32) bool { return t.TargetCounts[i] > 0 })
	trav.TargetOrTargetParentBoxes, trav.LevelStartTargetOrTargetParentBoxNrs =
		selectBoxes(t, func(i int32) bool { return hasTarget[i] })

	colleagues := findColleagues(t)

	trav.SepSiblings = buildSepSiblings(
		t, trav.TargetOrTargetParentBoxes, colleagues, hasSource)
	trav.NeighborSourceBoxes, trav.SepSmallerByLevel = buildNeighborsAndSepSmaller(
		t, trav.TargetBoxes, colleagues, hasSource)
	trav.SepBigger = buildSepBigger(t, trav.TargetOrTargetParentBoxes, colleagues)

	return trav
}

// selectBoxes returns the box ids passing the filter, in id order, along with
// per-level start offsets into the returned array.
func selectBoxes(t *Tree, keep func(int32) bool) (boxes, levelStarts []int32) {
	boxes = []int32{ }
	levelStarts = make([]int32, t.NLevels+1)
	for lev := 0; lev < t.NLevels; lev++ {
		levelStarts[lev] = int32(len(boxes))
		for i := t.LevelStartBoxNrs[lev]; i < t.LevelStartBoxNrs[lev+1]; i++ {
			if keep(i) { boxes = append(boxes, i) }
		}
	}
	levelStarts[t.NLevels] = int32(len(boxes))
	return boxes, levelStarts
}

// findColleagues returns, for every box, the same-level boxes adjacent to it,
// itself included. A box's colleagues are always children of its parent's
// colleagues, so the sets are found top down.
func findColleagues(t *Tree) [][]int32 {
	colleagues := make([][]int32, t.NBoxes())
	colleagues[0] = []int32{ 0 }
	for i := 1; i < t.NBoxes(); i++ {
		ibox := int32(i)
		for _, pc := range colleagues[t.ParentIDs[i]] {
			for _, c := range t.ChildIDs(pc) {
				if c != 0 && t.Adjacent(ibox, c) {
					colleagues[i] = append(colleagues[i], c)
				}
			}
		}
	}
	return colleagues
}

// buildSepSiblings computes the V lists: children of a box's parent's
// colleagues that are not adjacent to the box. Source boxes with no sources
// anywhere below them are left out.
func buildSepSiblings(
	t *Tree, targetBoxes []int32, colleagues [][]int32, hasSource []bool,
) CSR {
	csr := CSR{ Starts: make([]int32, 1, len(targetBoxes)+1) }
	for _, ibox := range targetBoxes {
		if ibox != 0 {
			for _, pc := range colleagues[t.ParentIDs[ibox]] {
				for _, c := range t.ChildIDs(pc) {
					if c != 0 && hasSource[c] && !t.Adjacent(ibox, c) {
						csr.Lists = append(csr.Lists, c)
					}
				}
			}
		}
		csr.Starts = append(csr.Starts, int32(len(csr.Lists)))
	}
	return csr
}

// buildNeighborsAndSepSmaller walks down from each target leaf's colleagues.
// Boxes that stay adjacent are descended into until a leaf is reached (U);
// the first non-adjacent box on each branch is well-separated relative to its
// own size and goes to W, grouped by its level.
func buildNeighborsAndSepSmaller(
	t *Tree, targetBoxes []int32, colleagues [][]int32, hasSource []bool,
) (neighbors CSR, sepSmallerByLevel []CSR) {
	neighbors = CSR{ Starts: make([]int32, 1, len(targetBoxes)+1) }
	// (target position, source box) pairs per source level.
	wTgt := make([][]int32, t.NLevels)
	wSrc := make([][]int32, t.NLevels)

	var walk func(itgt int, ibox, n int32)
	walk = func(itgt int, ibox, n int32) {
		if !t.Adjacent(ibox, n) {
			if hasSource[n] {
				lev := t.Levels[n]
				wTgt[lev] = append(wTgt[lev], int32(itgt))
				wSrc[lev] = append(wSrc[lev], n)
			}
			return
		}
		if t.IsLeaf(n) {
			if t.SourceCounts[n] > 0 {
				neighbors.Lists = append(neighbors.Lists, n)
			}
			return
		}
		for _, c := range t.ChildIDs(n) {
			if c != 0 { walk(itgt, ibox, c) }
		}
	}

	for itgt, ibox := range targetBoxes {
		// Same level or deeper: descend the colleagues (the box itself is
		// one of them).
		for _, n := range colleagues[ibox] {
			walk(itgt, ibox, n)
		}
		// Coarser: bigger leaves adjacent to the box are neighbors too.
		for a := ibox; a != 0; {
			a = t.ParentIDs[a]
			for _, n := range colleagues[a] {
				if n != a && t.IsLeaf(n) && t.SourceCounts[n] > 0 &&
					t.Adjacent(ibox, n) {
					neighbors.Lists = append(neighbors.Lists, n)
				}
			}
		}
		neighbors.Starts = append(neighbors.Starts, int32(len(neighbors.Lists)))
	}

	sepSmallerByLevel = make([]CSR, t.NLevels)
	for lev := range sepSmallerByLevel {
		csr := CSR{ Starts: make([]int32, len(targetBoxes)+1) }
		csr.Lists = wSrc[lev]
		// wTgt entries are non-decreasing in target position, so counting
		// sort is just a scan.
		for _, itgt := range wTgt[lev] {
			csr.Starts[itgt+1]++
		}
		for i := 1; i < len(csr.Starts); i++ {
			csr.Starts[i] += csr.Starts[i-1]
		}
		sepSmallerByLevel[lev] = csr
	}
	return neighbors, sepSmallerByLevel
}

// buildSepBigger computes the X lists: source leaves coarser than the target
// box that are adjacent to the target's parent but not to the target itself.
// Their particles are close enough that their multipole cannot be used, but
// the target box is small enough for a direct local expansion.
func buildSepBigger(t *Tree, targetBoxes []int32, colleagues [][]int32) CSR {
	csr := CSR{ Starts: make([]int32, 1, len(targetBoxes)+1) }
	for _, ibox := range targetBoxes {
		if ibox != 0 {
			parent := t.ParentIDs[ibox]
			for a := ibox; a != 0; {
				a = t.ParentIDs[a]
				for _, n := range colleagues[a] {
					if n != a && t.IsLeaf(n) && t.SourceCounts[n] > 0 &&
						t.Adjacent(parent, n) && !t.Adjacent(ibox, n) {
						csr.Lists = append(csr.Lists, n)
					}
				}
			}
		}
		csr.Starts = append(csr.Starts, int32(len(csr.Lists)))
	}
	return csr
}
