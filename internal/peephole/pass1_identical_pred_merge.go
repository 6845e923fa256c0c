package peephole

import (
	"github.com/dexopt/peephole/internal/ir"
	"github.com/dexopt/peephole/internal/regalloc"
)

// RunIdenticalPredecessorMerge is P1 (spec §4.3): whenever two predecessors
// of the same join block have identical bodies, the duplicate is reduced to
// a single `goto` into its surviving twin rather than into the join — the
// duplicate block itself is kept (as a trampoline), not deleted, since
// rewriting every one of its own predecessors is unnecessary when a single
// retargeted terminator does the same job. Runs to a fixed point, since
// collapsing one pair can expose another one level up.
func RunIdenticalPredecessorMerge(code *ir.IRCode, alloc regalloc.Allocator) bool {
	changed := false
	for {
		progressed := false
		for _, j := range code.Blocks() {
			if !j.Valid() {
				continue
			}
			if mergeIdenticalPredecessorsOf(code, j, alloc) {
				progressed = true
			}
		}
		if !progressed {
			break
		}
		code.Compact()
		changed = true
	}
	return changed
}

func mergeIdenticalPredecessorsOf(code *ir.IRCode, j *ir.BasicBlock, alloc regalloc.Allocator) bool {
	preds := append([]*ir.BasicBlock{}, j.Preds()...)
	if len(preds) < 2 {
		return false
	}

	buckets := make(map[string][]*ir.BasicBlock)
	var order []string
	for _, p := range preds {
		if !eligibleJoinPredecessor(p, j) {
			continue
		}
		sig := bucketSignature(p, alloc)
		if _, ok := buckets[sig]; !ok {
			order = append(order, sig)
		}
		buckets[sig] = append(buckets[sig], p)
	}

	merged := false
	for _, sig := range order {
		bucket := buckets[sig]
		survivor := bucket[0]
		for _, other := range bucket[1:] {
			if !eligibleJoinPredecessor(other, j) || survivor == other {
				continue
			}
			if !BasicBlockEquivalence(survivor, other, alloc) {
				continue
			}
			if !localsAtExit(survivor).Equal(localsAtExit(other)) {
				continue
			}
			if alloc.Options().Debug && !positionsMatch(survivor, other) {
				continue
			}

			alloc.MergeBlocks(survivor, other)
			collapseIntoTrampoline(code, other, j, survivor)
			merged = true
		}
	}
	return merged
}

// collapseIntoTrampoline empties other down to a single `goto survivor`,
// rewires it off of j and onto survivor (so other is now a predecessor of
// survivor, not of j), and clears its catch handlers. other itself is never
// deleted: any block that used to reach j through other still can, one hop
// further through survivor.
func collapseIntoTrampoline(code *ir.IRCode, other, j, survivor *ir.BasicBlock) {
	other.ReplaceSuccessor(j, survivor)
	other.ClearCatchHandlers()

	pos := ir.NoPosition
	if root := survivor.Root(); root != nil {
		pos = root.Position()
	}

	cur := other.Root()
	for cur != nil {
		next := cur.Next()
		other.RemoveInstruction(cur)
		cur = next
	}

	goTo := ir.NewGoto(code.AllocInstrNumber(), survivor)
	goTo.SetPosition(pos)
	other.InsertInstruction(goTo)
}

// eligibleJoinPredecessor reports whether p is a candidate to be folded
// into a sibling predecessor of j: it must exist solely to reach j (its
// only successor, normal or exceptional, is j), it must not be the entry
// block (IRCode.Entry() must stay valid), and it must not already be the
// trivial single-goto shape this pass reduces everything down to, since
// collapsing two already-trivial blocks makes no further progress.
func eligibleJoinPredecessor(p, j *ir.BasicBlock) bool {
	if p.EntryBlock() || isTrivialBlock(p) {
		return false
	}
	succ := p.Successors()
	return len(succ) == 1 && succ[0] == j
}

// positionsMatch reports whether a and b agree, instruction for instruction,
// on source Position. Only consulted under Options().Debug, where merging
// away one of two differing positions would make stepping through the
// debugger imprecise (spec §4.3).
func positionsMatch(a, b *ir.BasicBlock) bool {
	ia, ib := a.Root(), b.Root()
	for ia != nil && ib != nil {
		if ia.Position() != ib.Position() {
			return false
		}
		ia, ib = ia.Next(), ib.Next()
	}
	return ia == nil && ib == nil
}
