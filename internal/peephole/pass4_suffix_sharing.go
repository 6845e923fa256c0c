package peephole

import (
	"fmt"
	"strings"

	"github.com/dexopt/peephole/internal/ir"
	"github.com/dexopt/peephole/internal/regalloc"
)

// RunSuffixSharing is P4 (spec §4.6): when two or more predecessors of a
// join block end with the same trailing instruction sequence, that tail
// does not need to be duplicated in every predecessor — splice it out into
// one new shared block and have each predecessor jump there instead.
// Unlike P1, the predecessors themselves survive; only their tails move.
// Function-exit blocks (every OpcodeReturn/OpcodeReturnVoid block) are
// treated as predecessors of an implicit synthetic join, since they never
// share a literal successor block to be grouped under otherwise.
func RunSuffixSharing(code *ir.IRCode, alloc regalloc.Allocator) bool {
	changed := false
	for {
		progressed := false
		for _, j := range code.Blocks() {
			if !j.Valid() || j.NumPreds() < 2 {
				continue
			}
			if shareSuffixAmong(code, dedupBlocks(j.Preds()), alloc) {
				progressed = true
			}
		}
		if exits := code.NormalExitBlocks(); len(exits) >= 2 {
			if shareSuffixAmong(code, exits, alloc) {
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

func dedupBlocks(blocks []*ir.BasicBlock) []*ir.BasicBlock {
	seen := make(map[*ir.BasicBlock]bool, len(blocks))
	out := make([]*ir.BasicBlock, 0, len(blocks))
	for _, b := range blocks {
		if seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out
}

// shareSuffixAmong buckets group by trailing-instruction compatibility and
// extracts the first worthwhile shared suffix it finds. Returns whether it
// made a change, so the caller can recompute groups (block identities and
// predecessor sets shift once a suffix is extracted) before trying again.
func shareSuffixAmong(code *ir.IRCode, group []*ir.BasicBlock, alloc regalloc.Allocator) bool {
	buckets := make(map[string][]*ir.BasicBlock)
	var order []string
	for _, p := range group {
		if !p.Valid() || p.Tail() == nil {
			continue
		}
		sig := terminatorSignature(p, alloc)
		if _, ok := buckets[sig]; !ok {
			order = append(order, sig)
		}
		buckets[sig] = append(buckets[sig], p)
	}

	for _, sig := range order {
		bucket := buckets[sig]
		if len(bucket) < 2 {
			continue
		}
		k := commonSuffixLength(bucket, alloc)
		if !suffixSharingWorthwhile(k, len(bucket)) {
			continue
		}
		extractSharedSuffix(code, bucket, k, alloc)
		return true
	}
	return false
}

// terminatorSignature buckets blocks by their final instruction alone (plus
// its branch targets), the minimum compatibility needed before walking
// backward to measure how much more they share.
func terminatorSignature(b *ir.BasicBlock, alloc regalloc.Allocator) string {
	tail := b.Tail()
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d;", tail.Opcode())
	if tail.Opcode() == ir.OpcodeConstNumber {
		fmt.Fprintf(&sb, "%d;", tail.ConstantVal())
	}
	if out := tail.Output(); out.Valid() {
		fmt.Fprintf(&sb, "%d;", alloc.RegisterForValue(out, tail.Number()))
	}
	v1, v2, vs := tail.Inputs()
	for _, v := range append([]ir.Value{v1, v2}, vs...) {
		if v.Valid() {
			fmt.Fprintf(&sb, "%d;", alloc.RegisterForValue(v, tail.Number()))
		} else {
			sb.WriteString("_;")
		}
	}
	for _, t := range tail.Targets() {
		fmt.Fprintf(&sb, ">%d;", t.ID())
	}
	return sb.String()
}

// commonSuffixLength computes the largest k such that every block in bucket
// ends with the same k-instruction sequence under register coloring,
// walking backward from each tail. It stops short of what instruction
// equivalence alone would allow if growing the suffix any further would
// make the locals state entering the shared tail disagree across bucket
// members, since that state has to be replayable consistently from a
// single shared entry point once the suffix is spliced into its own block.
func commonSuffixLength(bucket []*ir.BasicBlock, alloc regalloc.Allocator) int {
	k := maxEquivalentSuffixLength(bucket, alloc)
	for k > 0 && !localsAgreeEnteringSuffix(bucket, k) {
		k--
	}
	return k
}

func maxEquivalentSuffixLength(bucket []*ir.BasicBlock, alloc regalloc.Allocator) int {
	cursors := make([]*ir.Instruction, len(bucket))
	for i, p := range bucket {
		cursors[i] = p.Tail()
	}
	k := 0
	for {
		for _, c := range cursors {
			if c == nil {
				return k
			}
		}
		ref := NewInstructionEquivalence(cursors[0], alloc)
		for _, c := range cursors[1:] {
			if !ref.Equal(NewInstructionEquivalence(c, alloc)) {
				return k
			}
			if cursors[0].Opcode().IsTerminator() && !terminatorTargetsEquivalent(cursors[0], c) {
				return k
			}
			if alloc.Options().Debug && c.Position() != cursors[0].Position() {
				return k
			}
		}
		k++
		for i, c := range cursors {
			cursors[i] = c.Prev()
		}
	}
}

// localsAgreeEnteringSuffix reports whether every block in bucket replays to
// the same LocalsMap immediately before its trailing k instructions.
func localsAgreeEnteringSuffix(bucket []*ir.BasicBlock, k int) bool {
	var ref ir.LocalsMap
	for i, p := range bucket {
		m := localsEnteringSuffix(p, k)
		if i == 0 {
			ref = m
			continue
		}
		if !ref.Equal(m) {
			return false
		}
	}
	return true
}

func localsEnteringSuffix(p *ir.BasicBlock, k int) ir.LocalsMap {
	cut := p.Len() - k
	m := p.LocalsAtEntry()
	idx := 0
	for cur := p.Root(); cur != nil && idx < cut; cur = cur.Next() {
		if cur.Opcode() == ir.OpcodeDebugLocalsChange {
			m = m.Apply(cur)
		}
		idx++
	}
	return m
}

// suffixSharingWorthwhile is the overhead test (spec §4.6): extracting k
// instructions out of n predecessors removes k*n instructions but spends k
// on the new block plus one new goto per predecessor, so it only pays for
// itself once k*(n-1) exceeds n.
func suffixSharingWorthwhile(k, n int) bool {
	return k > 1 && k*(n-1) > n
}

func sharedSuffixThrows(bucket []*ir.BasicBlock, k int) bool {
	cur := bucket[0].Tail()
	for i := 0; i < k && cur != nil; i++ {
		if cur.InstructionInstanceCanThrow() {
			return true
		}
		cur = cur.Prev()
	}
	return false
}

// lastObservedPosition returns the last non-empty Position instruction p
// still carries, scanning from its tail backward — the Position a fresh
// terminator stub left behind after its suffix moves out should inherit, so
// stepping through what remains of p still lands somewhere sensible.
func lastObservedPosition(p *ir.BasicBlock) ir.Position {
	for cur := p.Tail(); cur != nil; cur = cur.Prev() {
		if cur.Position().IsValid() {
			return cur.Position()
		}
	}
	return ir.NoPosition
}

// extractSharedSuffix splices the trailing k instructions common to every
// block in bucket into a freshly created block N, leaving each original
// predecessor with a single goto to N in their place.
func extractSharedSuffix(code *ir.IRCode, bucket []*ir.BasicBlock, k int, alloc regalloc.Allocator) {
	rep := bucket[0]

	var moved []*ir.Instruction
	cur := rep.Tail()
	for i := 0; i < k; i++ {
		prev := cur.Prev()
		moved = append(moved, cur)
		cur = prev
	}
	// moved is tail-to-head order; reverse to program order.
	for i, j := 0, len(moved)-1; i < j; i, j = i+1, j-1 {
		moved[i], moved[j] = moved[j], moved[i]
	}

	targets := rep.Tail().Targets()
	handlers := rep.CatchHandlers()
	throws := sharedSuffixThrows(bucket, k)

	for _, p := range bucket {
		p.DetachAllSuccessors()
	}

	n := code.NewBlock()
	for _, instr := range moved {
		rep.RemoveInstruction(instr)
	}
	for _, instr := range moved {
		instr.SetNumber(code.AllocInstrNumber())
		n.InsertInstruction(instr)
	}
	for _, target := range targets {
		n.Link(target)
	}
	if throws {
		for _, h := range handlers {
			n.AddCatchHandler(h)
		}
	}

	for _, p := range bucket {
		p.ClearCatchHandlers()
		if p != rep {
			stripTrailing(p, k)
		}
		pos := lastObservedPosition(p)
		stub := ir.NewGoto(code.AllocInstrNumber(), n)
		stub.SetPosition(pos)
		p.InsertInstruction(stub)
		p.Link(n)
	}

	alloc.AddNewBlockToShareIdenticalSuffix(n, k, append([]*ir.BasicBlock{}, bucket...))
}

func stripTrailing(b *ir.BasicBlock, k int) {
	for i := 0; i < k; i++ {
		tail := b.Tail()
		if tail == nil {
			return
		}
		b.RemoveInstruction(tail)
	}
}
