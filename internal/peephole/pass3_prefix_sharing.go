package peephole

import (
	"github.com/dexopt/peephole/internal/ir"
	"github.com/dexopt/peephole/internal/regalloc"
)

// RunPrefixSharing is P3 (spec §4.5): when a block branches to two
// single-predecessor siblings that both start with the same instruction
// sequence, that sequence never needed to be duplicated in the first place
// — hoist it back up into the shared predecessor, one instruction at a
// time, until the siblings diverge. If the entire pair of siblings turns
// out identical down to their own terminator, the terminator itself is
// hoisted and the now-empty siblings disappear.
func RunPrefixSharing(code *ir.IRCode, alloc regalloc.Allocator) bool {
	changed := false
	for {
		progressed := false
		for _, b := range code.Blocks() {
			if !b.Valid() {
				continue
			}
			if hoistSharedPrefix(code, b, alloc) {
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

func hoistSharedPrefix(code *ir.IRCode, b *ir.BasicBlock, alloc regalloc.Allocator) bool {
	succ := b.NormalSuccessors()
	if len(succ) != 2 {
		return false
	}
	s, t := succ[0], succ[1]
	if s == t || !eligiblePrefixSibling(s, b) || !eligiblePrefixSibling(t, b) {
		return false
	}
	// Precondition 1: the two siblings must agree on what the debugger sees
	// on entry, or hoisting would change which locals are visible where.
	if !s.LocalsAtEntry().Equal(t.LocalsAtEntry()) {
		return false
	}

	hoisted := false
	for {
		si, ti := s.Root(), t.Root()
		if si == nil || ti == nil || !s.Valid() || !t.Valid() {
			break
		}
		// Precondition 2: the candidate instruction pair must be
		// interchangeable under register coloring.
		ei := NewInstructionEquivalence(si, alloc)
		ej := NewInstructionEquivalence(ti, alloc)
		if !ei.Equal(ej) {
			break
		}

		term := b.Exit()

		// Precondition 3: if any instance of this opcode could ever throw,
		// B itself must not already have catch handlers — hoisting into a
		// guarded block would make the instruction start throwing to a
		// handler it never used to reach.
		if si.InstructionTypeCanThrow() && b.HasCatchHandlers() {
			break
		}
		// Precondition 4: if this particular instance can throw, neither S
		// nor T may carry a catch handler of their own — after hoisting
		// there is only one copy left, so any existing per-sibling handling
		// would simply be dropped.
		if si.InstructionInstanceCanThrow() && (s.HasCatchHandlers() || t.HasCatchHandlers()) {
			break
		}
		// Precondition 5: the hoisted instruction's output registers must
		// not overlap any input register B's terminator reads, or moving
		// the definition up would change what the terminator observes.
		if !disjointFromTerminatorInputs(si, term, alloc) {
			break
		}
		// Precondition 6: Position must either match B's terminator, or the
		// terminator must carry no Position and no debug values at all, so
		// the hoisted Position is never actually observable.
		if !positionCompatibleWithTerminator(si, term) {
			break
		}

		if si.Opcode().IsTerminator() {
			if si == s.Tail() && ti == t.Tail() && terminatorTargetsEquivalent(si, ti) {
				hoistTerminator(code, b, s, t, si)
				hoisted = true
			}
			break
		}

		hoistOrdinaryInstruction(code, b, s, t, si, ti)
		hoisted = true
	}
	return hoisted
}

// eligiblePrefixSibling reports whether s is a candidate half of a
// prefix-sharing pair rooted at b: it must exist solely to be reached from
// b, and must not be the entry block (the entry block can never be
// subsumed into a predecessor since IRCode.Entry() must remain valid).
func eligiblePrefixSibling(s, b *ir.BasicBlock) bool {
	return !s.EntryBlock() && s.NumPreds() == 1 && s.Preds()[0] == b
}

// terminatorTargetsEquivalent reports whether two terminators branch to
// exactly the same sequence of target blocks. InstructionEquivalence
// already established everything else about them matches; target block
// identity is the one piece of a terminator it intentionally leaves to the
// caller, since callers like P1's BasicBlockEquivalence only ever compare
// terminators that are already known to feed the same join.
func terminatorTargetsEquivalent(a, b *ir.Instruction) bool {
	ta, tb := a.Targets(), b.Targets()
	if len(ta) != len(tb) {
		return false
	}
	for i := range ta {
		if ta[i] != tb[i] {
			return false
		}
	}
	return true
}

// disjointFromTerminatorInputs reports whether i's output register range
// (if any) is disjoint from every input register term reads, at their
// respective instruction numbers.
func disjointFromTerminatorInputs(i, term *ir.Instruction, alloc regalloc.Allocator) bool {
	out := i.Output()
	if !out.Valid() {
		return true
	}
	r := alloc.RegisterForValue(out, i.Number())
	if r == regalloc.NoRegister {
		return true
	}
	width := out.Type().Width()

	v1, v2, vs := term.Inputs()
	inputs := append([]ir.Value{v1, v2}, vs...)
	for _, in := range inputs {
		if !in.Valid() {
			continue
		}
		rin := alloc.RegisterForValue(in, term.Number())
		if rin == regalloc.NoRegister {
			continue
		}
		if registerRangesOverlap(r, width, rin, in.Type().Width()) {
			return false
		}
	}
	return true
}

func registerRangesOverlap(a regalloc.PhysicalRegister, aw int, b regalloc.PhysicalRegister, bw int) bool {
	return int(a) < int(b)+bw && int(b) < int(a)+aw
}

// positionCompatibleWithTerminator reports whether hoisting i past term
// would leave term's observable Position unchanged: either they already
// agree, or term has no Position of its own and no debug values riding
// along with it (so nothing downstream would ever notice).
func positionCompatibleWithTerminator(i, term *ir.Instruction) bool {
	if i.Position() == term.Position() {
		return true
	}
	return !term.Position().IsValid() && len(term.DebugValues()) == 0
}

// hoistOrdinaryInstruction moves si (discarding its duplicate ti) from the
// siblings into b, immediately before b's own terminator, renumbering both
// so Invariant 6 holds in b's now-extended instruction list.
func hoistOrdinaryInstruction(code *ir.IRCode, b, s, t *ir.BasicBlock, si, ti *ir.Instruction) {
	if si.InstructionInstanceCanThrow() {
		b.TransferCatchHandlers(s)
		t.ClearCatchHandlers()
	}
	if si.Opcode() == ir.OpcodeDebugLocalsChange {
		// si now executes in B before control ever reaches S/T, so both
		// siblings' entry-time locals must advance past it too (Invariant 5).
		s.SetLocalsAtEntry(s.LocalsAtEntry().Apply(si))
		t.SetLocalsAtEntry(t.LocalsAtEntry().Apply(si))
	}
	s.RemoveInstruction(si)
	t.RemoveInstruction(ti)
	si.SetNumber(code.AllocInstrNumber())
	term := b.Exit()
	term.SetNumber(code.AllocInstrNumber())
	b.InsertInstructionBefore(si, term)
}

// hoistTerminator handles the case where the siblings' shared prefix runs
// all the way to their own (equivalent) terminator: b's branch into two
// identical dead ends collapses into a single terminator owned by b, and
// the emptied siblings are deleted outright.
func hoistTerminator(code *ir.IRCode, b, s, t *ir.BasicBlock, si *ir.Instruction) {
	oldTerm := b.Exit()
	b.DetachAllSuccessors()
	b.RemoveInstruction(oldTerm)

	// Capture si's edges while it is still attached to s, then detach s and
	// t from everything they currently reach (targets and handlers alike)
	// before si moves, so the stale s/t predecessor entries don't linger.
	targets := si.Targets()
	throws := si.InstructionInstanceCanThrow()
	handlers := s.CatchHandlers()
	s.DetachAllSuccessors()
	t.DetachAllSuccessors()

	s.RemoveInstruction(si)
	si.SetNumber(code.AllocInstrNumber())
	b.InsertInstruction(si)

	for _, target := range targets {
		b.Link(target)
	}
	if throws {
		for _, h := range handlers {
			b.AddCatchHandler(h)
		}
	}

	s.MarkInvalid()
	t.MarkInvalid()
}
