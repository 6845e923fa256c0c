package ir

import (
	"fmt"
	"strings"
)

// BlockID is the unique, monotonically assigned identifier of a BasicBlock.
type BlockID uint32

// BasicBlock is an ordered list of instructions ending with exactly one
// terminator (Invariant 2). Predecessors and catch handlers are explicit,
// caller-managed edge lists; normal successors are read from the
// terminator's targets. DetachAllSuccessors, Link, TransferCatchHandlers and
// ReplaceSuccessor are the primitive edge mutations a phase calls directly
// (spec §6).
type BasicBlock struct {
	id                   BlockID
	rootInstr, tailInstr *Instruction
	preds                []*BasicBlock // ordered multiset: the same block may appear twice.
	catchHandlers        []*BasicBlock
	localsAtEntry        LocalsMap
	invalid              bool
	entry                bool
}

// NewBasicBlock creates an empty BasicBlock with the given ID. Blocks are
// normally created through IRCode.NewBlock, which assigns IDs itself.
func NewBasicBlock(id BlockID) *BasicBlock {
	return &BasicBlock{id: id}
}

// ID returns the unique ID of this block.
func (b *BasicBlock) ID() BlockID { return b.id }

// Name returns the debug name of this block, e.g. "blk3".
func (b *BasicBlock) Name() string { return fmt.Sprintf("blk%d", b.id) }

// EntryBlock reports whether this is the function's entry block.
func (b *BasicBlock) EntryBlock() bool { return b.entry }

// SetEntryBlock marks this block as the function entry.
func (b *BasicBlock) SetEntryBlock() { b.entry = true }

// Valid reports whether this block is still part of the CFG. Blocks marked
// invalid by a phase are swept out of the IRCode at the end of that phase.
func (b *BasicBlock) Valid() bool { return !b.invalid }

// MarkInvalid marks this block for removal from the IRCode.
func (b *BasicBlock) MarkInvalid() { b.invalid = true }

// InsertInstruction appends instr to the tail of this block's instruction
// list. It does not touch CFG edges: wiring predecessors/successors for a
// newly-inserted terminator is the caller's responsibility (via Link /
// ReplaceSuccessor), since by the time the peephole optimizer runs,
// terminators are at least as often rewritten in place as freshly inserted.
func (b *BasicBlock) InsertInstruction(instr *Instruction) {
	instr.blk = b
	if b.tailInstr != nil {
		b.tailInstr.next = instr
		instr.prev = b.tailInstr
	} else {
		b.rootInstr = instr
	}
	b.tailInstr = instr
}

// InsertInstructionBefore splices instr immediately before ref in this
// block's instruction list. Used by P3 to hoist a shared prefix
// instruction in just before the block's terminator.
func (b *BasicBlock) InsertInstructionBefore(instr, ref *Instruction) {
	instr.blk = b
	prev := ref.prev
	instr.prev, instr.next = prev, ref
	ref.prev = instr
	if prev != nil {
		prev.next = instr
	} else {
		b.rootInstr = instr
	}
}

// RemoveInstruction unlinks instr from this block's instruction list.
func (b *BasicBlock) RemoveInstruction(instr *Instruction) {
	if instr.prev != nil {
		instr.prev.next = instr.next
	} else {
		b.rootInstr = instr.next
	}
	if instr.next != nil {
		instr.next.prev = instr.prev
	} else {
		b.tailInstr = instr.prev
	}
	instr.prev, instr.next, instr.blk = nil, nil, nil
}

// Root returns the first instruction of this block, or nil if empty.
func (b *BasicBlock) Root() *Instruction { return b.rootInstr }

// Tail returns the last instruction of this block, or nil if empty.
func (b *BasicBlock) Tail() *Instruction { return b.tailInstr }

// Exit returns this block's terminator. Panics if the block is empty or its
// last instruction is not a terminator, since that would violate Invariant 2.
func (b *BasicBlock) Exit() *Instruction {
	if b.tailInstr == nil || !b.tailInstr.opcode.IsTerminator() {
		panic(fmt.Sprintf("BUG: %s has no terminator", b.Name()))
	}
	return b.tailInstr
}

// Instructions returns a newly-built slice of every instruction in this
// block, in order. Convenience for comparisons and replay; the peephole
// phases themselves walk the linked list directly to avoid the allocation.
func (b *BasicBlock) Instructions() []*Instruction {
	var out []*Instruction
	for cur := b.rootInstr; cur != nil; cur = cur.next {
		out = append(out, cur)
	}
	return out
}

// Len returns the number of instructions in this block.
func (b *BasicBlock) Len() int {
	n := 0
	for cur := b.rootInstr; cur != nil; cur = cur.next {
		n++
	}
	return n
}

// Preds returns the predecessor multiset of this block.
func (b *BasicBlock) Preds() []*BasicBlock { return b.preds }

// NumPreds returns len(Preds()).
func (b *BasicBlock) NumPreds() int { return len(b.preds) }

// addPred appends p to this block's predecessor multiset.
func (b *BasicBlock) addPred(p *BasicBlock) {
	b.preds = append(b.preds, p)
}

// removePred removes the first occurrence of p from this block's
// predecessor multiset.
func (b *BasicBlock) removePred(p *BasicBlock) {
	for idx, pred := range b.preds {
		if pred == p {
			b.preds = append(b.preds[:idx], b.preds[idx+1:]...)
			return
		}
	}
}

// CatchHandlers returns the exception successors of this block.
func (b *BasicBlock) CatchHandlers() []*BasicBlock { return b.catchHandlers }

// HasCatchHandlers reports whether this block has any catch handler.
func (b *BasicBlock) HasCatchHandlers() bool { return len(b.catchHandlers) > 0 }

// AddCatchHandler adds h as a catch handler of this block, and records the
// reciprocal predecessor edge on h (Invariant 1).
func (b *BasicBlock) AddCatchHandler(h *BasicBlock) {
	b.catchHandlers = append(b.catchHandlers, h)
	h.addPred(b)
}

// ClearCatchHandlers detaches every catch handler of this block, fixing up
// the reciprocal predecessor edges.
func (b *BasicBlock) ClearCatchHandlers() {
	for _, h := range b.catchHandlers {
		h.removePred(b)
	}
	b.catchHandlers = nil
}

// TransferCatchHandlers moves from's catch handlers onto this block,
// fixing up predecessor edges, and clears them from from. Used by P3 when
// a hoisted instruction can throw: the predecessor receiving it takes over
// the sibling's handler set.
func (b *BasicBlock) TransferCatchHandlers(from *BasicBlock) {
	for _, h := range from.catchHandlers {
		h.removePred(from)
		b.catchHandlers = append(b.catchHandlers, h)
		h.addPred(b)
	}
	from.catchHandlers = nil
}

// NormalSuccessors returns the non-exceptional successors of this block, in
// program order, derived from its terminator's targets.
func (b *BasicBlock) NormalSuccessors() []*BasicBlock {
	if b.tailInstr == nil || !b.tailInstr.opcode.IsTerminator() {
		return nil
	}
	return b.tailInstr.targets
}

// Successors returns every successor of this block: normal successors
// first, then catch handlers (spec §3: "normal successors come before
// catch-handler successors").
func (b *BasicBlock) Successors() []*BasicBlock {
	normal := b.NormalSuccessors()
	if len(b.catchHandlers) == 0 {
		return normal
	}
	out := make([]*BasicBlock, 0, len(normal)+len(b.catchHandlers))
	out = append(out, normal...)
	out = append(out, b.catchHandlers...)
	return out
}

// Link adds target as a successor of this block purely at the
// predecessor-bookkeeping level, without touching any instruction. Used
// when an edge's instruction-level encoding (a copied terminator) already
// exists but the block-level predecessor multiset still needs updating,
// e.g. when P4 fabricates the edge from a new tail block to a pre-existing
// join block.
func (b *BasicBlock) Link(target *BasicBlock) {
	target.addPred(b)
}

// DetachAllSuccessors removes this block from the predecessor list of
// every one of its current successors (normal and exceptional), without
// altering its own instruction list or terminator. Used by P3 when a
// terminator is hoisted out of this block entirely, cutting it loose from
// S and T before they are deleted.
func (b *BasicBlock) DetachAllSuccessors() {
	for _, s := range b.Successors() {
		s.removePred(b)
	}
}

// ReplaceSuccessor rewrites every occurrence of old in this block's
// terminator targets and catch handlers to new, fixing up the reciprocal
// predecessor edges on both old and new.
func (b *BasicBlock) ReplaceSuccessor(old, new *BasicBlock) {
	replaced := 0
	if b.tailInstr != nil {
		for idx, t := range b.tailInstr.targets {
			if t == old {
				b.tailInstr.targets[idx] = new
				replaced++
			}
		}
	}
	for idx, h := range b.catchHandlers {
		if h == old {
			b.catchHandlers[idx] = new
			replaced++
		}
	}
	for ; replaced > 0; replaced-- {
		old.removePred(b)
		new.addPred(b)
	}
}

// LocalsAtEntry returns the register-to-local-variable mapping visible to
// the debugger at the start of this block.
func (b *BasicBlock) LocalsAtEntry() LocalsMap { return b.localsAtEntry }

// SetLocalsAtEntry overwrites the locals-at-entry snapshot.
func (b *BasicBlock) SetLocalsAtEntry(m LocalsMap) { b.localsAtEntry = m }

// FormatHeader returns a debug string for this block's header, including
// its predecessors, grounded on the teacher's BasicBlock.FormatHeader.
func (b *BasicBlock) FormatHeader() string {
	if len(b.preds) == 0 {
		return b.Name() + ":"
	}
	preds := make([]string, len(b.preds))
	for i, p := range b.preds {
		preds[i] = p.Name()
	}
	return fmt.Sprintf("%s: <- (%s)", b.Name(), strings.Join(preds, ", "))
}
