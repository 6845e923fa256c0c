package ir

import "fmt"

// IRCode is the control-flow graph the peephole optimizer operates on: an
// ordered container of BasicBlocks plus the entry block, a monotonically
// increasing block-number generator, and the value-numbering state needed
// to build new Values (e.g. fresh registers cannot appear mid-optimization,
// but fixture/test construction needs it).
type IRCode struct {
	blocks          []*BasicBlock
	entry           *BasicBlock
	nextBlockID     BlockID
	nextValueID     ValueID
	nextInstrNumber int32
}

// NewIRCode returns an empty IRCode.
func NewIRCode() *IRCode {
	return &IRCode{nextValueID: ValueInvalid + 1}
}

// NewBlock allocates and appends a fresh BasicBlock with the next available
// ID. The first block ever created becomes the entry block automatically.
func (c *IRCode) NewBlock() *BasicBlock {
	blk := NewBasicBlock(c.nextBlockID)
	c.nextBlockID++
	c.blocks = append(c.blocks, blk)
	if c.entry == nil {
		c.entry = blk
		blk.SetEntryBlock()
	}
	return blk
}

// NewValue allocates a fresh Value with the next available ID.
func (c *IRCode) NewValue(typ Type, needsRegister, fixedRegisterSite bool) Value {
	v := NewValue(c.nextValueID, typ, needsRegister, fixedRegisterSite)
	c.nextValueID++
	return v
}

// Entry returns the function's entry block.
func (c *IRCode) Entry() *BasicBlock { return c.entry }

// Blocks returns every block currently in the CFG, including ones marked
// invalid (callers that care should check Valid()).
func (c *IRCode) Blocks() []*BasicBlock { return c.blocks }

// HighestBlockNumber returns the highest BlockID assigned so far. New
// blocks spliced in by the optimizer (P4's shared-tail blocks) are always
// numbered above this (spec §5: "block numbers assigned to new blocks are
// monotonic from the current highest").
func (c *IRCode) HighestBlockNumber() BlockID {
	if c.nextBlockID == 0 {
		return 0
	}
	return c.nextBlockID - 1
}

// AddBlock registers a block created outside of NewBlock into the CFG's
// block list, raising the block-number generator past its ID if needed.
// The optimizer phases themselves create blocks through NewBlock.
func (c *IRCode) AddBlock(b *BasicBlock) {
	if b.id >= c.nextBlockID {
		c.nextBlockID = b.id + 1
	}
	c.blocks = append(c.blocks, b)
}

// NormalExitBlocks returns every block whose terminator is a return
// (OpcodeReturn or OpcodeReturnVoid).
func (c *IRCode) NormalExitBlocks() []*BasicBlock {
	var out []*BasicBlock
	for _, b := range c.blocks {
		if !b.Valid() {
			continue
		}
		if tail := b.Tail(); tail != nil {
			switch tail.Opcode() {
			case OpcodeReturn, OpcodeReturnVoid:
				out = append(out, b)
			}
		}
	}
	return out
}

// Compact removes every block marked invalid from the block list. Phases
// accumulate a deletion set and call this once at the end of a round,
// rather than mutating the slice mid-iteration (spec §9 "Iteration while
// mutating").
func (c *IRCode) Compact() {
	out := c.blocks[:0]
	for _, b := range c.blocks {
		if b.Valid() {
			out = append(out, b)
		}
	}
	c.blocks = out
}

// IsConsistentGraph checks every structural invariant from spec §3.6 that
// can be checked without a register allocator in hand (Invariants 1-3).
// Invariants 4-6 (live interval coverage, locals consistency, instruction
// numbering) are not checked here, nor by AssertConsistentGraph.
func (c *IRCode) IsConsistentGraph() bool {
	succCount := make(map[BlockID]int)
	for _, b := range c.blocks {
		if !b.Valid() {
			continue
		}
		for _, s := range b.Successors() {
			succCount[s.id]++
		}
	}
	for _, b := range c.blocks {
		if !b.Valid() {
			continue
		}
		if len(b.Preds()) != succCount[b.id] {
			return false
		}
		if b.Tail() == nil || !b.Tail().Opcode().IsTerminator() {
			return false
		}
		if countThrowing(b) > 1 && b.HasCatchHandlers() {
			return false
		}
		if countThrowing(b) > 0 && !b.HasCatchHandlers() {
			// Fine: a throwing instruction with no handler just propagates
			// to the caller. Only >1 throwing instructions under a handler
			// is the invariant violation (Invariant 3).
		}
	}
	return true
}

// AssertConsistentGraph panics with a diagnostic identifying the violated
// invariant if IsConsistentGraph would return false. Per spec §7, this is
// the fatal check run at optimizer entry/exit: a failure here is an
// internal compiler bug, not a recoverable condition.
func (c *IRCode) AssertConsistentGraph(methodID string) {
	succCount := make(map[BlockID]int)
	for _, b := range c.blocks {
		if !b.Valid() {
			continue
		}
		for _, s := range b.Successors() {
			succCount[s.id]++
		}
	}
	for _, b := range c.blocks {
		if !b.Valid() {
			continue
		}
		// Compare edge multiplicity, not just set membership: a block
		// reached twice by the same predecessor (e.g. both branches of an
		// OpcodeIf targeting it) must appear twice in its predecessor
		// multiset, or a duplicate-target edit that only fixed up one
		// occurrence would slip past this check undetected.
		if got := succCount[b.id]; got != len(b.Preds()) {
			panic(fmt.Sprintf("BUG in %s: %s has %d incoming edges but %d entries in its predecessor list", methodID, b.Name(), got, len(b.Preds())))
		}
		if b.Tail() == nil || !b.Tail().Opcode().IsTerminator() {
			panic(fmt.Sprintf("BUG in %s: %s does not end in a terminator", methodID, b.Name()))
		}
		if n := countThrowing(b); n > 1 && b.HasCatchHandlers() {
			panic(fmt.Sprintf("BUG in %s: %s has %d throwing instructions under a catch handler", methodID, b.Name(), n))
		}
	}
}

func countThrowing(b *BasicBlock) int {
	n := 0
	for cur := b.Root(); cur != nil; cur = cur.Next() {
		if cur.InstructionInstanceCanThrow() {
			n++
		}
	}
	return n
}
