// Package regalloc carries the narrow collaborator surface the peephole
// optimizer needs from an external linear-scan register allocator (spec
// §6). The allocator itself — liveness analysis, interference coloring,
// spill decisions — is out of scope for this subsystem (spec §1); this
// package only states the contract.
package regalloc

import "github.com/dexopt/peephole/internal/ir"

// PhysicalRegister is a machine register, as assigned by the allocator.
type PhysicalRegister int32

// NoRegister is returned for a Value the allocator never assigned a
// physical register (it only ever lived in a spill slot).
const NoRegister PhysicalRegister = -1

// Options are the allocator-owned, compilation-wide knobs the optimizer
// must respect.
type Options struct {
	// Debug, when true, means debug info must be preserved bit-exact:
	// merges and hoists that would make an instruction's observable source
	// Position imprecise must be skipped (spec §4.3, §4.5).
	Debug bool
}

// Allocator is the RegisterAllocator interface from spec §6: everything the
// core peephole optimizer needs from the register allocator that already
// ran over this IRCode.
type Allocator interface {
	// RegisterForValue returns the physical register holding v at the
	// given instruction number.
	RegisterForValue(v ir.Value, instructionNumber int32) PhysicalRegister

	// IdenticalAfterRegisterAllocation reports whether i0 and i1 are
	// interchangeable once register coloring is taken into account: same
	// opcode, same literal operands, and the same physical register for
	// every input and output position, each resolved at its own
	// instruction's number. This is the allocator-backed half of
	// InstructionEquivalence (spec §4.1); the core handles the
	// allocator-independent half itself via
	// Instruction.IdenticalNonValueNonPositionParts.
	IdenticalAfterRegisterAllocation(i0, i1 *ir.Instruction) bool

	// MergeBlocks tells the allocator that discarded is being collapsed
	// into surviving (P1): it must fold discarded's live interval
	// information into surviving's before either block's instructions are
	// touched.
	MergeBlocks(surviving, discarded *ir.BasicBlock)

	// AddNewBlockToShareIdenticalSuffix tells the allocator that a new
	// block carrying a copy of a shared suffix of length suffixSize has
	// been spliced in on behalf of preds (P4), so it can extend live
	// intervals across the new block.
	AddNewBlockToShareIdenticalSuffix(newBlock *ir.BasicBlock, suffixSize int, preds []*ir.BasicBlock)

	// Options returns the allocator-owned compilation options.
	Options() Options
}
