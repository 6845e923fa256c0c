// Package peephole implements the post-register-allocation peephole
// optimizer: identical-predecessor merging, redundant move/constant
// removal, prefix hoisting and suffix extraction over a register-colored
// CFG (spec §1-§4).
package peephole

import (
	"fmt"
	"strings"

	"github.com/dexopt/peephole/internal/ir"
	"github.com/dexopt/peephole/internal/regalloc"
)

// InstructionEquivalence wraps an instruction with an equality that
// respects register coloring (spec §4.1): two instructions are equivalent
// iff they agree on opcode, literal operands, operand count/width (checked
// locally, allocator-independent, via Instruction.IdenticalNonValueNonPositionParts)
// and on the physical register assigned to every input/output at each
// instruction's own number (delegated to the allocator's
// IdenticalAfterRegisterAllocation).
type InstructionEquivalence struct {
	Instr *ir.Instruction
	alloc regalloc.Allocator
}

// NewInstructionEquivalence wraps instr for allocator-aware comparison.
func NewInstructionEquivalence(instr *ir.Instruction, alloc regalloc.Allocator) InstructionEquivalence {
	return InstructionEquivalence{Instr: instr, alloc: alloc}
}

// Equal reports whether i and other are interchangeable under register
// coloring. Positions and debug values are deliberately ignored here;
// callers that need position-exactness (P1, P3) filter separately.
func (e InstructionEquivalence) Equal(other InstructionEquivalence) bool {
	if !e.Instr.IdenticalNonValueNonPositionParts(other.Instr) {
		return false
	}
	return e.alloc.IdenticalAfterRegisterAllocation(e.Instr, other.Instr)
}

// BasicBlockEquivalence compares two BasicBlocks instruction-by-instruction
// (including the terminator) under InstructionEquivalence. Used by P1 to
// decide whether two predecessors of a common join are interchangeable.
func BasicBlockEquivalence(a, b *ir.BasicBlock, alloc regalloc.Allocator) bool {
	ia, ib := a.Root(), b.Root()
	for ia != nil && ib != nil {
		ea := NewInstructionEquivalence(ia, alloc)
		eb := NewInstructionEquivalence(ib, alloc)
		if !ea.Equal(eb) {
			return false
		}
		ia, ib = ia.Next(), ib.Next()
	}
	return ia == nil && ib == nil
}

// isTrivialBlock reports whether b is already a single-instruction goto
// block — P1 skips predecessors that are already in this reduced form,
// since merging them further would make no progress.
func isTrivialBlock(b *ir.BasicBlock) bool {
	root := b.Root()
	return root != nil && root == b.Tail() && root.Opcode() == ir.OpcodeGoto
}

// bucketSignature builds a cheap, allocator-aware string key used to
// pre-group blocks before the O(n) BasicBlockEquivalence check is run
// pairwise within a bucket. It is not itself the equality — two blocks
// with equal signatures still must pass BasicBlockEquivalence — only a
// partition that guarantees equal blocks land in the same bucket.
func bucketSignature(b *ir.BasicBlock, alloc regalloc.Allocator) string {
	var sb strings.Builder
	for cur := b.Root(); cur != nil; cur = cur.Next() {
		fmt.Fprintf(&sb, "%d;", cur.Opcode())
		if cur.Opcode() == ir.OpcodeConstNumber {
			fmt.Fprintf(&sb, "%d;", cur.ConstantVal())
		}
		if out := cur.Output(); out.Valid() {
			fmt.Fprintf(&sb, "%d;", alloc.RegisterForValue(out, cur.Number()))
		}
		v1, v2, vs := cur.Inputs()
		for _, v := range append([]ir.Value{v1, v2}, vs...) {
			if v.Valid() {
				fmt.Fprintf(&sb, "%d;", alloc.RegisterForValue(v, cur.Number()))
			} else {
				sb.WriteString("_;")
			}
		}
		sb.WriteString("|")
	}
	return sb.String()
}
