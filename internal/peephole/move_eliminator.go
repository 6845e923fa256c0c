package peephole

import (
	"github.com/dexopt/peephole/internal/ir"
	"github.com/dexopt/peephole/internal/regalloc"
)

// residency is what MoveEliminator remembers about a register: which Value
// it currently holds, and whether that Value is wide (occupies this
// register plus the next one), so a later definition can tell whether it
// clobbered the upper half of a neighboring wide value.
type residency struct {
	id   ir.ValueID
	wide bool
}

// MoveEliminator tracks, register by register, which SSA value's bits are
// currently resident, so that a move can be recognized as redundant even
// when it is not a literal self-move: dst already holding the same value as
// src is enough (spec §4.2). The map is invalidated register-by-register
// whenever an instruction defines that register.
//
// Physical register pairs for wide values are assumed contiguous
// (base register, base+1); a wide move is therefore fully characterized by
// comparing the base registers the allocator reports for src and dst.
type MoveEliminator struct {
	alloc    regalloc.Allocator
	resident map[regalloc.PhysicalRegister]residency
}

// NewMoveEliminator returns a MoveEliminator with empty state.
func NewMoveEliminator(alloc regalloc.Allocator) *MoveEliminator {
	return &MoveEliminator{alloc: alloc, resident: make(map[regalloc.PhysicalRegister]residency)}
}

// Reset clears all residency knowledge. Callers reset once per block: the
// mapping does not flow across block boundaries (same rationale as P2's
// constant map, spec §4.4).
func (e *MoveEliminator) Reset() {
	for k := range e.resident {
		delete(e.resident, k)
	}
}

// canonicalID returns the Value ID the eliminator believes is currently
// resident in r, falling back to fallback if r's residency is unknown.
func (e *MoveEliminator) canonicalID(r regalloc.PhysicalRegister, fallback ir.ValueID) ir.ValueID {
	if res, ok := e.resident[r]; ok {
		return res.id
	}
	return fallback
}

// ShouldBeEliminated reports whether instr (which must be an OpcodeMove) is
// redundant: src and dst already denote the same physical register, or the
// eliminator already knows dst's register is resident with the same value
// src's register is.
func (e *MoveEliminator) ShouldBeEliminated(instr *ir.Instruction) bool {
	if instr.Opcode() != ir.OpcodeMove {
		return false
	}
	src, _, _ := instr.Inputs()
	dst := instr.Output()
	srcReg := e.alloc.RegisterForValue(src, instr.Number())
	dstReg := e.alloc.RegisterForValue(dst, instr.Number())
	if srcReg == regalloc.NoRegister || dstReg == regalloc.NoRegister {
		return false
	}
	if srcReg == dstReg {
		return true
	}
	srcCanonical := e.canonicalID(srcReg, src.ID())
	dstRes, known := e.resident[dstReg]
	return known && dstRes.id == srcCanonical
}

// Observe updates residency state after instr has been processed
// (regardless of whether it was eliminated): any register instr defines is
// now resident with instr's output value, except that a move propagates
// the canonical identity of its source rather than its own destination
// Value, so later moves out of dst still recognize the aliasing.
func (e *MoveEliminator) Observe(instr *ir.Instruction) {
	if instr.Opcode() == ir.OpcodeMove {
		src, _, _ := instr.Inputs()
		dst := instr.Output()
		dstReg := e.alloc.RegisterForValue(dst, instr.Number())
		if dstReg == regalloc.NoRegister {
			return
		}
		srcReg := e.alloc.RegisterForValue(src, instr.Number())
		e.invalidateClobbered(dstReg, dst.Type().Wide())
		e.resident[dstReg] = residency{id: e.canonicalID(srcReg, src.ID()), wide: dst.Type().Wide()}
		return
	}
	out := instr.Output()
	if !out.Valid() {
		return
	}
	r := e.alloc.RegisterForValue(out, instr.Number())
	if r == regalloc.NoRegister {
		return
	}
	e.invalidateClobbered(r, out.Type().Wide())
	e.resident[r] = residency{id: out.ID(), wide: out.Type().Wide()}
}

// invalidateClobbered forgets whatever used to be resident in r (overwritten
// outright), in r+1 when wide is overwriting it too, and in r-1 when it held
// a wide value whose upper half (r) has just been clobbered — same
// reasoning as P2's invalidateConstResident.
func (e *MoveEliminator) invalidateClobbered(r regalloc.PhysicalRegister, wide bool) {
	delete(e.resident, r)
	if wide {
		delete(e.resident, r+1)
	}
	if prev, ok := e.resident[r-1]; ok && prev.wide {
		delete(e.resident, r-1)
	}
}
