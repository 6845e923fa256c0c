package peephole

import (
	"github.com/dexopt/peephole/internal/ir"
	"github.com/dexopt/peephole/internal/regalloc"
)

// RunRedundancyRemoval is P2 (spec §4.4): within each block, independently,
// drop moves that are no-ops once register coloring is taken into account,
// drop constant materializations the allocator decided to never keep
// resident (spilled-and-rematerializable), and drop a constant reload into a
// register that already holds that exact literal. State is block-local: a
// register's known contents never carry across a block boundary, since a
// predecessor's register contents depend on which edge was taken.
func RunRedundancyRemoval(code *ir.IRCode, alloc regalloc.Allocator) bool {
	changed := false
	moveElim := NewMoveEliminator(alloc)
	for _, b := range code.Blocks() {
		if !b.Valid() {
			continue
		}
		moveElim.Reset()
		constResident := make(map[regalloc.PhysicalRegister]constEntry)

		cur := b.Root()
		for cur != nil {
			next := cur.Next()
			removed := false

			switch cur.Opcode() {
			case ir.OpcodeMove:
				if moveElim.ShouldBeEliminated(cur) {
					b.RemoveInstruction(cur)
					removed, changed = true, true
				}
				moveElim.Observe(cur)
				if !removed {
					invalidateConstResident(constResident, alloc, cur)
				}

			case ir.OpcodeConstNumber:
				if rematerializedAway(cur) {
					b.RemoveInstruction(cur)
					removed, changed = true, true
				} else if reg := alloc.RegisterForValue(cur.Output(), cur.Number()); reg != regalloc.NoRegister {
					entry := constEntry{val: cur.ConstantVal(), typ: cur.Output().Type()}
					if v, ok := constResident[reg]; ok && v == entry {
						b.RemoveInstruction(cur)
						removed, changed = true, true
					} else {
						invalidateConstResident(constResident, alloc, cur)
						constResident[reg] = entry
					}
				}
				if !removed {
					moveElim.Observe(cur)
				}

			default:
				moveElim.Observe(cur)
				invalidateConstResident(constResident, alloc, cur)
			}

			cur = next
		}
	}
	return changed
}

// rematerializedAway reports whether instr's output was assigned the
// spilled-and-rematerializable live state: the allocator already decided
// this constant is cheap enough to recompute at each use rather than keep
// live in a register, which makes the defining instruction itself dead
// weight once it reaches the register-resident instruction stream.
func rematerializedAway(instr *ir.Instruction) bool {
	out := instr.Output()
	if !out.Valid() || len(out.LiveIntervals()) == 0 {
		return false
	}
	return out.StateAt(instr.Number()) == ir.LiveStateSpilledAndRematerializable
}

// constEntry is what RunRedundancyRemoval remembers about a register's known
// contents: a reload is only redundant if it agrees on value, width, and
// type, not value alone (spec §4.4).
type constEntry struct {
	val int64
	typ ir.Type
}

// invalidateConstResident forgets any known-constant tracking for the
// register(s) instr just overwrote: r, and r+1 as well when the definition
// is wide. Any definition of r, narrow or wide, also clobbers the upper
// half of a wide value that used to start one register below it, so that
// entry (at r-1) is invalidated too even though r-1 itself is not written.
func invalidateConstResident(m map[regalloc.PhysicalRegister]constEntry, alloc regalloc.Allocator, instr *ir.Instruction) {
	out := instr.Output()
	if !out.Valid() {
		return
	}
	reg := alloc.RegisterForValue(out, instr.Number())
	if reg == regalloc.NoRegister {
		return
	}
	delete(m, reg)
	if out.Type().Wide() {
		delete(m, reg+1)
	}
	if prev, ok := m[reg-1]; ok && prev.typ.Wide() {
		delete(m, reg-1)
	}
}
