package peephole

import "github.com/dexopt/peephole/internal/ir"

// localsAtExit replays block's debug-locals-change instructions forward from
// its localsAtEntry snapshot, producing the locals mapping visible to the
// debugger immediately after the block's last instruction (spec §4.7). P1
// uses it to confirm merged predecessors agree on exit-time locals before
// collapsing them.
func localsAtExit(b *ir.BasicBlock) ir.LocalsMap {
	m := b.LocalsAtEntry()
	for cur := b.Root(); cur != nil; cur = cur.Next() {
		if cur.Opcode() == ir.OpcodeDebugLocalsChange {
			m = m.Apply(cur)
		}
	}
	return m
}
