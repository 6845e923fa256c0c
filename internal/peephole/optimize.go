package peephole

import (
	"github.com/dexopt/peephole/internal/ir"
	"github.com/dexopt/peephole/internal/regalloc"
)

// Optimize runs the full post-register-allocation peephole pipeline over
// code in order (spec §2): identical-predecessor merging, then redundancy
// removal, then prefix sharing, then suffix sharing. Each phase iterates to
// its own fixed point before the next begins, and the whole pipeline loops
// until no phase makes further progress, since a later phase's rewrite can
// reopen an opportunity an earlier phase already passed over (a suffix
// extraction can turn two blocks into new identical predecessors, for
// instance).
//
// code must already satisfy every structural invariant in spec §3.6.
// Invariants 1-3 (symmetric edges, one terminator per block, at most one
// throwing instruction under a catch handler) are checked on entry and
// re-checked on exit, both as hard panics (spec §7): a violation here means
// a programmer bug in this package or in the allocator it was handed, not a
// recoverable condition. Invariants 4-6 (live interval coverage, locals
// consistency, instruction numbering) are not checked.
func Optimize(code *ir.IRCode, allocator regalloc.Allocator, methodID string) {
	code.AssertConsistentGraph(methodID)

	for {
		changed := false
		if RunIdenticalPredecessorMerge(code, allocator) {
			changed = true
		}
		if RunRedundancyRemoval(code, allocator) {
			changed = true
		}
		if RunPrefixSharing(code, allocator) {
			changed = true
		}
		if RunSuffixSharing(code, allocator) {
			changed = true
		}
		if !changed {
			break
		}
	}

	code.AssertConsistentGraph(methodID)
}
