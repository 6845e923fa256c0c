package main

import (
	"sort"

	"github.com/dexopt/peephole/internal/ir"
	"github.com/dexopt/peephole/internal/regalloc"
)

// fixtureBuilder returns a fresh IRCode plus the mock allocator already
// primed with the register assignments it implies, and the method
// identifier used in optimizer diagnostics.
type fixtureBuilder func(opts regalloc.Options) (*ir.IRCode, *regalloc.Mock, string)

var fixtures = map[string]fixtureBuilder{
	"identical-predecessors": buildIdenticalPredecessorsFixture,
	"redundant-move":         buildRedundantMoveFixture,
	"prefix-share":           buildPrefixShareFixture,
	"suffix-share":           buildSuffixShareFixture,
}

func fixtureNames() []string {
	names := make([]string, 0, len(fixtures))
	for name := range fixtures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// buildIdenticalPredecessorsFixture: two blocks that both just move v1 into
// v2 and fall into a common join should collapse into one (P1).
func buildIdenticalPredecessorsFixture(opts regalloc.Options) (*ir.IRCode, *regalloc.Mock, string) {
	code := ir.NewIRCode()
	mock := regalloc.NewMock(opts)

	entry := code.NewBlock()
	left := code.NewBlock()
	right := code.NewBlock()
	join := code.NewBlock()

	v1 := code.NewValue(ir.TypeInt32, true, false)
	v2 := code.NewValue(ir.TypeInt32, true, false)
	cond := code.NewValue(ir.TypeInt32, true, false)
	mock.Assign(v1, 0)
	mock.Assign(v2, 1)
	mock.Assign(cond, 2)

	code.EmitIf(entry, ir.ConditionNez, cond, left, right)

	code.EmitMove(left, v2, v1)
	code.EmitGoto(left, join)

	code.EmitMove(right, v2, v1)
	code.EmitGoto(right, join)

	code.EmitReturn(join, v2)

	return code, mock, "identicalPredecessors"
}

// buildRedundantMoveFixture: a move whose source and destination already
// resolve to the same physical register should disappear (P2).
func buildRedundantMoveFixture(opts regalloc.Options) (*ir.IRCode, *regalloc.Mock, string) {
	code := ir.NewIRCode()
	mock := regalloc.NewMock(opts)

	entry := code.NewBlock()

	v1 := code.NewValue(ir.TypeInt32, true, false)
	v2 := code.NewValue(ir.TypeInt32, true, false)
	mock.Assign(v1, 0)
	mock.Assign(v2, 0) // same register as v1: the move below is a no-op.

	code.EmitMove(entry, v2, v1)
	code.EmitReturn(entry, v2)

	return code, mock, "redundantMove"
}

// buildPrefixShareFixture: two single-predecessor siblings of a branch both
// start by loading the same constant before diverging; the load should be
// hoisted into the shared predecessor (P3).
func buildPrefixShareFixture(opts regalloc.Options) (*ir.IRCode, *regalloc.Mock, string) {
	code := ir.NewIRCode()
	mock := regalloc.NewMock(opts)

	entry := code.NewBlock()
	left := code.NewBlock()
	right := code.NewBlock()

	cond := code.NewValue(ir.TypeInt32, true, false)
	shared := code.NewValue(ir.TypeInt32, true, false)
	leftOnly := code.NewValue(ir.TypeInt32, true, false)
	rightOnly := code.NewValue(ir.TypeInt32, true, false)
	mock.Assign(cond, 0)
	mock.Assign(shared, 1)
	mock.Assign(leftOnly, 2)
	mock.Assign(rightOnly, 2) // disjoint live ranges can share a register.

	code.EmitIf(entry, ir.ConditionNez, cond, left, right)

	code.EmitConstNumber(left, shared, 7)
	code.EmitConstNumber(left, leftOnly, 1)
	code.EmitReturn(left, leftOnly)

	code.EmitConstNumber(right, shared, 7)
	code.EmitConstNumber(right, rightOnly, 2)
	code.EmitReturn(right, rightOnly)

	return code, mock, "prefixShare"
}

// buildSuffixShareFixture: two otherwise-different predecessors both end by
// loading the same constant into the same register and returning it; that
// shared tail should be extracted into one new block (P4).
func buildSuffixShareFixture(opts regalloc.Options) (*ir.IRCode, *regalloc.Mock, string) {
	code := ir.NewIRCode()
	mock := regalloc.NewMock(opts)

	entry := code.NewBlock()
	left := code.NewBlock()
	right := code.NewBlock()
	fallthroughBlk := code.NewBlock()

	cond := code.NewValue(ir.TypeInt32, true, false)
	leftTmp := code.NewValue(ir.TypeInt32, true, false)
	rightTmp := code.NewValue(ir.TypeInt32, true, false)
	leftMarker := code.NewValue(ir.TypeInt32, true, false)
	rightMarker := code.NewValue(ir.TypeInt32, true, false)
	result := code.NewValue(ir.TypeInt32, true, false)
	mock.Assign(cond, 0)
	mock.Assign(leftTmp, 1)
	mock.Assign(rightTmp, 1)
	mock.Assign(leftMarker, 3)
	mock.Assign(rightMarker, 3)
	mock.Assign(result, 2)

	code.EmitIf(entry, ir.ConditionNez, cond, left, fallthroughBlk)

	// Each branch diverges first (a different constant into register 1),
	// then converges onto an identical trailing sequence (register 3, then
	// the result and the return) long enough to clear P4's overhead test.
	code.EmitConstNumber(left, leftTmp, 99)
	code.EmitConstNumber(left, leftMarker, 5)
	code.EmitConstNumber(left, result, 42)
	code.EmitReturn(left, result)

	code.EmitGoto(fallthroughBlk, right)

	code.EmitConstNumber(right, rightTmp, 13)
	code.EmitConstNumber(right, rightMarker, 5)
	code.EmitConstNumber(right, result, 42)
	code.EmitReturn(right, result)

	return code, mock, "suffixShare"
}
