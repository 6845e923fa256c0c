package peephole

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexopt/peephole/internal/ir"
	"github.com/dexopt/peephole/internal/regalloc"
)

func TestIdenticalPredecessorMerge(t *testing.T) {
	code := ir.NewIRCode()
	mock := regalloc.NewMock(regalloc.Options{})

	entry := code.NewBlock()
	left := code.NewBlock()
	right := code.NewBlock()
	join := code.NewBlock()

	cond := code.NewValue(ir.TypeInt32, true, false)
	v1 := code.NewValue(ir.TypeInt32, true, false)
	v2 := code.NewValue(ir.TypeInt32, true, false)
	mock.Assign(cond, 0)
	mock.Assign(v1, 1)
	mock.Assign(v2, 2)

	code.EmitIf(entry, ir.ConditionNez, cond, left, right)
	code.EmitMove(left, v2, v1)
	code.EmitGoto(left, join)
	code.EmitMove(right, v2, v1)
	code.EmitGoto(right, join)
	code.EmitReturn(join, v2)

	require.True(t, code.IsConsistentGraph())

	Optimize(code, mock, "TestIdenticalPredecessorMerge")

	assert.True(t, code.IsConsistentGraph())
	assert.Len(t, mock.Merges, 1)
	live := 0
	for _, b := range code.Blocks() {
		if b.Valid() {
			live++
		}
	}
	// entry, left, right, and join all survive: the loser becomes a
	// single-instruction trampoline into its twin rather than being deleted.
	assert.Equal(t, 4, live)
	assert.Equal(t, 1, join.NumPreds())

	// The survivor gains a second predecessor (the collapsed twin, now
	// pointing at it instead of at join); the trampoline keeps its original
	// single incoming edge from entry.
	var survivor, trampoline *ir.BasicBlock
	if left.NumPreds() == 2 {
		survivor, trampoline = left, right
	} else {
		survivor, trampoline = right, left
	}
	assert.Equal(t, 1, trampoline.Len())
	assert.Equal(t, ir.OpcodeGoto, trampoline.Root().Opcode())
	assert.Equal(t, []*ir.BasicBlock{survivor}, trampoline.Tail().Targets())
}

func TestRedundancyRemovalEliminatesSelfMove(t *testing.T) {
	code := ir.NewIRCode()
	mock := regalloc.NewMock(regalloc.Options{})

	entry := code.NewBlock()
	v1 := code.NewValue(ir.TypeInt32, true, false)
	v2 := code.NewValue(ir.TypeInt32, true, false)
	mock.Assign(v1, 0)
	mock.Assign(v2, 0)

	code.EmitMove(entry, v2, v1)
	code.EmitReturn(entry, v2)

	Optimize(code, mock, "TestRedundancyRemovalEliminatesSelfMove")

	assert.Equal(t, ir.OpcodeReturn, entry.Root().Opcode())
	assert.Equal(t, entry.Root(), entry.Tail())
}

func TestRedundancyRemovalKeepsDistinctMove(t *testing.T) {
	code := ir.NewIRCode()
	mock := regalloc.NewMock(regalloc.Options{})

	entry := code.NewBlock()
	v1 := code.NewValue(ir.TypeInt32, true, false)
	v2 := code.NewValue(ir.TypeInt32, true, false)
	mock.Assign(v1, 0)
	mock.Assign(v2, 1)

	code.EmitMove(entry, v2, v1)
	code.EmitReturn(entry, v2)

	Optimize(code, mock, "TestRedundancyRemovalKeepsDistinctMove")

	assert.Equal(t, ir.OpcodeMove, entry.Root().Opcode())
}

func TestRedundancyRemovalDropsRedundantConstReload(t *testing.T) {
	code := ir.NewIRCode()
	mock := regalloc.NewMock(regalloc.Options{})

	entry := code.NewBlock()
	v1 := code.NewValue(ir.TypeInt32, true, false)
	v2 := code.NewValue(ir.TypeInt32, true, false)
	mock.Assign(v1, 0)
	mock.Assign(v2, 0)

	code.EmitConstNumber(entry, v1, 7)
	code.EmitConstNumber(entry, v2, 7)
	code.EmitReturn(entry, v2)

	Optimize(code, mock, "TestRedundancyRemovalDropsRedundantConstReload")

	assert.Equal(t, 2, entry.Len())
	assert.Equal(t, ir.OpcodeConstNumber, entry.Root().Opcode())
	assert.Equal(t, ir.OpcodeReturn, entry.Tail().Opcode())
}

func TestPrefixSharingHoistsCommonPrefix(t *testing.T) {
	code := ir.NewIRCode()
	mock := regalloc.NewMock(regalloc.Options{})

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
	mock.Assign(rightOnly, 2)

	code.EmitIf(entry, ir.ConditionNez, cond, left, right)
	code.EmitConstNumber(left, shared, 7)
	code.EmitConstNumber(left, leftOnly, 1)
	code.EmitReturn(left, leftOnly)
	code.EmitConstNumber(right, shared, 7)
	code.EmitConstNumber(right, rightOnly, 2)
	code.EmitReturn(right, rightOnly)

	Optimize(code, mock, "TestPrefixSharingHoistsCommonPrefix")

	assert.True(t, code.IsConsistentGraph())
	require.Equal(t, 2, entry.Len(), "entry should gain the hoisted const plus keep its if")
	assert.Equal(t, ir.OpcodeConstNumber, entry.Root().Opcode())
	assert.Equal(t, ir.OpcodeIf, entry.Tail().Opcode())
	assert.Equal(t, 2, left.Len(), "left keeps its own const plus the return")
	assert.Equal(t, 2, right.Len(), "right keeps its own const plus the return")
}

func TestPrefixSharingBlockedByMismatchedCatchHandlers(t *testing.T) {
	code := ir.NewIRCode()
	mock := regalloc.NewMock(regalloc.Options{})

	entry := code.NewBlock()
	left := code.NewBlock()
	right := code.NewBlock()
	handler := code.NewBlock()

	cond := code.NewValue(ir.TypeInt32, true, false)
	base := code.NewValue(ir.TypeObject, true, false)
	dst := code.NewValue(ir.TypeInt32, true, false)
	mock.Assign(cond, 0)
	mock.Assign(base, 1)
	mock.Assign(dst, 2)

	code.EmitIf(entry, ir.ConditionNez, cond, left, right)

	code.EmitFieldGet(left, dst, base, true)
	left.AddCatchHandler(handler)
	code.EmitReturn(left, dst)

	// right performs the identical throwing read but with no handler: the
	// two copies are not interchangeable, so the instruction must stay put.
	code.EmitFieldGet(right, dst, base, true)
	code.EmitReturn(right, dst)

	code.EmitReturnVoid(handler)

	Optimize(code, mock, "TestPrefixSharingBlockedByMismatchedCatchHandlers")

	assert.Equal(t, 2, left.Len())
	assert.Equal(t, 2, right.Len())
}

func TestSuffixSharingExtractsCommonTail(t *testing.T) {
	code := ir.NewIRCode()
	mock := regalloc.NewMock(regalloc.Options{})

	entry := code.NewBlock()
	left := code.NewBlock()
	fallthroughBlk := code.NewBlock()
	right := code.NewBlock()

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

	code.EmitConstNumber(left, leftTmp, 99)
	code.EmitConstNumber(left, leftMarker, 5)
	code.EmitConstNumber(left, result, 42)
	code.EmitReturn(left, result)

	code.EmitGoto(fallthroughBlk, right)
	code.EmitConstNumber(right, rightTmp, 13)
	code.EmitConstNumber(right, rightMarker, 5)
	code.EmitConstNumber(right, result, 42)
	code.EmitReturn(right, result)

	Optimize(code, mock, "TestSuffixSharingExtractsCommonTail")

	assert.True(t, code.IsConsistentGraph())
	require.Len(t, mock.Suffixes, 1)
	assert.Equal(t, 3, mock.Suffixes[0].SuffixSize)
	assert.Equal(t, ir.OpcodeGoto, left.Tail().Opcode())
}

func TestOptimizeIsIdempotent(t *testing.T) {
	code := ir.NewIRCode()
	mock := regalloc.NewMock(regalloc.Options{})

	entry := code.NewBlock()
	v1 := code.NewValue(ir.TypeInt32, true, false)
	v2 := code.NewValue(ir.TypeInt32, true, false)
	mock.Assign(v1, 0)
	mock.Assign(v2, 0)
	code.EmitMove(entry, v2, v1)
	code.EmitReturn(entry, v2)

	Optimize(code, mock, "TestOptimizeIsIdempotent")
	before := code.Dump()
	Optimize(code, mock, "TestOptimizeIsIdempotent")
	assert.Equal(t, before, code.Dump())
}
