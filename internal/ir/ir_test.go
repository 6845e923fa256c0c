package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueStateAtPanicsWithoutCoverage(t *testing.T) {
	v := NewValue(1, TypeInt32, true, false)
	assert.Panics(t, func() { v.StateAt(0) })

	v.SetLiveIntervals([]LiveInterval{{Begin: 0, End: 4, State: LiveStateInRegister}})
	assert.Equal(t, LiveStateInRegister, v.StateAt(2))
	assert.Panics(t, func() { v.StateAt(5) })
}

func TestLocalsMapApplyStartAndEnd(t *testing.T) {
	var m LocalsMap
	start := NewDebugLocalsChange(0, LocalStart, 3, LocalDescriptor{Name: "x", Type: TypeInt32, Slot: 0})
	m = m.Apply(start)
	require.Contains(t, m, 3)
	assert.Equal(t, "x", m[3].Name)

	end := NewDebugLocalsChange(1, LocalEnd, 3, LocalDescriptor{})
	m2 := m.Apply(end)
	assert.NotContains(t, m2, 3)
	// Apply must not mutate the receiver.
	assert.Contains(t, m, 3)
}

func TestLocalsMapCloneIsIndependent(t *testing.T) {
	m := LocalsMap{1: {Name: "a"}}
	c := m.Clone()
	c[2] = LocalDescriptor{Name: "b"}
	assert.NotContains(t, m, 2)
	assert.True(t, m.Equal(LocalsMap{1: {Name: "a"}}))
	assert.False(t, m.Equal(c))
}

func TestIdenticalNonValueNonPositionParts(t *testing.T) {
	dst1 := NewValue(1, TypeInt32, true, false)
	dst2 := NewValue(2, TypeInt32, true, false)
	src1 := NewValue(3, TypeInt32, true, false)
	src2 := NewValue(4, TypeInt64, true, false)

	a := NewMove(0, dst1, src1)
	b := NewMove(1, dst2, src1)
	assert.True(t, a.IdenticalNonValueNonPositionParts(b))

	c := NewMove(2, dst2, src2)
	assert.False(t, a.IdenticalNonValueNonPositionParts(c), "differing operand width must not be identical")

	constA := NewConstNumber(3, dst1, 7)
	constB := NewConstNumber(4, dst2, 8)
	assert.False(t, constA.IdenticalNonValueNonPositionParts(constB), "differing literal must not be identical")
}

func TestBasicBlockTerminatorInvariant(t *testing.T) {
	c := NewIRCode()
	entry := c.NewBlock()
	join := c.NewBlock()

	cond := c.NewValue(TypeInt32, true, false)
	c.EmitIf(entry, ConditionNez, cond, join, join)
	c.EmitReturnVoid(join)

	assert.True(t, c.IsConsistentGraph())
	assert.Equal(t, 2, join.NumPreds())

	empty := NewBasicBlock(99)
	assert.Panics(t, func() { empty.Exit() })
}

func TestReplaceSuccessorFixesUpPreds(t *testing.T) {
	c := NewIRCode()
	a := c.NewBlock()
	b := c.NewBlock()
	target := c.NewBlock()

	c.EmitGoto(a, b)
	c.EmitGoto(b, target)
	c.EmitReturnVoid(target)

	other := c.NewBlock()
	c.EmitReturnVoid(other)

	a.ReplaceSuccessor(b, other)
	assert.Equal(t, 0, b.NumPreds())
	assert.Equal(t, 1, other.NumPreds())
	assert.Equal(t, []*BasicBlock{other}, a.Tail().Targets())
}
