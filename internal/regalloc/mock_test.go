package regalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dexopt/peephole/internal/ir"
)

func TestMockIdenticalAfterRegisterAllocation(t *testing.T) {
	m := NewMock(Options{})
	dst1 := ir.NewValue(1, ir.TypeInt32, true, false)
	dst2 := ir.NewValue(2, ir.TypeInt32, true, false)
	src := ir.NewValue(3, ir.TypeInt32, true, false)
	m.Assign(dst1, 0)
	m.Assign(dst2, 0)
	m.Assign(src, 1)

	a := ir.NewMove(0, dst1, src)
	b := ir.NewMove(1, dst2, src)
	assert.True(t, m.IdenticalAfterRegisterAllocation(a, b))

	other := ir.NewValue(4, ir.TypeInt32, true, false)
	m.Assign(other, 2)
	c := ir.NewMove(2, dst1, other)
	assert.False(t, m.IdenticalAfterRegisterAllocation(a, c))
}

func TestMockRecordsGraphEdits(t *testing.T) {
	m := NewMock(Options{})
	code := ir.NewIRCode()
	survivor := code.NewBlock()
	discarded := code.NewBlock()

	m.MergeBlocks(survivor, discarded)
	assert.Len(t, m.Merges, 1)
	assert.Equal(t, survivor, m.Merges[0].Surviving)

	n := code.NewBlock()
	m.AddNewBlockToShareIdenticalSuffix(n, 2, []*ir.BasicBlock{survivor, discarded})
	assert.Len(t, m.Suffixes, 1)
	assert.Equal(t, 2, m.Suffixes[0].SuffixSize)
}
