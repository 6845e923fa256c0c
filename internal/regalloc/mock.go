package regalloc

import "github.com/dexopt/peephole/internal/ir"

// MergeCall records one MergeBlocks invocation observed by a Mock.
type MergeCall struct {
	Surviving, Discarded *ir.BasicBlock
}

// SuffixCall records one AddNewBlockToShareIdenticalSuffix invocation
// observed by a Mock.
type SuffixCall struct {
	NewBlock   *ir.BasicBlock
	SuffixSize int
	Preds      []*ir.BasicBlock
}

// Mock is a test-only Allocator. Every Value is pinned to a single
// PhysicalRegister for its whole lifetime (real allocators can re-home a
// Value across live-range splits, but the peephole phases only ever query
// RegisterForValue at each instruction's own number, so a fixed-per-Value
// mapping is sufficient to pin down every scenario in spec §8). Calls to
// the allocator's graph-editing callbacks are recorded rather than acted
// on, so tests can assert the optimizer made exactly the calls spec §4
// contracts for.
type Mock struct {
	regs    map[ir.ValueID]PhysicalRegister
	opts    Options
	Merges  []MergeCall
	Suffixes []SuffixCall
}

// NewMock returns an empty Mock allocator.
func NewMock(opts Options) *Mock {
	return &Mock{regs: make(map[ir.ValueID]PhysicalRegister), opts: opts}
}

// Assign pins v to physical register r for the lifetime of the test.
func (m *Mock) Assign(v ir.Value, r PhysicalRegister) {
	m.regs[v.ID()] = r
}

// RegisterForValue implements Allocator.
func (m *Mock) RegisterForValue(v ir.Value, _ int32) PhysicalRegister {
	if !v.Valid() {
		return NoRegister
	}
	if r, ok := m.regs[v.ID()]; ok {
		return r
	}
	return NoRegister
}

// IdenticalAfterRegisterAllocation implements Allocator: same opcode,
// literal operands, and register-resolved operand/result positions.
func (m *Mock) IdenticalAfterRegisterAllocation(i0, i1 *ir.Instruction) bool {
	if !i0.IdenticalNonValueNonPositionParts(i1) {
		return false
	}
	if m.regOf(i0.Output(), i0) != m.regOf(i1.Output(), i1) {
		return false
	}
	v1a, v2a, vsa := i0.Inputs()
	v1b, v2b, vsb := i1.Inputs()
	if m.regOf(v1a, i0) != m.regOf(v1b, i1) || m.regOf(v2a, i0) != m.regOf(v2b, i1) {
		return false
	}
	if len(vsa) != len(vsb) {
		return false
	}
	for idx := range vsa {
		if m.regOf(vsa[idx], i0) != m.regOf(vsb[idx], i1) {
			return false
		}
	}
	return true
}

func (m *Mock) regOf(v ir.Value, owner *ir.Instruction) PhysicalRegister {
	if !v.Valid() {
		return NoRegister
	}
	return m.RegisterForValue(v, owner.Number())
}

// MergeBlocks implements Allocator.
func (m *Mock) MergeBlocks(surviving, discarded *ir.BasicBlock) {
	m.Merges = append(m.Merges, MergeCall{Surviving: surviving, Discarded: discarded})
}

// AddNewBlockToShareIdenticalSuffix implements Allocator.
func (m *Mock) AddNewBlockToShareIdenticalSuffix(newBlock *ir.BasicBlock, suffixSize int, preds []*ir.BasicBlock) {
	m.Suffixes = append(m.Suffixes, SuffixCall{NewBlock: newBlock, SuffixSize: suffixSize, Preds: append([]*ir.BasicBlock{}, preds...)})
}

// Options implements Allocator.
func (m *Mock) Options() Options { return m.opts }
