package ir

// LocalDescriptor is the debugger-facing description of a source-level local
// variable currently mapped to some register.
type LocalDescriptor struct {
	Name string
	Type Type
	// Slot is the debug-info slot index the frontend assigned this local.
	Slot int
}

// LocalsMap is a snapshot of which register holds which source-level local,
// as seen by a debugger at some point in the program. It is attached to a
// BasicBlock as localsAtEntry (spec §3) and replayed forward by
// debug-locals-change instructions to produce the state at any later point
// in the block (spec §4.7).
type LocalsMap map[int]LocalDescriptor

// Clone returns an independent copy of this LocalsMap. Per the design notes
// in spec §9, each block owns its locals map outright: replay must never
// mutate a map another block still holds a reference to.
func (m LocalsMap) Clone() LocalsMap {
	if m == nil {
		return nil
	}
	out := make(LocalsMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Equal reports whether two LocalsMaps describe the same register-to-local
// mapping. Used by P3 (pre-condition 1: siblings must agree on
// localsAtEntry) and by P4 (to reject suffix sharing across predecessors
// with diverging locals state).
func (m LocalsMap) Equal(other LocalsMap) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// DebugLocalsChangeKind distinguishes starting and ending the visibility of
// a local variable in a given register. A start on a register that already
// holds a local replaces that local.
type DebugLocalsChangeKind byte

const (
	LocalStart DebugLocalsChangeKind = iota
	LocalEnd
)

// Apply replays a single debug-locals-change instruction's effect on this
// LocalsMap, returning the updated map. It never mutates the receiver.
func (m LocalsMap) Apply(i *Instruction) LocalsMap {
	if i.opcode != OpcodeDebugLocalsChange {
		panic("BUG: Apply called on non-debug-locals-change instruction")
	}
	out := m.Clone()
	if out == nil {
		out = make(LocalsMap)
	}
	switch i.localsChangeKind {
	case LocalStart:
		out[i.localReg] = i.localDesc
	case LocalEnd:
		delete(out, i.localReg)
	}
	return out
}
