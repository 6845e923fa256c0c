package ir

import "fmt"

// ValueID uniquely identifies a Value within an IRCode.
type ValueID uint32

// ValueInvalid is the zero Value, used as a sentinel for "no value".
const ValueInvalid ValueID = 0

// LiveState classifies how a Value is held during a portion of its
// lifetime, as decided by the register allocator.
type LiveState byte

const (
	// LiveStateInRegister means the value is resident in its assigned
	// physical register over this interval.
	LiveStateInRegister LiveState = iota
	// LiveStateSpilled means the value was spilled to the stack frame and
	// must be reloaded before use.
	LiveStateSpilled
	// LiveStateSpilledAndRematerializable means the allocator chose not to
	// keep this definition anywhere at all: it is cheap enough (e.g. a
	// constant load) to simply re-emit at each use site instead.
	LiveStateSpilledAndRematerializable
)

// LiveInterval is one contiguous range, in instruction numbers, over which a
// Value is held in a particular LiveState. Begin and End are inclusive.
type LiveInterval struct {
	Begin, End int32
	State      LiveState
}

// contains reports whether the given instruction number falls in this
// interval.
func (r LiveInterval) contains(n int32) bool {
	return r.Begin <= n && n <= r.End
}

// Value is an SSA result: a unique, immutable definition produced by
// exactly one Instruction.
type Value struct {
	id                ValueID
	typ               Type
	needsRegister     bool
	fixedRegisterSite bool
	liveIntervals     []LiveInterval
}

// NewValue creates a Value. needsRegister is false for values that never
// occupy a physical register (e.g. values only used as immediates).
// fixedRegisterSite marks a Value whose defining instruction pins it to a
// specific physical register by ABI convention (e.g. a call result).
func NewValue(id ValueID, typ Type, needsRegister, fixedRegisterSite bool) Value {
	return Value{id: id, typ: typ, needsRegister: needsRegister, fixedRegisterSite: fixedRegisterSite}
}

// ID returns the unique ID of this Value.
func (v Value) ID() ValueID { return v.id }

// Valid returns true if this is not the invalid sentinel Value.
func (v Value) Valid() bool { return v.id != ValueInvalid }

// Type returns the Type of this Value.
func (v Value) Type() Type { return v.typ }

// NeedsRegister returns true if this Value requires a physical register.
func (v Value) NeedsRegister() bool { return v.needsRegister }

// FixedRegisterSite returns true if the defining instruction of this Value
// is pinned to a specific physical register.
func (v Value) FixedRegisterSite() bool { return v.fixedRegisterSite }

// SetLiveIntervals attaches the live-range information computed by the
// register allocator to this Value. Intervals must be in increasing,
// non-overlapping order.
func (v *Value) SetLiveIntervals(intervals []LiveInterval) {
	v.liveIntervals = intervals
}

// LiveIntervals returns the live ranges of this Value, as recorded by the
// register allocator.
func (v Value) LiveIntervals() []LiveInterval { return v.liveIntervals }

// StateAt returns the LiveState of this Value at the given instruction
// number. It panics if the Value has no recorded interval covering n,
// which would indicate Invariant 4 (every use is covered by a live
// interval) was violated upstream.
func (v Value) StateAt(n int32) LiveState {
	for _, r := range v.liveIntervals {
		if r.contains(n) {
			return r.State
		}
	}
	panic(fmt.Sprintf("BUG: v%d has no live interval covering instruction %d", v.id, n))
}

// String implements fmt.Stringer for debugging.
func (v Value) String() string {
	if !v.Valid() {
		return "-"
	}
	return fmt.Sprintf("v%d", v.id)
}
