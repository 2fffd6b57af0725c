package snapshot

import "fmt"

// BuiltinID identifies a well-known engine object whose value lives in a
// global slot.
type BuiltinID uint8

const (
	BuiltinUniqueStrings BuiltinID = iota // head of the RAM unique-string list
	BuiltinArrayProto                     // prototype of every array

	BuiltinCount
)

func (id BuiltinID) String() string {
	switch id {
	case BuiltinUniqueStrings:
		return "unique-strings"
	case BuiltinArrayProto:
		return "array-proto"
	default:
		return fmt.Sprintf("builtin(%d)", uint8(id))
	}
}

// NoBuiltinSlot marks a builtin compiled out of the snapshot.
const NoBuiltinSlot uint8 = 0xFF

// BindingKind says how a builtin is bound.
type BindingKind uint8

const (
	BindingConstantNull BindingKind = iota
	BindingSlot
)

// Binding is the resolved location of a builtin: a global slot, or the
// constant null when the build has no such builtin. The zero value is
// constant null.
type Binding struct {
	Kind BindingKind
	Slot uint8
}

// IsSlot reports whether the builtin lives in a global slot.
func (b Binding) IsSlot() bool { return b.Kind == BindingSlot }

func (b Binding) String() string {
	if b.Kind == BindingSlot {
		return fmt.Sprintf("global[%d]", b.Slot)
	}
	return "null"
}

// Builtin resolves a builtin ID. Unknown IDs and the 0xFF sentinel are
// both constant null.
func (h *Header) Builtin(id BuiltinID) Binding {
	if id >= BuiltinCount {
		return Binding{}
	}
	slot := h.BuiltinGlobalIndices[id]
	if slot == NoBuiltinSlot {
		return Binding{}
	}
	return Binding{Kind: BindingSlot, Slot: slot}
}

// checkBuiltins rejects bindings that point past the global variables.
func (h *Header) checkBuiltins() error {
	for id := BuiltinID(0); id < BuiltinCount; id++ {
		b := h.Builtin(id)
		if b.IsSlot() && b.Slot >= h.GlobalVariableCount {
			return fmt.Errorf("%w: builtin %s bound to global %d, only %d globals",
				ErrCorruptHeader, id, b.Slot, h.GlobalVariableCount)
		}
	}
	return nil
}
