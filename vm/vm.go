package vm

import (
	"fmt"

	"github.com/chazu/bcsnap/snapshot"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// VM: live state restored from a snapshot
// ---------------------------------------------------------------------------

// VM is the live state of a restored snapshot. It owns its RAM (a copy of
// DATA followed by HEAP) and its bound imports, and shares the immutable
// Image with any other VM restored from the same snapshot.
//
// A VM is not safe for concurrent use. The interpreter and the collector
// run on the same goroutine.
type VM struct {
	id       uuid.UUID
	img      *snapshot.Image
	mem      snapshot.Memory
	dataSize int
	imports  []HostFunction
	context  any
	log      commonlog.Logger
}

// ID is a unique identifier for this VM instance.
func (vm *VM) ID() uuid.UUID { return vm.id }

// Image returns the snapshot this VM was restored from.
func (vm *VM) Image() *snapshot.Image { return vm.img }

// Context returns the host value passed with WithContext.
func (vm *VM) Context() any { return vm.context }

// Memory is the mapped-pointer resolver for this VM. ROM pointers resolve
// into the snapshot, RAM pointers into this VM's own copy of DATA and HEAP.
func (vm *VM) Memory() *snapshot.Memory { return &vm.mem }

// DataSize is the size of DATA in bytes, globals included.
func (vm *VM) DataSize() int { return vm.dataSize }

// HeapSize is the current size of HEAP in bytes.
func (vm *VM) HeapSize() int { return len(vm.mem.RAM) - vm.dataSize }

// GlobalCount is the number of global variables.
func (vm *VM) GlobalCount() int { return int(vm.img.Header().GlobalVariableCount) }

// Global reads global variable i.
func (vm *VM) Global(i int) (snapshot.Value, error) {
	if i < 0 || i >= vm.GlobalCount() {
		return 0, fmt.Errorf("%w: global %d of %d", snapshot.ErrPointerRange, i, vm.GlobalCount())
	}
	v, err := vm.mem.Read16(vm.mem.Boundary + snapshot.MappedPtr(2*i))
	return snapshot.Value(v), err
}

// SetGlobal writes global variable i.
func (vm *VM) SetGlobal(i int, v snapshot.Value) error {
	if i < 0 || i >= vm.GlobalCount() {
		return fmt.Errorf("%w: global %d of %d", snapshot.ErrPointerRange, i, vm.GlobalCount())
	}
	return vm.mem.Write16(vm.mem.Boundary+snapshot.MappedPtr(2*i), uint16(v))
}

// Builtin returns the current value of a builtin. Builtins compiled out of
// the snapshot read as null.
func (vm *VM) Builtin(id snapshot.BuiltinID) snapshot.Value {
	b := vm.img.Builtin(id)
	if !b.IsSlot() {
		return snapshot.ValueNull
	}
	// Slots were checked against the global count by Open.
	v, _ := vm.Global(int(b.Slot))
	return v
}

// SetBuiltin updates a builtin held in a global slot.
func (vm *VM) SetBuiltin(id snapshot.BuiltinID, v snapshot.Value) error {
	b := vm.img.Builtin(id)
	if !b.IsSlot() {
		return fmt.Errorf("builtin %s is constant null", id)
	}
	return vm.SetGlobal(int(b.Slot), v)
}

// ShortCall resolves entry i of the short-call table. ErrShortCallIndex
// means the caller must use the general call encoding.
func (vm *VM) ShortCall(i int) (snapshot.ShortCall, error) {
	return vm.img.ShortCalls().Resolve(i)
}
