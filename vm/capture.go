package vm

import (
	"fmt"

	"github.com/chazu/bcsnap/snapshot"
)

// Capture encodes the VM's current state as a new snapshot. Everything up
// to DATA is copied from the original image; DATA and HEAP come from RAM.
// Restoring the result yields a VM with the same globals, heap and
// runtime-interned strings.
func (vm *VM) Capture() ([]byte, error) {
	boundary := int(vm.mem.Boundary)
	size := boundary + len(vm.mem.RAM)
	if size > snapshot.MaxSnapshotSize {
		return nil, fmt.Errorf("%w: %d bytes", snapshot.ErrSnapshotTooLarge, size)
	}

	out := make([]byte, size)
	copy(out, vm.img.Bytes()[:boundary])
	copy(out[boundary:], vm.mem.RAM)

	h := *vm.img.Header()
	h.BytecodeSize = uint16(size)
	h.Encode(out)
	if err := snapshot.Seal(out); err != nil {
		return nil, err
	}
	vm.log.Debugf("captured vm %s: %d bytes, heap %d bytes", vm.id, size, vm.HeapSize())
	return out, nil
}
