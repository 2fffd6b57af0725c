package vm

import (
	"fmt"

	"github.com/chazu/bcsnap/snapshot"
)

// Allocate appends a zeroed allocation of size bytes to the end of HEAP
// and returns the mapped pointer of its payload. The header word carries
// size and type code so the allocation survives Capture.
func (vm *VM) Allocate(size int, tc snapshot.TypeCode) (snapshot.MappedPtr, error) {
	w, err := snapshot.AllocationHeader(size, tc)
	if err != nil {
		return 0, err
	}
	start := len(vm.mem.RAM)
	start += start & 1
	total := start + snapshot.AllocationHeaderSize + size
	if int(vm.mem.Boundary)+total+total&1 > snapshot.MaxSnapshotSize {
		return 0, fmt.Errorf("%w: heap would end at %d", snapshot.ErrSnapshotTooLarge, int(vm.mem.Boundary)+total)
	}

	ram := vm.mem.RAM
	if cap(ram) < total {
		grown := make([]byte, len(ram), max(total, 2*cap(ram)))
		copy(grown, ram)
		ram = grown
	}
	ram = ram[:total]
	clear(ram[len(vm.mem.RAM):])
	vm.mem.RAM = ram

	p := vm.mem.Boundary + snapshot.MappedPtr(start+snapshot.AllocationHeaderSize)
	if err := vm.mem.Write16(p-snapshot.AllocationHeaderSize, w); err != nil {
		return 0, err
	}
	return p, nil
}

// AllocateString allocates a string (or unique string) in HEAP.
func (vm *VM) AllocateString(s string, tc snapshot.TypeCode) (snapshot.MappedPtr, error) {
	p, err := vm.Allocate(len(s)+1, tc)
	if err != nil {
		return 0, err
	}
	b, err := vm.mem.Bytes(p, len(s)+1)
	if err != nil {
		return 0, err
	}
	copy(b, s)
	return p, nil
}
