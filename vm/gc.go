package vm

import (
	"fmt"
	"iter"

	"github.com/chazu/bcsnap/snapshot"
)

// ---------------------------------------------------------------------------
// Garbage collector contract
// ---------------------------------------------------------------------------

// Collector is implemented by a garbage collector. It receives the VM's
// memory and the locations of every root slot: all globals, then each
// DATA offset from the GC roots table. DATA is never traced, so a HEAP
// reference held anywhere else in DATA is invisible to it.
//
// The collector may move HEAP allocations as long as it updates the root
// slots, and may replace mem.RAM with a smaller or larger block that keeps
// DATA at its start.
type Collector interface {
	Collect(mem *snapshot.Memory, roots iter.Seq[snapshot.MappedPtr]) error
}

// CollectorFunc adapts a function to Collector.
type CollectorFunc func(mem *snapshot.Memory, roots iter.Seq[snapshot.MappedPtr]) error

func (f CollectorFunc) Collect(mem *snapshot.Memory, roots iter.Seq[snapshot.MappedPtr]) error {
	return f(mem, roots)
}

// GCRoots yields the DATA offsets listed in the snapshot's GC roots table.
// The sequence is identical on every call.
func (vm *VM) GCRoots() iter.Seq[uint16] {
	return vm.img.GCRoots().All()
}

// Roots yields the mapped pointer of every root slot: globals first, then
// the GC roots table.
func (vm *VM) Roots() iter.Seq[snapshot.MappedPtr] {
	return func(yield func(snapshot.MappedPtr) bool) {
		for i := range vm.GlobalCount() {
			if !yield(vm.mem.Boundary + snapshot.MappedPtr(2*i)) {
				return
			}
		}
		for off := range vm.GCRoots() {
			if !yield(vm.mem.Boundary + snapshot.MappedPtr(off)) {
				return
			}
		}
	}
}

// RootValues yields each GC roots table offset with the value currently
// stored there.
func (vm *VM) RootValues() iter.Seq2[uint16, snapshot.Value] {
	return func(yield func(uint16, snapshot.Value) bool) {
		for off := range vm.GCRoots() {
			// Roots were checked to lie inside DATA by Open.
			v, _ := vm.mem.Read16(vm.mem.Boundary + snapshot.MappedPtr(off))
			if !yield(off, snapshot.Value(v)) {
				return
			}
		}
	}
}

// Collect runs a collection cycle on the calling goroutine.
func (vm *VM) Collect(c Collector) error {
	before := vm.HeapSize()
	if err := c.Collect(&vm.mem, vm.Roots()); err != nil {
		return fmt.Errorf("gc: %w", err)
	}
	if len(vm.mem.RAM) < vm.dataSize {
		return fmt.Errorf("gc: collector truncated DATA (%d bytes of RAM, DATA is %d)", len(vm.mem.RAM), vm.dataSize)
	}
	vm.log.Debugf("gc: heap %d -> %d bytes", before, vm.HeapSize())
	return nil
}

// CheckRoots looks for DATA slots that currently point into HEAP without
// being GC roots.
func (vm *VM) CheckRoots() []snapshot.RootIssue {
	return snapshot.CheckMemoryRoots(&vm.mem, vm.dataSize, vm.GlobalCount(), vm.img.GCRoots())
}
