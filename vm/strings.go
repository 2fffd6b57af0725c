package vm

import (
	"errors"
	"fmt"
	"iter"

	"github.com/chazu/bcsnap/snapshot"
)

// ---------------------------------------------------------------------------
// Unique strings
// ---------------------------------------------------------------------------
//
// Strings interned after the snapshot was built cannot join the ROM table,
// so they go on a list in HEAP whose head lives in the global bound to
// BuiltinUniqueStrings. Each cell is a 4-byte allocation {next, string}
// and the list ends with null. A snapshot that binds no such global has no
// mutable string table at all.

const uniqueStringCellSize = 4

// String reads the string allocation at p, in ROM or RAM.
func (vm *VM) String(p snapshot.MappedPtr) (string, error) {
	s, _, err := vm.mem.ReadString(p)
	return s, err
}

// LookupString finds the unique string equal to s without interning it.
func (vm *VM) LookupString(s string) (snapshot.MappedPtr, error) {
	if p, err := vm.img.Strings().Lookup(s); err == nil {
		return p, nil
	}
	for str, p := range vm.UniqueStrings() {
		if str == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", snapshot.ErrStringNotFound, s)
}

// InternString returns the unique string equal to s, adding it to the RAM
// list when neither ROM nor RAM has it yet. Without a mutable string table
// it fails with ErrNoMutableStringTable rather than create a second copy
// of a key.
func (vm *VM) InternString(s string) (snapshot.MappedPtr, error) {
	p, err := vm.LookupString(s)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, snapshot.ErrStringNotFound) {
		return 0, err
	}
	if !vm.img.Builtin(snapshot.BuiltinUniqueStrings).IsSlot() {
		return 0, fmt.Errorf("%w: cannot intern %q", snapshot.ErrNoMutableStringTable, s)
	}

	mark := len(vm.mem.RAM)
	str, err := vm.internAt(s)
	if err != nil {
		vm.mem.RAM = vm.mem.RAM[:mark]
		return 0, err
	}
	return str, nil
}

// internAt allocates s and its list cell and links the cell in front of
// the unique-strings list.
func (vm *VM) internAt(s string) (snapshot.MappedPtr, error) {
	str, err := vm.AllocateString(s, snapshot.TypeUniqueString)
	if err != nil {
		return 0, err
	}
	cell, err := vm.Allocate(uniqueStringCellSize, snapshot.TypeNone)
	if err != nil {
		return 0, err
	}
	head := vm.Builtin(snapshot.BuiltinUniqueStrings)
	if err := vm.mem.Write16(cell, uint16(head)); err != nil {
		return 0, err
	}
	if err := vm.mem.Write16(cell+2, uint16(str)); err != nil {
		return 0, err
	}
	if err := vm.SetBuiltin(snapshot.BuiltinUniqueStrings, snapshot.Value(cell)); err != nil {
		return 0, err
	}
	return str, nil
}

// UniqueStrings yields the strings interned at runtime, most recent first.
// A malformed list ends the sequence early.
func (vm *VM) UniqueStrings() iter.Seq2[string, snapshot.MappedPtr] {
	return func(yield func(string, snapshot.MappedPtr) bool) {
		cell := vm.Builtin(snapshot.BuiltinUniqueStrings)
		// Each cell takes at least 6 bytes of RAM, which bounds the walk
		// even if the list is cyclic.
		for steps := len(vm.mem.RAM) / 6; cell.IsPointer() && steps >= 0; steps-- {
			next, err := vm.mem.Read16(snapshot.MappedPtr(cell))
			if err != nil {
				return
			}
			sp, err := vm.mem.Read16(snapshot.MappedPtr(cell) + 2)
			if err != nil {
				return
			}
			s, err := vm.String(snapshot.MappedPtr(sp))
			if err != nil {
				return
			}
			if !yield(s, snapshot.MappedPtr(sp)) {
				return
			}
			cell = snapshot.Value(next)
		}
	}
}
