package vm

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/bcsnap/snapshot"
)

// stringsSnapshot has ROM strings "length" and "push" and, when mutable is
// set, a global bound to the unique-strings builtin.
func stringsSnapshot(t *testing.T, mutable bool) []byte {
	t.Helper()
	b := snapshot.NewBuilder()
	b.AddString("length")
	b.AddString("push")
	if mutable {
		g := b.AddGlobal(snapshot.ValueNull)
		b.BindBuiltin(snapshot.BuiltinUniqueStrings, g)
	}
	data, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestInternStringROMFirst(t *testing.T) {
	vm, err := Restore(stringsSnapshot(t, true), nil, quiet())
	if err != nil {
		t.Fatal(err)
	}
	want, err := vm.Image().Strings().Lookup("push")
	if err != nil {
		t.Fatal(err)
	}
	heap := vm.HeapSize()
	got, err := vm.InternString("push")
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("InternString(push) = 0x%04x, want ROM entry 0x%04x", got, want)
	}
	if vm.HeapSize() != heap {
		t.Error("interning a ROM string allocated memory")
	}
}

func TestInternStringRuntime(t *testing.T) {
	vm, err := Restore(stringsSnapshot(t, true), nil, quiet())
	if err != nil {
		t.Fatal(err)
	}
	a, err := vm.InternString("pop")
	if err != nil {
		t.Fatalf("InternString: %v", err)
	}
	if vm.Memory().Resolve(a).Space != snapshot.SpaceRAM {
		t.Errorf("runtime string at %s, want RAM", vm.Memory().Resolve(a))
	}
	b, err := vm.InternString("pop")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("second intern = 0x%04x, want 0x%04x", b, a)
	}
	if _, err := vm.InternString("shift"); err != nil {
		t.Fatal(err)
	}

	var got []string
	for s := range vm.UniqueStrings() {
		got = append(got, s)
	}
	if len(got) != 2 || got[0] != "shift" || got[1] != "pop" {
		t.Errorf("UniqueStrings = %v", got)
	}
	if s, err := vm.String(a); err != nil || s != "pop" {
		t.Errorf("String = %q, %v", s, err)
	}
	if p, err := vm.LookupString("pop"); err != nil || p != a {
		t.Errorf("LookupString = 0x%04x, %v", p, err)
	}
	if _, err := vm.LookupString("unshift"); !errors.Is(err, snapshot.ErrStringNotFound) {
		t.Errorf("expected ErrStringNotFound, got %v", err)
	}
}

func TestInternStringWithoutMutableTable(t *testing.T) {
	vm, err := Restore(stringsSnapshot(t, false), nil, quiet())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := vm.InternString("length"); err != nil {
		t.Errorf("ROM string: %v", err)
	}
	heap := vm.HeapSize()
	if _, err := vm.InternString("pop"); !errors.Is(err, snapshot.ErrNoMutableStringTable) {
		t.Fatalf("expected ErrNoMutableStringTable, got %v", err)
	}
	if vm.HeapSize() != heap {
		t.Error("failed intern allocated memory")
	}
}

func TestAllocate(t *testing.T) {
	vm, err := Restore(stringsSnapshot(t, true), nil, quiet())
	if err != nil {
		t.Fatal(err)
	}
	p, err := vm.Allocate(3, snapshot.TypeNone)
	if err != nil {
		t.Fatal(err)
	}
	q, err := vm.Allocate(2, snapshot.TypeNone)
	if err != nil {
		t.Fatal(err)
	}
	if p&1 != 0 || q&1 != 0 {
		t.Errorf("unaligned allocations 0x%04x 0x%04x", p, q)
	}
	if q-p != 3+1+snapshot.AllocationHeaderSize {
		t.Errorf("second allocation at 0x%04x, first at 0x%04x", q, p)
	}
	tc, payload, err := vm.Memory().ReadAllocation(p)
	if err != nil || tc != snapshot.TypeNone || len(payload) != 3 {
		t.Errorf("ReadAllocation = %d, %v, %v", tc, payload, err)
	}
	if _, err := vm.Allocate(snapshot.MaxAllocationSize+1, snapshot.TypeNone); !errors.Is(err, snapshot.ErrAllocationTooLarge) {
		t.Errorf("expected ErrAllocationTooLarge, got %v", err)
	}
}

func TestInternStringOutOfMemoryLeavesHeap(t *testing.T) {
	vm, err := Restore(stringsSnapshot(t, true), nil, quiet())
	if err != nil {
		t.Fatal(err)
	}
	// room is what the next allocation's payload may use before the image
	// would pass MaxSnapshotSize.
	room := func() int {
		start := len(vm.mem.RAM)
		start += start & 1
		return snapshot.MaxSnapshotSize - int(vm.mem.Boundary) - start - snapshot.AllocationHeaderSize
	}
	for room() > 2048+64 {
		if _, err := vm.Allocate(2048, snapshot.TypeNone); err != nil {
			t.Fatalf("filling heap: %v", err)
		}
	}
	// The string fits but its list cell does not.
	s := strings.Repeat("x", room()-3)
	head := vm.Builtin(snapshot.BuiltinUniqueStrings)
	heap := vm.HeapSize()

	if _, err := vm.InternString(s); !errors.Is(err, snapshot.ErrSnapshotTooLarge) {
		t.Fatalf("expected ErrSnapshotTooLarge, got %v", err)
	}
	if vm.HeapSize() != heap {
		t.Errorf("heap grew from %d to %d bytes", heap, vm.HeapSize())
	}
	if vm.Builtin(snapshot.BuiltinUniqueStrings) != head {
		t.Error("unique-strings list changed")
	}
	if _, err := vm.InternString("pop"); err != nil {
		t.Errorf("small string after failure: %v", err)
	}
}
