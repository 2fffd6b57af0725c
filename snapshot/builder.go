package snapshot

import (
	"errors"
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Builder: encoding snapshots
// ---------------------------------------------------------------------------

// Ref names a location in a snapshot under construction. Offsets are
// relative to the bytes the caller added to that section; the builder
// turns them into mapped pointers once the layout is known.
//
// DATA refs are relative to the first byte after the global variables.
type Ref struct {
	Section Section
	Offset  uint16
	str     string
}

func (r Ref) String() string {
	if r.Section == SectionStringTable {
		return fmt.Sprintf("string(%q)", r.str)
	}
	return fmt.Sprintf("%s+%d", r.Section, r.Offset)
}

type slotValue struct {
	value Value
	ref   *Ref
}

type builderExport struct {
	id ExportID
	slotValue
}

type builderShortCall struct {
	importIndex int
	fn          *Ref
	argCount    uint8
}

type fixup struct {
	at     Ref
	target Ref
}

// Builder assembles a snapshot. It lays out the sections in canonical
// order, patches pointers once the boundary is known, sorts the string
// table and seals the result with its CRC.
type Builder struct {
	engineVersion uint8
	features      FeatureFlags
	builtins      [BuiltinCount]uint8
	bindErr       error
	strict        bool

	globals    []slotValue
	imports    []HostFunctionID
	exports    []builderExport
	shortCalls []builderShortCall
	roots      []uint16 // DATA offsets, globals included
	rootRefs   []Ref
	strings    map[string]struct{}
	fixups     []fixup

	rom        []byte
	data       []byte
	heap       []byte
	dataOffset int

	// Filled in by Build.
	built      bool
	boundary   MappedPtr
	romStart   int
	stringPtrs map[string]MappedPtr
}

// NewBuilder returns a builder for a snapshot that requires this engine's
// version and no optional features.
func NewBuilder() *Builder {
	b := &Builder{
		engineVersion: EngineVersion,
		strings:       make(map[string]struct{}),
	}
	for i := range b.builtins {
		b.builtins[i] = NoBuiltinSlot
	}
	return b
}

// SetEngineVersion sets the minimum engine version the snapshot requires.
func (b *Builder) SetEngineVersion(v uint8) { b.engineVersion = v }

// RequireFeatures adds to the snapshot's required feature flags.
func (b *Builder) RequireFeatures(f FeatureFlags) { b.features |= f }

// Strict makes Build fail with ErrMissingRoot when a DATA slot points into
// HEAP without being listed as a GC root.
func (b *Builder) Strict(on bool) { b.strict = on }

// AddGlobal appends a global variable and returns its slot index.
func (b *Builder) AddGlobal(v Value) int {
	b.globals = append(b.globals, slotValue{value: v})
	return len(b.globals) - 1
}

// SetGlobalRef makes global i hold the pointer to ref.
func (b *Builder) SetGlobalRef(i int, ref Ref) {
	b.globals[i].ref = &ref
}

// AddImport appends an import and returns its index.
func (b *Builder) AddImport(id HostFunctionID) int {
	b.imports = append(b.imports, id)
	return len(b.imports) - 1
}

// AddExport exports a plain value.
func (b *Builder) AddExport(id ExportID, v Value) {
	b.exports = append(b.exports, builderExport{id: id, slotValue: slotValue{value: v}})
}

// AddExportRef exports the pointer to ref.
func (b *Builder) AddExportRef(id ExportID, ref Ref) {
	b.exports = append(b.exports, builderExport{id: id, slotValue: slotValue{ref: &ref}})
}

// AddShortCallImport adds a short-call entry targeting an import.
func (b *Builder) AddShortCallImport(index int, argCount uint8) int {
	b.shortCalls = append(b.shortCalls, builderShortCall{importIndex: index, argCount: argCount})
	return len(b.shortCalls) - 1
}

// AddShortCallLocal adds a short-call entry targeting a function in ROM.
func (b *Builder) AddShortCallLocal(fn Ref, argCount uint8) int {
	b.shortCalls = append(b.shortCalls, builderShortCall{fn: &fn, argCount: argCount})
	return len(b.shortCalls) - 1
}

// AddString adds s to the ROM string table. Adding the same string twice
// returns the same ref.
func (b *Builder) AddString(s string) Ref {
	b.strings[s] = struct{}{}
	return Ref{Section: SectionStringTable, str: s}
}

// ROM appends raw bytes to ROM at an even offset.
func (b *Builder) ROM(p []byte) Ref {
	b.rom = padEven(b.rom)
	off := len(b.rom)
	b.rom = append(b.rom, p...)
	return Ref{Section: SectionROM, Offset: uint16(off)}
}

// ROMAlloc appends an allocation (header word plus payload) to ROM and
// returns a ref to its payload.
func (b *Builder) ROMAlloc(tc TypeCode, payload []byte) (Ref, error) {
	w, err := AllocationHeader(len(payload), tc)
	if err != nil {
		return Ref{}, err
	}
	var hdr [AllocationHeaderSize]byte
	writeUint16(hdr[:], 0, w)
	r := b.ROM(append(hdr[:], payload...))
	r.Offset += AllocationHeaderSize
	return r, nil
}

// SetDataOffset pads ROM so the DATA section, and with it the ROM/RAM
// boundary, starts at exactly off. Build fails if the preceding sections
// do not fit. The offset must be even.
func (b *Builder) SetDataOffset(off int) { b.dataOffset = off }

// Data appends bytes to DATA after the globals, at an even offset.
func (b *Builder) Data(p []byte) Ref {
	b.data = padEven(b.data)
	off := len(b.data)
	b.data = append(b.data, p...)
	return Ref{Section: SectionData, Offset: uint16(off)}
}

// Heap appends raw bytes to HEAP at an even offset.
func (b *Builder) Heap(p []byte) Ref {
	b.heap = padEven(b.heap)
	off := len(b.heap)
	b.heap = append(b.heap, p...)
	return Ref{Section: SectionHeap, Offset: uint16(off)}
}

// HeapAlloc appends an allocation to HEAP and returns a ref to its payload.
func (b *Builder) HeapAlloc(tc TypeCode, payload []byte) (Ref, error) {
	w, err := AllocationHeader(len(payload), tc)
	if err != nil {
		return Ref{}, err
	}
	var hdr [AllocationHeaderSize]byte
	writeUint16(hdr[:], 0, w)
	r := b.Heap(append(hdr[:], payload...))
	r.Offset += AllocationHeaderSize
	return r, nil
}

// PutRef stores the pointer to target in the 2-byte slot at at. Slots may
// only be in DATA or HEAP.
func (b *Builder) PutRef(at, target Ref) {
	b.fixups = append(b.fixups, fixup{at: at, target: target})
}

// AddGCRoot lists a DATA slot as a GC root.
func (b *Builder) AddGCRoot(at Ref) {
	b.rootRefs = append(b.rootRefs, at)
}

// AddGlobalRoot lists global slot i as a GC root.
func (b *Builder) AddGlobalRoot(i int) {
	b.roots = append(b.roots, uint16(2*i))
}

// BindBuiltin binds a builtin to a global slot. An unknown builtin or a
// slot that does not fit the header makes Build fail.
func (b *Builder) BindBuiltin(id BuiltinID, slot int) {
	var err error
	switch {
	case id >= BuiltinCount:
		err = fmt.Errorf("builder: unknown builtin %d", uint8(id))
	case slot < 0 || slot >= int(NoBuiltinSlot):
		err = fmt.Errorf("builder: builtin %s bound to global %d, want 0..%d", id, slot, NoBuiltinSlot-1)
	default:
		b.builtins[id] = uint8(slot)
		return
	}
	if b.bindErr == nil {
		b.bindErr = err
	}
}

// Pointer returns the mapped pointer for ref. It is only valid after a
// successful Build.
func (b *Builder) Pointer(ref Ref) (MappedPtr, error) {
	if !b.built {
		return 0, errors.New("builder: Pointer called before Build")
	}
	return b.pointer(ref)
}

func (b *Builder) pointer(ref Ref) (MappedPtr, error) {
	switch ref.Section {
	case SectionStringTable:
		p, ok := b.stringPtrs[ref.str]
		if !ok {
			return 0, fmt.Errorf("builder: string %q was not added", ref.str)
		}
		return p, nil
	case SectionROM:
		if int(ref.Offset) >= len(b.rom) {
			return 0, fmt.Errorf("%w: %s past end of ROM", ErrPointerRange, ref)
		}
		return Encode(Address{Space: SpaceROM, Offset: uint16(b.romStart) + ref.Offset}, b.boundary)
	case SectionData:
		return Encode(Address{Space: SpaceRAM, Offset: b.dataBase() + ref.Offset}, b.boundary)
	case SectionHeap:
		return Encode(Address{Space: SpaceRAM, Offset: b.heapBase() + ref.Offset}, b.boundary)
	}
	return 0, fmt.Errorf("builder: cannot point into %s", ref.Section)
}

// dataBase is the RAM offset of the first DATA byte after the globals.
func (b *Builder) dataBase() uint16 { return uint16(2 * len(b.globals)) }

// heapBase is the RAM offset of the first HEAP byte.
func (b *Builder) heapBase() uint16 { return b.dataBase() + uint16(len(padEven(b.data))) }

// Build lays out and encodes the snapshot.
func (b *Builder) Build() ([]byte, error) {
	if b.bindErr != nil {
		return nil, b.bindErr
	}
	if len(b.globals) > 0xFF {
		return nil, fmt.Errorf("builder: %d globals, at most 255", len(b.globals))
	}
	if len(b.shortCalls) > MaxShortCalls {
		return nil, fmt.Errorf("builder: %d short calls, at most %d", len(b.shortCalls), MaxShortCalls)
	}
	for id, slot := range b.builtins {
		if slot != NoBuiltinSlot && int(slot) >= len(b.globals) {
			return nil, fmt.Errorf("builder: builtin %s bound to missing global %d", BuiltinID(id), slot)
		}
	}

	// String allocations go first in ROM, in table order.
	strs := make([]string, 0, len(b.strings))
	for s := range b.strings {
		strs = append(strs, s)
	}
	sort.Strings(strs)
	var strROM []byte
	strOffsets := make([]int, len(strs))
	for i, s := range strs {
		alloc, err := EncodeString(s, TypeUniqueString)
		if err != nil {
			return nil, fmt.Errorf("builder: string %q: %w", s, err)
		}
		strOffsets[i] = len(strROM) + AllocationHeaderSize
		strROM = padEven(append(strROM, alloc...))
	}

	var h Header
	h.BytecodeVersion = BytecodeVersion
	h.HeaderSize = HeaderSize
	h.RequiredEngineVersion = b.engineVersion
	h.GlobalVariableCount = uint8(len(b.globals))
	h.RequiredFeatureFlags = b.features
	h.BuiltinGlobalIndices = b.builtins

	rootOffsets := append([]uint16(nil), b.roots...)
	for _, r := range b.rootRefs {
		if r.Section != SectionData {
			return nil, fmt.Errorf("builder: gc root %s is not in DATA", r)
		}
		rootOffsets = append(rootOffsets, b.dataBase()+r.Offset)
	}

	sizes := [SectionCount]int{
		SectionImportTable:    importEntrySize * len(b.imports),
		SectionExportTable:    exportEntrySize * len(b.exports),
		SectionShortCallTable: len(padEven(make([]byte, shortCallEntrySize*len(b.shortCalls)))),
		SectionGCRoots:        2 * len(rootOffsets),
		SectionStringTable:    2 * len(strs),
		SectionROM:            len(strROM) + len(padEven(b.rom)),
		SectionData:           int(b.dataBase()) + len(padEven(b.data)),
		SectionHeap:           len(padEven(b.heap)),
	}
	off := HeaderSize
	for s := range SectionCount {
		if s == SectionData && b.dataOffset != 0 {
			if b.dataOffset&1 != 0 || b.dataOffset < off {
				return nil, fmt.Errorf("builder: DATA offset %d, sections before it need %d bytes", b.dataOffset, off)
			}
			sizes[SectionROM] += b.dataOffset - off
			off = b.dataOffset
		}
		h.SectionOffsets[s] = uint16(off)
		off += sizes[s]
		if off > MaxSnapshotSize {
			return nil, fmt.Errorf("%w: %d bytes through %s", ErrSnapshotTooLarge, off, s)
		}
	}
	h.BytecodeSize = uint16(off)

	b.boundary = MappedPtr(h.SectionOffsets[SectionData])
	b.romStart = int(h.SectionOffsets[SectionROM]) + len(strROM)
	b.stringPtrs = make(map[string]MappedPtr, len(strs))
	for i, s := range strs {
		b.stringPtrs[s] = MappedPtr(int(h.SectionOffsets[SectionROM]) + strOffsets[i])
	}

	out := make([]byte, off)
	h.Encode(out)
	sec := func(s Section) []byte {
		start := h.SectionOffsets[s]
		return out[start : int(start)+sizes[s]]
	}

	for i, id := range b.imports {
		writeUint16(sec(SectionImportTable), i*importEntrySize, uint16(id))
	}
	for i, e := range b.exports {
		v, err := b.slot(e.slotValue)
		if err != nil {
			return nil, fmt.Errorf("builder: export %d: %w", e.id, err)
		}
		t := sec(SectionExportTable)
		writeUint16(t, i*exportEntrySize, uint16(e.id))
		writeUint16(t, i*exportEntrySize+2, uint16(v))
	}
	for i, sc := range b.shortCalls {
		c := Callee{Kind: CalleeImport, Index: sc.importIndex}
		if sc.fn != nil {
			if sc.fn.Section != SectionROM {
				return nil, fmt.Errorf("builder: short call %d target %s is not in ROM", i, *sc.fn)
			}
			c = Callee{Kind: CalleeLocal, Offset: uint16(b.romStart) + sc.fn.Offset}
		}
		ref, err := EncodeCallee(c)
		if err != nil {
			return nil, fmt.Errorf("builder: short call %d: %w", i, err)
		}
		t := sec(SectionShortCallTable)
		t[i*shortCallEntrySize] = byte(ref)
		t[i*shortCallEntrySize+1] = byte(ref >> 8)
		t[i*shortCallEntrySize+2] = sc.argCount
	}
	for i, r := range rootOffsets {
		writeUint16(sec(SectionGCRoots), 2*i, r)
	}
	for i, s := range strs {
		writeUint16(sec(SectionStringTable), 2*i, uint16(b.stringPtrs[s]))
	}
	copy(sec(SectionROM), strROM)
	copy(sec(SectionROM)[len(strROM):], b.rom)

	data := sec(SectionData)
	for i, g := range b.globals {
		v, err := b.slot(g)
		if err != nil {
			return nil, fmt.Errorf("builder: global %d: %w", i, err)
		}
		writeUint16(data, 2*i, uint16(v))
	}
	copy(data[b.dataBase():], b.data)
	copy(sec(SectionHeap), b.heap)

	ram := Memory{ROM: out, RAM: out[b.boundary:], Boundary: b.boundary}
	for _, f := range b.fixups {
		if f.at.Section != SectionData && f.at.Section != SectionHeap {
			return nil, fmt.Errorf("builder: cannot patch %s", f.at)
		}
		at, err := b.pointer(f.at)
		if err != nil {
			return nil, err
		}
		target, err := b.pointer(f.target)
		if err != nil {
			return nil, err
		}
		if err := ram.Write16(at, uint16(target)); err != nil {
			return nil, fmt.Errorf("builder: patch %s: %w", f.at, err)
		}
	}

	if err := Seal(out); err != nil {
		return nil, err
	}
	b.built = true

	if b.strict {
		img, err := Open(out, PermissiveEngine())
		if err != nil {
			return nil, fmt.Errorf("builder: produced an invalid snapshot: %w", err)
		}
		for _, is := range CheckRoots(img) {
			if is.Kind == MissingRoot {
				return nil, fmt.Errorf("%w: DATA offset %d holds %s", ErrMissingRoot, is.Offset, is.Value)
			}
		}
	}
	return out, nil
}

func (b *Builder) slot(s slotValue) (Value, error) {
	if s.ref == nil {
		return s.value, nil
	}
	p, err := b.pointer(*s.ref)
	return Value(p), err
}

func padEven(b []byte) []byte {
	if len(b)&1 != 0 {
		return append(b, 0)
	}
	return b
}
