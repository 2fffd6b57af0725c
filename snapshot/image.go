package snapshot

import (
	"fmt"

	"lukechampine.com/blake3"
)

// ---------------------------------------------------------------------------
// Image: an opened, validated snapshot
// ---------------------------------------------------------------------------

// Image is a validated snapshot with read-only views over its tables. It
// references the snapshot bytes in place and never writes to them, so one
// Image may back any number of VMs concurrently.
type Image struct {
	data   []byte
	header *Header
	layout Layout
	rom    Memory

	imports    ImportTable
	exports    ExportTable
	shortCalls ShortCallTable
	roots      GCRoots
	strings    StringTable
}

// Open validates a snapshot and builds the table views. The header is
// fully checked (see DecodeHeader) before any section is read. Bytes past
// the declared bytecode size are ignored. The caller must not modify data
// while the Image is in use.
func Open(data []byte, eng Engine) (*Image, error) {
	h, err := DecodeHeader(data, eng)
	if err != nil {
		return nil, err
	}
	l, err := h.Layout()
	if err != nil {
		return nil, err
	}
	if err := h.checkBuiltins(); err != nil {
		return nil, err
	}
	data = data[:h.BytecodeSize:h.BytecodeSize]

	img := &Image{
		data:   data,
		header: h,
		layout: l,
		rom:    Memory{ROM: data, Boundary: l.Boundary()},
	}
	if globals := 2 * int(h.GlobalVariableCount); globals > int(l.Range(SectionData).Size) {
		return nil, fmt.Errorf("%w: %d globals need %d bytes, DATA is %d bytes",
			ErrCorruptSection, h.GlobalVariableCount, globals, l.Range(SectionData).Size)
	}
	if img.imports, err = newImportTable(l.Slice(data, SectionImportTable)); err != nil {
		return nil, err
	}
	if img.exports, err = newExportTable(l.Slice(data, SectionExportTable)); err != nil {
		return nil, err
	}
	if img.shortCalls, err = newShortCallTable(l.Slice(data, SectionShortCallTable), img.imports, l.Range(SectionROM)); err != nil {
		return nil, err
	}
	if img.roots, err = newGCRoots(l.Slice(data, SectionGCRoots), l.Range(SectionData).Size); err != nil {
		return nil, err
	}
	if img.strings, err = newStringTable(l.Slice(data, SectionStringTable), &img.rom); err != nil {
		return nil, err
	}
	return img, nil
}

// Bytes returns the snapshot bytes up to the declared size.
func (img *Image) Bytes() []byte { return img.data }

// Header returns the decoded header.
func (img *Image) Header() *Header { return img.header }

// Layout returns the section map.
func (img *Image) Layout() Layout { return img.layout }

// Boundary returns the ROM/RAM boundary (the DATA section start).
func (img *Image) Boundary() MappedPtr { return img.layout.Boundary() }

// ROM returns a resolver for ROM pointers only. It has no RAM; use a VM's
// memory to follow pointers into DATA or HEAP.
func (img *Image) ROM() *Memory { return &img.rom }

// Section returns the bytes of a section. The slice must not be modified.
func (img *Image) Section(s Section) []byte { return img.layout.Slice(img.data, s) }

// Imports returns the host functions the snapshot needs, in slot order.
func (img *Image) Imports() ImportTable { return img.imports }

// Exports returns the export table.
func (img *Image) Exports() ExportTable { return img.exports }

// ShortCalls returns the short-call table.
func (img *Image) ShortCalls() ShortCallTable { return img.shortCalls }

// GCRoots returns the DATA offsets the collector treats as roots.
func (img *Image) GCRoots() GCRoots { return img.roots }

// Strings returns the sorted ROM string table.
func (img *Image) Strings() StringTable { return img.strings }

// Builtin resolves a builtin ID against the header.
func (img *Image) Builtin(id BuiltinID) Binding { return img.header.Builtin(id) }

// Global reads global slot i from the snapshot's initial DATA.
func (img *Image) Global(i int) (Value, error) {
	if i < 0 || i >= int(img.header.GlobalVariableCount) {
		return 0, fmt.Errorf("%w: global %d of %d", ErrPointerRange, i, img.header.GlobalVariableCount)
	}
	return Value(readUint16(img.Section(SectionData), 2*i)), nil
}

// Hash is the BLAKE3 digest of the whole snapshot. It identifies the
// snapshot for storage and distribution.
func (img *Image) Hash() [32]byte { return blake3.Sum256(img.data) }

// ROMHash is the BLAKE3 digest of every section before DATA. Snapshots of
// the same program taken at different times share it.
func (img *Image) ROMHash() [32]byte {
	return blake3.Sum256(img.data[img.header.SectionOffsets[SectionImportTable]:img.Boundary()])
}
