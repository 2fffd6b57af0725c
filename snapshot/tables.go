package snapshot

import (
	"fmt"
	"iter"
)

// HostFunctionID is the host-assigned identifier stored in an import entry.
type HostFunctionID uint16

// ExportID is the host-visible identifier of an exported value.
type ExportID uint16

const (
	importEntrySize = 2
	exportEntrySize = 4
)

// ---------------------------------------------------------------------------
// Import Table
// ---------------------------------------------------------------------------

// ImportTable is a read-only view of the import section: one host function
// ID per entry, in import-index order.
type ImportTable struct {
	b []byte
}

func newImportTable(b []byte) (ImportTable, error) {
	if len(b)%importEntrySize != 0 {
		return ImportTable{}, fmt.Errorf("%w: import table is %d bytes, not a multiple of %d",
			ErrCorruptSection, len(b), importEntrySize)
	}
	return ImportTable{b: b}, nil
}

// Len returns the number of imports.
func (t ImportTable) Len() int { return len(t.b) / importEntrySize }

// ID returns the host function ID of import i.
func (t ImportTable) ID(i int) HostFunctionID {
	return HostFunctionID(readUint16(t.b, i*importEntrySize))
}

// All yields (import index, host function ID) pairs.
func (t ImportTable) All() iter.Seq2[int, HostFunctionID] {
	return func(yield func(int, HostFunctionID) bool) {
		for i := range t.Len() {
			if !yield(i, t.ID(i)) {
				return
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Export Table
// ---------------------------------------------------------------------------

// Export is one entry of the export table.
type Export struct {
	ID    ExportID
	Value Value
}

// ExportTable is a read-only view of the export section. Lookup is by ID
// so builds may reorder entries freely.
type ExportTable struct {
	b []byte
}

func newExportTable(b []byte) (ExportTable, error) {
	if len(b)%exportEntrySize != 0 {
		return ExportTable{}, fmt.Errorf("%w: export table is %d bytes, not a multiple of %d",
			ErrCorruptSection, len(b), exportEntrySize)
	}
	t := ExportTable{b: b}
	seen := make(map[ExportID]struct{}, t.Len())
	for e := range t.All() {
		if _, dup := seen[e.ID]; dup {
			return ExportTable{}, fmt.Errorf("%w: duplicate export id %d", ErrCorruptSection, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return t, nil
}

// Len returns the number of exports.
func (t ExportTable) Len() int { return len(t.b) / exportEntrySize }

// At returns export entry i.
func (t ExportTable) At(i int) Export {
	off := i * exportEntrySize
	return Export{
		ID:    ExportID(readUint16(t.b, off)),
		Value: Value(readUint16(t.b, off+2)),
	}
}

// Lookup returns the value exported under id.
func (t ExportTable) Lookup(id ExportID) (Value, error) {
	for e := range t.All() {
		if e.ID == id {
			return e.Value, nil
		}
	}
	return 0, fmt.Errorf("%w: id %d", ErrUnknownExport, id)
}

// All yields the export entries in table order.
func (t ExportTable) All() iter.Seq[Export] {
	return func(yield func(Export) bool) {
		for i := range t.Len() {
			if !yield(t.At(i)) {
				return
			}
		}
	}
}
