package snapshot

import "fmt"

// Section identifies one of the snapshot sections. Sections appear in the
// snapshot in this order. DATA must be second-to-last because its start is
// the ROM/RAM boundary for mapped pointers, and HEAP must be last because
// it is the only section whose size changes between snapshots of the same
// program.
type Section uint8

const (
	SectionImportTable    Section = iota // host function IDs called by the VM
	SectionExportTable                   // (export ID, value) pairs
	SectionShortCallTable                // up to MaxShortCalls hot call targets
	SectionGCRoots                       // DATA offsets holding HEAP pointers
	SectionStringTable                   // sorted unique strings in ROM
	SectionROM                           // functions and immutable structures
	SectionData                          // globals and mutable allocations
	SectionHeap                          // GC-managed allocations

	SectionCount
)

var sectionNames = [SectionCount]string{
	"import-table",
	"export-table",
	"short-call-table",
	"gc-roots",
	"string-table",
	"rom",
	"data",
	"heap",
}

func (s Section) String() string {
	if s < SectionCount {
		return sectionNames[s]
	}
	return fmt.Sprintf("section(%d)", uint8(s))
}

// Range is the location of a section within the snapshot.
type Range struct {
	Start uint16
	Size  uint16
}

// End of the range (exclusive).
func (r Range) End() int {
	return int(r.Start) + int(r.Size)
}

// Contains reports whether the byte at off lies inside the range.
func (r Range) Contains(off int) bool {
	return off >= int(r.Start) && off < r.End()
}

// Layout is the section map derived from a header. It is a pure function
// of the header and holds no other state.
type Layout struct {
	Sections [SectionCount]Range
	Size     uint16
}

// Layout derives every section range from the header's offsets. Section
// sizes are the difference between adjacent offsets; HEAP runs up to
// BytecodeSize. Offsets must be non-decreasing and lie within
// [HeaderSize, BytecodeSize].
func (h *Header) Layout() (Layout, error) {
	l := Layout{Size: h.BytecodeSize}
	prev := uint16(h.HeaderSize)
	for i, off := range h.SectionOffsets {
		s := Section(i)
		if off < prev {
			if i == 0 {
				return Layout{}, fmt.Errorf("%w: %s starts at %d, inside the %d-byte header",
					ErrCorruptHeader, s, off, h.HeaderSize)
			}
			return Layout{}, fmt.Errorf("%w: %s offset %d precedes %s offset %d",
				ErrCorruptHeader, s, off, Section(i-1), prev)
		}
		if off > h.BytecodeSize {
			return Layout{}, fmt.Errorf("%w: %s offset %d beyond bytecode size %d",
				ErrCorruptHeader, s, off, h.BytecodeSize)
		}
		prev = off
	}
	for i := range h.SectionOffsets {
		end := h.BytecodeSize
		if i+1 < int(SectionCount) {
			end = h.SectionOffsets[i+1]
		}
		l.Sections[i] = Range{Start: h.SectionOffsets[i], Size: end - h.SectionOffsets[i]}
	}
	return l, nil
}

// Range returns the byte range of a section.
func (l Layout) Range(s Section) Range {
	return l.Sections[s]
}

// Boundary is the start of the DATA section. Mapped pointers below it
// address ROM, pointers at or above it address RAM.
func (l Layout) Boundary() MappedPtr {
	return MappedPtr(l.Sections[SectionData].Start)
}

// RAMSize is the number of bytes copied into RAM at restore (DATA + HEAP).
func (l Layout) RAMSize() int {
	return int(l.Sections[SectionData].Size) + int(l.Sections[SectionHeap].Size)
}

// Slice returns the bytes of a section within data.
func (l Layout) Slice(data []byte, s Section) []byte {
	r := l.Sections[s]
	return data[r.Start:r.End():r.End()]
}
