package snapshot

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// sealedHeader encodes h into a zero-filled buffer of h.BytecodeSize bytes
// and seals it.
func sealedHeader(t *testing.T, h Header) []byte {
	t.Helper()
	data := make([]byte, h.BytecodeSize)
	h.Encode(data)
	if err := Seal(data); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return data
}

func validHeader() Header {
	return Header{
		BytecodeVersion:      BytecodeVersion,
		HeaderSize:           HeaderSize,
		BytecodeSize:         140,
		SectionOffsets:       [SectionCount]uint16{30, 32, 36, 39, 40, 40, 100, 120},
		BuiltinGlobalIndices: [BuiltinCount]uint8{NoBuiltinSlot, NoBuiltinSlot},
	}
}

func TestLayoutRanges(t *testing.T) {
	h := validHeader()
	l, err := h.Layout()
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	want := Layout{
		Size: 140,
		Sections: [SectionCount]Range{
			SectionImportTable:    {Start: 30, Size: 2},
			SectionExportTable:    {Start: 32, Size: 4},
			SectionShortCallTable: {Start: 36, Size: 3},
			SectionGCRoots:        {Start: 39, Size: 1},
			SectionStringTable:    {Start: 40, Size: 0},
			SectionROM:            {Start: 40, Size: 60},
			SectionData:           {Start: 100, Size: 20},
			SectionHeap:           {Start: 120, Size: 20},
		},
	}
	if diff := cmp.Diff(want, l); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
	if l.Boundary() != 100 {
		t.Errorf("Boundary = %d, want 100", l.Boundary())
	}
	if l.RAMSize() != 40 {
		t.Errorf("RAMSize = %d, want 40", l.RAMSize())
	}
}

func TestLayoutRoundTrip(t *testing.T) {
	b := NewBuilder()
	b.AddGlobal(0)
	b.AddImport(3)
	b.AddImport(4)
	b.AddExport(9, ValueNull)
	b.AddShortCallImport(1, 1)
	b.AddString("k")
	b.ROM([]byte{1, 2, 3})
	b.SetDataOffset(80)
	b.Data([]byte{5, 6})
	b.Heap([]byte{7, 8, 9, 10})
	data, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	img, err := Open(data, DefaultEngine())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	l := img.Layout()

	// Every section ends where the next begins and HEAP ends the snapshot.
	for s := SectionImportTable; s < SectionHeap; s++ {
		if l.Range(s).End() != int(l.Range(s+1).Start) {
			t.Errorf("%s ends at %d, %s starts at %d", s, l.Range(s).End(), s+1, l.Range(s+1).Start)
		}
	}
	if l.Range(SectionHeap).End() != len(data) {
		t.Errorf("heap ends at %d, snapshot is %d bytes", l.Range(SectionHeap).End(), len(data))
	}

	sizes := map[Section]uint16{
		SectionImportTable:    4,
		SectionExportTable:    4,
		SectionShortCallTable: 4, // 3 bytes plus padding
		SectionGCRoots:        0,
		SectionStringTable:    2,
		SectionData:           4,
		SectionHeap:           4,
	}
	for s, want := range sizes {
		if got := l.Range(s).Size; got != want {
			t.Errorf("%s size = %d, want %d", s, got, want)
		}
	}
	if l.Boundary() != 80 {
		t.Errorf("Boundary = %d, want 80", l.Boundary())
	}

	// Re-deriving from a fresh decode gives the same layout.
	h2, err := ReadHeader(data)
	if err != nil {
		t.Fatal(err)
	}
	l2, err := h2.Layout()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(l, l2); diff != "" {
		t.Errorf("layout not reproducible (-first +second):\n%s", diff)
	}
}

func TestLayoutRejectsBadOffsets(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(h *Header)
	}{
		{"non-monotonic", func(h *Header) { h.SectionOffsets[SectionROM] = 38 }},
		{"data before rom", func(h *Header) { h.SectionOffsets[SectionData] = 20 }},
		{"inside header", func(h *Header) { h.SectionOffsets[SectionImportTable] = 10 }},
		{"beyond size", func(h *Header) { h.SectionOffsets[SectionHeap] = 141 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := validHeader()
			tt.mutate(&h)
			if _, err := h.Layout(); !errors.Is(err, ErrCorruptHeader) {
				t.Fatalf("Layout: expected ErrCorruptHeader, got %v", err)
			}
			if _, err := Open(sealedHeader(t, h), DefaultEngine()); !errors.Is(err, ErrCorruptHeader) {
				t.Fatalf("Open: expected ErrCorruptHeader, got %v", err)
			}
		})
	}
}

func TestSectionNames(t *testing.T) {
	if SectionGCRoots.String() != "gc-roots" {
		t.Errorf("String = %q", SectionGCRoots.String())
	}
	if Section(12).String() != "section(12)" {
		t.Errorf("String = %q", Section(12).String())
	}
}
