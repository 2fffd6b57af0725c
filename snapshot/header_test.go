package snapshot

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

// buildSmall returns a snapshot with a little of everything in it.
func buildSmall(t *testing.T) []byte {
	t.Helper()
	b := NewBuilder()
	b.AddGlobal(ValueUndefined)
	b.AddGlobal(ValueNull)
	b.AddImport(7)
	fn := b.ROM([]byte{0x01, 0x02, 0x03, 0x04})
	b.AddExportRef(1, fn)
	b.AddShortCallImport(0, 2)
	b.AddShortCallLocal(fn, 0)
	b.AddString("length")
	b.AddString("push")
	slot := b.Data([]byte{0, 0})
	obj, err := b.HeapAlloc(TypeNone, []byte{42, 0})
	if err != nil {
		t.Fatalf("HeapAlloc: %v", err)
	}
	b.PutRef(slot, obj)
	b.AddGCRoot(slot)
	b.BindBuiltin(BuiltinArrayProto, 1)
	data, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return data
}

// ---------------------------------------------------------------------------
// Header Encoding Tests
// ---------------------------------------------------------------------------

func TestHeaderEncodeLayout(t *testing.T) {
	h := Header{
		BytecodeVersion:       2,
		HeaderSize:            30,
		RequiredEngineVersion: 1,
		GlobalVariableCount:   2,
		BytecodeSize:          0x0140,
		CRC:                   0xBEEF,
		RequiredFeatureFlags:  FeatureFloat,
		SectionOffsets:        [SectionCount]uint16{30, 32, 36, 40, 42, 44, 100, 120},
		BuiltinGlobalIndices:  [BuiltinCount]uint8{0, NoBuiltinSlot},
	}
	got := make([]byte, HeaderSize)
	h.Encode(got)

	want := []byte{
		0x02,       // bytecodeVersion
		0x1e,       // headerSize
		0x01,       // requiredEngineVersion
		0x02,       // globalVariableCount
		0x40, 0x01, // bytecodeSize
		0xef, 0xbe, // crc
		0x01, 0x00, 0x00, 0x00, // requiredFeatureFlags
		0x1e, 0x00, // import table
		0x20, 0x00, // export table
		0x24, 0x00, // short-call table
		0x28, 0x00, // gc roots
		0x2a, 0x00, // string table
		0x2c, 0x00, // rom
		0x64, 0x00, // data
		0x78, 0x00, // heap
		0x00, 0xff, // builtin global indices
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("encoded header mismatch (-want +got):\n%s", diff)
	}

	back, err := ReadHeader(got)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if diff := cmp.Diff(h, *back); diff != "" {
		t.Errorf("header round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestChecksumKnownVector(t *testing.T) {
	if got := Checksum([]byte("123456789")); got != 0x29B1 {
		t.Errorf("Checksum = 0x%04x, want 0x29b1", got)
	}
}

// ---------------------------------------------------------------------------
// Header Validation Tests
// ---------------------------------------------------------------------------

func TestDecodeHeaderValid(t *testing.T) {
	data := buildSmall(t)
	h, err := DecodeHeader(data, DefaultEngine())
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if h.BytecodeVersion != BytecodeVersion {
		t.Errorf("BytecodeVersion = %d", h.BytecodeVersion)
	}
	if int(h.BytecodeSize) != len(data) {
		t.Errorf("BytecodeSize = %d, want %d", h.BytecodeSize, len(data))
	}
	if h.GlobalVariableCount != 2 {
		t.Errorf("GlobalVariableCount = %d, want 2", h.GlobalVariableCount)
	}
}

func TestDecodeHeaderTooShort(t *testing.T) {
	for _, n := range []int{0, 1} {
		_, err := DecodeHeader(make([]byte, n), DefaultEngine())
		if !errors.Is(err, ErrCorruptHeader) {
			t.Errorf("%d bytes: expected ErrCorruptHeader, got %v", n, err)
		}
	}
	data := buildSmall(t)
	if _, err := DecodeHeader(data[:HeaderSize-1], DefaultEngine()); !errors.Is(err, ErrCorruptHeader) {
		t.Errorf("truncated header: expected ErrCorruptHeader, got %v", err)
	}
}

func TestDecodeHeaderVersionFirst(t *testing.T) {
	data := buildSmall(t)
	data[offBytecodeVersion] = 9
	// Garbage everywhere else must not matter: the version is checked first.
	for i := offHeaderSize; i < len(data); i++ {
		data[i] = 0xAA
	}
	_, err := DecodeHeader(data, DefaultEngine())
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
	if _, err := Open(data, DefaultEngine()); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("Open: expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestDecodeHeaderSmallHeaderSize(t *testing.T) {
	data := buildSmall(t)
	data[offHeaderSize] = HeaderSize - 2
	if _, err := DecodeHeader(data, DefaultEngine()); !errors.Is(err, ErrCorruptHeader) {
		t.Fatalf("expected ErrCorruptHeader, got %v", err)
	}
}

func TestDecodeHeaderBytecodeSize(t *testing.T) {
	data := buildSmall(t)

	longer := append(append([]byte(nil), data...), 0xFF, 0xFF, 0xFF)
	if _, err := Open(longer, DefaultEngine()); err != nil {
		t.Errorf("trailing padding should be ignored, got %v", err)
	}

	if _, err := DecodeHeader(data[:len(data)-1], DefaultEngine()); !errors.Is(err, ErrCorruptHeader) {
		t.Errorf("truncated body: expected ErrCorruptHeader, got %v", err)
	}

	small := append([]byte(nil), data...)
	writeUint16(small, offBytecodeSize, HeaderSize-1)
	if _, err := DecodeHeader(small, DefaultEngine()); !errors.Is(err, ErrCorruptHeader) {
		t.Errorf("size below header: expected ErrCorruptHeader, got %v", err)
	}
}

func TestDecodeHeaderSingleByteCorruption(t *testing.T) {
	data := buildSmall(t)
	for i := crcStart; i < len(data); i++ {
		corrupt := append([]byte(nil), data...)
		corrupt[i] ^= 0xFF
		_, err := Open(corrupt, DefaultEngine())
		if !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("byte %d flipped: expected ErrChecksumMismatch, got %v", i, err)
		}
	}
	for _, i := range []int{offCRC, offCRC + 1} {
		corrupt := append([]byte(nil), data...)
		corrupt[i] ^= 0x01
		if _, err := Open(corrupt, DefaultEngine()); !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("crc byte %d flipped: expected ErrChecksumMismatch, got %v", i, err)
		}
	}
}

// The checksum starts at the feature flags. The leading fields are guarded
// by structural checks instead.
func TestDecodeHeaderLeadingFieldsOutsideChecksum(t *testing.T) {
	data := buildSmall(t)

	older := append([]byte(nil), data...)
	older[offRequiredEngineVersion] = 0
	img, err := Open(older, DefaultEngine())
	if err != nil {
		t.Fatalf("engine version rewritten: %v", err)
	}
	if v := img.Header().RequiredEngineVersion; v != 0 {
		t.Errorf("RequiredEngineVersion = %d, want 0", v)
	}

	globals := append([]byte(nil), data...)
	globals[offGlobalVariableCount] = 0xFF
	_, err = Open(globals, DefaultEngine())
	if errors.Is(err, ErrChecksumMismatch) || !errors.Is(err, ErrCorruptSection) {
		t.Fatalf("global count rewritten: expected ErrCorruptSection, got %v", err)
	}
}

func TestDecodeHeaderFeatureAndEngine(t *testing.T) {
	b := NewBuilder()
	b.RequireFeatures(FeatureFlags(1 << 5))
	b.SetEngineVersion(EngineVersion + 1)
	data, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Features are checked before the engine version.
	_, err = DecodeHeader(data, DefaultEngine())
	if !errors.Is(err, ErrUnsupportedFeature) {
		t.Fatalf("expected ErrUnsupportedFeature, got %v", err)
	}

	eng := DefaultEngine()
	eng.Features |= 1 << 5
	if _, err := DecodeHeader(data, eng); !errors.Is(err, ErrEngineTooOld) {
		t.Fatalf("expected ErrEngineTooOld, got %v", err)
	}

	eng.Version = EngineVersion + 1
	if _, err := DecodeHeader(data, eng); err != nil {
		t.Fatalf("capable engine: %v", err)
	}
	if _, err := DecodeHeader(data, PermissiveEngine()); err != nil {
		t.Fatalf("permissive engine: %v", err)
	}
}

func TestDecodeHeaderExtendedHeader(t *testing.T) {
	data := buildSmall(t)
	h, err := ReadHeader(data)
	if err != nil {
		t.Fatal(err)
	}

	// Splice four extension bytes after the fixed header and shift every
	// section offset to match.
	const extra = 4
	ext := make([]byte, 0, len(data)+extra)
	ext = append(ext, data[:HeaderSize]...)
	ext = append(ext, 0xDE, 0xAD, 0xBE, 0xEF)
	ext = append(ext, data[HeaderSize:]...)
	h.HeaderSize += extra
	h.BytecodeSize += extra
	for i := range h.SectionOffsets {
		h.SectionOffsets[i] += extra
	}
	h.Encode(ext)
	if err := Seal(ext); err != nil {
		t.Fatal(err)
	}

	got, err := DecodeHeader(ext, DefaultEngine())
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if got.HeaderSize != HeaderSize+extra {
		t.Errorf("HeaderSize = %d", got.HeaderSize)
	}
	// Pointers move with the sections, so only the tables are checked.
	l, err := got.Layout()
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	if l.Range(SectionImportTable).Start != HeaderSize+extra {
		t.Errorf("import table at %d", l.Range(SectionImportTable).Start)
	}
}

// ---------------------------------------------------------------------------
// Feature Flags
// ---------------------------------------------------------------------------

func TestFeatureFlagNames(t *testing.T) {
	f, err := ParseFeatures([]string{"float"})
	if err != nil {
		t.Fatalf("ParseFeatures: %v", err)
	}
	if f != FeatureFloat {
		t.Errorf("ParseFeatures = %v", f)
	}
	if _, err := ParseFeature("bignum"); err == nil {
		t.Error("expected error for unknown feature")
	}
	if got := (FeatureFloat | 1<<3).String(); got != "bit3,float" {
		t.Errorf("String = %q", got)
	}
	if got := FeatureFlags(0).String(); got != "none" {
		t.Errorf("String = %q", got)
	}
}
