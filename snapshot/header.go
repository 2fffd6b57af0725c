package snapshot

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Header Format Constants
// ---------------------------------------------------------------------------

// BytecodeVersion is the only snapshot format version this package reads.
// v1: flat header with per-section offset/size pairs
// v2: ordered section offset table, builtin global indices
const BytecodeVersion uint8 = 2

// HeaderSize is the size of the fixed header in bytes.
//
//	+0x00: bytecodeVersion        u8
//	+0x01: headerSize             u8
//	+0x02: requiredEngineVersion  u8
//	+0x03: globalVariableCount    u8
//	+0x04: bytecodeSize           u16 (including header)
//	+0x06: crc                    u16 (CRC-16/CCITT of bytes 0x08..bytecodeSize)
//	+0x08: requiredFeatureFlags   u32
//	+0x0c: sectionOffsets         u16[SectionCount]
//	+0x1c: builtinGlobalIndices   u8[BuiltinCount]
const HeaderSize = 30

const (
	offBytecodeVersion       = 0x00
	offHeaderSize            = 0x01
	offRequiredEngineVersion = 0x02
	offGlobalVariableCount   = 0x03
	offBytecodeSize          = 0x04
	offCRC                   = 0x06
	offRequiredFeatureFlags  = 0x08
	offSectionOffsets        = 0x0c
	offBuiltinGlobalIndices  = offSectionOffsets + 2*int(SectionCount)
)

// MaxSnapshotSize is the largest snapshot addressable by a 16-bit mapped
// pointer.
const MaxSnapshotSize = 0xFFFF

// EngineVersion is the version of this engine implementation. Snapshots
// whose requiredEngineVersion exceeds it are rejected.
const EngineVersion uint8 = 1

// ---------------------------------------------------------------------------
// Feature Flags
// ---------------------------------------------------------------------------

// FeatureFlags is a bitset of optional engine capabilities.
type FeatureFlags uint32

const (
	FeatureFloat FeatureFlags = 1 << 0 // 64-bit float support
)

var featureNames = map[FeatureFlags]string{
	FeatureFloat: "float",
}

// ParseFeature returns the flag with the given name.
func ParseFeature(name string) (FeatureFlags, error) {
	for f, n := range featureNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown feature %q", name)
}

// ParseFeatures ORs together the named flags.
func ParseFeatures(names []string) (FeatureFlags, error) {
	var flags FeatureFlags
	for _, n := range names {
		f, err := ParseFeature(n)
		if err != nil {
			return 0, err
		}
		flags |= f
	}
	return flags, nil
}

// Names returns the names of the set flags, sorted. Bits without a name
// are rendered as "bit<N>".
func (f FeatureFlags) Names() []string {
	var names []string
	for rest := uint32(f); rest != 0; rest &= rest - 1 {
		bit := FeatureFlags(1) << bits.TrailingZeros32(rest)
		if n, ok := featureNames[bit]; ok {
			names = append(names, n)
		} else {
			names = append(names, fmt.Sprintf("bit%d", bits.TrailingZeros32(rest)))
		}
	}
	sort.Strings(names)
	return names
}

func (f FeatureFlags) String() string {
	if f == 0 {
		return "none"
	}
	return strings.Join(f.Names(), ",")
}

// Engine describes the capabilities of the engine a snapshot is restored
// into.
type Engine struct {
	Version  uint8
	Features FeatureFlags
}

// DefaultEngine is this implementation with every feature it knows about.
func DefaultEngine() Engine {
	return Engine{Version: EngineVersion, Features: FeatureFloat}
}

// PermissiveEngine accepts any engine version and feature set. It is used
// by tooling that inspects, stores or transports snapshots without running
// them.
func PermissiveEngine() Engine {
	return Engine{Version: 0xFF, Features: ^FeatureFlags(0)}
}

// ---------------------------------------------------------------------------
// Header
// ---------------------------------------------------------------------------

// Header holds the decoded fixed header of a snapshot.
type Header struct {
	BytecodeVersion       uint8
	HeaderSize            uint8
	RequiredEngineVersion uint8
	GlobalVariableCount   uint8
	BytecodeSize          uint16
	CRC                   uint16
	RequiredFeatureFlags  FeatureFlags
	SectionOffsets        [SectionCount]uint16
	BuiltinGlobalIndices  [BuiltinCount]uint8
}

// ReadHeader reads the raw header fields without validating them. It only
// fails when data is too short to hold a header.
func ReadHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrCorruptHeader, len(data), HeaderSize)
	}
	h := &Header{
		BytecodeVersion:       data[offBytecodeVersion],
		HeaderSize:            data[offHeaderSize],
		RequiredEngineVersion: data[offRequiredEngineVersion],
		GlobalVariableCount:   data[offGlobalVariableCount],
		BytecodeSize:          readUint16(data, offBytecodeSize),
		CRC:                   readUint16(data, offCRC),
		RequiredFeatureFlags:  FeatureFlags(binary.LittleEndian.Uint32(data[offRequiredFeatureFlags:])),
	}
	for i := range h.SectionOffsets {
		h.SectionOffsets[i] = readUint16(data, offSectionOffsets+2*i)
	}
	copy(h.BuiltinGlobalIndices[:], data[offBuiltinGlobalIndices:offBuiltinGlobalIndices+int(BuiltinCount)])
	return h, nil
}

// DecodeHeader reads and validates the header of a snapshot. The checks
// run in a fixed order and all of them must pass before any section is
// interpreted:
//
//  1. bytecode version (ErrUnsupportedVersion)
//  2. header size and declared bytecode size (ErrCorruptHeader)
//  3. CRC over everything after the CRC field (ErrChecksumMismatch)
//  4. required feature flags (ErrUnsupportedFeature)
//  5. required engine version (ErrEngineTooOld)
func DecodeHeader(data []byte, eng Engine) (*Header, error) {
	if len(data) < offHeaderSize+1 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptHeader, len(data))
	}
	if v := data[offBytecodeVersion]; v != BytecodeVersion {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrUnsupportedVersion, BytecodeVersion, v)
	}
	if hs := int(data[offHeaderSize]); hs < HeaderSize {
		return nil, fmt.Errorf("%w: header size %d, expected at least %d", ErrCorruptHeader, hs, HeaderSize)
	}

	h, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}
	if int(h.HeaderSize) > len(data) {
		return nil, fmt.Errorf("%w: header size %d exceeds %d available bytes", ErrCorruptHeader, h.HeaderSize, len(data))
	}
	size := int(h.BytecodeSize)
	if size < int(h.HeaderSize) || size > len(data) {
		return nil, fmt.Errorf("%w: bytecode size %d, header size %d, %d bytes available",
			ErrCorruptHeader, size, h.HeaderSize, len(data))
	}

	if got := Checksum(data[crcStart:size]); got != h.CRC {
		return nil, fmt.Errorf("%w: stored 0x%04x, computed 0x%04x", ErrChecksumMismatch, h.CRC, got)
	}

	if missing := h.RequiredFeatureFlags &^ eng.Features; missing != 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFeature, missing)
	}
	if h.RequiredEngineVersion > eng.Version {
		return nil, fmt.Errorf("%w: snapshot requires engine %d, have %d",
			ErrEngineTooOld, h.RequiredEngineVersion, eng.Version)
	}
	return h, nil
}

// Encode writes the fixed header fields into the first HeaderSize bytes of
// dst. Bytes of an extended header beyond HeaderSize are left untouched.
// The CRC field is written as-is; call Seal once the body is in place.
func (h *Header) Encode(dst []byte) {
	dst[offBytecodeVersion] = h.BytecodeVersion
	dst[offHeaderSize] = h.HeaderSize
	dst[offRequiredEngineVersion] = h.RequiredEngineVersion
	dst[offGlobalVariableCount] = h.GlobalVariableCount
	writeUint16(dst, offBytecodeSize, h.BytecodeSize)
	writeUint16(dst, offCRC, h.CRC)
	binary.LittleEndian.PutUint32(dst[offRequiredFeatureFlags:], uint32(h.RequiredFeatureFlags))
	for i, off := range h.SectionOffsets {
		writeUint16(dst, offSectionOffsets+2*i, off)
	}
	copy(dst[offBuiltinGlobalIndices:], h.BuiltinGlobalIndices[:])
}

// ---------------------------------------------------------------------------
// Little-endian helpers
// ---------------------------------------------------------------------------

func readUint16(b []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(b[off:])
}

func writeUint16(b []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(b[off:], v)
}
