package snapshot

import "fmt"

// Value is a VM value as stored in globals, exports and DATA slots. Its
// interpretation belongs to the interpreter; this package only needs to
// tell pointers from a handful of well-known odd constants.
type Value uint16

const (
	ValueUndefined Value = 0x45
	ValueNull      Value = 0x49
)

// IsPointer reports whether v could be a mapped pointer. Allocations are
// 2-byte aligned, so every pointer is even.
func (v Value) IsPointer() bool {
	return v&1 == 0 && v != 0
}

func (v Value) String() string {
	switch v {
	case ValueUndefined:
		return "undefined"
	case ValueNull:
		return "null"
	}
	return fmt.Sprintf("0x%04x", uint16(v))
}

// ---------------------------------------------------------------------------
// Allocation headers
// ---------------------------------------------------------------------------

// TypeCode is the high nibble of an allocation header word.
type TypeCode uint8

const (
	TypeNone         TypeCode = 0x0
	TypeString       TypeCode = 0x3
	TypeUniqueString TypeCode = 0x4
)

// AllocationHeaderSize is the size of the header word preceding every
// allocation payload.
const AllocationHeaderSize = 2

// MaxAllocationSize is the largest payload an allocation header can
// describe.
const MaxAllocationSize = 0xFFF

// AllocationHeader packs a payload size and type code into a header word.
func AllocationHeader(size int, tc TypeCode) (uint16, error) {
	if size < 0 || size > MaxAllocationSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrAllocationTooLarge, size)
	}
	return uint16(tc)<<12 | uint16(size), nil
}

// SplitAllocationHeader unpacks a header word.
func SplitAllocationHeader(w uint16) (size int, tc TypeCode) {
	return int(w & MaxAllocationSize), TypeCode(w >> 12)
}

// ReadAllocation returns the header of the allocation whose payload starts
// at p, along with the payload bytes.
func (m *Memory) ReadAllocation(p MappedPtr) (TypeCode, []byte, error) {
	if p < AllocationHeaderSize {
		return 0, nil, fmt.Errorf("%w: allocation at 0x%04x has no room for a header", ErrPointerRange, uint16(p))
	}
	w, err := m.Read16(p - AllocationHeaderSize)
	if err != nil {
		return 0, nil, err
	}
	size, tc := SplitAllocationHeader(w)
	payload, err := m.Bytes(p, size)
	if err != nil {
		return 0, nil, err
	}
	return tc, payload, nil
}

// ReadString decodes the string allocation at p. The payload is UTF-8
// followed by a single NUL.
func (m *Memory) ReadString(p MappedPtr) (string, TypeCode, error) {
	tc, payload, err := m.ReadAllocation(p)
	if err != nil {
		return "", 0, err
	}
	if tc != TypeString && tc != TypeUniqueString {
		return "", tc, fmt.Errorf("%w: allocation at 0x%04x has type 0x%x, not a string", ErrCorruptSection, uint16(p), uint8(tc))
	}
	if len(payload) == 0 || payload[len(payload)-1] != 0 {
		return "", tc, fmt.Errorf("%w: string at 0x%04x is not NUL-terminated", ErrCorruptSection, uint16(p))
	}
	return string(payload[:len(payload)-1]), tc, nil
}

// EncodeString returns a complete string allocation: header word, UTF-8
// bytes and NUL terminator.
func EncodeString(s string, tc TypeCode) ([]byte, error) {
	w, err := AllocationHeader(len(s)+1, tc)
	if err != nil {
		return nil, err
	}
	b := make([]byte, AllocationHeaderSize+len(s)+1)
	writeUint16(b, 0, w)
	copy(b[AllocationHeaderSize:], s)
	return b, nil
}
