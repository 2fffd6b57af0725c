package snapshot

import "fmt"

// ---------------------------------------------------------------------------
// Mapped Pointers
// ---------------------------------------------------------------------------

// MappedPtr is a 16-bit reference into either ROM or RAM. It carries no tag:
// the space is determined by comparing it against the DATA section start
// (the boundary). Below the boundary it is a byte offset into the snapshot
// itself; at or above it, it is boundary + offset into the RAM block that
// holds DATA followed by HEAP.
type MappedPtr uint16

// Space says which memory an Address refers to.
type Space uint8

const (
	SpaceROM Space = iota
	SpaceRAM
)

func (s Space) String() string {
	switch s {
	case SpaceROM:
		return "rom"
	case SpaceRAM:
		return "ram"
	default:
		return fmt.Sprintf("space(%d)", uint8(s))
	}
}

// Address is a resolved mapped pointer: an offset into the snapshot bytes
// (ROM) or into the VM's RAM block.
type Address struct {
	Space  Space
	Offset uint16
}

func (a Address) String() string {
	return fmt.Sprintf("%s+0x%04x", a.Space, a.Offset)
}

// Encode maps an address to its pointer representation for the given
// boundary.
func Encode(a Address, boundary MappedPtr) (MappedPtr, error) {
	switch a.Space {
	case SpaceROM:
		if a.Offset >= uint16(boundary) {
			return 0, fmt.Errorf("%w: ROM offset 0x%04x not below boundary 0x%04x", ErrPointerRange, a.Offset, boundary)
		}
		return MappedPtr(a.Offset), nil
	case SpaceRAM:
		p := int(boundary) + int(a.Offset)
		if p > MaxSnapshotSize {
			return 0, fmt.Errorf("%w: RAM offset 0x%04x past 16-bit limit with boundary 0x%04x", ErrPointerRange, a.Offset, boundary)
		}
		return MappedPtr(p), nil
	default:
		return 0, fmt.Errorf("%w: unknown space %s", ErrPointerRange, a.Space)
	}
}

// Decode resolves a mapped pointer against a boundary.
func Decode(p MappedPtr, boundary MappedPtr) Address {
	if p < boundary {
		return Address{Space: SpaceROM, Offset: uint16(p)}
	}
	return Address{Space: SpaceRAM, Offset: uint16(p - boundary)}
}

// ---------------------------------------------------------------------------
// Memory: the pointer resolver
// ---------------------------------------------------------------------------

// Memory binds a boundary to concrete ROM and RAM bytes. ROM is the whole
// snapshot image (ROM pointers are offsets from its start); RAM is the
// block holding DATA followed by HEAP. Each live VM has its own Memory;
// the boundary is never global state.
type Memory struct {
	ROM      []byte
	RAM      []byte
	Boundary MappedPtr
}

// Resolve decodes p against the memory's boundary.
func (m *Memory) Resolve(p MappedPtr) Address {
	return Decode(p, m.Boundary)
}

// Bytes returns n bytes starting at p. Slices into ROM must not be
// written to.
func (m *Memory) Bytes(p MappedPtr, n int) ([]byte, error) {
	a := m.Resolve(p)
	mem := m.ROM
	limit := int(m.Boundary)
	if a.Space == SpaceRAM {
		mem = m.RAM
		limit = len(m.RAM)
	}
	if limit > len(mem) {
		limit = len(mem)
	}
	end := int(a.Offset) + n
	if n < 0 || end > limit {
		return nil, fmt.Errorf("%w: %s length %d", ErrPointerRange, a, n)
	}
	return mem[a.Offset:end:end], nil
}

// Read16 reads the little-endian word at p.
func (m *Memory) Read16(p MappedPtr) (uint16, error) {
	b, err := m.Bytes(p, 2)
	if err != nil {
		return 0, err
	}
	return readUint16(b, 0), nil
}

// Write16 writes a little-endian word at p. Only RAM is writable.
func (m *Memory) Write16(p MappedPtr, v uint16) error {
	if a := m.Resolve(p); a.Space != SpaceRAM {
		return fmt.Errorf("%w: %s", ErrWriteToROM, a)
	}
	b, err := m.Bytes(p, 2)
	if err != nil {
		return err
	}
	writeUint16(b, 0, v)
	return nil
}
