package snapshot

import (
	"fmt"
	"iter"
)

// MaxShortCalls is the capacity of the short-call table.
const MaxShortCalls = 16

// shortCallEntrySize is functionL, functionH, argCount packed with no
// alignment.
const shortCallEntrySize = 3

// CalleeKind distinguishes host imports from functions in ROM.
type CalleeKind uint8

const (
	CalleeLocal CalleeKind = iota
	CalleeImport
)

// Callee is the decoded target of a short call. Index is set for imports,
// Offset for local functions.
type Callee struct {
	Kind   CalleeKind
	Index  int
	Offset uint16
}

func (c Callee) String() string {
	if c.Kind == CalleeImport {
		return fmt.Sprintf("import[%d]", c.Index)
	}
	return fmt.Sprintf("rom+0x%04x", c.Offset)
}

// DecodeCallee decodes a stored function reference. Local functions live
// at even ROM offsets, which leaves the low bit free to mark an import
// index.
func DecodeCallee(ref uint16) Callee {
	if ref&1 != 0 {
		return Callee{Kind: CalleeImport, Index: int(ref >> 1)}
	}
	return Callee{Kind: CalleeLocal, Offset: ref}
}

// EncodeCallee is the inverse of DecodeCallee.
func EncodeCallee(c Callee) (uint16, error) {
	switch c.Kind {
	case CalleeImport:
		if c.Index < 0 || c.Index > 0x7FFF {
			return 0, fmt.Errorf("import index %d out of range", c.Index)
		}
		return uint16(c.Index)<<1 | 1, nil
	case CalleeLocal:
		if c.Offset&1 != 0 {
			return 0, fmt.Errorf("function offset 0x%04x is odd", c.Offset)
		}
		return c.Offset, nil
	}
	return 0, fmt.Errorf("unknown callee kind %d", c.Kind)
}

// ShortCall is one short-call table entry.
type ShortCall struct {
	Callee   Callee
	ArgCount uint8
}

// ShortCallTable is a bounded read-only view of the short-call section.
// A missing entry is never an error for the program: callers fall back to
// the general call encoding.
type ShortCallTable struct {
	b []byte
}

func newShortCallTable(b []byte, imports ImportTable, rom Range) (ShortCallTable, error) {
	n := len(b) / shortCallEntrySize
	if pad := len(b) % shortCallEntrySize; pad > 1 {
		return ShortCallTable{}, fmt.Errorf("%w: short-call table is %d bytes", ErrCorruptSection, len(b))
	}
	if n > MaxShortCalls {
		return ShortCallTable{}, fmt.Errorf("%w: %d short-call entries, at most %d",
			ErrCorruptSection, n, MaxShortCalls)
	}
	t := ShortCallTable{b: b[:n*shortCallEntrySize]}
	for i, sc := range t.All() {
		switch c := sc.Callee; c.Kind {
		case CalleeImport:
			if c.Index >= imports.Len() {
				return ShortCallTable{}, fmt.Errorf("%w: short call %d names import %d, only %d imports",
					ErrCorruptSection, i, c.Index, imports.Len())
			}
		case CalleeLocal:
			if !rom.Contains(int(c.Offset)) {
				return ShortCallTable{}, fmt.Errorf("%w: short call %d targets 0x%04x outside ROM",
					ErrCorruptSection, i, c.Offset)
			}
		}
	}
	return t, nil
}

// Len returns the number of entries.
func (t ShortCallTable) Len() int { return len(t.b) / shortCallEntrySize }

// Resolve returns entry i, or ErrShortCallIndex when the table has no
// such entry.
func (t ShortCallTable) Resolve(i int) (ShortCall, error) {
	if i < 0 || i >= t.Len() {
		return ShortCall{}, fmt.Errorf("%w: %d of %d", ErrShortCallIndex, i, t.Len())
	}
	off := i * shortCallEntrySize
	ref := uint16(t.b[off]) | uint16(t.b[off+1])<<8
	return ShortCall{Callee: DecodeCallee(ref), ArgCount: t.b[off+2]}, nil
}

// All yields every entry with its index.
func (t ShortCallTable) All() iter.Seq2[int, ShortCall] {
	return func(yield func(int, ShortCall) bool) {
		for i := range t.Len() {
			sc, _ := t.Resolve(i)
			if !yield(i, sc) {
				return
			}
		}
	}
}
