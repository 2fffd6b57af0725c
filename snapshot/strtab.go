package snapshot

import (
	"fmt"
	"iter"
	"sort"
	"strings"
)

// StringTable is the sorted table of unique strings in ROM. Equal strings
// share one allocation, so property keys compare by pointer.
type StringTable struct {
	b   []byte
	mem *Memory
}

func newStringTable(b []byte, mem *Memory) (StringTable, error) {
	if len(b)%2 != 0 {
		return StringTable{}, fmt.Errorf("%w: string table is %d bytes", ErrCorruptSection, len(b))
	}
	t := StringTable{b: b, mem: mem}
	var prev string
	for i := range t.Len() {
		p := t.Ptr(i)
		if mem.Resolve(p).Space != SpaceROM {
			return StringTable{}, fmt.Errorf("%w: string %d at 0x%04x is not in ROM", ErrCorruptSection, i, uint16(p))
		}
		s, tc, err := mem.ReadString(p)
		if err != nil {
			return StringTable{}, fmt.Errorf("string %d: %w", i, err)
		}
		if tc != TypeUniqueString {
			return StringTable{}, fmt.Errorf("%w: string %d at 0x%04x is not a unique string", ErrCorruptSection, i, uint16(p))
		}
		if i > 0 && s <= prev {
			return StringTable{}, fmt.Errorf("%w: string %d %q does not sort after %q", ErrCorruptSection, i, s, prev)
		}
		prev = s
	}
	return t, nil
}

// Len returns the number of strings.
func (t StringTable) Len() int { return len(t.b) / 2 }

// Ptr returns the mapped pointer of entry i.
func (t StringTable) Ptr(i int) MappedPtr { return MappedPtr(readUint16(t.b, 2*i)) }

// At returns entry i.
func (t StringTable) At(i int) (string, MappedPtr) {
	p := t.Ptr(i)
	// Entries were validated by Open.
	s, _, _ := t.mem.ReadString(p)
	return s, p
}

// Lookup binary-searches the table for s.
func (t StringTable) Lookup(s string) (MappedPtr, error) {
	i := sort.Search(t.Len(), func(i int) bool {
		v, _ := t.At(i)
		return strings.Compare(v, s) >= 0
	})
	if i < t.Len() {
		if v, p := t.At(i); v == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrStringNotFound, s)
}

// All yields (string, pointer) pairs in ascending order.
func (t StringTable) All() iter.Seq2[string, MappedPtr] {
	return func(yield func(string, MappedPtr) bool) {
		for i := range t.Len() {
			if !yield(t.At(i)) {
				return
			}
		}
	}
}
