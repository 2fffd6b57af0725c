package snapshot

import (
	"fmt"
	"iter"
)

// GCRoots is the list of DATA offsets that hold pointers into HEAP. The
// collector does not trace DATA, so every such slot must be listed here
// for the object it references to survive a collection.
type GCRoots struct {
	b []byte
}

func newGCRoots(b []byte, dataSize uint16) (GCRoots, error) {
	if len(b)%2 != 0 {
		return GCRoots{}, fmt.Errorf("%w: gc-roots table is %d bytes", ErrCorruptSection, len(b))
	}
	r := GCRoots{b: b}
	for i := range r.Len() {
		off := r.At(i)
		if off&1 != 0 || int(off)+2 > int(dataSize) {
			return GCRoots{}, fmt.Errorf("%w: gc root %d at DATA offset %d (DATA is %d bytes)",
				ErrCorruptSection, i, off, dataSize)
		}
	}
	return r, nil
}

// Len returns the number of roots.
func (r GCRoots) Len() int { return len(r.b) / 2 }

// At returns the DATA byte offset of root i.
func (r GCRoots) At(i int) uint16 { return readUint16(r.b, 2*i) }

// All yields root offsets in table order. The sequence is the same on
// every call.
func (r GCRoots) All() iter.Seq[uint16] {
	return func(yield func(uint16) bool) {
		for i := range r.Len() {
			if !yield(r.At(i)) {
				return
			}
		}
	}
}

// Contains reports whether off is listed as a root.
func (r GCRoots) Contains(off uint16) bool {
	for o := range r.All() {
		if o == off {
			return true
		}
	}
	return false
}
