package snapshot

import "fmt"

// RootIssueKind classifies a problem found by CheckRoots.
type RootIssueKind uint8

const (
	// MissingRoot is a DATA slot that points into HEAP but is not listed
	// in the GC roots. The collector will not see the reference.
	MissingRoot RootIssueKind = iota
	// StaleRoot is a listed root whose value is neither a HEAP pointer nor
	// null or undefined.
	StaleRoot
)

func (k RootIssueKind) String() string {
	switch k {
	case MissingRoot:
		return "missing-root"
	case StaleRoot:
		return "stale-root"
	}
	return fmt.Sprintf("issue(%d)", uint8(k))
}

// RootIssue reports one suspicious DATA slot.
type RootIssue struct {
	Kind   RootIssueKind
	Offset uint16 // DATA byte offset
	Value  Value
}

func (is RootIssue) String() string {
	return fmt.Sprintf("%s at DATA+%d (%s)", is.Kind, is.Offset, is.Value)
}

// CheckRoots cross-checks the GC roots table against the DATA section of
// an image. Global variables are skipped since the collector scans them
// directly. The check is heuristic: raw data that happens to look like a
// HEAP pointer is reported too.
func CheckRoots(img *Image) []RootIssue {
	l := img.Layout()
	mem := &Memory{
		ROM:      img.Bytes(),
		RAM:      img.Bytes()[l.Boundary():],
		Boundary: l.Boundary(),
	}
	return CheckMemoryRoots(mem, int(l.Range(SectionData).Size), int(img.Header().GlobalVariableCount), img.GCRoots())
}

// CheckMemoryRoots runs the same check against any RAM block laid out as
// DATA followed by HEAP, such as a live VM's memory.
func CheckMemoryRoots(mem *Memory, dataSize, globals int, roots GCRoots) []RootIssue {
	heapStart := int(mem.Boundary) + dataSize
	heapEnd := int(mem.Boundary) + len(mem.RAM)
	inHeap := func(v Value) bool {
		return v.IsPointer() && int(v) >= heapStart && int(v) < heapEnd
	}

	var issues []RootIssue
	for off := 2 * globals; off+2 <= dataSize; off += 2 {
		v := Value(readUint16(mem.RAM, off))
		if inHeap(v) && !roots.Contains(uint16(off)) {
			issues = append(issues, RootIssue{Kind: MissingRoot, Offset: uint16(off), Value: v})
		}
	}
	for off := range roots.All() {
		if int(off)+2 > dataSize {
			continue
		}
		v := Value(readUint16(mem.RAM, int(off)))
		if !inHeap(v) && v != ValueNull && v != ValueUndefined {
			issues = append(issues, RootIssue{Kind: StaleRoot, Offset: off, Value: v})
		}
	}
	return issues
}
