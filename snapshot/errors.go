package snapshot

import "errors"

// ---------------------------------------------------------------------------
// Snapshot Error Types
// ---------------------------------------------------------------------------

// Restore-time errors. All of them are terminal for the restore attempt.
var (
	ErrCorruptHeader      = errors.New("corrupt snapshot header")
	ErrUnsupportedVersion = errors.New("unsupported bytecode version")
	ErrEngineTooOld       = errors.New("engine too old for snapshot")
	ErrChecksumMismatch   = errors.New("snapshot checksum mismatch")
	ErrUnsupportedFeature = errors.New("snapshot requires unsupported feature")
	ErrCorruptSection     = errors.New("corrupt snapshot section")
	ErrUnresolvedImport   = errors.New("unresolved import")
)

// Query-time errors against a restored VM.
var (
	ErrUnknownExport        = errors.New("unknown export")
	ErrNoMutableStringTable = errors.New("no mutable string table")
	ErrStringNotFound       = errors.New("string not found")
	ErrShortCallIndex       = errors.New("short-call index out of range")
)

// Memory and build errors.
var (
	ErrPointerRange       = errors.New("mapped pointer out of range")
	ErrWriteToROM         = errors.New("attempt to write to ROM")
	ErrSnapshotTooLarge   = errors.New("snapshot does not fit in 64 KiB")
	ErrAllocationTooLarge = errors.New("allocation too large")
	ErrMissingRoot        = errors.New("DATA slot points into HEAP but is not a GC root")
)
