// Package vm restores bytecode snapshots into live VM state.
//
// This package contains:
//   - Restore: snapshot validation, import linking and the RAM copy
//   - Globals, builtins, exports and short-call lookup on a live VM
//   - Runtime string interning backed by the HEAP unique-string list
//   - The root enumeration and memory resolver a garbage collector needs
//   - Capture, which re-encodes a live VM as a new snapshot
//
// The interpreter loop and the collector's tracing algorithm live outside
// this package.
package vm
