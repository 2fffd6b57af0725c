// Package snapshot reads and writes bytecode snapshots: the compact,
// relocatable image of a VM's compiled code, globals, heap and metadata.
//
// A snapshot is a fixed header followed by eight sections in a fixed order:
//
//	import table | export table | short-call table | gc roots |
//	string table | ROM | DATA | HEAP
//
// Everything before DATA is read-only for the lifetime of a VM and may be
// shared between VMs restored from the same snapshot. DATA and HEAP are
// copied into RAM on restore. Pointers are 16-bit mapped pointers: values
// below the start of DATA address the snapshot itself, values at or above
// it address the RAM copy. No tag bit is needed, which is why DATA must
// immediately precede HEAP and HEAP must come last.
//
// Open validates a snapshot and returns an Image with read-only views of
// its tables. Builder produces snapshots.
package snapshot
