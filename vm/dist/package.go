// Package dist implements the content-addressed snapshot distribution
// protocol. A host and a device exchange snapshots as self-describing
// packages, addressed by the BLAKE3 hash of the raw snapshot and encoded
// as canonical CBOR.
package dist

// Compression identifies how a package payload is encoded.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionZstd Compression = 1
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	}
	return "unknown"
}

// HashVersion identifies the hash function used for package addresses.
const HashVersion byte = 1 // BLAKE3-256

// Package is the unit of snapshot distribution. It carries the snapshot
// plus enough header metadata for a receiver to decide whether it can run
// it before unpacking.
type Package struct {
	Hash          [32]byte    `cbor:"1,keyasint"` // of the uncompressed snapshot
	Compression   Compression `cbor:"2,keyasint"`
	Payload       []byte      `cbor:"3,keyasint"`
	Size          uint16      `cbor:"4,keyasint"` // uncompressed snapshot size
	EngineVersion uint8       `cbor:"5,keyasint"`
	Features      []string    `cbor:"6,keyasint,omitempty"` // required feature names
	Exports       []uint16    `cbor:"7,keyasint,omitempty"` // export IDs
	Imports       []uint16    `cbor:"8,keyasint,omitempty"` // host function IDs
	ROMHash       [32]byte    `cbor:"9,keyasint"`
}

// SyncAnnouncement is sent by a peer to advertise the snapshots it has.
type SyncAnnouncement struct {
	AllHashes   [][32]byte          `cbor:"1,keyasint"`
	Capability  *CapabilityManifest `cbor:"2,keyasint,omitempty"`
	HashVersion byte                `cbor:"3,keyasint"`
}

// SyncRequest is the have/want negotiation message.
type SyncRequest struct {
	Have [][32]byte `cbor:"1,keyasint"`
	Want [][32]byte `cbor:"2,keyasint"`
}

// SyncResponse carries the requested packages.
type SyncResponse struct {
	Packages []Package `cbor:"1,keyasint"`
}

// CapabilityManifest declares the feature flags a set of snapshots needs.
type CapabilityManifest struct {
	Required []string `cbor:"1,keyasint"` // e.g. "float"
}

// AnnounceStatus indicates the result of an announcement.
type AnnounceStatus uint8

const (
	AnnounceAccepted    AnnounceStatus = 0
	AnnounceRejected    AnnounceStatus = 1
	AnnounceAlreadyHave AnnounceStatus = 2
)

// AnnounceResponse is the reply to a SyncAnnouncement.
type AnnounceResponse struct {
	Status       AnnounceStatus `cbor:"1,keyasint"`
	Want         [][32]byte     `cbor:"2,keyasint,omitempty"`
	RejectReason string         `cbor:"3,keyasint,omitempty"`
}

// TransferResult summarizes the outcome of a package transfer.
type TransferResult struct {
	Accepted     int        `cbor:"1,keyasint"`
	Rejected     int        `cbor:"2,keyasint"`
	FailedHashes [][32]byte `cbor:"3,keyasint,omitempty"`
}
