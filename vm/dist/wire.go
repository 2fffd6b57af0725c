package dist

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalPackage serializes a Package to CBOR bytes.
func MarshalPackage(p *Package) ([]byte, error) {
	return cborEncMode.Marshal(p)
}

// UnmarshalPackage deserializes a Package from CBOR bytes.
func UnmarshalPackage(data []byte) (*Package, error) {
	var p Package
	if err := cbor.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("dist: unmarshal package: %w", err)
	}
	return &p, nil
}

// MarshalAnnouncement serializes a SyncAnnouncement to CBOR bytes.
func MarshalAnnouncement(a *SyncAnnouncement) ([]byte, error) {
	return cborEncMode.Marshal(a)
}

// UnmarshalAnnouncement deserializes a SyncAnnouncement from CBOR bytes.
func UnmarshalAnnouncement(data []byte) (*SyncAnnouncement, error) {
	var a SyncAnnouncement
	if err := cbor.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("dist: unmarshal announcement: %w", err)
	}
	return &a, nil
}

// MarshalSyncRequest serializes a SyncRequest to CBOR bytes.
func MarshalSyncRequest(r *SyncRequest) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalSyncRequest deserializes a SyncRequest from CBOR bytes.
func UnmarshalSyncRequest(data []byte) (*SyncRequest, error) {
	var r SyncRequest
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("dist: unmarshal sync request: %w", err)
	}
	return &r, nil
}

// MarshalSyncResponse serializes a SyncResponse to CBOR bytes.
func MarshalSyncResponse(r *SyncResponse) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalSyncResponse deserializes a SyncResponse from CBOR bytes.
func UnmarshalSyncResponse(data []byte) (*SyncResponse, error) {
	var r SyncResponse
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("dist: unmarshal sync response: %w", err)
	}
	return &r, nil
}

// MarshalAnnounceResponse serializes an AnnounceResponse to CBOR bytes.
func MarshalAnnounceResponse(r *AnnounceResponse) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalAnnounceResponse deserializes an AnnounceResponse from CBOR bytes.
func UnmarshalAnnounceResponse(data []byte) (*AnnounceResponse, error) {
	var r AnnounceResponse
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("dist: unmarshal announce response: %w", err)
	}
	return &r, nil
}
