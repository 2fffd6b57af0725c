package dist

import (
	"errors"
	"fmt"

	"github.com/chazu/bcsnap/snapshot"
	"github.com/klauspost/compress/zstd"
	"lukechampine.com/blake3"
)

// maxPayload bounds a package payload. zstd frames of a snapshot that
// does not compress add a few bytes of framing.
const maxPayload = snapshot.MaxSnapshotSize + 1024

var (
	// ErrHashMismatch means the unpacked bytes do not hash to the
	// package's declared address.
	ErrHashMismatch = errors.New("dist: hash mismatch")
	// ErrPayloadTooLarge means the payload, or what it decompresses to,
	// exceeds what a snapshot can be.
	ErrPayloadTooLarge = errors.New("dist: payload too large")
)

var (
	// encoder and decoder for zstd are reusable and thread-safe
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(snapshot.MaxSnapshotSize))
)

// Pack wraps a snapshot in a package. The snapshot is opened with the
// permissive engine, so packing never depends on the packer's own
// capabilities, but a corrupt snapshot is refused.
func Pack(data []byte, c Compression) (*Package, error) {
	img, err := snapshot.Open(data, snapshot.PermissiveEngine())
	if err != nil {
		return nil, fmt.Errorf("dist: pack: %w", err)
	}
	raw := img.Bytes()
	p := &Package{
		Hash:          img.Hash(),
		Compression:   c,
		Size:          uint16(len(raw)),
		EngineVersion: img.Header().RequiredEngineVersion,
		Features:      img.Header().RequiredFeatureFlags.Names(),
		ROMHash:       img.ROMHash(),
	}
	for e := range img.Exports().All() {
		p.Exports = append(p.Exports, uint16(e.ID))
	}
	for _, id := range img.Imports().All() {
		p.Imports = append(p.Imports, uint16(id))
	}
	switch c {
	case CompressionNone:
		p.Payload = append([]byte(nil), raw...)
	case CompressionZstd:
		p.Payload = zstdEncoder.EncodeAll(raw, make([]byte, 0, len(raw)))
	default:
		return nil, fmt.Errorf("dist: pack: unknown compression %d", c)
	}
	return p, nil
}

// Unpack returns the snapshot carried by p after checking its hash and
// size against the package metadata. Decompression never produces more
// than a snapshot can hold.
func Unpack(p *Package) ([]byte, error) {
	if len(p.Payload) > maxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(p.Payload))
	}
	var data []byte
	switch p.Compression {
	case CompressionNone:
		data = p.Payload
	case CompressionZstd:
		var err error
		data, err = zstdDecoder.DecodeAll(p.Payload, make([]byte, 0, int(p.Size)))
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) || len(data) > snapshot.MaxSnapshotSize {
			return nil, fmt.Errorf("%w: decompresses past %d bytes", ErrPayloadTooLarge, snapshot.MaxSnapshotSize)
		}
		if err != nil {
			return nil, fmt.Errorf("dist: unpack: %w", err)
		}
	default:
		return nil, fmt.Errorf("dist: unpack: unknown compression %d", p.Compression)
	}
	if len(data) != int(p.Size) {
		return nil, fmt.Errorf("dist: unpack: payload is %d bytes, declared %d", len(data), p.Size)
	}
	if h := blake3.Sum256(data); h != p.Hash {
		return nil, fmt.Errorf("%w: declared %x, computed %x", ErrHashMismatch, p.Hash, h)
	}
	return data, nil
}

// Manifest returns the capability manifest of a package.
func (p *Package) Manifest() *CapabilityManifest {
	if len(p.Features) == 0 {
		return nil
	}
	return &CapabilityManifest{Required: p.Features}
}
