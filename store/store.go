// Package store keeps snapshots addressed by the BLAKE3 hash of their
// bytes. Two backends are provided: an in-process map and a SQLite
// database. Both satisfy the dist Sink and Source interfaces.
package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("bcsnap.store")

// ErrNotFound indicates the requested snapshot is not in the store.
var ErrNotFound = errors.New("snapshot not found")

// Hash is a snapshot address.
type Hash = [32]byte

// Entry describes one stored snapshot.
type Entry struct {
	Hash    Hash
	Size    int
	Created time.Time
}

// Store is a content-addressed snapshot store.
type Store interface {
	Put(ctx context.Context, data []byte) (Hash, error)
	Get(ctx context.Context, hash Hash) ([]byte, error)
	Has(ctx context.Context, hash Hash) (bool, error)
	List(ctx context.Context) ([]Entry, error)
	Close() error
}

// ParseHash parses a hex-encoded hash. A unique prefix is not accepted;
// the full 64 digits are required.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("store: parse hash: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("store: parse hash: want %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// FormatHash renders a hash as lowercase hex.
func FormatHash(h Hash) string { return hex.EncodeToString(h[:]) }
