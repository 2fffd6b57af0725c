package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/chazu/bcsnap/snapshot"
	"lukechampine.com/blake3"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func testSnapshot(t *testing.T, export snapshot.ExportID) []byte {
	t.Helper()
	b := snapshot.NewBuilder()
	b.AddGlobal(snapshot.ValueUndefined)
	b.AddExport(export, snapshot.ValueNull)
	b.AddString("store")
	data, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func openSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "snapshots.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// exerciseStore runs the common Store contract against s.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	a := testSnapshot(t, 1)
	b := testSnapshot(t, 2)

	ha, err := s.Put(ctx, a)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ha != blake3.Sum256(a) {
		t.Fatal("Put returned the wrong hash")
	}
	if _, err := s.Put(ctx, a); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	hb, err := s.Put(ctx, b)
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, ha)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(a) {
		t.Error("Get returned different bytes")
	}
	if ok, err := s.Has(ctx, hb); err != nil || !ok {
		t.Errorf("Has(b) = %v, %v", ok, err)
	}
	missing := blake3.Sum256([]byte("missing"))
	if ok, _ := s.Has(ctx, missing); ok {
		t.Error("Has(missing) = true")
	}
	if _, err := s.Get(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}

	entries, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("List returned %d entries", len(entries))
	}
	for _, e := range entries {
		if e.Size != len(a) {
			t.Errorf("entry %s size %d, want %d", FormatHash(e.Hash), e.Size, len(a))
		}
	}
	if string(entries[0].Hash[:]) > string(entries[1].Hash[:]) {
		t.Error("List is not sorted by hash")
	}
}

// ---------------------------------------------------------------------------
// Backends
// ---------------------------------------------------------------------------

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemoryStoreCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	data := testSnapshot(t, 1)
	h, _ := m.Put(ctx, data)
	data[0] = 0

	got, err := m.Get(ctx, h)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != snapshot.BytecodeVersion {
		t.Error("store aliases the caller's buffer")
	}
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, openSQLite(t))
}

func TestSQLiteStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshots.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	at := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return at }
	h, err := s.Put(ctx, testSnapshot(t, 5))
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	entries, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Hash != h || !entries[0].Created.Equal(at) {
		t.Errorf("entries after reopen = %+v", entries)
	}
}

func TestSQLiteStoreDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	h, err := s.Put(ctx, testSnapshot(t, 1))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec("UPDATE snapshots SET data = ? WHERE hash = ?", []byte("garbage"), h[:]); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, h); err == nil {
		t.Fatal("expected corruption error")
	}
}

// ---------------------------------------------------------------------------
// Hash helpers
// ---------------------------------------------------------------------------

func TestParseHash(t *testing.T) {
	h := blake3.Sum256([]byte("x"))
	got, err := ParseHash(FormatHash(h))
	if err != nil || got != h {
		t.Errorf("ParseHash(FormatHash(h)) = %x, %v", got, err)
	}
	for _, bad := range []string{"", "abc", "zz", FormatHash(h)[:62]} {
		if _, err := ParseHash(bad); err == nil {
			t.Errorf("ParseHash(%q) succeeded", bad)
		}
	}
}
