package manifest

import (
	"errors"
	"testing"

	"github.com/chazu/bcsnap/snapshot"
)

const appToml = `
[snapshot]
features = ["float"]
globals = [0x45]
imports = [7, 9]
strings = ["alpha", "beta"]
heap = ["scratch"]
unique-strings = true
strict = true

[[snapshot.exports]]
id = 1
value = 0x49

[[snapshot.exports]]
id = 2
string = "gamma"

[[snapshot.short-calls]]
import = 1
args = 2
`

func TestSnapshotBuild(t *testing.T) {
	m, err := Parse([]byte(appToml))
	if err != nil {
		t.Fatal(err)
	}
	data, err := m.Snapshot.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	img, err := snapshot.Open(data, snapshot.DefaultEngine())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	h := img.Header()
	if h.RequiredFeatureFlags != snapshot.FeatureFloat {
		t.Errorf("features = %s", h.RequiredFeatureFlags)
	}
	// declared global, heap string holder, unique-strings head
	if h.GlobalVariableCount != 3 {
		t.Fatalf("globals = %d, want 3", h.GlobalVariableCount)
	}
	if v, _ := img.Global(0); v != snapshot.ValueUndefined {
		t.Errorf("global 0 = %s", v)
	}

	if b := img.Builtin(snapshot.BuiltinUniqueStrings); !b.IsSlot() || b.Slot != 2 {
		t.Errorf("unique strings binding = %s", b)
	}
	if img.GCRoots().Len() != 2 {
		t.Errorf("gc roots = %d, want 2", img.GCRoots().Len())
	}

	if img.Imports().Len() != 2 || img.Imports().ID(1) != 9 {
		t.Errorf("imports wrong")
	}
	sc, err := img.ShortCalls().Resolve(0)
	if err != nil {
		t.Fatal(err)
	}
	if sc.Callee.Kind != snapshot.CalleeImport || sc.Callee.Index != 1 || sc.ArgCount != 2 {
		t.Errorf("short call = %+v", sc)
	}

	if v, err := img.Exports().Lookup(1); err != nil || v != snapshot.ValueNull {
		t.Errorf("export 1 = %s, %v", v, err)
	}
	gamma, err := img.Exports().Lookup(2)
	if err != nil {
		t.Fatal(err)
	}
	if p, err := img.Strings().Lookup("gamma"); err != nil || snapshot.Value(p) != gamma {
		t.Errorf("export 2 = %s, string table has 0x%04x (%v)", gamma, uint16(p), err)
	}
	if img.Strings().Len() != 3 {
		t.Errorf("string table has %d entries, want 3", img.Strings().Len())
	}
	if _, err := img.Strings().Lookup("scratch"); !errors.Is(err, snapshot.ErrStringNotFound) {
		t.Errorf("heap string leaked into the ROM table: %v", err)
	}
}

func TestSnapshotBuildEngineVersion(t *testing.T) {
	m, err := Parse([]byte("[snapshot]\nengine-version = 9\n"))
	if err != nil {
		t.Fatal(err)
	}
	data, err := m.Snapshot.Build()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := snapshot.Open(data, snapshot.DefaultEngine()); !errors.Is(err, snapshot.ErrEngineTooOld) {
		t.Errorf("expected ErrEngineTooOld, got %v", err)
	}
}
