package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/bcsnap/snapshot"
)

func TestLoadManifest(t *testing.T) {
	// Create a temporary directory with a bcsnap.toml
	dir := t.TempDir()
	tomlContent := `
[engine]
version = 3
features = ["float"]

[imports]
1 = "print"
0x10 = "noop"

[store]
path = "/var/lib/bcsnap/store.db"
cache-size = 4

[log]
verbosity = 2
format = "json"

[snapshot]
output = "out/app.snap"
globals = [0x45, 0x49]
imports = [1, 16]
strings = ["hello"]
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if eng := m.TargetEngine(); eng.Version != 3 || eng.Features != snapshot.FeatureFloat {
		t.Errorf("engine = %+v", eng)
	}
	hosts := m.HostFunctions()
	if len(hosts) != 2 || hosts[1] != "print" || hosts[0x10] != "noop" {
		t.Errorf("host functions = %v", hosts)
	}
	if m.StorePath() != "/var/lib/bcsnap/store.db" {
		t.Errorf("store path = %q", m.StorePath())
	}
	if m.Store.CacheSize != 4 {
		t.Errorf("cache size = %d, want 4", m.Store.CacheSize)
	}
	if m.Log.Verbosity != 2 || m.Log.Format != "json" {
		t.Errorf("log = %+v", m.Log)
	}
	if got, want := m.OutputPath(), filepath.Join(m.Dir, "out", "app.snap"); got != want {
		t.Errorf("output path = %q, want %q", got, want)
	}
	if len(m.Snapshot.Globals) != 2 || m.Snapshot.Globals[1] != 0x49 {
		t.Errorf("snapshot globals = %v", m.Snapshot.Globals)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(""), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.TargetEngine() != snapshot.DefaultEngine() {
		t.Errorf("engine = %+v, want default", m.TargetEngine())
	}
	if m.StorePath() != filepath.Join(m.Dir, ".bcsnap", "store.db") {
		t.Errorf("store path = %q", m.StorePath())
	}
	if m.Store.CacheSize != 16 || m.Log.Format != "text" || m.Snapshot.Output != "app.snap" {
		t.Errorf("defaults not applied: %+v", m)
	}

	d := Default()
	if d.TargetEngine() != snapshot.DefaultEngine() || d.Dir != "" || d.StorePath() != filepath.Join(".bcsnap", "store.db") {
		t.Errorf("Default() = %+v", d)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"syntax", "[engine"},
		{"unknown feature", "[engine]\nfeatures = [\"quantum\"]"},
		{"bad import id", "[imports]\nprint = \"print\""},
		{"import id too large", "[imports]\n70000 = \"print\""},
		{"log format", "[log]\nformat = \"xml\""},
		{"short call import", "[snapshot]\nimports = [1]\nshort-calls = [{import = 1, args = 0}]"},
		{"odd data offset", "[snapshot]\ndata-offset = 41"},
		{"snapshot feature", "[snapshot]\nfeatures = [\"nope\"]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.toml)); err == nil {
				t.Errorf("Parse(%q) succeeded", tt.toml)
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	root := t.TempDir()
	sub := filepath.Join(root, "src", "deep")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	// Put bcsnap.toml at root
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("[log]\nverbosity = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	// Search from deep subdirectory
	m, err := FindAndLoad(sub)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("expected to find manifest")
	}
	if m.Log.Verbosity != 1 {
		t.Errorf("verbosity = %d, want 1", m.Log.Verbosity)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no bcsnap.toml exists")
	}
}
