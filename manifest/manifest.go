// Package manifest handles bcsnap.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/chazu/bcsnap/snapshot"
)

// FileName is the name of the configuration file.
const FileName = "bcsnap.toml"

// Manifest represents a bcsnap.toml project configuration.
type Manifest struct {
	Engine   EngineConfig      `toml:"engine"`
	Imports  map[string]string `toml:"imports"` // host function id -> stock function name
	Store    StoreConfig       `toml:"store"`
	Log      LogConfig         `toml:"log"`
	Snapshot SnapshotConfig    `toml:"snapshot"`

	// Dir is the directory containing the bcsnap.toml file (set at load time).
	Dir string `toml:"-"`

	engine snapshot.Engine
	hosts  map[snapshot.HostFunctionID]string
}

// EngineConfig describes the engine snapshots are restored into.
type EngineConfig struct {
	Version  uint8    `toml:"version"`
	Features []string `toml:"features"`
}

// StoreConfig configures the snapshot store.
type StoreConfig struct {
	Path      string `toml:"path"`
	CacheSize int    `toml:"cache-size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	Format    string `toml:"format"` // "text" or "json"
}

// Load parses a bcsnap.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes a configuration from TOML, applies defaults and validates
// it. Dir is left empty.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := m.finish(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Default returns the configuration used when no bcsnap.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	if err := m.finish(); err != nil {
		panic(err)
	}
	return m
}

// FindAndLoad walks up from startDir to find a bcsnap.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) finish() error {
	// Defaults
	if m.Engine.Version == 0 {
		m.Engine.Version = snapshot.EngineVersion
	}
	if m.Engine.Features == nil {
		m.Engine.Features = snapshot.DefaultEngine().Features.Names()
	}
	if m.Store.Path == "" {
		m.Store.Path = filepath.Join(".bcsnap", "store.db")
	}
	if m.Store.CacheSize <= 0 {
		m.Store.CacheSize = 16
	}
	if m.Log.Format == "" {
		m.Log.Format = "text"
	}
	if m.Snapshot.Output == "" {
		m.Snapshot.Output = "app.snap"
	}

	features, err := snapshot.ParseFeatures(m.Engine.Features)
	if err != nil {
		return fmt.Errorf("[engine]: %w", err)
	}
	m.engine = snapshot.Engine{Version: m.Engine.Version, Features: features}

	switch m.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("[log]: unknown format %q", m.Log.Format)
	}

	m.hosts = make(map[snapshot.HostFunctionID]string, len(m.Imports))
	for k, name := range m.Imports {
		id, err := strconv.ParseUint(k, 0, 16)
		if err != nil {
			return fmt.Errorf("[imports]: bad host function id %q: %w", k, err)
		}
		m.hosts[snapshot.HostFunctionID(id)] = name
	}
	return m.Snapshot.validate()
}

// TargetEngine returns the engine described by [engine].
func (m *Manifest) TargetEngine() snapshot.Engine { return m.engine }

// HostFunctions returns the [imports] table keyed by host function id.
func (m *Manifest) HostFunctions() map[snapshot.HostFunctionID]string { return m.hosts }

// Path resolves a configured path against the manifest directory.
func (m *Manifest) Path(p string) string {
	if filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// StorePath returns the absolute path of the snapshot store.
func (m *Manifest) StorePath() string { return m.Path(m.Store.Path) }

// OutputPath returns the path `bcsnap build` writes to.
func (m *Manifest) OutputPath() string { return m.Path(m.Snapshot.Output) }
