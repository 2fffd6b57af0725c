package manifest

import (
	"fmt"

	"github.com/chazu/bcsnap/snapshot"
)

// SnapshotConfig is the declarative description `bcsnap build` turns into
// a snapshot.
type SnapshotConfig struct {
	Output        string            `toml:"output"`
	EngineVersion uint8             `toml:"engine-version"` // 0 = this engine's version
	Features      []string          `toml:"features"`
	Globals       []uint16          `toml:"globals"` // raw values
	Imports       []uint16          `toml:"imports"` // host function ids
	Strings       []string          `toml:"strings"` // ROM unique strings
	Heap          []string          `toml:"heap"`    // strings allocated in HEAP, each held by a rooted global
	Exports       []ExportConfig    `toml:"exports"`
	ShortCalls    []ShortCallConfig `toml:"short-calls"`
	UniqueStrings bool              `toml:"unique-strings"` // reserve a global for runtime-interned strings
	DataOffset    int               `toml:"data-offset"`
	Strict        bool              `toml:"strict"`
}

// ExportConfig is one [[snapshot.exports]] entry. If String is set the
// export points to that ROM string; otherwise it holds Value.
type ExportConfig struct {
	ID     uint16 `toml:"id"`
	Value  uint16 `toml:"value"`
	String string `toml:"string"`
}

// ShortCallConfig is one [[snapshot.short-calls]] entry targeting an import.
type ShortCallConfig struct {
	Import int   `toml:"import"` // index into imports
	Args   uint8 `toml:"args"`
}

func (c *SnapshotConfig) validate() error {
	if _, err := snapshot.ParseFeatures(c.Features); err != nil {
		return fmt.Errorf("[snapshot]: %w", err)
	}
	if len(c.ShortCalls) > snapshot.MaxShortCalls {
		return fmt.Errorf("[snapshot]: %d short calls, at most %d allowed", len(c.ShortCalls), snapshot.MaxShortCalls)
	}
	for i, sc := range c.ShortCalls {
		if sc.Import < 0 || sc.Import >= len(c.Imports) {
			return fmt.Errorf("[snapshot]: short call %d targets import %d of %d", i, sc.Import, len(c.Imports))
		}
	}
	if c.DataOffset%2 != 0 {
		return fmt.Errorf("[snapshot]: data-offset %d is odd", c.DataOffset)
	}
	return nil
}

// Builder returns a snapshot builder populated from the configuration.
// Globals come first in declaration order, then one per heap string,
// then the unique-strings slot.
func (c *SnapshotConfig) Builder() (*snapshot.Builder, error) {
	b := snapshot.NewBuilder()
	if c.EngineVersion != 0 {
		b.SetEngineVersion(c.EngineVersion)
	}
	features, err := snapshot.ParseFeatures(c.Features)
	if err != nil {
		return nil, err
	}
	b.RequireFeatures(features)
	b.Strict(c.Strict)
	if c.DataOffset != 0 {
		b.SetDataOffset(c.DataOffset)
	}

	for _, v := range c.Globals {
		b.AddGlobal(snapshot.Value(v))
	}
	for _, s := range c.Heap {
		ref, err := b.HeapAlloc(snapshot.TypeString, append([]byte(s), 0))
		if err != nil {
			return nil, fmt.Errorf("heap string %q: %w", s, err)
		}
		g := b.AddGlobal(snapshot.ValueUndefined)
		b.SetGlobalRef(g, ref)
		b.AddGlobalRoot(g)
	}
	if c.UniqueStrings {
		g := b.AddGlobal(snapshot.ValueNull)
		b.BindBuiltin(snapshot.BuiltinUniqueStrings, g)
		b.AddGlobalRoot(g)
	}

	for _, id := range c.Imports {
		b.AddImport(snapshot.HostFunctionID(id))
	}
	for _, s := range c.Strings {
		b.AddString(s)
	}
	for _, e := range c.Exports {
		if e.String != "" {
			b.AddExportRef(snapshot.ExportID(e.ID), b.AddString(e.String))
			continue
		}
		b.AddExport(snapshot.ExportID(e.ID), snapshot.Value(e.Value))
	}
	for _, sc := range c.ShortCalls {
		b.AddShortCallImport(sc.Import, sc.Args)
	}
	return b, nil
}

// Build builds the configured snapshot.
func (c *SnapshotConfig) Build() ([]byte, error) {
	b, err := c.Builder()
	if err != nil {
		return nil, err
	}
	return b.Build()
}
