package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/chazu/bcsnap/snapshot"
)

type sectionReport struct {
	Name  string `json:"name"`
	Start uint16 `json:"start"`
	Size  uint16 `json:"size"`
}

type exportReport struct {
	ID    uint16 `json:"id"`
	Value string `json:"value"`
}

type report struct {
	Size          int               `json:"size"`
	Version       uint8             `json:"version"`
	HeaderSize    uint8             `json:"headerSize"`
	EngineVersion uint8             `json:"requiredEngineVersion"`
	Globals       uint8             `json:"globals"`
	CRC           string            `json:"crc"`
	Features      []string          `json:"features"`
	Sections      []sectionReport   `json:"sections"`
	Imports       []uint16          `json:"imports"`
	Exports       []exportReport    `json:"exports"`
	ShortCalls    []string          `json:"shortCalls"`
	GCRoots       []uint16          `json:"gcRoots"`
	Strings       []string          `json:"strings"`
	Builtins      map[string]string `json:"builtins"`
	Hash          string            `json:"hash"`
	ROMHash       string            `json:"romHash"`
}

func newReport(img *snapshot.Image) *report {
	h := img.Header()
	hash := img.Hash()
	rom := img.ROMHash()
	r := &report{
		Size:          len(img.Bytes()),
		Version:       h.BytecodeVersion,
		HeaderSize:    h.HeaderSize,
		EngineVersion: h.RequiredEngineVersion,
		Globals:       h.GlobalVariableCount,
		CRC:           fmt.Sprintf("0x%04x", h.CRC),
		Features:      h.RequiredFeatureFlags.Names(),
		Builtins:      make(map[string]string),
		Hash:          hex.EncodeToString(hash[:]),
		ROMHash:       hex.EncodeToString(rom[:]),
	}
	l := img.Layout()
	for s := range snapshot.SectionCount {
		rg := l.Range(s)
		r.Sections = append(r.Sections, sectionReport{Name: s.String(), Start: rg.Start, Size: rg.Size})
	}
	for _, id := range img.Imports().All() {
		r.Imports = append(r.Imports, uint16(id))
	}
	for e := range img.Exports().All() {
		r.Exports = append(r.Exports, exportReport{ID: uint16(e.ID), Value: e.Value.String()})
	}
	for _, sc := range img.ShortCalls().All() {
		r.ShortCalls = append(r.ShortCalls, fmt.Sprintf("%s argc=%d", sc.Callee, sc.ArgCount))
	}
	for off := range img.GCRoots().All() {
		r.GCRoots = append(r.GCRoots, off)
	}
	for s := range img.Strings().All() {
		r.Strings = append(r.Strings, s)
	}
	for id := range snapshot.BuiltinCount {
		r.Builtins[id.String()] = img.Builtin(id).String()
	}
	return r
}

func (c *cli) inspect(args []string) error {
	var asJSON *bool
	fs, err := c.subcommand("inspect", args, 1, func(fs *flag.FlagSet) {
		asJSON = fs.Bool("json", false, "Print the report as JSON")
	})
	if err != nil {
		return err
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	// Inspection works on snapshots this engine could not run.
	img, err := snapshot.Open(data, snapshot.PermissiveEngine())
	if err != nil {
		return err
	}
	r := newReport(img)
	if *asJSON {
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	w := c.stdout
	fmt.Fprintf(w, "snapshot %s\n", r.Hash)
	fmt.Fprintf(w, "  version %d, header %d bytes, size %d bytes, crc %s\n", r.Version, r.HeaderSize, r.Size, r.CRC)
	fmt.Fprintf(w, "  requires engine %d, features %v\n", r.EngineVersion, r.Features)
	fmt.Fprintf(w, "  %d globals\n", r.Globals)
	fmt.Fprintf(w, "sections:\n")
	for _, s := range r.Sections {
		fmt.Fprintf(w, "  %-12s @%-5d %d bytes\n", s.Name, s.Start, s.Size)
	}
	fmt.Fprintf(w, "imports: %v\n", r.Imports)
	fmt.Fprintf(w, "exports:\n")
	for _, e := range r.Exports {
		fmt.Fprintf(w, "  %d = %s\n", e.ID, e.Value)
	}
	fmt.Fprintf(w, "short calls:\n")
	for i, sc := range r.ShortCalls {
		fmt.Fprintf(w, "  %d: %s\n", i, sc)
	}
	fmt.Fprintf(w, "gc roots: %v\n", r.GCRoots)
	fmt.Fprintf(w, "strings:\n")
	for _, s := range r.Strings {
		fmt.Fprintf(w, "  %q\n", s)
	}
	fmt.Fprintf(w, "builtins:\n")
	for id := range snapshot.BuiltinCount {
		fmt.Fprintf(w, "  %s = %s\n", id, r.Builtins[id.String()])
	}
	fmt.Fprintf(w, "rom hash %s\n", r.ROMHash)
	return nil
}

func (c *cli) verify(args []string) error {
	fs, err := c.subcommand("verify", args, 1, nil)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	img, err := snapshot.Open(data, c.config.TargetEngine())
	if err != nil {
		return err
	}
	missing := 0
	for _, issue := range snapshot.CheckRoots(img) {
		fmt.Fprintf(c.stdout, "%s: DATA+%d holds %s\n", issue.Kind, issue.Offset, issue.Value)
		if issue.Kind == snapshot.MissingRoot {
			missing++
		}
	}
	if missing > 0 {
		return fmt.Errorf("%w: %d unlisted heap references", snapshot.ErrMissingRoot, missing)
	}
	fmt.Fprintf(c.stdout, "ok %x\n", img.Hash())
	return nil
}
