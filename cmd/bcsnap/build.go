package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chazu/bcsnap/store"
)

func (c *cli) build(args []string) error {
	var out *string
	var toStore *bool
	if _, err := c.subcommand("build", args, 0, func(fs *flag.FlagSet) {
		out = fs.String("o", "", "Output file (default: [snapshot].output)")
		toStore = fs.Bool("store", false, "Also put the snapshot into the store")
	}); err != nil {
		return err
	}
	data, err := c.config.Snapshot.Build()
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = c.config.OutputPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "wrote %s (%d bytes)\n", path, len(data))

	if *toStore {
		st, err := store.OpenSQLite(c.config.StorePath())
		if err != nil {
			return err
		}
		defer st.Close()
		h, err := st.Put(context.Background(), data)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, store.FormatHash(h))
	}
	return nil
}
