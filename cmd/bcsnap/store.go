package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/chazu/bcsnap/snapshot"
	"github.com/chazu/bcsnap/store"
)

// store handles the `bcsnap store` subcommand.
// Usage:
//
//	bcsnap store put FILE...        Add snapshots to the store
//	bcsnap store get -o OUT HASH    Write a stored snapshot to OUT
//	bcsnap store ls                 List stored snapshots
func (c *cli) store(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: bcsnap %s", c.usage)
	}
	st, err := store.OpenSQLite(c.config.StorePath())
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := context.Background()

	switch args[0] {
	case "put":
		return c.storePut(ctx, st, args[1:])
	case "get":
		return c.storeGet(ctx, st, args[1:])
	case "ls":
		entries, err := st.List(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(c.stdout, "%s %6d %s\n", store.FormatHash(e.Hash), e.Size, e.Created.UTC().Format("2006-01-02T15:04:05Z"))
		}
		return nil
	}
	return fmt.Errorf("unknown store subcommand %q", args[0])
}

func (c *cli) storePut(ctx context.Context, st store.Store, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("usage: bcsnap %s", c.usage)
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		// Only well-formed snapshots go in, whatever engine they target.
		img, err := snapshot.Open(data, snapshot.PermissiveEngine())
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		h, err := st.Put(ctx, img.Bytes())
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "%s %s\n", store.FormatHash(h), f)
	}
	return nil
}

func (c *cli) storeGet(ctx context.Context, st store.Store, args []string) error {
	var out *string
	fs, err := c.subcommand("store", args, 1, func(fs *flag.FlagSet) {
		out = fs.String("o", "", "Output snapshot file")
	})
	if err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("usage: bcsnap %s", c.usage)
	}
	h, err := store.ParseHash(fs.Arg(0))
	if err != nil {
		return err
	}
	data, err := st.Get(ctx, h)
	if err != nil {
		return err
	}
	return os.WriteFile(*out, data, 0o644)
}
