package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/chazu/bcsnap/snapshot"
	"github.com/chazu/bcsnap/store"
	"github.com/chazu/bcsnap/vm"
)

func (c *cli) restore(args []string) error {
	var call *int
	flags, err := c.subcommand("restore", args, 1, func(fs *flag.FlagSet) {
		call = fs.Int("call", -1, "Call import N with no arguments after restoring")
	})
	if err != nil {
		return err
	}
	hosts, err := c.hostFunctions()
	if err != nil {
		return err
	}

	img, err := c.openImage(flags.Arg(0))
	if err != nil {
		return err
	}
	m, err := vm.RestoreImage(img, hosts)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.stdout, "instance %s\n", m.ID())
	fmt.Fprintf(c.stdout, "  %d globals, %d bytes DATA, %d bytes HEAP\n", m.GlobalCount(), m.DataSize(), m.HeapSize())
	for e := range img.Exports().All() {
		fmt.Fprintf(c.stdout, "  export %d = %s\n", e.ID, e.Value)
	}
	if *call >= 0 {
		if _, err := m.CallHost(*call); err != nil {
			return err
		}
	}
	return nil
}

// openImage reads a snapshot from a file or, when arg is not a file but
// parses as a hash, from the configured store.
func (c *cli) openImage(arg string) (*snapshot.Image, error) {
	data, err := os.ReadFile(arg)
	if err == nil {
		return snapshot.Open(data, c.config.TargetEngine())
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	h, herr := store.ParseHash(arg)
	if herr != nil {
		return nil, err
	}
	st, err := store.OpenSQLite(c.config.StorePath())
	if err != nil {
		return nil, err
	}
	defer st.Close()
	cache, err := store.NewImageCache(st, c.config.TargetEngine(), c.config.Store.CacheSize)
	if err != nil {
		return nil, err
	}
	return cache.Image(context.Background(), h)
}
