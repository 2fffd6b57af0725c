package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chazu/bcsnap/store"
	"github.com/chazu/bcsnap/vm/dist"
)

func (c *cli) pack(args []string) error {
	var out *string
	var zstd *bool
	fs, err := c.subcommand("pack", args, 1, func(fs *flag.FlagSet) {
		out = fs.String("o", "", "Output package file")
		zstd = fs.Bool("zstd", false, "Compress the payload with zstd")
	})
	if err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("usage: bcsnap %s", c.usage)
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	compression := dist.CompressionNone
	if *zstd {
		compression = dist.CompressionZstd
	}
	p, err := dist.Pack(data, compression)
	if err != nil {
		return err
	}
	if err := dist.NewEnginePolicy(c.config.TargetEngine()).CheckPackage(p); err != nil {
		fmt.Fprintf(c.stderr, "Warning: %v\n", err)
	}
	enc, err := dist.MarshalPackage(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, enc, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%s %s %d -> %d bytes\n", store.FormatHash(p.Hash), p.Compression, p.Size, len(enc))
	return nil
}

func (c *cli) unpack(args []string) error {
	var out *string
	fs, err := c.subcommand("unpack", args, 1, func(fs *flag.FlagSet) {
		out = fs.String("o", "", "Output snapshot file")
	})
	if err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("usage: bcsnap %s", c.usage)
	}
	enc, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	p, err := dist.UnmarshalPackage(enc)
	if err != nil {
		return err
	}
	data, err := dist.Unpack(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%s %d bytes\n", store.FormatHash(p.Hash), len(data))
	return nil
}
