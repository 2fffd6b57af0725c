// bcsnap - inspect, verify, restore, build and distribute bytecode snapshots
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/tliron/commonlog"
	"github.com/tliron/commonlog/simple"
	commonzerolog "github.com/tliron/commonlog/zerolog"

	"github.com/chazu/bcsnap/manifest"
)

// cli carries what every subcommand needs.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	config *manifest.Manifest
	usage  string // of the running subcommand
}

type command struct {
	usage string
	run   func(c *cli, args []string) error
}

func commandTable() map[string]command {
	return map[string]command{
		"inspect": {"inspect [-json] FILE", (*cli).inspect},
		"verify":  {"verify FILE", (*cli).verify},
		"restore": {"restore [-call N] FILE|HASH", (*cli).restore},
		"build":   {"build [-o OUT] [-store]", (*cli).build},
		"pack":    {"pack [-zstd] -o OUT FILE", (*cli).pack},
		"unpack":  {"unpack -o OUT FILE", (*cli).unpack},
		"store":   {"store put FILE... | get -o OUT HASH | ls", (*cli).store},
		"sync":    {"sync [-zstd] FROM.db", (*cli).sync},
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bcsnap", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbosity := fs.Int("v", -1, "Log verbosity (overrides [log].verbosity)")
	logFormat := fs.String("log-format", "", "Log format: text or json (overrides [log].format)")
	configDir := fs.String("config", "", "Directory containing bcsnap.toml (default: search upward from the working directory)")
	commands := commandTable()

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: bcsnap [options] <command> [arguments]\n\n")
		fmt.Fprintf(stderr, "Commands:\n")
		names := make([]string, 0, len(commands))
		for name := range commands {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(stderr, "  bcsnap %s\n", commands[name].usage)
		}
		fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 1
	}

	c := &cli{stdout: stdout, stderr: stderr}
	if err := c.loadConfig(*configDir); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *verbosity >= 0 {
		c.config.Log.Verbosity = *verbosity
	}
	if *logFormat != "" {
		c.config.Log.Format = *logFormat
	}
	if err := configureLogging(c.config.Log); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "Error: unknown command %q\n", name)
		return 1
	}
	c.usage = cmd.usage
	if err := cmd.run(c, fs.Args()[1:]); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (c *cli) loadConfig(dir string) error {
	var err error
	if dir != "" {
		c.config, err = manifest.Load(dir)
		return err
	}
	c.config, err = manifest.FindAndLoad(".")
	if err != nil {
		return err
	}
	if c.config == nil {
		c.config = manifest.Default()
	}
	return nil
}

func configureLogging(cfg manifest.LogConfig) error {
	switch cfg.Format {
	case "text":
		commonlog.SetBackend(simple.NewBackend())
	case "json":
		commonlog.SetBackend(commonzerolog.NewBackend())
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}
	commonlog.Configure(cfg.Verbosity, nil)
	return nil
}

// subcommand parses a subcommand's flags; exactly want positional
// arguments are required unless want is negative.
func (c *cli) subcommand(name string, args []string, want int, define func(fs *flag.FlagSet)) (*flag.FlagSet, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	if define != nil {
		define(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if want >= 0 && fs.NArg() != want {
		return nil, fmt.Errorf("usage: bcsnap %s", c.usage)
	}
	return fs, nil
}
