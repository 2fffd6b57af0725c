package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/chazu/bcsnap/snapshot"
	"github.com/chazu/bcsnap/vm"
)

// stockHost builds one of the host functions the CLI can link imports to.
type stockHost func(w io.Writer) vm.HostFunction

var stockHosts = map[string]stockHost{
	"print": printHost,
	"noop":  noopHost,
}

// printHost writes its arguments on one line. Pointers to strings are
// printed as the string.
func printHost(w io.Writer) vm.HostFunction {
	return func(m *vm.VM, _ snapshot.HostFunctionID, args []snapshot.Value) (snapshot.Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.String()
			if a.IsPointer() {
				if s, err := m.String(snapshot.MappedPtr(a)); err == nil {
					parts[i] = s
				}
			}
		}
		fmt.Fprintln(w, strings.Join(parts, " "))
		return snapshot.ValueUndefined, nil
	}
}

func noopHost(io.Writer) vm.HostFunction {
	return func(*vm.VM, snapshot.HostFunctionID, []snapshot.Value) (snapshot.Value, error) {
		return snapshot.ValueUndefined, nil
	}
}

// hostFunctions links the configured [imports] table to stock functions.
func (c *cli) hostFunctions() (vm.HostFunctions, error) {
	hf := make(vm.HostFunctions)
	for id, name := range c.config.HostFunctions() {
		mk, ok := stockHosts[name]
		if !ok {
			return nil, fmt.Errorf("[imports]: host function %d: unknown stock function %q", id, name)
		}
		hf[id] = mk(c.stdout)
	}
	return hf, nil
}
