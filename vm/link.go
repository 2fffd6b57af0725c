package vm

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chazu/bcsnap/snapshot"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Imports
// ---------------------------------------------------------------------------

// HostFunction is a host-provided function the VM can call. id is the
// host function ID the import was bound under, so one Go function can
// serve several imports.
type HostFunction func(vm *VM, id snapshot.HostFunctionID, args []snapshot.Value) (snapshot.Value, error)

// ImportResolver maps host function IDs to host functions. It is consulted
// once per import entry during restore.
type ImportResolver interface {
	ResolveImport(id snapshot.HostFunctionID) (HostFunction, error)
}

// ResolverFunc adapts a function to ImportResolver.
type ResolverFunc func(id snapshot.HostFunctionID) (HostFunction, error)

func (f ResolverFunc) ResolveImport(id snapshot.HostFunctionID) (HostFunction, error) {
	return f(id)
}

// HostFunctions is a static ImportResolver. Entries the snapshot does not
// import are ignored.
type HostFunctions map[snapshot.HostFunctionID]HostFunction

func (hf HostFunctions) ResolveImport(id snapshot.HostFunctionID) (HostFunction, error) {
	if fn, ok := hf[id]; ok && fn != nil {
		return fn, nil
	}
	return nil, snapshot.ErrUnresolvedImport
}

// IDs returns the provided host function IDs in ascending order.
func (hf HostFunctions) IDs() []snapshot.HostFunctionID {
	ids := make([]snapshot.HostFunctionID, 0, len(hf))
	for id := range hf {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ImportError reports the import a restore could not bind.
type ImportError struct {
	Index int
	ID    snapshot.HostFunctionID
	Err   error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %d (host function %d): %v", e.Index, e.ID, e.Err)
}

// Unwrap always yields ErrUnresolvedImport, plus the resolver's own error
// when it returned a different one.
func (e *ImportError) Unwrap() []error {
	if e.Err == nil || errors.Is(e.Err, snapshot.ErrUnresolvedImport) {
		return []error{snapshot.ErrUnresolvedImport}
	}
	return []error{snapshot.ErrUnresolvedImport, e.Err}
}

// linkImports binds every import in table order and stops at the first
// one the resolver cannot provide.
func linkImports(t snapshot.ImportTable, resolver ImportResolver, log commonlog.Logger) ([]HostFunction, error) {
	fns := make([]HostFunction, t.Len())
	for i, id := range t.All() {
		if resolver == nil {
			return nil, &ImportError{Index: i, ID: id, Err: errors.New("no import resolver")}
		}
		fn, err := resolver.ResolveImport(id)
		if err == nil && fn == nil {
			err = snapshot.ErrUnresolvedImport
		}
		if err != nil {
			return nil, &ImportError{Index: i, ID: id, Err: err}
		}
		log.Debugf("import %d bound to host function %d", i, id)
		fns[i] = fn
	}
	return fns, nil
}

// ResolveImport returns the host function bound to import index i.
func (vm *VM) ResolveImport(i int) (HostFunction, error) {
	if i < 0 || i >= len(vm.imports) {
		return nil, fmt.Errorf("%w: import index %d of %d", snapshot.ErrUnresolvedImport, i, len(vm.imports))
	}
	return vm.imports[i], nil
}

// CallHost calls the host function bound to import index i.
func (vm *VM) CallHost(i int, args ...snapshot.Value) (snapshot.Value, error) {
	fn, err := vm.ResolveImport(i)
	if err != nil {
		return 0, err
	}
	return fn(vm, vm.img.Imports().ID(i), args)
}

// ---------------------------------------------------------------------------
// Exports
// ---------------------------------------------------------------------------

// Export returns the value exported under id.
func (vm *VM) Export(id snapshot.ExportID) (snapshot.Value, error) {
	return vm.img.Exports().Lookup(id)
}

// ResolveExports looks up several exports at once. Every ID is attempted;
// the values of missing exports are undefined and their errors are joined.
func (vm *VM) ResolveExports(ids ...snapshot.ExportID) ([]snapshot.Value, error) {
	vals := make([]snapshot.Value, len(ids))
	var errs []error
	for i, id := range ids {
		v, err := vm.Export(id)
		if err != nil {
			v = snapshot.ValueUndefined
			errs = append(errs, err)
		}
		vals[i] = v
	}
	return vals, errors.Join(errs...)
}
