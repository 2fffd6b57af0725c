package vm

import (
	"github.com/chazu/bcsnap/snapshot"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("bcsnap.restore")

// ---------------------------------------------------------------------------
// Restore options
// ---------------------------------------------------------------------------

type options struct {
	engine  snapshot.Engine
	log     commonlog.Logger
	context any
}

// Option configures Restore.
type Option func(*options)

// WithEngine sets the engine the snapshot is validated against. The
// default is snapshot.DefaultEngine.
func WithEngine(eng snapshot.Engine) Option {
	return func(o *options) { o.engine = eng }
}

// WithLogger replaces the "bcsnap.restore" logger.
func WithLogger(l commonlog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithContext attaches an opaque host value, available to host functions
// through VM.Context.
func WithContext(ctx any) Option {
	return func(o *options) { o.context = ctx }
}

func buildOptions(opts []Option) options {
	o := options{engine: snapshot.DefaultEngine(), log: log}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ---------------------------------------------------------------------------
// Restore
// ---------------------------------------------------------------------------

// Restore validates a snapshot and produces a live VM. The header is fully
// checked before any section is read, every import is bound through
// resolver, and DATA and HEAP are copied into fresh RAM. On any error no
// VM is returned.
//
// The VM keeps referencing data for its ROM sections; the caller must not
// modify it afterwards.
func Restore(data []byte, resolver ImportResolver, opts ...Option) (*VM, error) {
	o := buildOptions(opts)
	img, err := snapshot.Open(data, o.engine)
	if err != nil {
		return nil, err
	}
	return restore(img, resolver, o)
}

// RestoreImage restores a VM from an already opened Image. VMs restored
// from the same Image share its ROM and each own their RAM. The Image's
// engine checks were done when it was opened; WithEngine is ignored.
func RestoreImage(img *snapshot.Image, resolver ImportResolver, opts ...Option) (*VM, error) {
	return restore(img, resolver, buildOptions(opts))
}

func restore(img *snapshot.Image, resolver ImportResolver, o options) (*VM, error) {
	l := img.Layout()
	if o.log.AllowLevel(commonlog.Debug) {
		for s := snapshot.SectionImportTable; s < snapshot.SectionCount; s++ {
			r := l.Range(s)
			o.log.Debugf("section %-16s offset %5d size %5d", s, r.Start, r.Size)
		}
	}

	imports, err := linkImports(img.Imports(), resolver, o.log)
	if err != nil {
		return nil, err
	}

	data := l.Range(snapshot.SectionData)
	ram := make([]byte, l.RAMSize())
	copy(ram, img.Bytes()[data.Start:l.Size])

	vm := &VM{
		id:  uuid.New(),
		img: img,
		mem: snapshot.Memory{
			ROM:      img.Bytes(),
			RAM:      ram,
			Boundary: l.Boundary(),
		},
		dataSize: int(data.Size),
		imports:  imports,
		context:  o.context,
		log:      o.log,
	}
	o.log.Infof("restored vm %s: %d bytes, %d globals, %d imports, %d bytes RAM",
		vm.id, l.Size, vm.GlobalCount(), len(imports), len(ram))
	return vm, nil
}
