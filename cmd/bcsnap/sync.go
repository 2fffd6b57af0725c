package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/chazu/bcsnap/store"
	"github.com/chazu/bcsnap/vm/dist"
)

// sync handles the `bcsnap sync` subcommand. It pulls every snapshot the
// configured store lacks from another store database, running the full
// announce/request/response exchange with each message CBOR-encoded as it
// would be on the wire. Received packages are checked against [engine].
func (c *cli) sync(args []string) error {
	var zstd *bool
	fs, err := c.subcommand("sync", args, 1, func(fs *flag.FlagSet) {
		zstd = fs.Bool("zstd", false, "Compress package payloads with zstd")
	})
	if err != nil {
		return err
	}
	from := fs.Arg(0)
	if _, err := os.Stat(from); err != nil {
		return err
	}
	src, err := store.OpenSQLite(from)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := store.OpenSQLite(c.config.StorePath())
	if err != nil {
		return err
	}
	defer dst.Close()
	ctx := context.Background()

	compression := dist.CompressionNone
	if *zstd {
		compression = dist.CompressionZstd
	}
	res, err := syncStores(ctx, from, src, dst, dist.NewEnginePolicy(c.config.TargetEngine()), compression)
	if err != nil {
		return err
	}
	if res == nil {
		fmt.Fprintln(c.stdout, "up to date")
		return nil
	}
	for _, h := range res.FailedHashes {
		fmt.Fprintf(c.stderr, "Warning: rejected %s\n", store.FormatHash(h))
	}
	fmt.Fprintf(c.stdout, "%d accepted, %d rejected\n", res.Accepted, res.Rejected)
	return nil
}

// syncStores runs one exchange from src to dst. A nil result means dst
// already had everything.
func syncStores(ctx context.Context, peer string, src, dst store.Store, policy *dist.CapabilityPolicy, compression dist.Compression) (*dist.TransferResult, error) {
	entries, err := src.List(ctx)
	if err != nil {
		return nil, err
	}
	hashes := make([][32]byte, len(entries))
	for i, e := range entries {
		hashes[i] = e.Hash
	}

	ann, err := viaWire(dist.Announce(hashes, nil), dist.MarshalAnnouncement, dist.UnmarshalAnnouncement)
	if err != nil {
		return nil, err
	}
	r := dist.NewReceiver(dst, policy)
	resp, err := r.HandleAnnouncement(ctx, peer, ann)
	if err != nil {
		return nil, err
	}
	if resp, err = viaWire(resp, dist.MarshalAnnounceResponse, dist.UnmarshalAnnounceResponse); err != nil {
		return nil, err
	}
	switch resp.Status {
	case dist.AnnounceAlreadyHave:
		return nil, nil
	case dist.AnnounceRejected:
		return nil, fmt.Errorf("sync refused: %s", resp.RejectReason)
	}

	req, err := viaWire(&dist.SyncRequest{Want: resp.Want}, dist.MarshalSyncRequest, dist.UnmarshalSyncRequest)
	if err != nil {
		return nil, err
	}
	sresp, err := dist.Serve(ctx, src, req, compression)
	if err != nil {
		return nil, err
	}
	if sresp, err = viaWire(sresp, dist.MarshalSyncResponse, dist.UnmarshalSyncResponse); err != nil {
		return nil, err
	}
	return r.HandleResponse(ctx, peer, sresp)
}

// viaWire encodes v and decodes it again, as a peer on the other end of a
// connection would see it.
func viaWire[T any](v *T, marshal func(*T) ([]byte, error), unmarshal func([]byte) (*T, error)) (*T, error) {
	data, err := marshal(v)
	if err != nil {
		return nil, err
	}
	return unmarshal(data)
}
