package dist

import (
	"context"
	"errors"
	"fmt"

	"github.com/chazu/bcsnap/snapshot"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("bcsnap.dist")

// Sink receives snapshots. store.Store satisfies it.
type Sink interface {
	Has(ctx context.Context, hash [32]byte) (bool, error)
	Put(ctx context.Context, data []byte) ([32]byte, error)
}

// Source provides snapshots by hash. store.Store satisfies it.
type Source interface {
	Get(ctx context.Context, hash [32]byte) ([]byte, error)
}

// ---------------------------------------------------------------------------
// Sending side
// ---------------------------------------------------------------------------

// Announce builds the announcement for a set of snapshots.
func Announce(hashes [][32]byte, features []string) *SyncAnnouncement {
	a := &SyncAnnouncement{AllHashes: hashes, HashVersion: HashVersion}
	if len(features) > 0 {
		a.Capability = &CapabilityManifest{Required: features}
	}
	return a
}

// Serve answers a sync request with packages for every wanted hash.
func Serve(ctx context.Context, src Source, req *SyncRequest, c Compression) (*SyncResponse, error) {
	resp := &SyncResponse{}
	for _, h := range req.Want {
		data, err := src.Get(ctx, h)
		if err != nil {
			return nil, fmt.Errorf("dist: serve %x: %w", h, err)
		}
		p, err := Pack(data, c)
		if err != nil {
			return nil, err
		}
		resp.Packages = append(resp.Packages, *p)
	}
	return resp, nil
}

// ---------------------------------------------------------------------------
// Receiving side
// ---------------------------------------------------------------------------

// Receiver accepts snapshots from peers into a Sink, enforcing a
// capability policy and tracking peer reputation.
type Receiver struct {
	sink   Sink
	policy *CapabilityPolicy
	peers  *PeerStore
}

// NewReceiver creates a receiver. A nil policy allows everything.
func NewReceiver(sink Sink, policy *CapabilityPolicy) *Receiver {
	if policy == nil {
		policy = NewPermissivePolicy()
	}
	return &Receiver{sink: sink, policy: policy, peers: NewPeerStore()}
}

// Peers returns the receiver's reputation store.
func (r *Receiver) Peers() *PeerStore { return r.peers }

// HandleAnnouncement decides which announced snapshots to request.
func (r *Receiver) HandleAnnouncement(ctx context.Context, peerID string, a *SyncAnnouncement) (*AnnounceResponse, error) {
	if r.peers.IsBanned(peerID) {
		return &AnnounceResponse{Status: AnnounceRejected, RejectReason: "peer is banned"}, nil
	}
	if a.HashVersion != HashVersion {
		return &AnnounceResponse{
			Status:       AnnounceRejected,
			RejectReason: fmt.Sprintf("unsupported hash version %d", a.HashVersion),
		}, nil
	}
	if err := r.policy.Check(a.Capability); err != nil {
		return &AnnounceResponse{Status: AnnounceRejected, RejectReason: err.Error()}, nil
	}
	var want [][32]byte
	for _, h := range a.AllHashes {
		ok, err := r.sink.Has(ctx, h)
		if err != nil {
			return nil, err
		}
		if !ok {
			want = append(want, h)
		}
	}
	if len(want) == 0 {
		return &AnnounceResponse{Status: AnnounceAlreadyHave}, nil
	}
	return &AnnounceResponse{Status: AnnounceAccepted, Want: want}, nil
}

// HandleResponse verifies and stores each received package. Packages that
// fail verification are counted, not fatal; only sink errors abort.
func (r *Receiver) HandleResponse(ctx context.Context, peerID string, resp *SyncResponse) (*TransferResult, error) {
	res := &TransferResult{}
	for i := range resp.Packages {
		p := &resp.Packages[i]
		data, outcome, err := r.verify(p)
		r.peers.Record(peerID, outcome)
		if err != nil {
			log.Warningf("rejected package %x from %s: %v", p.Hash[:8], peerID, err)
			res.Rejected++
			res.FailedHashes = append(res.FailedHashes, p.Hash)
			continue
		}
		if _, err := r.sink.Put(ctx, data); err != nil {
			return res, fmt.Errorf("dist: store %x: %w", p.Hash, err)
		}
		res.Accepted++
	}
	log.Infof("sync from %s: %d accepted, %d rejected", peerID, res.Accepted, res.Rejected)
	return res, nil
}

func (r *Receiver) verify(p *Package) ([]byte, Outcome, error) {
	if err := r.policy.CheckPackage(p); err != nil {
		return nil, OutcomeRejected, err
	}
	data, err := Unpack(p)
	if errors.Is(err, ErrHashMismatch) {
		return nil, OutcomeHashMismatch, err
	}
	if err != nil {
		return nil, OutcomeRejected, err
	}
	if _, err := snapshot.Open(data, snapshot.PermissiveEngine()); err != nil {
		return nil, OutcomeRejected, err
	}
	return data, OutcomeAccepted, nil
}
