package dist

import (
	"sync"
	"time"
)

const defaultBanThreshold = 3

// Outcome is the result of one package received from a peer.
type Outcome uint8

const (
	OutcomeAccepted Outcome = iota
	OutcomeRejected          // refused by policy or not a valid snapshot
	OutcomeHashMismatch      // payload did not match its declared hash
)

// PeerReputation tracks the trust level of a single peer.
type PeerReputation struct {
	PeerID         string
	Accepted       int
	Rejected       int
	HashMismatches int
	LastSeen       time.Time
	Banned         bool
}

// PeerStore maintains reputation data for all known peers. A peer is
// banned once it has sent banThreshold packages whose hash did not match.
type PeerStore struct {
	mu           sync.RWMutex
	peers        map[string]*PeerReputation
	banThreshold int
	now          func() time.Time
}

// NewPeerStore creates a new peer store with default settings.
func NewPeerStore() *PeerStore {
	return &PeerStore{
		peers:        make(map[string]*PeerReputation),
		banThreshold: defaultBanThreshold,
		now:          time.Now,
	}
}

// Record accounts one package outcome to a peer.
func (ps *PeerStore) Record(peerID string, o Outcome) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p, ok := ps.peers[peerID]
	if !ok {
		p = &PeerReputation{PeerID: peerID}
		ps.peers[peerID] = p
	}
	p.LastSeen = ps.now()
	switch o {
	case OutcomeAccepted:
		p.Accepted++
	case OutcomeRejected:
		p.Rejected++
	case OutcomeHashMismatch:
		p.HashMismatches++
		if p.HashMismatches >= ps.banThreshold {
			p.Banned = true
		}
	}
}

// IsBanned returns true if the peer has been banned.
func (ps *PeerStore) IsBanned(peerID string) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.peers[peerID]
	return ok && p.Banned
}

// Reputation returns a copy of the peer's reputation data, or nil if the
// peer is unknown.
func (ps *PeerStore) Reputation(peerID string) *PeerReputation {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.peers[peerID]
	if !ok {
		return nil
	}
	rep := *p
	return &rep
}

// PeerCount returns the number of known peers.
func (ps *PeerStore) PeerCount() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.peers)
}
