package chat

import (
	"sort"
	"sync"
)

// PeerRegistry maps listener address to peer. The lock guards the map only
// and is never held across network I/O.
type PeerRegistry struct {
	peers map[string]Peer
	mu    sync.Mutex
}

func NewPeerRegistry() *PeerRegistry {
	return &PeerRegistry{peers: make(map[string]Peer)}
}

// Upsert inserts the peer if its address is unknown and reports whether it did.
// The first name seen for an address is kept.
func (r *PeerRegistry) Upsert(address, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[address]; exists {
		return false
	}
	r.peers[address] = Peer{Address: address, Name: name}
	return true
}

// Lookup returns the peer registered at address.
func (r *PeerRegistry) Lookup(address string) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[address]
	return p, ok
}

// Remove deletes the entry and reports whether one existed.
func (r *PeerRegistry) Remove(address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[address]; !exists {
		return false
	}
	delete(r.peers, address)
	return true
}

// Snapshot returns a point-in-time copy ordered by address.
func (r *PeerRegistry) Snapshot() []Peer {
	r.mu.Lock()
	peers := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	r.mu.Unlock()

	sort.Slice(peers, func(i, j int) bool { return peers[i].Address < peers[j].Address })
	return peers
}

func (r *PeerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
