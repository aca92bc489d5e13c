// Package discovery advertises the local chat listener on the LAN and reports
// peers appearing and disappearing.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("discovery")

type EventKind int

const (
	PeerFound EventKind = iota + 1
	PeerLost
)

func (k EventKind) String() string {
	switch k {
	case PeerFound:
		return "found"
	case PeerLost:
		return "lost"
	}
	return "unknown"
}

// Event reports a peer by its advertised instance name and chat endpoint.
type Event struct {
	Kind     EventKind
	Instance string
	Host     string
	Port     int
}

// Address is the host:port the peer's chat listener accepts on.
func (e Event) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Service is a running discovery backend.
type Service interface {
	// Start advertises the local instance and begins browsing. The returned
	// channel is closed once ctx is done or Close is called.
	Start(ctx context.Context) (<-chan Event, error)
	// Instance is the name this process advertises under.
	Instance() string
	Close() error
}

type Options struct {
	Instance       string
	Service        string
	Domain         string
	Port           int
	BrowseInterval time.Duration
}

// New returns the backend registered under name.
func New(backend string, opts Options) (Service, error) {
	switch backend {
	case "zeroconf":
		return NewZeroconf(opts), nil
	case "libp2p":
		return NewLibp2p(opts), nil
	}
	return nil, fmt.Errorf("unknown discovery backend %q", backend)
}

func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// tracker turns browse rounds into found/lost events. An instance is lost once
// it has been missing from maxMissed consecutive rounds.
type tracker struct {
	known     map[string]Event
	missed    map[string]int
	maxMissed int
}

func newTracker(maxMissed int) *tracker {
	return &tracker{
		known:     make(map[string]Event),
		missed:    make(map[string]int),
		maxMissed: maxMissed,
	}
}

func (t *tracker) round(seen map[string]Event) []Event {
	var out []Event
	for inst, ev := range seen {
		prev, ok := t.known[inst]
		t.missed[inst] = 0
		if ok && prev.Address() == ev.Address() {
			continue
		}
		ev.Kind = PeerFound
		t.known[inst] = ev
		out = append(out, ev)
	}
	for inst, ev := range t.known {
		if _, ok := seen[inst]; ok {
			continue
		}
		t.missed[inst]++
		if t.missed[inst] < t.maxMissed {
			continue
		}
		delete(t.known, inst)
		delete(t.missed, inst)
		ev.Kind = PeerLost
		out = append(out, ev)
	}
	return out
}
