package chat

import (
	"github.com/baderanaas/hushlan/pkg/protocol"
)

// Peer is a discovered chat endpoint. Address is host:port of its listener.
type Peer struct {
	Address string
	Name    string
}

// Delivery is the outcome of sending one broadcast to one peer.
type Delivery struct {
	Peer Peer
	Err  error
}

// Report summarizes a broadcast fan-out.
type Report struct {
	Message    *protocol.Message
	Deliveries []Delivery
}

// Failed returns the deliveries that did not reach their peer.
func (r Report) Failed() []Delivery {
	var failed []Delivery
	for _, d := range r.Deliveries {
		if d.Err != nil {
			failed = append(failed, d)
		}
	}
	return failed
}
