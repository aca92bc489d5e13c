package chat

import (
	"context"
	"fmt"
	"net"

	"github.com/baderanaas/hushlan/pkg/crypto"
	"github.com/baderanaas/hushlan/pkg/protocol"
)

// Broadcaster sends one message to every registered peer, one fresh
// connection per peer, in registry order.
type Broadcaster struct {
	name     string
	codec    *crypto.Codec
	registry *PeerRegistry
	sink     Sink
	metrics  *Metrics
	dialer   net.Dialer
}

func NewBroadcaster(name string, codec *crypto.Codec, registry *PeerRegistry, sink Sink, metrics *Metrics) *Broadcaster {
	return &Broadcaster{
		name:     name,
		codec:    codec,
		registry: registry,
		sink:     sink,
		metrics:  metrics,
	}
}

// Broadcast stamps payload with our name and the current time and delivers it
// sequentially. A failed peer does not stop the fan-out, and the message is
// always shown locally afterwards.
func (b *Broadcaster) Broadcast(ctx context.Context, payload protocol.Variant) Report {
	msg := protocol.NewMessage(b.name, payload)
	peers := b.registry.Snapshot()

	report := Report{Message: msg, Deliveries: make([]Delivery, 0, len(peers))}
	for _, p := range peers {
		err := b.SendMessage(ctx, p, msg)
		if err != nil {
			b.metrics.send(sendFailed)
			log.Warnw("delivery failed", "peer", p.Name, "addr", p.Address, "err", err)
		} else {
			b.metrics.send(sendOK)
		}
		report.Deliveries = append(report.Deliveries, Delivery{Peer: p, Err: err})
	}

	b.sink.Message(msg, true)
	return report
}

// SendMessage opens a connection to p, writes msg as exactly one frame and closes it.
func (b *Broadcaster) SendMessage(ctx context.Context, p Peer, msg *protocol.Message) error {
	conn, err := b.dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", p.Address, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Debugw("error closing outbound connection", "addr", p.Address, "err", err)
		}
	}()

	if err := protocol.WriteFrame(conn, b.codec, msg); err != nil {
		return fmt.Errorf("failed to send to %s: %w", p.Address, err)
	}
	return nil
}
