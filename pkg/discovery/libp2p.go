package discovery

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/libp2p/go-libp2p"
	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"
)

// Libp2p runs a discovery-only libp2p host on UDP/QUIC at the chat port number,
// so a discovered peer's QUIC address names its chat listener directly.
// libp2p mdns reports no removals; this backend never emits PeerLost.
type Libp2p struct {
	opts   Options
	host   host.Host
	svc    mdns.Service
	ctx    context.Context
	cancel context.CancelFunc
	events chan Event

	mu     sync.Mutex
	closed bool
}

func NewLibp2p(opts Options) *Libp2p {
	return &Libp2p{opts: opts}
}

// Instance is the libp2p peer ID once started.
func (l *Libp2p) Instance() string {
	if l.host == nil {
		return l.opts.Instance
	}
	return l.host.ID().String()
}

func (l *Libp2p) Start(ctx context.Context) (<-chan Event, error) {
	priv, _, err := p2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity: %w", err)
	}

	h, err := libp2p.New(
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/udp/%d/quic-v1", l.opts.Port)),
		libp2p.Identity(priv),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}
	l.host = h
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.events = make(chan Event, 16)

	l.svc = mdns.NewMdnsService(h, l.opts.Service, l)
	if err := l.svc.Start(); err != nil {
		l.cancel()
		_ = h.Close()
		return nil, fmt.Errorf("failed to start mDNS discovery: %w", err)
	}

	go func() {
		<-l.ctx.Done()
		l.mu.Lock()
		l.closed = true
		close(l.events)
		l.mu.Unlock()
	}()

	log.Infow("advertising", "peer", h.ID().String(), "service", l.opts.Service, "port", l.opts.Port)
	return l.events, nil
}

// HandlePeerFound implements mdns.Notifee.
func (l *Libp2p) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == l.host.ID() {
		return
	}
	hostIP, port, ok := chatEndpoint(pi.Addrs)
	if !ok {
		log.Debugw("peer without usable address", "peer", pi.ID.String())
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.events <- Event{Kind: PeerFound, Instance: pi.ID.String(), Host: hostIP, Port: port}:
	default:
		log.Warnw("discovery event dropped", "peer", pi.ID.String())
	}
}

// chatEndpoint picks the first non-loopback UDP address, falling back to loopback.
func chatEndpoint(addrs []multiaddr.Multiaddr) (string, int, bool) {
	var (
		fallbackIP   string
		fallbackPort int
	)
	for _, addr := range addrs {
		ip, err := addr.ValueForProtocol(multiaddr.P_IP4)
		if err != nil {
			if ip, err = addr.ValueForProtocol(multiaddr.P_IP6); err != nil {
				continue
			}
		}
		portStr, err := addr.ValueForProtocol(multiaddr.P_UDP)
		if err != nil {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		if parsed := net.ParseIP(ip); parsed != nil && parsed.IsLoopback() {
			if fallbackIP == "" {
				fallbackIP, fallbackPort = ip, port
			}
			continue
		}
		return ip, port, true
	}
	return fallbackIP, fallbackPort, fallbackIP != ""
}

func (l *Libp2p) Close() error {
	if l.cancel != nil {
		l.cancel()
	}
	var err error
	if l.svc != nil {
		err = l.svc.Close()
	}
	if l.host != nil {
		if cerr := l.host.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
