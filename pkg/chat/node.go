package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/baderanaas/hushlan/pkg/config"
	"github.com/baderanaas/hushlan/pkg/crypto"
	"github.com/baderanaas/hushlan/pkg/discovery"
	"github.com/baderanaas/hushlan/pkg/protocol"
)

var log = logging.Logger("chat")

// ErrInvalidAddress is returned by Connect for anything that is not host:port.
var ErrInvalidAddress = errors.New("invalid peer address")

// Node owns the key, the peer registry, the listener and the broadcaster.
type Node struct {
	cfg        config.Config
	instanceID string

	codec       *crypto.Codec
	registry    *PeerRegistry
	listener    *Listener
	broadcaster *Broadcaster
	sink        Sink
	metrics     *Metrics

	// last address each discovered instance was seen at
	instMu    sync.Mutex
	instances map[string]string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNode creates the key, binds the listener and wires the components.
// The listener is bound but not serving until Start.
func NewNode(cfg config.Config, sink Sink) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	key, err := cfg.Key()
	if err != nil {
		return nil, fmt.Errorf("failed to load key: %w", err)
	}
	codec, err := crypto.NewCodec(key, crypto.Suite(cfg.Cipher))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	node := &Node{
		cfg:        cfg,
		instanceID: newInstanceID(),
		codec:      codec,
		registry:   NewPeerRegistry(),
		sink:       sink,
		metrics:    NewMetrics(),
		instances:  make(map[string]string),
		ctx:        ctx,
		cancel:     cancel,
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	node.listener, err = Listen(addr, codec, node.receive, node.metrics)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	node.broadcaster = NewBroadcaster(cfg.Name, codec, node.registry, sink, node.metrics)

	log.Infow("listening", "addr", node.listener.Addr().String(), "cipher", codec.Suite(), "instance", node.instanceID)
	return node, nil
}

// Start runs the accept loop in the background.
func (n *Node) Start() {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.listener.Serve(n.ctx); err != nil {
			log.Errorw("listener stopped", "err", err)
			n.sink.Notice("Listener stopped: %v", err)
		}
	}()
}

func (n *Node) receive(msg *protocol.Message) {
	n.sink.Message(msg, false)
}

// Port is the listening port to advertise.
func (n *Node) Port() int {
	return n.listener.Port()
}

// InstanceID is this run's unique discovery name.
func (n *Node) InstanceID() string {
	return n.instanceID
}

func (n *Node) Metrics() *Metrics {
	return n.metrics
}

// Peers returns a snapshot of the registry.
func (n *Node) Peers() []Peer {
	return n.registry.Snapshot()
}

// AddPeer registers a peer directly and reports whether it was new.
func (n *Node) AddPeer(address, name string) bool {
	added := n.registry.Upsert(address, name)
	if added {
		n.metrics.peers.Set(float64(n.registry.Len()))
	}
	return added
}

// Connect registers a peer typed in by the user, named by its address.
func (n *Node) Connect(address string) error {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidAddress, address, err)
	}
	port, err := strconv.Atoi(portStr)
	if host == "" || err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("%w %q", ErrInvalidAddress, address)
	}

	if n.AddPeer(address, address) {
		log.Infow("peer added", "addr", address)
		n.sink.Notice("peer added: %s", address)
	} else {
		n.sink.Notice("peer already known: %s", address)
	}
	return nil
}

// Broadcast sends payload to every known peer and displays it locally.
func (n *Node) Broadcast(ctx context.Context, payload protocol.Variant) Report {
	return n.broadcaster.Broadcast(ctx, payload)
}

// HandleDiscovery applies one discovery event to the registry.
func (n *Node) HandleDiscovery(ev discovery.Event) {
	switch ev.Kind {
	case discovery.PeerFound:
		if ev.Instance == n.instanceID || ev.Port == n.Port() {
			return
		}
		n.forgetPreviousAddress(ev)
		if n.AddPeer(ev.Address(), ev.Instance) {
			log.Infow("peer found", "instance", ev.Instance, "addr", ev.Address())
			n.sink.Notice("peer joined: %s (%s)", shortID(ev.Instance), ev.Address())
		}
	case discovery.PeerLost:
		log.Infow("peer lost", "instance", ev.Instance, "addr", ev.Address())
		n.sink.Notice("peer left: %s (%s)", shortID(ev.Instance), ev.Address())
		if !n.cfg.Discovery.PruneLost {
			return
		}
		n.instMu.Lock()
		if n.instances[ev.Instance] == ev.Address() {
			delete(n.instances, ev.Instance)
		}
		n.instMu.Unlock()
		if n.registry.Remove(ev.Address()) {
			n.metrics.peers.Set(float64(n.registry.Len()))
		}
	}
}

// forgetPreviousAddress drops the registry entry an instance held before it
// moved to a new address. Entries registered under another name are kept.
func (n *Node) forgetPreviousAddress(ev discovery.Event) {
	addr := ev.Address()

	n.instMu.Lock()
	prev, known := n.instances[ev.Instance]
	n.instances[ev.Instance] = addr
	n.instMu.Unlock()

	if !known || prev == addr {
		return
	}
	if p, ok := n.registry.Lookup(prev); !ok || p.Name != ev.Instance {
		return
	}
	if n.registry.Remove(prev) {
		n.metrics.peers.Set(float64(n.registry.Len()))
		log.Infow("peer moved", "instance", ev.Instance, "from", prev, "to", addr)
	}
}

// ConsumeDiscovery applies events until the channel closes or ctx is done.
func (n *Node) ConsumeDiscovery(ctx context.Context, events <-chan discovery.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			n.HandleDiscovery(ev)
		}
	}
}

// Close stops the listener. In-flight broadcasts are not drained.
func (n *Node) Close() error {
	n.cancel()
	err := n.listener.Close()
	n.wg.Wait()
	return err
}
