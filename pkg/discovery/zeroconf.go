package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/grandcat/zeroconf"
)

// Zeroconf registers the instance over DNS-SD and browses in rounds of
// BrowseInterval.
type Zeroconf struct {
	opts   Options
	server *zeroconf.Server
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewZeroconf(opts Options) *Zeroconf {
	return &Zeroconf{opts: opts}
}

func (z *Zeroconf) Instance() string {
	return z.opts.Instance
}

func (z *Zeroconf) Start(ctx context.Context) (<-chan Event, error) {
	server, err := zeroconf.Register(z.opts.Instance, z.opts.Service, z.opts.Domain, z.opts.Port,
		[]string{"id=" + z.opts.Instance}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	z.server = server

	ctx, z.cancel = context.WithCancel(ctx)
	events := make(chan Event, 16)

	z.wg.Add(1)
	go func() {
		defer z.wg.Done()
		defer close(events)
		z.browseLoop(ctx, events)
	}()

	log.Infow("advertising", "instance", z.opts.Instance, "service", z.opts.Service, "port", z.opts.Port)
	return events, nil
}

func (z *Zeroconf) browseLoop(ctx context.Context, events chan<- Event) {
	t := newTracker(2)
	for ctx.Err() == nil {
		seen, err := z.browse(ctx)
		if err != nil {
			log.Warnw("browse failed", "err", err)
		}
		if ctx.Err() != nil {
			return
		}
		for _, ev := range t.round(seen) {
			if !emit(ctx, events, ev) {
				return
			}
		}
	}
}

// browse collects every instance answering within one interval.
func (z *Zeroconf) browse(ctx context.Context) (map[string]Event, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	rctx, cancel := context.WithTimeout(ctx, z.opts.BrowseInterval)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(rctx, z.opts.Service, z.opts.Domain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse: %w", err)
	}

	seen := make(map[string]Event)
	for {
		select {
		case <-rctx.Done():
			return seen, nil
		case entry, ok := <-entries:
			if !ok {
				<-rctx.Done()
				return seen, nil
			}
			if ev, ok := z.entryEvent(entry); ok {
				seen[ev.Instance] = ev
			}
		}
	}
}

func (z *Zeroconf) entryEvent(entry *zeroconf.ServiceEntry) (Event, bool) {
	if entry == nil || entry.Instance == z.opts.Instance {
		return Event{}, false
	}
	ev := Event{Instance: entry.Instance, Port: entry.Port}
	switch {
	case len(entry.AddrIPv4) > 0:
		ev.Host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		ev.Host = entry.AddrIPv6[0].String()
	default:
		return Event{}, false
	}
	return ev, true
}

func (z *Zeroconf) Close() error {
	if z.cancel != nil {
		z.cancel()
	}
	if z.server != nil {
		z.server.Shutdown()
	}
	z.wg.Wait()
	return nil
}
