package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/baderanaas/hushlan/pkg/crypto"
	"github.com/baderanaas/hushlan/pkg/protocol"
)

// Listener accepts inbound connections and reads frames from each one on its
// own goroutine until EOF or the first fatal error.
type Listener struct {
	ln      net.Listener
	codec   *crypto.Codec
	deliver func(*protocol.Message)
	metrics *Metrics

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// Listen binds addr. A bind failure is returned as is; the node cannot run without it.
func Listen(addr string, codec *crypto.Codec, deliver func(*protocol.Message), metrics *Metrics) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{
		ln:      ln,
		codec:   codec,
		deliver: deliver,
		metrics: metrics,
		conns:   make(map[net.Conn]struct{}),
	}, nil
}

func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Port is the bound TCP port.
func (l *Listener) Port() int {
	if tcp, ok := l.ln.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Serve runs the accept loop until Close is called or ctx is done. Any other
// accept error ends the loop and is returned; it is not retried.
func (l *Listener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to accept: %w", err)
		}

		if !l.track(conn) {
			_ = conn.Close()
			return nil
		}
		go l.handleConn(conn)
	}
}

func (l *Listener) track(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.conns[conn] = struct{}{}
	l.metrics.connections.Inc()
	l.wg.Add(1)
	return true
}

func (l *Listener) untrack(conn net.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.conns[conn]; ok {
		delete(l.conns, conn)
		l.metrics.connections.Dec()
	}
}

func (l *Listener) handleConn(conn net.Conn) {
	defer l.wg.Done()
	defer func() {
		l.untrack(conn)
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Debugw("error closing connection", "remote", conn.RemoteAddr().String(), "err", err)
		}
	}()

	remote := conn.RemoteAddr().String()
	log.Debugw("inbound connection", "remote", remote)

	for {
		msg, err := protocol.ReadFrame(conn, l.codec)
		switch {
		case err == nil:
			l.metrics.frame(resultOK)
			l.deliver(msg)
			continue
		case errors.Is(err, protocol.ErrUndecodable):
			// Authentic but unreadable, most likely a newer sender. Keep the stream.
			l.metrics.frame(resultUndecodable)
			log.Warnw("discarded undecodable message", "remote", remote, "err", err)
			continue
		case errors.Is(err, io.EOF):
			log.Debugw("connection closed by peer", "remote", remote)
		case errors.Is(err, protocol.ErrMalformedFrame):
			l.metrics.frame(resultMalformed)
			log.Debugw("dropping connection", "remote", remote, "reason", "malformed frame")
		case errors.Is(err, crypto.ErrDecrypt):
			l.metrics.frame(resultDecrypt)
			log.Debugw("dropping connection", "remote", remote, "reason", "decrypt failed")
		case errors.Is(err, net.ErrClosed):
		default:
			l.metrics.frame(resultIOError)
			log.Debugw("read failed", "remote", remote, "err", err)
		}
		return
	}
}

// Close stops accepting and closes open inbound connections. It does not wait
// for in-flight deliveries beyond the connection goroutines exiting.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	err := l.ln.Close()
	for conn := range l.conns {
		_ = conn.Close()
	}
	l.mu.Unlock()

	l.wg.Wait()
	return err
}
