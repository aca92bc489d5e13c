package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/baderanaas/hushlan/pkg/protocol"
)

const helpText = `Commands:
  /connect <host:port>  - Add a peer by address
  /img <path>           - Send an image to all peers
  /vid <path>           - Send a video to all peers
  /peers                - List known peers
  /help                 - Show this help
  /quit                 - Exit (also: exit)
  <message>             - Send a text message to all peers`

// RunCLI reads commands from in until /quit, EOF or ctx is done.
func (n *Node) RunCLI(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	n.sink.Notice("Encrypted LAN chat started as %s on port %d. Type /help for commands.", n.cfg.Name, n.Port())

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch {
		case input == "/quit" || input == "exit":
			n.sink.Notice("exiting...")
			return nil

		case input == "/help":
			n.sink.Notice("%s", helpText)

		case input == "/peers":
			n.listPeers()

		case command(input, "/connect"):
			addr := strings.TrimSpace(strings.TrimPrefix(input, "/connect"))
			if err := n.Connect(addr); err != nil {
				n.sink.Notice("Usage: /connect <host:port> (%v)", err)
			}

		case command(input, "/img"):
			n.sendFile(ctx, strings.TrimSpace(strings.TrimPrefix(input, "/img")), func(name string, data []byte) protocol.Variant {
				return protocol.Image{Filename: name, Data: data}
			})

		case command(input, "/vid"):
			n.sendFile(ctx, strings.TrimSpace(strings.TrimPrefix(input, "/vid")), func(name string, data []byte) protocol.Variant {
				return protocol.Video{Filename: name, Data: data}
			})

		default:
			n.broadcastAndReport(ctx, protocol.Text{Body: input})
		}
	}
	return scanner.Err()
}

// command reports whether input is cmd alone or cmd followed by arguments.
func command(input, cmd string) bool {
	return input == cmd || strings.HasPrefix(input, cmd+" ")
}

func (n *Node) listPeers() {
	peers := n.registry.Snapshot()
	if len(peers) == 0 {
		n.sink.Notice("No peers discovered yet.")
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Known peers (%d):", len(peers))
	for _, p := range peers {
		fmt.Fprintf(&b, "\n  - %s (%s)", shortID(p.Name), p.Address)
	}
	n.sink.Notice("%s", b.String())
}

func (n *Node) sendFile(ctx context.Context, path string, build func(name string, data []byte) protocol.Variant) {
	if path == "" {
		n.sink.Notice("Usage: /img <path> or /vid <path>")
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		n.sink.Notice("Failed to read %s: %v", path, err)
		return
	}
	n.broadcastAndReport(ctx, build(filepath.Base(path), data))
}

func (n *Node) broadcastAndReport(ctx context.Context, payload protocol.Variant) {
	report := n.Broadcast(ctx, payload)
	for _, d := range report.Failed() {
		n.sink.Notice("Failed to deliver to %s (%s): %v", shortID(d.Peer.Name), d.Peer.Address, d.Err)
	}
}
