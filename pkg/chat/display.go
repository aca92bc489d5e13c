package chat

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/baderanaas/hushlan/pkg/protocol"
)

// Sink is where messages and notices end up for the user.
type Sink interface {
	// Message shows a chat message; local is true for our own broadcasts.
	Message(msg *protocol.Message, local bool)
	Notice(format string, args ...any)
}

const timeLayout = "2006-01-02 15:04:05"

var (
	timeStyle   = lipgloss.NewStyle().Faint(true)
	localStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	remoteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

// TerminalSink renders to a writer. When DownloadDir is set, received media
// is written there as received_<name>.
type TerminalSink struct {
	out         io.Writer
	downloadDir string
	mu          sync.Mutex
}

func NewTerminalSink(out io.Writer, downloadDir string) *TerminalSink {
	return &TerminalSink{out: out, downloadDir: downloadDir}
}

func (s *TerminalSink) Message(msg *protocol.Message, local bool) {
	r := &renderer{sink: s, local: local}
	msg.Payload.Accept(r)

	style := remoteStyle
	if local {
		style = localStyle
	}
	line := fmt.Sprintf("[%s] %s: %s",
		timeStyle.Render(msg.Time().Format(timeLayout)),
		style.Render(msg.Sender),
		r.text)

	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, line)
}

func (s *TerminalSink) Notice(format string, args ...any) {
	line := fmt.Sprintf("[%s] %s",
		timeStyle.Render(timeNow().Format(timeLayout)),
		noticeStyle.Render(fmt.Sprintf(format, args...)))

	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, line)
}

// renderer builds the display text for one payload and saves received media.
type renderer struct {
	sink  *TerminalSink
	local bool
	text  string
}

func (r *renderer) VisitText(t protocol.Text) {
	r.text = t.Body
}

func (r *renderer) VisitImage(img protocol.Image) {
	r.text = r.media("image", img.Filename, img.Data)
}

func (r *renderer) VisitVideo(v protocol.Video) {
	r.text = r.media("video", v.Filename, v.Data)
}

func (r *renderer) VisitKeyExchange(k protocol.KeyExchange) {
	r.text = fmt.Sprintf("[key exchange, %d byte public key, ignored]", len(k.PublicKey))
}

func (r *renderer) media(kind, filename string, data []byte) string {
	text := fmt.Sprintf("[%s %s, %s]", kind, filename, humanize.Bytes(uint64(len(data))))
	if r.local || r.sink.downloadDir == "" {
		return text
	}
	path, err := r.sink.save(filename, data)
	if err != nil {
		log.Warnw("failed to save received file", "file", filename, "err", err)
		return text + " (not saved)"
	}
	return text + " saved to " + path
}

func (s *TerminalSink) save(filename string, data []byte) (string, error) {
	name, ok := safeFilename(filename)
	if !ok {
		return "", fmt.Errorf("unusable file name %q", filename)
	}
	if err := os.MkdirAll(s.downloadDir, 0700); err != nil {
		return "", err
	}
	path := filepath.Join(s.downloadDir, "received_"+name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", err
	}
	return path, nil
}
