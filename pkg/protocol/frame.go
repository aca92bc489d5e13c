package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	logging "github.com/ipfs/go-log/v2"

	"github.com/baderanaas/hushlan/pkg/crypto"
)

var log = logging.Logger("protocol")

const (
	// MaxFrameSize bounds the declared length of a single frame.
	MaxFrameSize = 50 << 20
	// HeaderSize is the big-endian length prefix.
	HeaderSize = 4
)

// ErrMalformedFrame is returned when a frame's declared length is out of range
// or its body is too short to hold a nonce.
var ErrMalformedFrame = errors.New("malformed frame")

// EncodeFrame serializes and encrypts m, returning length || nonce || ciphertext.
func EncodeFrame(c *crypto.Codec, m *Message) ([]byte, error) {
	plaintext, err := Marshal(m)
	if err != nil {
		return nil, err
	}
	body, err := c.Encrypt(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt frame: %w", err)
	}
	if len(body) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit", ErrMalformedFrame, len(body))
	}

	frame := make([]byte, HeaderSize, HeaderSize+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	return append(frame, body...), nil
}

// WriteFrame encodes m and writes it as a single frame.
func WriteFrame(w io.Writer, c *crypto.Codec, m *Message) error {
	frame, err := EncodeFrame(c, m)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// ReadFrame blocks until one full frame has been read from r, then decrypts and
// decodes it.
//
// Errors wrapping ErrMalformedFrame or crypto.ErrDecrypt, and plain I/O errors,
// leave the stream unusable. An error wrapping ErrUndecodable means the frame
// was authentic but its contents did not decode; the stream is still aligned.
func ReadFrame(r io.Reader, c *crypto.Codec) (*Message, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(header[:])
	if n == 0 || n > MaxFrameSize {
		return nil, fmt.Errorf("%w: declared length %d", ErrMalformedFrame, n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	plaintext, err := c.Decrypt(body)
	if err != nil {
		if errors.Is(err, crypto.ErrShortCiphertext) {
			return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		}
		return nil, err
	}

	msg, err := Unmarshal(plaintext)
	if err != nil {
		log.Debugw("authentic frame failed to decode", "len", n, "err", err)
		return nil, err
	}
	return msg, nil
}
