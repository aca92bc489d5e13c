package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/baderanaas/hushlan/pkg/crypto"
)

func newTestCodec(t *testing.T) *crypto.Codec {
	key, err := crypto.NewKey()
	require.NoError(t, err)
	codec, err := crypto.NewCodec(key, crypto.AES256GCM)
	require.NoError(t, err)
	return codec
}

func header(n uint32) []byte {
	var b [HeaderSize]byte
	binary.BigEndian.PutUint32(b[:], n)
	return b[:]
}

// countingReader records how many bytes ReadFrame consumed.
type countingReader struct {
	r    io.Reader
	read int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += n
	return n, err
}

func TestFrameLayout(t *testing.T) {
	codec := newTestCodec(t)
	msg := NewMessage("alice", Text{Body: "hi"})

	frame, err := EncodeFrame(codec, msg)
	require.NoError(t, err)

	declared := binary.BigEndian.Uint32(frame[:HeaderSize])
	require.Equal(t, int(declared), len(frame)-HeaderSize, "declared length should equal the body size")

	plaintext, err := Marshal(msg)
	require.NoError(t, err)
	require.Equal(t, crypto.NonceSize+len(plaintext)+crypto.Overhead, int(declared))
}

func TestWriteReadFrames(t *testing.T) {
	codec := newTestCodec(t)
	var buf bytes.Buffer

	first := NewMessage("alice", Text{Body: "one"})
	second := NewMessage("alice", Image{Filename: "a.jpg", Data: bytes.Repeat([]byte{7}, 4096)})
	require.NoError(t, WriteFrame(&buf, codec, first))
	require.NoError(t, WriteFrame(&buf, codec, second))

	got, err := ReadFrame(&buf, codec)
	require.NoError(t, err)
	require.Equal(t, first, got)

	got, err = ReadFrame(&buf, codec)
	require.NoError(t, err)
	require.Equal(t, second, got)

	_, err = ReadFrame(&buf, codec)
	require.ErrorIs(t, err, io.EOF)
}

func TestReadFrameBounds(t *testing.T) {
	codec := newTestCodec(t)

	for _, n := range []uint32{0, MaxFrameSize + 1} {
		r := &countingReader{r: io.MultiReader(bytes.NewReader(header(n)), bytes.NewReader(make([]byte, 64)))}
		_, err := ReadFrame(r, codec)
		require.ErrorIs(t, err, ErrMalformedFrame, "length %d", n)
		require.Equal(t, HeaderSize, r.read, "no body bytes should be read for length %d", n)
	}
}

func TestReadFrameShortBody(t *testing.T) {
	codec := newTestCodec(t)

	r := bytes.NewReader(append(header(5), 1, 2, 3, 4, 5))
	_, err := ReadFrame(r, codec)
	require.ErrorIs(t, err, ErrMalformedFrame)

	r = bytes.NewReader(append(header(100), 1, 2, 3))
	_, err = ReadFrame(r, codec)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadFrameWrongKey(t *testing.T) {
	sender := newTestCodec(t)
	receiver := newTestCodec(t)

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, sender, NewMessage("alice", Text{Body: "secret"})))

	_, err := ReadFrame(&buf, receiver)
	require.ErrorIs(t, err, crypto.ErrDecrypt)
}

func TestReadFrameUndecodableKeepsAlignment(t *testing.T) {
	codec := newTestCodec(t)

	body, err := codec.Encrypt([]byte{0xc1}) // never-used msgpack code
	require.NoError(t, err)

	var buf bytes.Buffer
	buf.Write(header(uint32(len(body))))
	buf.Write(body)
	require.NoError(t, WriteFrame(&buf, codec, NewMessage("alice", Text{Body: "after"})))

	_, err = ReadFrame(&buf, codec)
	require.ErrorIs(t, err, ErrUndecodable)
	require.False(t, errors.Is(err, ErrMalformedFrame))

	msg, err := ReadFrame(&buf, codec)
	require.NoError(t, err)
	require.Equal(t, Text{Body: "after"}, msg.Payload)
}
