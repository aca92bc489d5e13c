package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack"
)

type kindRecorder struct {
	seen []Kind
}

func (r *kindRecorder) VisitText(Text)               { r.seen = append(r.seen, KindText) }
func (r *kindRecorder) VisitImage(Image)             { r.seen = append(r.seen, KindImage) }
func (r *kindRecorder) VisitVideo(Video)             { r.seen = append(r.seen, KindVideo) }
func (r *kindRecorder) VisitKeyExchange(KeyExchange) { r.seen = append(r.seen, KindKeyExchange) }

func TestMarshalUnmarshalVariants(t *testing.T) {
	variants := []Variant{
		Text{Body: "hi"},
		Image{Filename: "cat.png", Data: []byte{0x89, 'P', 'N', 'G'}},
		Video{Filename: "clip.mp4", Data: []byte{0, 0, 0, 0x18}},
		KeyExchange{PublicKey: []byte{1, 2, 3}},
	}

	for _, v := range variants {
		msg := &Message{Sender: "alice", Payload: v, Timestamp: 1700000000}
		data, err := Marshal(msg)
		require.NoError(t, err)

		decoded, err := Unmarshal(data)
		require.NoError(t, err, v.Kind().String())
		require.Equal(t, msg, decoded)
	}
}

func TestVisitorDispatch(t *testing.T) {
	rec := &kindRecorder{}
	for _, v := range []Variant{Text{}, Image{}, Video{}, KeyExchange{}} {
		v.Accept(rec)
	}
	require.Equal(t, []Kind{KindText, KindImage, KindVideo, KindKeyExchange}, rec.seen)
}

func TestNewMessageTimestamp(t *testing.T) {
	before := time.Now().Unix()
	msg := NewMessage("bob", Text{Body: "yo"})
	after := time.Now().Unix()

	require.Equal(t, "bob", msg.Sender)
	require.GreaterOrEqual(t, msg.Timestamp, before)
	require.LessOrEqual(t, msg.Timestamp, after)
	require.Equal(t, msg.Timestamp, msg.Time().Unix())
}

func TestMarshalNilPayload(t *testing.T) {
	_, err := Marshal(&Message{Sender: "alice"})
	require.ErrorIs(t, err, ErrUnknownVariant)
}

func TestUnmarshalGarbage(t *testing.T) {
	_, err := Unmarshal([]byte("definitely not msgpack"))
	require.ErrorIs(t, err, ErrUndecodable)

	data, err := msgpack.Marshal(&envelope{Sender: "mallory", Kind: Kind(99), Timestamp: 1})
	require.NoError(t, err)
	_, err = Unmarshal(data)
	require.ErrorIs(t, err, ErrUndecodable)
	require.ErrorIs(t, err, ErrUnknownVariant)
}

func TestKindString(t *testing.T) {
	require.Equal(t, "text", KindText.String())
	require.Equal(t, "key-exchange", KindKeyExchange.String())
	require.Equal(t, "kind(42)", Kind(42).String())
}
