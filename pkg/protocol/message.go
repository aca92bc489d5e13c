// Package protocol defines the chat message record and its length-prefixed,
// encrypted wire framing.
package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack"
)

var (
	ErrUnknownVariant = errors.New("unknown message variant")
	ErrUndecodable    = errors.New("payload does not decode to a message")
)

// Kind tags a Variant on the wire.
type Kind uint8

const (
	KindText Kind = iota + 1
	KindImage
	KindVideo
	KindKeyExchange
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindKeyExchange:
		return "key-exchange"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Variant is the closed set of message payloads. Only types in this package implement it.
type Variant interface {
	Kind() Kind
	Accept(v Visitor)
}

// Visitor handles every Variant. Adding a variant adds a method here, so every
// implementation stops compiling until it handles the new case.
type Visitor interface {
	VisitText(Text)
	VisitImage(Image)
	VisitVideo(Video)
	VisitKeyExchange(KeyExchange)
}

type Text struct {
	Body string `msgpack:"body"`
}

type Image struct {
	Filename string `msgpack:"filename"`
	Data     []byte `msgpack:"data"`
}

type Video struct {
	Filename string `msgpack:"filename"`
	Data     []byte `msgpack:"data"`
}

// KeyExchange is carried by the protocol but nothing produces or acts on it.
type KeyExchange struct {
	PublicKey []byte `msgpack:"public_key"`
}

func (Text) Kind() Kind        { return KindText }
func (Image) Kind() Kind       { return KindImage }
func (Video) Kind() Kind       { return KindVideo }
func (KeyExchange) Kind() Kind { return KindKeyExchange }

func (t Text) Accept(v Visitor)        { v.VisitText(t) }
func (i Image) Accept(v Visitor)       { v.VisitImage(i) }
func (m Video) Accept(v Visitor)       { v.VisitVideo(m) }
func (k KeyExchange) Accept(v Visitor) { v.VisitKeyExchange(k) }

// Message is one chat record. Timestamp is unix seconds.
type Message struct {
	Sender    string
	Payload   Variant
	Timestamp int64
}

// NewMessage stamps payload with the current time.
func NewMessage(sender string, payload Variant) *Message {
	return &Message{
		Sender:    sender,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}
}

// Time returns the timestamp as a local time.
func (m *Message) Time() time.Time {
	return time.Unix(m.Timestamp, 0)
}

type envelope struct {
	Sender    string `msgpack:"sender"`
	Kind      Kind   `msgpack:"kind"`
	Body      []byte `msgpack:"body"`
	Timestamp int64  `msgpack:"ts"`
}

// Marshal serializes m with msgpack. The variant is encoded separately and
// carried as the envelope body under its Kind tag.
func Marshal(m *Message) ([]byte, error) {
	if m.Payload == nil {
		return nil, fmt.Errorf("failed to marshal message: %w", ErrUnknownVariant)
	}
	var (
		body []byte
		err  error
	)
	switch p := m.Payload.(type) {
	case Text:
		body, err = msgpack.Marshal(&p)
	case Image:
		body, err = msgpack.Marshal(&p)
	case Video:
		body, err = msgpack.Marshal(&p)
	case KeyExchange:
		body, err = msgpack.Marshal(&p)
	default:
		return nil, fmt.Errorf("failed to marshal message: %w: %T", ErrUnknownVariant, p)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", m.Payload.Kind(), err)
	}

	return msgpack.Marshal(&envelope{
		Sender:    m.Sender,
		Kind:      m.Payload.Kind(),
		Body:      body,
		Timestamp: m.Timestamp,
	})
}

// Unmarshal decodes a Message produced by Marshal. Any failure wraps ErrUndecodable.
func Unmarshal(data []byte) (*Message, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	var (
		payload Variant
		err     error
	)
	switch env.Kind {
	case KindText:
		var p Text
		err = msgpack.Unmarshal(env.Body, &p)
		payload = p
	case KindImage:
		var p Image
		err = msgpack.Unmarshal(env.Body, &p)
		payload = p
	case KindVideo:
		var p Video
		err = msgpack.Unmarshal(env.Body, &p)
		payload = p
	case KindKeyExchange:
		var p KeyExchange
		err = msgpack.Unmarshal(env.Body, &p)
		payload = p
	default:
		return nil, fmt.Errorf("%w: %w %s", ErrUndecodable, ErrUnknownVariant, env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s body: %v", ErrUndecodable, env.Kind, err)
	}

	return &Message{
		Sender:    env.Sender,
		Payload:   payload,
		Timestamp: env.Timestamp,
	}, nil
}
