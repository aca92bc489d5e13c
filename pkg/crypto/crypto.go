package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the length of the shared symmetric key.
	KeySize = 32
	// NonceSize is the length of the random nonce prefixed to every ciphertext.
	NonceSize = 12
	// Overhead is the authentication tag length appended by the cipher.
	Overhead = 16
)

var (
	ErrDecrypt         = errors.New("decryption failed")
	ErrShortCiphertext = errors.New("ciphertext shorter than nonce")
	ErrKeySize         = fmt.Errorf("key must be %d bytes", KeySize)
)

// Suite names an AEAD construction. Both suites use a 32-byte key and a 12-byte nonce.
type Suite string

const (
	AES256GCM        Suite = "aes-256-gcm"
	ChaCha20Poly1305 Suite = "chacha20-poly1305"
)

// Key is the process-wide symmetric key. It is created once and never rotated.
type Key [KeySize]byte

// NewKey returns a fresh random key.
func NewKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return Key{}, fmt.Errorf("failed to generate key: %w", err)
	}
	return k, nil
}

// ParseKey decodes a hex encoded key.
func ParseKey(s string) (Key, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Key{}, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(raw) != KeySize {
		return Key{}, ErrKeySize
	}
	var k Key
	copy(k[:], raw)
	return k, nil
}

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Codec seals and opens frame bodies under a single key.
// A Codec is safe for concurrent use.
type Codec struct {
	aead  cipher.AEAD
	suite Suite
}

// NewCodec builds a codec for the given key and suite. An empty suite means AES-256-GCM.
func NewCodec(key Key, suite Suite) (*Codec, error) {
	var (
		aead cipher.AEAD
		err  error
	)
	switch suite {
	case "", AES256GCM:
		suite = AES256GCM
		var block cipher.Block
		block, err = aes.NewCipher(key[:])
		if err != nil {
			return nil, err
		}
		aead, err = cipher.NewGCM(block)
	case ChaCha20Poly1305:
		aead, err = chacha20poly1305.New(key[:])
	default:
		return nil, fmt.Errorf("unknown cipher suite %q", suite)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", suite, err)
	}
	return &Codec{aead: aead, suite: suite}, nil
}

// Suite reports the AEAD construction in use.
func (c *Codec) Suite() Suite {
	return c.suite
}

// Encrypt seals plaintext under a fresh random nonce and returns nonce || ciphertext.
// No associated data is bound.
func (c *Codec) Encrypt(plaintext []byte) ([]byte, error) {
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.aead.Seal(out, out[:NonceSize], plaintext, nil), nil
}

// Decrypt opens a body produced by Encrypt. Tampering, corruption and a wrong key
// all surface as ErrDecrypt.
func (c *Codec) Decrypt(body []byte) ([]byte, error) {
	if len(body) < NonceSize {
		return nil, ErrShortCiphertext
	}
	nonce, ct := body[:NonceSize], body[NonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// Encrypt using AES-256-GCM with a one-off codec.
func Encrypt(plaintext []byte, key Key) ([]byte, error) {
	c, err := NewCodec(key, AES256GCM)
	if err != nil {
		return nil, err
	}
	return c.Encrypt(plaintext)
}

// Decrypt AES-256-GCM with a one-off codec.
func Decrypt(body []byte, key Key) ([]byte, error) {
	c, err := NewCodec(key, AES256GCM)
	if err != nil {
		return nil, err
	}
	return c.Decrypt(body)
}
