// Package envelope encrypts assets at rest with AES-256-GCM.
//
// The ciphertext is stored on its own; the 12-byte IV and the 16-byte
// authentication tag are kept next to the asset metadata as two base64 fields.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	KeySize = 32
	IVSize  = 12
	TagSize = 16

	Algorithm = "aes-256-gcm"
)

var (
	// ErrIntegrity is returned whenever a ciphertext cannot be authenticated:
	// the tag does not verify, or the IV or tag has the wrong length.
	ErrIntegrity  = errors.New("envelope: integrity check failed")
	ErrInvalidKey = errors.New("envelope: key must be 32 bytes")
)

// Envelope is the per-asset material needed to decrypt it.
type Envelope struct {
	IV      []byte
	AuthTag []byte
}

func (e Envelope) validate() error {
	if len(e.IV) != IVSize {
		return fmt.Errorf("%w: iv has %d bytes, want %d", ErrIntegrity, len(e.IV), IVSize)
	}
	if len(e.AuthTag) != TagSize {
		return fmt.Errorf("%w: tag has %d bytes, want %d", ErrIntegrity, len(e.AuthTag), TagSize)
	}
	return nil
}

// Encode returns the base64 forms stored in the metadata columns.
func (e Envelope) Encode() (iv, tag string) {
	return base64.StdEncoding.EncodeToString(e.IV), base64.StdEncoding.EncodeToString(e.AuthTag)
}

// DecodeEnvelope parses the stored base64 columns.
func DecodeEnvelope(iv, tag string) (Envelope, error) {
	rawIV, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: iv is not base64", ErrIntegrity)
	}
	rawTag, err := base64.StdEncoding.DecodeString(tag)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: tag is not base64", ErrIntegrity)
	}
	env := Envelope{IV: rawIV, AuthTag: rawTag}
	if err := env.validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Service wraps and unwraps buffers with one process-wide key.
type Service struct {
	block cipher.Block
	aead  cipher.AEAD
}

func New(key []byte) (*Service, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Service{block: block, aead: aead}, nil
}

// Wrap encrypts plaintext under a fresh random IV. The returned ciphertext has
// the same length as plaintext; the tag is returned in the envelope.
func (s *Service) Wrap(plaintext []byte) ([]byte, Envelope, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, Envelope{}, fmt.Errorf("generate iv: %w", err)
	}

	sealed := s.aead.Seal(nil, iv, plaintext, nil)
	split := len(sealed) - TagSize
	ciphertext := sealed[:split:split]
	tag := make([]byte, TagSize)
	copy(tag, sealed[split:])

	return ciphertext, Envelope{IV: iv, AuthTag: tag}, nil
}

// Unwrap authenticates and decrypts a whole ciphertext. Nothing is returned
// unless the tag verifies.
func (s *Service) Unwrap(ciphertext []byte, env Envelope) ([]byte, error) {
	if err := env.validate(); err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, env.AuthTag...)

	plaintext, err := s.aead.Open(nil, env.IV, sealed, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}
