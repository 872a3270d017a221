package sealer

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var ErrOpen = errors.New("sealed value could not be opened")

// Sealer encrypts stored token lines with NaCl secretbox. The sealed form is
// base64(nonce || box) so it stays on a single line.
type Sealer struct {
	key  [32]byte
	rand io.Reader
}

func New(key *[32]byte) *Sealer {
	return &Sealer{key: *key, rand: rand.Reader}
}

func (s *Sealer) Seal(plain []byte) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(s.rand, nonce[:]); err != nil {
		return "", fmt.Errorf("[Sealer Seal] failed to generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], plain, &nonce, &s.key)
	return base64.RawStdEncoding.EncodeToString(box), nil
}

func (s *Sealer) Open(sealed string) ([]byte, error) {
	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("%w: value too short", ErrOpen)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrOpen
	}
	return plain, nil
}
