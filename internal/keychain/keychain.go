// Package keychain seals portal credentials before they are stored.
package keychain

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	KeySize   = 32
	nonceSize = 24
)

var ErrCorrupt = errors.New("sealed value is corrupt or was sealed with another key")

// Keychain seals and opens values with a single secret key.
type Keychain struct {
	key [KeySize]byte
}

// New decodes a base64 key of KeySize bytes.
func New(encodedKey string) (Keychain, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return Keychain{}, fmt.Errorf("decode key: %w", err)
	}
	if len(raw) != KeySize {
		return Keychain{}, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(raw))
	}
	k := Keychain{}
	copy(k.key[:], raw)
	return k, nil
}

// GenerateKey returns a fresh base64 key usable with New.
func GenerateKey() (string, error) {
	raw := make([]byte, KeySize)
	_, err := io.ReadFull(rand.Reader, raw)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Seal returns the nonce followed by the sealed plaintext.
func (k Keychain) Seal(plaintext string) ([]byte, error) {
	var nonce [nonceSize]byte
	_, err := io.ReadFull(rand.Reader, nonce[:])
	if err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &k.key), nil
}

func (k Keychain) Open(sealed []byte) (string, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", ErrCorrupt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &k.key)
	if !ok {
		return "", ErrCorrupt
	}
	return string(out), nil
}
