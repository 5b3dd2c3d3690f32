package credential

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	KeyIDPrefix  = "kid_"
	SecretPrefix = "sk_"

	keyIDBytes  = 8 // 64 bits
	secretBytes = 32
)

// NewKeyID returns a public, URL-safe key identifier.
func NewKeyID() (string, error) {
	b := make([]byte, keyIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key id: %w", err)
	}
	return KeyIDPrefix + hex.EncodeToString(b), nil
}

// NewSecret returns raw, URL-safe secret material.
func NewSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return SecretPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// GeneratedKey is fresh key material. Secret must be handed to the caller
// once and then dropped; only Hash is persisted.
type GeneratedKey struct {
	KID    string
	Secret string
	Hash   string
}

func (c *Cipher) GenerateKey() (*GeneratedKey, error) {
	kid, err := NewKeyID()
	if err != nil {
		return nil, err
	}
	secret, err := NewSecret()
	if err != nil {
		return nil, err
	}
	hash, err := c.HashSecret(secret)
	if err != nil {
		return nil, err
	}
	return &GeneratedKey{KID: kid, Secret: secret, Hash: hash}, nil
}
