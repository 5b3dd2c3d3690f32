// Package credential hashes and verifies tenant passwords and API-key
// secrets, generates key material, and signs session tokens.
package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/keyhub/internal/apperr"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	saltBytes   = 16
	minSaltLen  = 8
	argonFormat = "$argon2id$v=%d$m=%d,t=%d,p=%d$%s"

	// MaxSecretBytes is bcrypt's input limit.
	MaxSecretBytes = 72
)

// Params tunes the cost of both hash functions.
type Params struct {
	// Argon2id, used for passwords because the salt must be explicit and reusable.
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32

	// BcryptCost is used for API-key secrets, which are self-salted.
	BcryptCost int
}

// DefaultParams follows the argon2id recommendations from RFC 9106 (second
// option) and bcrypt's default cost.
func DefaultParams() Params {
	return Params{
		Time:       3,
		Memory:     64 * 1024,
		Threads:    4,
		KeyLen:     32,
		BcryptCost: bcrypt.DefaultCost,
	}
}

// Cipher holds the hashing parameters. It has no mutable state and is safe
// for concurrent use.
type Cipher struct {
	p Params
}

func NewCipher(p Params) *Cipher {
	d := DefaultParams()
	if p.Time == 0 {
		p.Time = d.Time
	}
	if p.Memory == 0 {
		p.Memory = d.Memory
	}
	if p.Threads == 0 {
		p.Threads = d.Threads
	}
	if p.KeyLen == 0 {
		p.KeyLen = d.KeyLen
	}
	if p.BcryptCost < bcrypt.MinCost || p.BcryptCost > bcrypt.MaxCost {
		p.BcryptCost = d.BcryptCost
	}
	return &Cipher{p: p}
}

// HashPassword derives an argon2id hash of password. An empty salt makes a
// fresh random one; passing the returned salt back reproduces the same hash.
func (c *Cipher) HashPassword(password, salt string) (hash string, usedSalt string, err error) {
	if salt == "" {
		raw := make([]byte, saltBytes)
		if _, err := rand.Read(raw); err != nil {
			return "", "", fmt.Errorf("generate salt: %w", err)
		}
		salt = base64.RawStdEncoding.EncodeToString(raw)
	}
	rawSalt, err := decodeSalt(salt)
	if err != nil {
		return "", "", err
	}
	key := argon2.IDKey([]byte(password), rawSalt, c.p.Time, c.p.Memory, c.p.Threads, c.p.KeyLen)
	return encodeArgon(argon2.Version, c.p.Memory, c.p.Time, c.p.Threads, key), salt, nil
}

// VerifyPassword recomputes the hash with the parameters recorded in hash and
// compares in constant time.
func (c *Cipher) VerifyPassword(password, hash, salt string) bool {
	rawSalt, err := decodeSalt(salt)
	if err != nil {
		return false
	}
	version, memory, time, threads, want, err := decodeArgon(hash)
	if err != nil || version != argon2.Version {
		return false
	}
	got := argon2.IDKey([]byte(password), rawSalt, time, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// HashSecret hashes raw API-key material with bcrypt. Two calls with the same
// secret give different hashes.
func (c *Cipher) HashSecret(secret string) (string, error) {
	if len(secret) > MaxSecretBytes {
		return "", apperr.New(apperr.Validation, "secret too long")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(secret), c.p.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(h), nil
}

func (c *Cipher) VerifySecret(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

func decodeSalt(salt string) ([]byte, error) {
	raw, err := base64.RawStdEncoding.DecodeString(salt)
	if err != nil || len(raw) < minSaltLen {
		return nil, apperr.New(apperr.Validation, "invalid salt")
	}
	return raw, nil
}

func encodeArgon(version int, memory, time uint32, threads uint8, key []byte) string {
	return fmt.Sprintf(argonFormat, version, memory, time, threads,
		base64.RawStdEncoding.EncodeToString(key))
}

func decodeArgon(hash string) (version int, memory, time uint32, threads uint8, key []byte, err error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 5 || parts[1] != "argon2id" {
		return 0, 0, 0, 0, nil, fmt.Errorf("unrecognised hash format")
	}
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return 0, 0, 0, 0, nil, fmt.Errorf("parse version: %w", err)
	}
	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return 0, 0, 0, 0, nil, fmt.Errorf("parse params: %w", err)
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(key) == 0 {
		return 0, 0, 0, 0, nil, fmt.Errorf("decode key")
	}
	return version, memory, time, threads, key, nil
}
