// Package credential keeps provider API keys sealed at rest. Secrets are
// encrypted with AES-256-GCM under a key derived from the local machine and
// user, so a copied database is useless elsewhere.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// SealedPrefix marks a value produced by Seal.
const SealedPrefix = "enc:v1:"

// keyPrefix namespaces secrets inside the configuration table.
const keyPrefix = "credential."

var (
	ErrOpenFailed    = errors.New("credential could not be opened")
	ErrInvalidFormat = errors.New("invalid sealed format")
)

// ConfigStore is the subset of the persistent store the vault writes to.
type ConfigStore interface {
	SetConfig(key, value string) error
	GetConfig(key string) (string, error)
}

// Sealer encrypts and decrypts individual values.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer returns a sealer keyed to this machine and user.
func NewSealer() (*Sealer, error) {
	return NewSealerWithKey(machineKey())
}

// NewSealerWithKey returns a sealer using a caller supplied 32-byte key.
func NewSealerWithKey(key []byte) (*Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext. The empty string stays empty.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Values without the sealed prefix
// are returned unchanged so hand-edited plaintext keys keep working.
func (s *Sealer) Open(stored string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	n := s.aead.NonceSize()
	if len(raw) < n {
		return "", ErrInvalidFormat
	}
	plain, err := s.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", ErrOpenFailed
	}
	return string(plain), nil
}

// IsSealed reports whether value carries the sealed prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// Vault stores sealed secrets by name in a ConfigStore.
type Vault struct {
	store  ConfigStore
	sealer *Sealer
	getenv func(string) string
}

func NewVault(store ConfigStore, sealer *Sealer) *Vault {
	return &Vault{store: store, sealer: sealer, getenv: os.Getenv}
}

// Put seals secret and stores it under name.
func (v *Vault) Put(name, secret string) error {
	sealed, err := v.sealer.Seal(secret)
	if err != nil {
		return err
	}
	return v.store.SetConfig(keyPrefix+name, sealed)
}

// Get returns the opened secret stored under name, or "" when unset.
func (v *Vault) Get(name string) (string, error) {
	stored, err := v.store.GetConfig(keyPrefix + name)
	if err != nil {
		return "", err
	}
	if stored == "" {
		return "", nil
	}
	return v.sealer.Open(stored)
}

// Resolve returns the first non-empty environment variable from envs, and
// falls back to the stored secret.
func (v *Vault) Resolve(name string, envs ...string) (string, error) {
	for _, env := range envs {
		if val := v.getenv(env); val != "" {
			return val, nil
		}
	}
	return v.Get(name)
}

// Mask hides all but the first and last four characters of a secret.
func Mask(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

func machineKey() []byte {
	var b strings.Builder
	host, _ := os.Hostname()
	home, _ := os.UserHomeDir()
	b.WriteString(host)
	b.WriteString(home)
	b.WriteString(runtime.GOOS + "/" + runtime.GOARCH)
	b.WriteString("uid:" + strconv.Itoa(os.Getuid()))
	b.WriteString(os.Getenv("USER"))
	b.WriteString("scribe-vault-v1")
	sum := sha256.Sum256([]byte(b.String()))
	return sum[:]
}
