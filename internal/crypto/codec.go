package crypto

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/hkdf"
)

const (
	prefixAES    = "aes:"
	prefixBase64 = "b64:"

	hkdfInfo = "sitepush push-token v1"
)

// ErrUnknownEncoding is returned for stored values that carry no known prefix.
var ErrUnknownEncoding = errors.New("unknown token encoding")

// MaterialStore persists key material between runs.
type MaterialStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// KeyMaterial is everything needed to re-derive the install key.
type KeyMaterial struct {
	Seed      string    `json:"seed"`
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Codec encrypts push tokens with a per-install key. When no key can be
// derived it degrades to plain base64 instead of failing.
type Codec struct {
	store       MaterialStore
	materialKey string
	sessionID   func(ctx context.Context) (string, error)
	seedBytes   int
	keyBytes    int
	log         logrus.FieldLogger

	mu  sync.Mutex
	key []byte
}

// CodecOptions configures a Codec.
type CodecOptions struct {
	// MaterialKey is the storage key holding the serialised KeyMaterial.
	MaterialKey string
	// SessionID returns the install-scoped identifier mixed into the derivation.
	SessionID func(ctx context.Context) (string, error)
	SeedBytes int
	KeyBytes  int
}

// NewCodec builds a Codec.
func NewCodec(store MaterialStore, opts CodecOptions, log logrus.FieldLogger) *Codec {
	if opts.SeedBytes <= 0 {
		opts.SeedBytes = 32
	}
	if opts.KeyBytes != 16 && opts.KeyBytes != 24 && opts.KeyBytes != 32 {
		opts.KeyBytes = 32
	}
	if opts.SessionID == nil {
		opts.SessionID = func(context.Context) (string, error) { return "", nil }
	}
	return &Codec{
		store:       store,
		materialKey: opts.MaterialKey,
		sessionID:   opts.SessionID,
		seedBytes:   opts.SeedBytes,
		keyBytes:    opts.KeyBytes,
		log:         log.WithField("component", "codec"),
	}
}

// Encrypt never fails. Without a usable key the token is base64 encoded.
func (c *Codec) Encrypt(ctx context.Context, raw string) string {
	key, err := c.loadKey(ctx)
	if err == nil {
		var enc string
		enc, err = EncryptToBase64([]byte(raw), key)
		if err == nil {
			return prefixAES + enc
		}
	}
	c.log.WithError(err).Warn("token encryption degraded to base64")
	return prefixBase64 + base64.StdEncoding.EncodeToString([]byte(raw))
}

// Decrypt reverses Encrypt.
func (c *Codec) Decrypt(ctx context.Context, encoded string) (string, error) {
	switch {
	case strings.HasPrefix(encoded, prefixBase64):
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(encoded, prefixBase64))
		if err != nil {
			return "", ErrMalformedCiphertext
		}
		return string(raw), nil
	case strings.HasPrefix(encoded, prefixAES):
		key, err := c.loadKey(ctx)
		if err != nil {
			return "", err
		}
		plain, err := DecryptFromBase64(strings.TrimPrefix(encoded, prefixAES), key)
		if err != nil {
			return "", err
		}
		return string(plain), nil
	}
	return "", ErrUnknownEncoding
}

// Reset drops the cached key, e.g. after key material was cleared on logout.
func (c *Codec) Reset() {
	c.mu.Lock()
	c.key = nil
	c.mu.Unlock()
}

func (c *Codec) loadKey(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key != nil {
		return c.key, nil
	}
	if c.store == nil {
		return nil, errors.New("no key store")
	}

	material, err := c.readMaterial(ctx)
	if err != nil {
		material, err = c.createMaterial(ctx)
		if err != nil {
			return nil, err
		}
	}
	key, err := DeriveKey(material, c.keyBytes)
	if err != nil {
		return nil, err
	}
	c.key = key
	return key, nil
}

func (c *Codec) readMaterial(ctx context.Context) (*KeyMaterial, error) {
	payload, err := c.store.Get(ctx, c.materialKey)
	if err != nil {
		return nil, err
	}
	var m KeyMaterial
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("decode key material: %w", err)
	}
	if m.Seed == "" {
		return nil, errors.New("empty key seed")
	}
	return &m, nil
}

func (c *Codec) createMaterial(ctx context.Context) (*KeyMaterial, error) {
	seed, err := GenerateString(c.seedBytes)
	if err != nil {
		return nil, fmt.Errorf("generate seed: %w", err)
	}
	sessionID, err := c.sessionID(ctx)
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	m := &KeyMaterial{Seed: seed, SessionID: sessionID, CreatedAt: time.Now().UTC()}
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	if err := c.store.Put(ctx, c.materialKey, payload); err != nil {
		return nil, fmt.Errorf("persist key material: %w", err)
	}
	return m, nil
}

// DeriveKey expands the seed and session id into an AES key with HKDF-SHA256.
func DeriveKey(m *KeyMaterial, size int) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(m.Seed), []byte(m.SessionID), []byte(hkdfInfo))
	key := make([]byte, size)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}
