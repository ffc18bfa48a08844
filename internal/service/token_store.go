package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bark-labs/sitepush/internal/storage"
	"github.com/sirupsen/logrus"
)

// TokenCodec encrypts tokens before they touch the disk.
type TokenCodec interface {
	Encrypt(ctx context.Context, raw string) string
	Decrypt(ctx context.Context, encoded string) (string, error)
	Reset()
}

// Registration is the backend registration state stored next to the token.
type Registration struct {
	Registered bool      `json:"registered"`
	At         time.Time `json:"registeredAt,omitempty"`
	UserID     string    `json:"userId,omitempty"`
}

// ClearResult reports the outcome of clearing one key.
type ClearResult struct {
	Key string `json:"key"`
	Err error  `json:"-"`
}

// TokenStore persists the encrypted push token and its registration flags.
type TokenStore struct {
	store storage.Store
	codec TokenCodec
	log   logrus.FieldLogger
}

// NewTokenStore builds a TokenStore.
func NewTokenStore(store storage.Store, codec TokenCodec, log logrus.FieldLogger) *TokenStore {
	return &TokenStore{store: store, codec: codec, log: log.WithField("component", "token_store")}
}

// Save encrypts raw and overwrites the stored token.
func (s *TokenStore) Save(ctx context.Context, raw string) error {
	return s.SaveEncrypted(ctx, s.codec.Encrypt(ctx, raw))
}

// SaveEncrypted overwrites the stored token with an already encrypted value.
func (s *TokenStore) SaveEncrypted(ctx context.Context, encrypted string) error {
	return s.store.Put(ctx, storage.KeyPushToken, []byte(encrypted))
}

// LoadEncrypted returns the stored encrypted token.
func (s *TokenStore) LoadEncrypted(ctx context.Context) (string, bool) {
	v, err := s.store.Get(ctx, storage.KeyPushToken)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.WithError(err).Warn("read stored token")
		}
		return "", false
	}
	if len(v) == 0 {
		return "", false
	}
	return string(v), true
}

// Load returns the decrypted token. Undecryptable values count as no token.
func (s *TokenStore) Load(ctx context.Context) (string, bool) {
	encrypted, ok := s.LoadEncrypted(ctx)
	if !ok {
		return "", false
	}
	raw, err := s.codec.Decrypt(ctx, encrypted)
	if err != nil {
		s.log.WithError(err).Warn("stored token could not be decrypted, treating as absent")
		return "", false
	}
	return raw, true
}

// MarkRegistered records a successful backend registration.
func (s *TokenStore) MarkRegistered(ctx context.Context, userID string, at time.Time) error {
	return errors.Join(
		s.store.Put(ctx, storage.KeyRegistered, []byte(strconv.FormatBool(true))),
		s.store.Put(ctx, storage.KeyRegisteredAt, []byte(at.UTC().Format(time.RFC3339Nano))),
		s.store.Put(ctx, storage.KeyRegisteredUser, []byte(userID)),
	)
}

// ClearRegistration flips the flag back so a rotated token never looks registered.
func (s *TokenStore) ClearRegistration(ctx context.Context) error {
	return errors.Join(
		s.store.Put(ctx, storage.KeyRegistered, []byte(strconv.FormatBool(false))),
		s.store.Delete(ctx, storage.KeyRegisteredAt),
		s.store.Delete(ctx, storage.KeyRegisteredUser),
	)
}

// Registration reads the stored registration flags.
func (s *TokenStore) Registration(ctx context.Context) Registration {
	var reg Registration
	if v, err := s.store.Get(ctx, storage.KeyRegistered); err == nil {
		reg.Registered, _ = strconv.ParseBool(string(v))
	}
	if v, err := s.store.Get(ctx, storage.KeyRegisteredAt); err == nil {
		reg.At, _ = time.Parse(time.RFC3339Nano, string(v))
	}
	if v, err := s.store.Get(ctx, storage.KeyRegisteredUser); err == nil {
		reg.UserID = string(v)
	}
	return reg
}

// Clear removes every session key. Each key is attempted independently and
// caller cancellation does not stop the clear.
func (s *TokenStore) Clear(ctx context.Context) []ClearResult {
	ctx = context.WithoutCancel(ctx)
	results := make([]ClearResult, 0, len(storage.SessionKeys))
	for _, key := range storage.SessionKeys {
		err := s.store.Delete(ctx, key)
		if err != nil {
			s.log.WithError(err).WithField("key", key).Warn("clear key failed")
		}
		results = append(results, ClearResult{Key: key, Err: err})
	}
	s.codec.Reset()
	return results
}
