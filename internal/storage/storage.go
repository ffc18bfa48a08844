package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bark-labs/sitepush/internal/model"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("not found")

// Keys of the on-device settings bucket.
const (
	KeyPushToken      = "push_token"
	KeyRegistered     = "push_token_registered"
	KeyRegisteredAt   = "push_token_registered_at"
	KeyRegisteredUser = "push_token_registered_user"
	KeyCryptoMaterial = "push_token_key_material"
	KeyDeviceID       = "device_id"
)

// SessionKeys are cleared on logout. The device id survives so the backend can deduplicate.
var SessionKeys = []string{
	KeyPushToken,
	KeyRegistered,
	KeyRegisteredAt,
	KeyRegisteredUser,
	KeyCryptoMaterial,
}

// Store abstracts local persistence.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	AppendDeliveryLog(ctx context.Context, log *model.DeliveryLog) error
	ListDeliveryLogs(ctx context.Context) ([]*model.DeliveryLog, error)
	PruneDeliveryLogs(ctx context.Context, before time.Time) (int, error)

	EnqueueLocal(ctx context.Context, n *model.LocalNotification) error
	ListLocal(ctx context.Context) ([]*model.LocalNotification, error)
	DeleteLocal(ctx context.Context, id string) error
	PruneLocal(ctx context.Context, before time.Time) (int, error)

	Close() error
}
