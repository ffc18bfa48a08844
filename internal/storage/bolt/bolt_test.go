package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bark-labs/sitepush/internal/model"
	"github.com/bark-labs/sitepush/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nested", "sitepush.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Settings(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Get(ctx, storage.KeyPushToken)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.Put(ctx, storage.KeyPushToken, []byte("aes:first")))
	require.NoError(t, s.Put(ctx, storage.KeyPushToken, []byte("aes:second")))
	v, err := s.Get(ctx, storage.KeyPushToken)
	require.NoError(t, err)
	assert.Equal(t, "aes:second", string(v), "tokens overwrite, never append")

	require.NoError(t, s.Delete(ctx, storage.KeyPushToken))
	require.NoError(t, s.Delete(ctx, storage.KeyPushToken))
	_, err = s.Get(ctx, storage.KeyPushToken)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_CancelledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Put(ctx, "k", []byte("v")), context.Canceled)
}

func TestStore_DeliveryLogs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	old := &model.DeliveryLog{Title: "old", CreatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := &model.DeliveryLog{Title: "fresh"}
	require.NoError(t, s.AppendDeliveryLog(ctx, old))
	require.NoError(t, s.AppendDeliveryLog(ctx, fresh))
	assert.Equal(t, uint64(1), old.ID)
	assert.Equal(t, uint64(2), fresh.ID)
	assert.False(t, fresh.CreatedAt.IsZero())

	logs, err := s.ListDeliveryLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "old", logs[0].Title)

	removed, err := s.PruneDeliveryLogs(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	logs, err = s.ListDeliveryLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "fresh", logs[0].Title)
}

func TestStore_Outbox(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.EnqueueLocal(ctx, &model.LocalNotification{ID: "n1", Title: "one"}))
	require.NoError(t, s.EnqueueLocal(ctx, &model.LocalNotification{ID: "n2", Title: "two", CreatedAt: time.Now().Add(-10 * 24 * time.Hour)}))

	pending, err := s.ListLocal(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, s.DeleteLocal(ctx, "n1"))
	assert.ErrorIs(t, s.DeleteLocal(ctx, "n1"), storage.ErrNotFound)

	removed, err := s.PruneLocal(ctx, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	pending, err = s.ListLocal(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sitepush.db")
	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, storage.KeyDeviceID, []byte("dev-1")))
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()
	v, err := s.Get(ctx, storage.KeyDeviceID)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", string(v))
}

func TestStore_CorruptRowsAreSkipped(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.EnqueueLocal(ctx, &model.LocalNotification{ID: "n1", Title: "one"}))
	require.NoError(t, s.AppendDeliveryLog(ctx, &model.DeliveryLog{Title: "kept"}))
	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketOutbox).Put([]byte("broken"), []byte("{")); err != nil {
			return err
		}
		return tx.Bucket(bucketDeliveryLog).Put(sequenceKey(99), []byte("not json"))
	}))

	pending, err := s.ListLocal(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "n1", pending[0].ID)

	logs, err := s.ListDeliveryLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "kept", logs[0].Title)

	removed, err := s.PruneLocal(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "undecodable rows are pruned")
}
