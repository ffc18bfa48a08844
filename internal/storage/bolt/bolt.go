package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/bark-labs/sitepush/internal/model"
	"github.com/bark-labs/sitepush/internal/storage"
	bolt "go.etcd.io/bbolt"
)

var _ storage.Store = (*Store)(nil)

var (
	bucketSettings    = []byte("settings")
	bucketDeliveryLog = []byte("delivery_logs")
	bucketOutbox      = []byte("local_outbox")
)

// Store is a BoltDB-backed Store implementation.
type Store struct {
	db *bolt.DB
}

// New initialises the Bolt store.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSettings, bucketDeliveryLog, bucketOutbox} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes underlying Bolt DB.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSettings).Get([]byte(key))
		if v == nil {
			return storage.ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

// Put overwrites the value stored under key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put([]byte(key), value)
	})
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Delete([]byte(key))
	})
}

// AppendDeliveryLog stores a dispatch log entry.
func (s *Store) AppendDeliveryLog(ctx context.Context, log *model.DeliveryLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketDeliveryLog)
		id, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		log.ID = id
		payload, err := json.Marshal(log)
		if err != nil {
			return err
		}
		return bkt.Put(sequenceKey(id), payload)
	})
}

// ListDeliveryLogs returns all delivery logs in insertion order. Rows that
// no longer decode are skipped; prune removes them.
func (s *Store) ListDeliveryLogs(ctx context.Context) ([]*model.DeliveryLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var logs []*model.DeliveryLog
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDeliveryLog).ForEach(func(_, v []byte) error {
			var log model.DeliveryLog
			if json.Unmarshal(v, &log) != nil {
				return nil
			}
			logs = append(logs, &log)
			return nil
		})
	})
	return logs, err
}

// PruneDeliveryLogs removes logs created before the cutoff.
func (s *Store) PruneDeliveryLogs(ctx context.Context, before time.Time) (int, error) {
	return s.prune(ctx, bucketDeliveryLog, before, func(v []byte) (time.Time, error) {
		var log model.DeliveryLog
		err := json.Unmarshal(v, &log)
		return log.CreatedAt, err
	})
}

// EnqueueLocal adds a notification to the local outbox.
func (s *Store) EnqueueLocal(ctx context.Context, n *model.LocalNotification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOutbox).Put([]byte(n.ID), payload)
	})
}

// ListLocal returns pending outbox entries, skipping undecodable rows.
func (s *Store) ListLocal(ctx context.Context) ([]*model.LocalNotification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*model.LocalNotification
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOutbox).ForEach(func(_, v []byte) error {
			var n model.LocalNotification
			if json.Unmarshal(v, &n) != nil {
				return nil
			}
			out = append(out, &n)
			return nil
		})
	})
	return out, err
}

// DeleteLocal removes an outbox entry.
func (s *Store) DeleteLocal(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketOutbox)
		if bkt.Get([]byte(id)) == nil {
			return storage.ErrNotFound
		}
		return bkt.Delete([]byte(id))
	})
}

// PruneLocal removes outbox entries created before the cutoff.
func (s *Store) PruneLocal(ctx context.Context, before time.Time) (int, error) {
	return s.prune(ctx, bucketOutbox, before, func(v []byte) (time.Time, error) {
		var n model.LocalNotification
		err := json.Unmarshal(v, &n)
		return n.CreatedAt, err
	})
}

func (s *Store) prune(ctx context.Context, bucket []byte, before time.Time, createdAt func([]byte) (time.Time, error)) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucket)
		var stale [][]byte
		if err := bkt.ForEach(func(k, v []byte) error {
			ts, err := createdAt(v)
			if err != nil || ts.Before(before) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := bkt.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func sequenceKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}
