package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/bark-labs/sitepush/internal/model"
	"github.com/bark-labs/sitepush/internal/sanitize"
	"github.com/bark-labs/sitepush/internal/storage"
	"github.com/sirupsen/logrus"
)

var ErrUnsafeContent = errors.New("notification content failed display validation")

// LocalOutbox holds notifications the host app shows on this device.
type LocalOutbox struct {
	store storage.Store
	log   logrus.FieldLogger
}

// NewLocalOutbox builds the outbox service.
func NewLocalOutbox(store storage.Store, log logrus.FieldLogger) *LocalOutbox {
	return &LocalOutbox{store: store, log: log.WithField("component", "local_outbox")}
}

// Schedule enqueues n after sanitizing its text.
func (o *LocalOutbox) Schedule(ctx context.Context, n model.LocalNotification) error {
	n.Title = sanitize.StripDangerous(n.Title)
	n.Body = sanitize.StripDangerous(n.Body)
	n.Data = sanitize.StripMap(n.Data)
	if !sanitize.ValidateForDisplay(toInbound(&n)) {
		return ErrUnsafeContent
	}
	if err := o.store.EnqueueLocal(ctx, &n); err != nil {
		return err
	}
	o.log.WithFields(logrus.Fields{"id": n.ID, "reason": n.Reason}).Info("local notification scheduled")
	return nil
}

// Pending lists displayable entries oldest first. Entries that fail display
// validation are dropped from the outbox.
func (o *LocalOutbox) Pending(ctx context.Context) ([]*model.LocalNotification, error) {
	all, err := o.store.ListLocal(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.LocalNotification, 0, len(all))
	for _, n := range all {
		inbound := toInbound(n)
		if !sanitize.ValidateForDisplay(inbound) {
			o.log.WithField("id", n.ID).Warn("dropping unsafe local notification")
			if err := o.store.DeleteLocal(ctx, n.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
				o.log.WithError(err).WithField("id", n.ID).Warn("delete unsafe notification failed")
			}
			continue
		}
		n.Data = sanitize.SanitizeData(inbound.Data)
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Ack removes a shown notification. Unknown ids return storage.ErrNotFound.
func (o *LocalOutbox) Ack(ctx context.Context, id string) error {
	return o.store.DeleteLocal(ctx, id)
}

// Prune drops entries older than the retention window.
func (o *LocalOutbox) Prune(ctx context.Context, retention time.Duration) (int, error) {
	return o.store.PruneLocal(ctx, time.Now().UTC().Add(-retention))
}

func toInbound(n *model.LocalNotification) sanitize.Notification {
	return sanitize.FromRecord(model.NotificationRecord{
		Title:        n.Title,
		Body:         n.Body,
		Data:         n.Data,
		DeliveryMode: model.DeliveryLocalFallback,
	})
}
