package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bark-labs/sitepush/internal/apiclient"
	"github.com/bark-labs/sitepush/internal/model"
	"github.com/bark-labs/sitepush/internal/sanitize"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var errZeroSent = errors.New("backend accepted notification but delivered none")

// Resolver resolves notification recipients.
type Resolver interface {
	Resolve(ctx context.Context, clientID, projectID, actingUserID string, actingRole model.Role) ([]model.Recipient, error)
}

// DeliveryAPI is the backend fan-out endpoint.
type DeliveryAPI interface {
	SendNotification(ctx context.Context, req apiclient.SendRequest) (*apiclient.SendData, error)
}

// LocalScheduler shows a notification on this device.
type LocalScheduler interface {
	Schedule(ctx context.Context, n model.LocalNotification) error
}

// DeliveryRecorder keeps a log of dispatch outcomes.
type DeliveryRecorder interface {
	Record(ctx context.Context, entry *model.DeliveryLog)
}

// DispatcherOptions holds dispatcher tunables.
type DispatcherOptions struct {
	SendTimeout time.Duration
	// LocalWhenNoRecipients shows a local confirmation when nobody else is notified.
	LocalWhenNoRecipients bool
}

// Dispatcher turns activity events into remote notifications, falling back to
// a local notification whenever the remote path fails.
type Dispatcher struct {
	resolver Resolver
	api      DeliveryAPI
	local    LocalScheduler
	recorder DeliveryRecorder
	validate *validator.Validate
	opts     DispatcherOptions
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewDispatcher builds a Dispatcher. recorder may be nil.
func NewDispatcher(resolver Resolver, api DeliveryAPI, local LocalScheduler, recorder DeliveryRecorder, opts DispatcherOptions, log logrus.FieldLogger) *Dispatcher {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}
	return &Dispatcher{
		resolver: resolver,
		api:      api,
		local:    local,
		recorder: recorder,
		validate: validator.New(),
		opts:     opts,
		log:      log.WithField("component", "dispatcher"),
		now:      time.Now,
	}
}

// SendActivityNotification never fails: every path ends in a remote send, a
// local fallback, or a deliberate no-op, recorded in the result.
func (d *Dispatcher) SendActivityNotification(ctx context.Context, event model.ActivityEvent) (result model.DeliveryResult) {
	title := sanitize.StripDangerous(Title(event.ActivityType, event.Actor.FullName))
	body := sanitize.StripDangerous(Body(event))
	data := payloadData(event, title, body)
	log := d.log.WithFields(logrus.Fields{
		"activityType": event.ActivityType,
		"clientId":     event.ClientID,
		"actorId":      event.Actor.UserID,
	})

	defer func() {
		if p := recover(); p != nil {
			log.WithField("panic", p).Error("dispatch panicked")
			result = d.fallback(ctx, log, title, body, data, fmt.Errorf("panic: %v", p))
		}
		d.record(ctx, event, body, result)
	}()

	if !event.ActivityType.Known() {
		log.Warn("unmapped activity type, using generic title")
	}
	if err := d.validate.Struct(event); err != nil {
		return d.fallback(ctx, log, title, body, data, fmt.Errorf("invalid event: %w", err))
	}

	recipients, err := d.resolver.Resolve(ctx, event.ClientID, event.ProjectID, event.Actor.UserID, event.Actor.Role)
	if err != nil {
		return d.fallback(ctx, log, title, body, data, err)
	}
	if len(recipients) == 0 {
		if d.opts.LocalWhenNoRecipients {
			return d.fallback(ctx, log, title, body, data, nil)
		}
		log.Debug("no recipients, nothing to deliver")
		return model.DeliveryResult{Mode: model.DeliveryNone, Title: title}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	defer cancel()
	resp, err := d.api.SendNotification(sendCtx, apiclient.SendRequest{
		Title:      title,
		Body:       body,
		Data:       data,
		Recipients: recipients,
		Timestamp:  d.now().UTC(),
	})
	if err != nil {
		res := d.fallback(ctx, log, title, body, data, err)
		res.Recipients = len(recipients)
		return res
	}
	if resp == nil || resp.NotificationsSent == 0 {
		res := d.fallback(ctx, log, title, body, data, errZeroSent)
		res.Recipients = len(recipients)
		if resp != nil {
			res.Failed = resp.NotificationsFailed
		}
		return res
	}

	log.WithFields(logrus.Fields{
		"sent":   resp.NotificationsSent,
		"failed": resp.NotificationsFailed,
	}).Info("activity notification delivered")
	return model.DeliveryResult{
		Sent:       resp.NotificationsSent,
		Failed:     resp.NotificationsFailed,
		Mode:       model.DeliveryRemote,
		Recipients: len(recipients),
		Title:      title,
	}
}

func (d *Dispatcher) fallback(ctx context.Context, log logrus.FieldLogger, title, body string, data map[string]string, cause error) model.DeliveryResult {
	res := model.DeliveryResult{
		UsedFallback: true,
		Mode:         model.DeliveryLocalFallback,
		Title:        title,
	}
	reason := "no recipients"
	if cause != nil {
		reason = cause.Error()
		res.Error = reason
		log.WithError(cause).Warn("remote delivery failed, scheduling local notification")
	}
	n := model.LocalNotification{
		ID:        uuid.NewString(),
		Title:     title,
		Body:      body,
		Data:      data,
		Reason:    reason,
		CreatedAt: d.now().UTC(),
	}
	// the caller's context may be the reason we are here
	if err := d.local.Schedule(context.WithoutCancel(ctx), n); err != nil {
		res.FallbackFailed = true
		log.WithError(err).Error("local fallback failed")
	}
	return res
}

func (d *Dispatcher) record(ctx context.Context, event model.ActivityEvent, body string, res model.DeliveryResult) {
	if d.recorder == nil {
		return
	}
	status := model.DeliveryStatusSent
	switch {
	case res.UsedFallback:
		status = model.DeliveryStatusFallback
	case res.Mode == model.DeliveryNone:
		status = model.DeliveryStatusSkipped
	}
	d.recorder.Record(context.WithoutCancel(ctx), &model.DeliveryLog{
		ActivityType: event.ActivityType,
		ClientID:     event.ClientID,
		ProjectID:    event.ProjectID,
		ActorID:      event.Actor.UserID,
		Title:        res.Title,
		Body:         body,
		Recipients:   res.Recipients,
		Sent:         res.Sent,
		Failed:       res.Failed,
		Mode:         res.Mode,
		Status:       status,
		Error:        res.Error,
		CreatedAt:    d.now().UTC(),
	})
}
