// Package notifier turns committed notifications into push deliveries.
// Deliveries never report back to the transaction that created them.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"vehicle-auction/internal/biddingerrors"
	"vehicle-auction/internal/metrics"
	"vehicle-auction/internal/push"
	"vehicle-auction/internal/repository"
)

const pushSound = "default"

// Dispatcher resolves, renders and sends notifications
type Dispatcher struct {
	store   repository.Reader
	sender  push.Sender
	exec    Executor
	metrics *metrics.Metrics
	log     *logrus.Entry
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithMetrics records delivery outcomes on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger sets the dispatcher's logger
func WithLogger(log *logrus.Entry) Option {
	return func(d *Dispatcher) { d.log = log.WithField("component", "dispatcher") }
}

// NewDispatcher creates a Dispatcher reading from store and sending through sender
func NewDispatcher(store repository.Reader, sender push.Sender, exec Executor, opts ...Option) *Dispatcher {
	if exec == nil {
		exec = InlineExecutor{}
	}
	d := &Dispatcher{
		store:  store,
		sender: sender,
		exec:   exec,
		log:    logrus.WithField("component", "dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnCommit is a repository.CommitHook submitting one delivery per committed notification
func (d *Dispatcher) OnCommit(ctx context.Context, events []repository.Event) {
	for _, e := range events {
		if e.Kind != repository.EventNotificationCreated {
			continue
		}
		d.exec.Submit(ctx, Job{NotificationID: e.NotificationID, UserID: e.UserID, Type: e.Type}, d.Deliver)
	}
}

// Deliver sends one notification to every device its recipient has registered now.
// Failures are logged and swallowed.
func (d *Dispatcher) Deliver(ctx context.Context, notificationID uuid.UUID) {
	start := time.Now()
	logCtx := d.log.WithField("notification_id", notificationID)

	defer func() {
		if r := recover(); r != nil {
			d.metrics.ObserveDelivery(metrics.DeliveryFailed, start)
			logCtx.WithField("panic", r).Error("Notification delivery panicked")
		}
	}()

	outcome, err := d.deliver(ctx, notificationID, logCtx)
	d.metrics.ObserveDelivery(outcome, start)
	if err != nil {
		logCtx.WithError(err).Error("Failed to deliver notification")
	}
}

func (d *Dispatcher) deliver(ctx context.Context, id uuid.UUID, logCtx *logrus.Entry) (string, error) {
	n, err := d.store.GetNotification(ctx, id)
	if errors.Is(err, biddingerrors.ErrNotFound) {
		logCtx.Debug("Notification no longer exists; skipping delivery")
		return metrics.DeliverySkipped, nil
	}
	if err != nil {
		return metrics.DeliveryFailed, fmt.Errorf("load notification: %w", err)
	}

	devices, err := d.store.ListDevicesByUser(ctx, n.UserID)
	if err != nil {
		return metrics.DeliveryFailed, fmt.Errorf("load devices of user %s: %w", n.UserID, err)
	}
	if len(devices) == 0 {
		logCtx.WithField("user_id", n.UserID).Debug("No registered push tokens; skipping delivery")
		return metrics.DeliverySkipped, nil
	}

	msg := d.Render(ctx, n)
	messages := make([]push.Message, 0, len(devices))
	for _, dev := range devices {
		messages = append(messages, push.Message{
			To:    dev.ExpoPushToken,
			Title: msg.Title,
			Body:  msg.Body,
			Sound: pushSound,
			Data:  msg.Data,
		})
	}

	if err := d.sender.Send(ctx, messages); err != nil {
		return metrics.DeliveryFailed, err
	}
	logCtx.WithField("devices", len(messages)).Debug("Notification delivered")
	return metrics.DeliverySent, nil
}

// Close drains the executor
func (d *Dispatcher) Close(ctx context.Context) error {
	return d.exec.Close(ctx)
}
