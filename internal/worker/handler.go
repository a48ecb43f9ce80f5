package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"vehicle-auction/internal/tasks"
)

// Deliverer performs one notification delivery and swallows its failures
type Deliverer interface {
	Deliver(ctx context.Context, notificationID uuid.UUID)
}

// DeliveryHandler processes notification:deliver tasks
type DeliveryHandler struct {
	deliverer Deliverer
	log       *logrus.Entry
}

// NewDeliveryHandler creates a DeliveryHandler
func NewDeliveryHandler(deliverer Deliverer, log *logrus.Entry) *DeliveryHandler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &DeliveryHandler{deliverer: deliverer, log: log}
}

// ProcessTask implements asynq.Handler
func (h *DeliveryHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	logCtx := h.log.WithFields(logrus.Fields{"task_id": taskID, "task_type": t.Type()})

	payload, err := tasks.ParseNotificationDelivery(t)
	if err != nil {
		logCtx.WithError(err).Error("Failed to decode delivery task")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	h.deliverer.Deliver(ctx, payload.NotificationID)
	logCtx.WithField("notification_id", payload.NotificationID).Debug("Delivery task processed")
	return nil
}
