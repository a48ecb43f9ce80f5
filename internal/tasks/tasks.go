package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TypeNotificationDelivery delivers one committed notification
const TypeNotificationDelivery = "notification:deliver"

// NotificationDeliveryPayload names the notification to deliver.
// The worker reloads the row, so a deleted notification is skipped.
type NotificationDeliveryPayload struct {
	NotificationID uuid.UUID `json:"notification_id"`
}

// NewNotificationDeliveryTask builds a task that is never retried
func NewNotificationDeliveryTask(notificationID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(NotificationDeliveryPayload{NotificationID: notificationID})
	if err != nil {
		return nil, fmt.Errorf("tasks: encode delivery payload: %w", err)
	}
	return asynq.NewTask(TypeNotificationDelivery, payload, asynq.MaxRetry(0)), nil
}

// ParseNotificationDelivery decodes a delivery task payload
func ParseNotificationDelivery(t *asynq.Task) (NotificationDeliveryPayload, error) {
	var p NotificationDeliveryPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("tasks: decode delivery payload: %w", err)
	}
	if p.NotificationID == uuid.Nil {
		return p, fmt.Errorf("tasks: delivery payload without notification id")
	}
	return p, nil
}
