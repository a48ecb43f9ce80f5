// Package push sends rendered notifications to the Expo push service.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"vehicle-auction/internal/biddingerrors"
)

// DefaultEndpoint is Expo's batch send URL
const DefaultEndpoint = "https://exp.host/--/api/v2/push/send"

// DefaultTimeout bounds one batch request
const DefaultTimeout = 10 * time.Second

// Message is one push addressed to a single device token
type Message struct {
	To    string         `json:"to"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Sound string         `json:"sound,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

//go:generate mockgen -source=expo.go -destination=mock_sender.go -package=push

// Sender delivers a batch of messages
type Sender interface {
	Send(ctx context.Context, messages []Message) error
}

type ticket struct {
	Status  string         `json:"status"`
	ID      string         `json:"id,omitempty"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type sendResponse struct {
	Data   []ticket         `json:"data"`
	Errors []map[string]any `json:"errors"`
}

// ExpoClient posts message batches to an Expo compatible endpoint
type ExpoClient struct {
	endpoint string
	client   *http.Client
	log      *logrus.Entry
}

// NewExpoClient creates a client for endpoint; empty values fall back to the defaults
func NewExpoClient(endpoint string, timeout time.Duration, log *logrus.Entry) *ExpoClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ExpoClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log.WithField("component", "push"),
	}
}

// Send posts the batch. Transport failures and non-2xx statuses return ErrDelivery.
// Errors reported inside a successful response are logged only.
func (c *ExpoClient) Send(ctx context.Context, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	body, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("push: encode batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("push: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("push: %w: %v", biddingerrors.ErrDelivery, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("push: %w: read response: %v", biddingerrors.ErrDelivery, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("push: %w: %s; body: %s", biddingerrors.ErrDelivery, resp.Status, string(raw))
	}

	var parsed sendResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		c.log.Debug("push response was not JSON")
		return nil
	}
	for _, e := range parsed.Errors {
		c.log.WithField("error", e).Error("push error")
	}
	for i, t := range parsed.Data {
		if t.Status != "error" {
			continue
		}
		fields := logrus.Fields{"message": t.Message, "details": t.Details}
		if i < len(messages) {
			fields["to"] = messages[i].To
		}
		c.log.WithFields(fields).Error("push ticket error")
	}
	return nil
}
