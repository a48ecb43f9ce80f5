package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vehicle-auction/internal/models"
	"vehicle-auction/internal/money"
)

const (
	defaultTitle = "AutoBizz"
	defaultBody  = "You have a new notification."

	newAuctionTitle = "New auction available"
	newAuctionBody  = "A new vehicle auction just went live."

	resultTitle = "Auction update"
	resultBody  = "There is an update on your auction."
)

// Message is a rendered notification ready for every device of its recipient
type Message struct {
	Title string
	Body  string
	Data  map[string]any
}

// Render derives title and body from the notification type. Auction details are
// looked up now, so a deleted auction falls back to the generic text.
func (d *Dispatcher) Render(ctx context.Context, n models.Notification) Message {
	data := make(map[string]any, len(n.Payload)+3)
	for k, v := range n.Payload {
		data[k] = v
	}
	data["notification_id"] = n.ID.String()
	data["type"] = string(n.Type)
	if n.CreatedAt.IsZero() {
		data["created_at"] = nil
	} else {
		data["created_at"] = n.CreatedAt.UTC().Format(time.RFC3339Nano)
	}

	msg := Message{Title: defaultTitle, Body: defaultBody, Data: data}
	switch n.Type {
	case models.NotificationNewAuction:
		msg.Title, msg.Body = newAuctionTitle, newAuctionBody
		if auction, ok := d.lookupAuction(ctx, n.Payload); ok && auction.Title != "" {
			msg.Body = auction.Title
		}
	case models.NotificationResult:
		msg.Title, msg.Body = resultTitle, resultBody
		amount, ok := latestBidAmount(n.Payload)
		if !ok {
			break
		}
		currency := ""
		if auction, found := d.lookupAuction(ctx, n.Payload); found {
			currency = auction.Currency
		}
		msg.Body = "Latest bid: " + money.Format(currency, amount)
	}
	return msg
}

func (d *Dispatcher) lookupAuction(ctx context.Context, payload map[string]any) (models.Auction, bool) {
	ref, ok := payload["auction_id"].(string)
	if !ok {
		return models.Auction{}, false
	}
	id, err := uuid.Parse(ref)
	if err != nil {
		return models.Auction{}, false
	}
	auction, err := d.store.GetAuction(ctx, id)
	if err != nil {
		return models.Auction{}, false
	}
	return auction, true
}

func latestBidAmount(payload map[string]any) (decimal.Decimal, bool) {
	latest, ok := payload["latest_bid"].(map[string]any)
	if !ok {
		return decimal.Decimal{}, false
	}

	var (
		amount decimal.Decimal
		err    error
	)
	switch v := latest["amount"].(type) {
	case string:
		amount, err = decimal.NewFromString(v)
	case json.Number:
		amount, err = decimal.NewFromString(v.String())
	case float64:
		amount = decimal.NewFromFloat(v)
	case decimal.Decimal:
		amount = v
	default:
		err = fmt.Errorf("unsupported amount %T", v)
	}
	if err != nil {
		return decimal.Decimal{}, false
	}
	return amount, true
}
