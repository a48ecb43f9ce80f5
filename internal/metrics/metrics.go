package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes of a notification delivery attempt
const (
	DeliverySent    = "sent"
	DeliverySkipped = "skipped"
	DeliveryFailed  = "failed"
)

// Metrics tracks bidding and notification activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	BidsPlaced           prometheus.Counter
	BidsRejected         *prometheus.CounterVec
	PlaceBidDuration     prometheus.Histogram
	AuctionsCreated      prometheus.Counter
	NotificationsCreated *prometheus.CounterVec
	Deliveries           *prometheus.CounterVec
	DeliveryDuration     prometheus.Histogram
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BidsPlaced: factory.NewCounter(prometheus.CounterOpts{
			Name: "auction_bids_placed_total",
			Help: "Total number of accepted bids",
		}),
		BidsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_bids_rejected_total",
			Help: "Total number of rejected bids by reason",
		}, []string{"reason"}),
		PlaceBidDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "auction_place_bid_duration_seconds",
			Help:    "Duration of PlaceBid including the store transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		AuctionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "auction_auctions_created_total",
			Help: "Total number of auctions created and activated",
		}),
		NotificationsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_notifications_created_total",
			Help: "Total number of notification rows committed by type",
		}, []string{"type"}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_push_deliveries_total",
			Help: "Push delivery attempts by outcome",
		}, []string{"outcome"}),
		DeliveryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "auction_push_delivery_duration_seconds",
			Help:    "Duration of push delivery attempts",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// IncrementBidsPlaced records an accepted bid.
func (m *Metrics) IncrementBidsPlaced() {
	if m == nil {
		return
	}
	m.BidsPlaced.Inc()
}

// IncrementBidsRejected records a rejected bid.
func (m *Metrics) IncrementBidsRejected(reason string) {
	if m == nil {
		return
	}
	m.BidsRejected.WithLabelValues(reason).Inc()
}

// ObservePlaceBid records the duration of a PlaceBid call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObservePlaceBid(start time.Time) {
	if m == nil {
		return
	}
	m.PlaceBidDuration.Observe(time.Since(start).Seconds())
}

// IncrementAuctionsCreated records a created auction.
func (m *Metrics) IncrementAuctionsCreated() {
	if m == nil {
		return
	}
	m.AuctionsCreated.Inc()
}

// AddNotificationsCreated records n committed notifications of a type.
func (m *Metrics) AddNotificationsCreated(notificationType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.NotificationsCreated.WithLabelValues(notificationType).Add(float64(n))
}

// ObserveDelivery records the outcome and duration of a delivery attempt.
func (m *Metrics) ObserveDelivery(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(outcome).Inc()
	m.DeliveryDuration.Observe(time.Since(start).Seconds())
}
