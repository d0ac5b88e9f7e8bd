package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	scanAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_attempts_total",
			Help: "Scan attempts per event and outcome",
		},
		[]string{"event_id", "outcome"},
	)

	bidSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bid_submissions_total",
			Help: "Bid submissions per auction and result",
		},
		[]string{"auction_id", "result"},
	)

	openAuctions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "open_auctions_total",
			Help: "Current number of open auctions",
		},
	)

	redeemDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redeem_duration_seconds",
			Help:    "Duration of credential redemption",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"outcome"},
	)
)

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	// Start metrics collection
	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()
		m.collectAuctionMetrics(ctx)
	}
}

func (m *Monitor) collectAuctionMetrics(ctx context.Context) {
	keys, _ := m.redis.Keys(ctx, "auction:*").Result()

	open := 0
	for _, key := range keys {
		status, _ := m.redis.HGet(ctx, key, "status").Result()
		if status == "open" {
			open++
		}
	}
	openAuctions.Set(float64(open))
}

// TrackScan records one scan attempt.
func (m *Monitor) TrackScan(eventID, outcome string) {
	scanAttempts.WithLabelValues(eventID, outcome).Inc()
}

// TrackBid records one bid submission.
func (m *Monitor) TrackBid(auctionID, result string) {
	bidSubmissions.WithLabelValues(auctionID, result).Inc()
}

// TrackRedeemDuration records how long a redemption took.
func (m *Monitor) TrackRedeemDuration(outcome string, duration time.Duration) {
	redeemDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}
