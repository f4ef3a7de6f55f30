package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreated     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_bidding", Name: "rides_created_total", Help: "Ride requests opened for bidding"})
	RidesCompleted   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_bidding", Name: "rides_completed_total", Help: "Rides reaching the completed state"})
	RidesCancelled   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_bidding", Name: "rides_cancelled_total", Help: "Rides reaching the cancelled state"})
	BidsPlaced       = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_bidding", Name: "bids_placed_total", Help: "Bids placed or replaced"})
	BidsAccepted     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_bidding", Name: "bids_accepted_total", Help: "Winning bids"})
	AcceptConflicts  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_bidding", Name: "accept_conflicts_total", Help: "Accept attempts that lost the race or hit a closed window"})
	StorageErrors    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_bidding", Name: "storage_errors_total", Help: "Persistence writes that exhausted retries"})
	RecoveredRides   = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_bidding", Name: "recovered_rides", Help: "Non-terminal rides rehydrated at boot"})
	ReconcileDrift   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_bidding", Name: "reconcile_drift_total", Help: "Drift corrections applied by the reconciler"})
	SessionsOnline   = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_bidding", Name: "ws_sessions", Help: "Open websocket sessions"})
	DroppedOutbound  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_bidding", Name: "ws_dropped_outbound_total", Help: "Outbound events dropped because a session send buffer was full"})
	MalformedInbound = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_bidding", Name: "ws_malformed_inbound_total", Help: "Inbound events rejected at the protocol boundary"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_bidding", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_bidding",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
