package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reader_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reader_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Session metrics
	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reader_sessions_active",
			Help: "Number of open reading sessions",
		},
	)

	sessionsOpenedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reader_sessions_opened_total",
			Help: "Total number of session open attempts",
		},
		[]string{"kind", "status"}, // kind: epub, pdf; status: ok, error
	)

	// Page and text layer metrics
	pagesServedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reader_pages_served_total",
			Help: "Total number of rendered pages served",
		},
		[]string{"kind"},
	)

	textResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reader_text_resolutions_total",
			Help: "Total number of page text layer resolutions",
		},
		[]string{"source", "status"}, // source: native, ocr, none
	)

	searchHits = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reader_search_hits",
			Help:    "Number of hits per search query",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	// Rate limiting metrics
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reader_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"type"},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reader_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reader_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)
