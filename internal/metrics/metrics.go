// Package metrics holds the Prometheus collectors of the crawler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	ResultSent   = "sent"
	ResultFailed = "failed"
)

var (
	NoticesNew = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noticebot_notices_new_total",
			Help: "Number of newly stored notices",
		},
		[]string{"source"},
	)

	FetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noticebot_fetch_failures_total",
			Help: "Number of source fetches that failed after all retries",
		},
		[]string{"source"},
	)

	// SourceErrors mirrors the consecutive error counter of each source.
	SourceErrors = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "noticebot_source_consecutive_errors",
			Help: "Consecutive failed crawls per source",
		},
		[]string{"source"},
	)

	Broadcasts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noticebot_broadcasts_total",
			Help: "Channel broadcasts by result",
		},
		[]string{"result"},
	)

	DirectMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noticebot_direct_messages_total",
			Help: "Direct messages to subscribers by result",
		},
		[]string{"result"},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "noticebot_crawl_cycle_duration_seconds",
			Help:    "Duration of a full crawl cycle",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)

// Init registers all collectors with the default registry.
func Init() {
	prometheus.MustRegister(NoticesNew, FetchFailures, SourceErrors, Broadcasts, DirectMessages, CycleDuration)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
