package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ufcbot"

// Result labels for announcements.
const (
	ResultPosted    = "posted"
	ResultNotFound  = "not_found"
	ResultFeedError = "feed_error"
	ResultFailed    = "failed"
)

// Metrics holds the bot's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Announcements *prometheus.CounterVec
	FeedFetches   *prometheus.CounterVec
	FeedDuration  prometheus.Histogram
	FeedEntries   prometheus.Gauge
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Announcements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "announcements_total",
			Help:      "Announcements attempted, by trigger and result.",
		}, []string{"trigger", "result"}),
		FeedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_fetches_total",
			Help:      "Calendar feed fetches, by outcome.",
		}, []string{"outcome"}),
		FeedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_fetch_duration_seconds",
			Help:      "Time spent fetching and parsing the calendar feed.",
			Buckets:   prometheus.DefBuckets,
		}),
		FeedEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_entries",
			Help:      "Entries produced by the last successful feed load.",
		}),
	}
	reg.MustRegister(
		m.Announcements,
		m.FeedFetches,
		m.FeedDuration,
		m.FeedEntries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveAnnouncement(trigger, result string) {
	if m == nil {
		return
	}
	m.Announcements.WithLabelValues(trigger, result).Inc()
}

func (m *Metrics) ObserveFeed(started time.Time, entries int, err error) {
	if m == nil {
		return
	}
	m.FeedDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		m.FeedFetches.WithLabelValues("error").Inc()
		return
	}
	m.FeedFetches.WithLabelValues("ok").Inc()
	m.FeedEntries.Set(float64(entries))
}
