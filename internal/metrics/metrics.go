// Package metrics exposes Prometheus counters for the check-in flow.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector records session outcomes and backend calls.
type Collector struct {
	submits         *prometheus.CounterVec
	draftSaves      *prometheus.CounterVec
	locationFails   prometheus.Counter
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		submits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_submits_total",
			Help: "Final check-in submissions by outcome.",
		}, []string{"outcome"}),
		draftSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_draft_saves_total",
			Help: "Draft saves by outcome (remote, local_only, failed).",
		}, []string{"outcome"}),
		locationFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkin_location_failures_total",
			Help: "Failed device location acquisitions.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_backend_requests_total",
			Help: "Backend requests by operation and HTTP status (0 for transport errors).",
		}, []string{"op", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "checkin_backend_request_seconds",
			Help:    "Backend request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}

	reg.MustRegister(
		c.submits,
		c.draftSaves,
		c.locationFails,
		c.requests,
		c.requestDuration,
	)
	return c
}

func (c *Collector) CheckinSubmitted(outcome string) {
	c.submits.WithLabelValues(outcome).Inc()
}

func (c *Collector) DraftSaved(outcome string) {
	c.draftSaves.WithLabelValues(outcome).Inc()
}

func (c *Collector) LocationFailed() {
	c.locationFails.Inc()
}

// ObserveRequest records one backend round trip.
func (c *Collector) ObserveRequest(op string, status int, elapsed time.Duration) {
	c.requests.WithLabelValues(op, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// WriteTextfile writes everything gatherer holds to path in the text
// exposition format, replacing the file atomically. The file is meant for
// a node_exporter textfile collector since the CLI is never scraped.
func WriteTextfile(path string, gatherer prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
