// Package metrics exposes Prometheus counters for the subscription lifecycle,
// bulk delivery, and webhook ingestion.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Events counts every audit record appended to the event log.
	Events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "optin_events_total",
		Help: "Total number of events appended to the event log, by type",
	}, []string{"type"})
	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "optin_rate_limited_total",
		Help: "Total number of requests rejected by the rate limiter",
	}, []string{"route"})
	// BulkRecipients counts per-recipient delivery outcomes. Result is one of
	// sent, failed, timeout, skipped.
	BulkRecipients = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "optin_bulk_recipients_total",
		Help: "Total number of bulk delivery outcomes, by result",
	}, []string{"result"})
	BulkSuppressedAdded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "optin_bulk_suppressed_added_total",
		Help: "Addresses added to the suppression set after permanent bulk failures",
	})
	WebhookRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "optin_webhook_requests_total",
		Help: "Inbound provider webhook requests, by outcome",
	}, []string{"outcome"})
	SuppressionAdds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "optin_suppression_adds_total",
		Help: "Addresses newly added to the suppression set, by source",
	}, []string{"source"})
)

func init() {
	prometheus.MustRegister(Events)
	prometheus.MustRegister(RateLimited)
	prometheus.MustRegister(BulkRecipients)
	prometheus.MustRegister(BulkSuppressedAdded)
	prometheus.MustRegister(WebhookRequests)
	prometheus.MustRegister(SuppressionAdds)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
