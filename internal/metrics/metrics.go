package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue metrics
	ItemsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_queue_items_processed_total",
			Help: "Queue items that reached a terminal state, by channel and status",
		},
		[]string{"channel", "status"},
	)

	ItemsRequeuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_queue_items_requeued_total",
			Help: "Queue items returned to pending for retry, by channel",
		},
		[]string{"channel"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "outreach_queue_depth",
			Help: "Pending queue items observed at the last poll, by channel",
		},
		[]string{"channel"},
	)

	StaleLeasesReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outreach_stale_leases_reclaimed_total",
			Help: "Processing items returned to pending by lease reclamation",
		},
	)

	// Dispatch metrics
	SendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_sends_total",
			Help: "Successful transport sends, by channel",
		},
		[]string{"channel"},
	)

	ContentGenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_content_generations_total",
			Help: "Content generation calls, by channel and result",
		},
		[]string{"channel", "result"},
	)

	// Run metrics
	RunsCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outreach_runs_completed_total",
			Help: "Campaign runs transitioned to completed",
		},
	)

	RemindersEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_reminders_enqueued_total",
			Help: "Reminder queue items enqueued, by stage",
		},
		[]string{"stage"},
	)

	// Webhook metrics
	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_webhook_events_total",
			Help: "Webhook events ingested, by event type",
		},
		[]string{"event"},
	)

	WebhookRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outreach_webhook_rejections_total",
			Help: "Webhook deliveries rejected for bad signatures",
		},
	)
)

// Register registers all metrics with the default registry.
func Register() {
	prometheus.MustRegister(
		ItemsProcessedTotal,
		ItemsRequeuedTotal,
		QueueDepth,
		StaleLeasesReclaimedTotal,
		SendsTotal,
		ContentGenerationsTotal,
		RunsCompletedTotal,
		RemindersEnqueuedTotal,
		WebhookEventsTotal,
		WebhookRejectionsTotal,
	)
}

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
