package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records reconciliation outcomes for gateway webhooks.
type WebhookMetrics struct {
	processed  *prometheus.CounterVec
	duplicate  *prometheus.CounterVec
	conflict   *prometheus.CounterVec
	unresolved *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_processed",
		Help: "Webhook events applied to local state.",
	}, []string{"event"})
	duplicate := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_duplicate",
		Help: "Webhook events skipped as already processed.",
	}, []string{"event"})
	conflict := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_conflict",
		Help: "Webhook events whose transition conflicted with local state.",
	}, []string{"event"})
	unresolved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_unresolved",
		Help: "Webhook events that could not be matched to a local record.",
	}, []string{"event"})
	reg.MustRegister(processed, duplicate, conflict, unresolved)
	return &WebhookMetrics{
		processed:  processed,
		duplicate:  duplicate,
		conflict:   conflict,
		unresolved: unresolved,
	}
}

// IncProcessed increments the processed counter for the named event.
func (w *WebhookMetrics) IncProcessed(event string) {
	if w == nil || w.processed == nil {
		return
	}
	w.processed.WithLabelValues(normalizeLabel(event)).Inc()
}

// IncDuplicate increments the duplicate counter for the named event.
func (w *WebhookMetrics) IncDuplicate(event string) {
	if w == nil || w.duplicate == nil {
		return
	}
	w.duplicate.WithLabelValues(normalizeLabel(event)).Inc()
}

// IncConflict increments the conflict counter for the named event.
func (w *WebhookMetrics) IncConflict(event string) {
	if w == nil || w.conflict == nil {
		return
	}
	w.conflict.WithLabelValues(normalizeLabel(event)).Inc()
}

// IncUnresolved increments the unresolved counter for the named event.
func (w *WebhookMetrics) IncUnresolved(event string) {
	if w == nil || w.unresolved == nil {
		return
	}
	w.unresolved.WithLabelValues(normalizeLabel(event)).Inc()
}
