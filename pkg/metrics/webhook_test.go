package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWebhookMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWebhookMetrics(reg)

	m.IncProcessed("payment.paid")
	m.IncProcessed("payment.paid")
	m.IncDuplicate("payment.paid")
	m.IncConflict("payment.refunded")
	m.IncUnresolved("")

	if got := testutil.ToFloat64(m.processed.WithLabelValues("payment.paid")); got != 2 {
		t.Fatalf("expected 2 processed, got %v", got)
	}
	if got := testutil.ToFloat64(m.duplicate.WithLabelValues("payment.paid")); got != 1 {
		t.Fatalf("expected 1 duplicate, got %v", got)
	}
	if got := testutil.ToFloat64(m.conflict.WithLabelValues("payment.refunded")); got != 1 {
		t.Fatalf("expected 1 conflict, got %v", got)
	}
	if got := testutil.ToFloat64(m.unresolved.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("expected empty event to normalize to unknown, got %v", got)
	}
}

func TestWebhookMetrics_NilSafe(t *testing.T) {
	var m *WebhookMetrics
	m.IncProcessed("payment.paid")
	m.IncDuplicate("payment.paid")
	m.IncConflict("payment.paid")
	m.IncUnresolved("payment.paid")

	empty := NewWebhookMetrics(nil)
	empty.IncProcessed("payment.paid")
}
