package handler

import (
	"fmt"
	"net/http"

	"github.com/zunhub/zun/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "zun_ledger_charges_total %d\n", snap.Charges)
	writeMetric(w, "zun_ledger_insufficient_total %d\n", snap.Insufficient)
	writeMetric(w, "zun_ledger_credits_total %d\n", snap.Credits)
	writeMetric(w, "zun_ledger_resets_total %d\n", snap.Resets)
	writeMetric(w, "zun_ledger_degraded_total %d\n", snap.Degraded)

	writeMetric(w, "zun_links_total{status=\"linked\"} %d\n", snap.LinksLinked)
	writeMetric(w, "zun_links_total{status=\"invalid\"} %d\n", snap.LinksInvalid)
	writeMetric(w, "zun_links_total{status=\"duplicate\"} %d\n", snap.LinksDuplicate)
	writeMetric(w, "zun_links_total{status=\"failed\"} %d\n", snap.LinksFailed)

	writeMetric(w, "zun_link_intent_repairs_total{status=\"completed\"} %d\n", snap.RepairsCompleted)
	writeMetric(w, "zun_link_intent_repairs_total{status=\"retried\"} %d\n", snap.RepairsRetried)
	writeMetric(w, "zun_link_intent_repairs_total{status=\"rejected\"} %d\n", snap.RepairsRejected)

	writeMetric(w, "zun_backend_calls_total{outcome=\"answered\"} %d\n", snap.BackendAnswered)
	writeMetric(w, "zun_backend_calls_total{outcome=\"empty\"} %d\n", snap.BackendEmpty)
	writeMetric(w, "zun_backend_calls_total{outcome=\"unavailable\"} %d\n", snap.BackendUnavailable)
	writeMetric(w, "zun_backend_calls_total{outcome=\"error\"} %d\n", snap.BackendError)
	writeMetric(w, "zun_backend_fallbacks_total %d\n", snap.Fallbacks)
	writeMetric(w, "zun_backend_duration_seconds_count %d\n", snap.BackendDurationCount)
	writeMetric(w, "zun_backend_duration_seconds_sum %.6f\n", float64(snap.BackendDurationTotalNs)/1e9)

	writeMetric(w, "zun_chat_rate_limited_total %d\n", snap.RateLimited)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
