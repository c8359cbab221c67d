package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	filesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ftpdrain_files_total",
			Help: "Files processed, by transfer outcome",
		},
		[]string{"outcome"},
	)

	bytesTransferred = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ftpdrain_bytes_transferred_total",
			Help: "Bytes written to local storage for verified files",
		},
	)

	reconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ftpdrain_reconnects_total",
			Help: "Sessions re-established after a connection failure",
		},
	)

	dirsPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ftpdrain_directories_pruned_total",
			Help: "Empty remote directories removed",
		},
	)

	keepAlivesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ftpdrain_keepalives_total",
			Help: "Keep-alive probes sent",
		},
		[]string{"status"},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ftpdrain_notifications_total",
			Help: "Failure notifications, by delivery status",
		},
		[]string{"status"},
	)
)

func metricsHandler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordTransfer records one file outcome.
func RecordTransfer(outcome TransferOutcome, bytes int64) {
	filesTotal.WithLabelValues(outcome.String()).Inc()
	if outcome == Verified {
		bytesTransferred.Add(float64(bytes))
	}
}

func RecordReconnect() {
	reconnectsTotal.Inc()
}

func RecordPrune() {
	dirsPrunedTotal.Inc()
}

func RecordKeepAlive(success bool) {
	keepAlivesTotal.WithLabelValues(statusLabel(success)).Inc()
}

func RecordNotification(success bool) {
	notificationsTotal.WithLabelValues(statusLabel(success)).Inc()
}
