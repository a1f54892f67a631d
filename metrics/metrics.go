package metrics

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/m-lab/go/httpx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crperf-go/common/utils"
)

// Metrics shared by client and server.
var (
	Connections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crperf_connections_total",
			Help: "Number of QUIC connections established.",
		},
		[]string{"perspective"})
	ActiveTransfers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crperf_active_transfers",
			Help: "A gauge of transfers currently in progress.",
		},
		[]string{"perspective"})
	TransferBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crperf_transfer_bytes_total",
			Help: "Number of application bytes transferred.",
		},
		[]string{"direction"})
	TransferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crperf_transfer_duration_seconds",
			Help:    "A histogram of transfer completion times.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"perspective"})
	TransferErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crperf_transfer_errors_total",
			Help: "Number of failed transfers of each type.",
		},
		[]string{"perspective", "error"})
	CarefulResumeTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crperf_careful_resume_transitions_total",
			Help: "Number of careful resume phase changes.",
		},
		[]string{"from", "to", "trigger"})
	SeedValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crperf_seed_validations_total",
			Help: "Number of congestion state seeds checked, by result.",
		},
		[]string{"result"})
	WriteStalls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crperf_write_stalls_total",
			Help: "Number of paced writes released by the stall timeout.",
		})
)

// Serve exposes /metrics on addr.
// Access is logged to accessLog.
func Serve(addr string, accessLog func(p []byte) (int, error)) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:    addr,
		Handler: handlers.LoggingHandler(utils.FuncToWriter(accessLog), mux),
	}
	if err := httpx.ListenAndServeAsync(srv); err != nil {
		return nil, err
	}
	return srv, nil
}
