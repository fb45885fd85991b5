package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helixheal_submissions_total",
			Help: "Run submissions by outcome (accepted/invalid/busy/agent_error).",
		},
		[]string{"outcome"},
	)

	pollTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helixheal_poll_ticks_total",
			Help: "Status poll ticks by outcome (ok/error/stale).",
		},
		[]string{"outcome"},
	)

	pollLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helixheal_poll_latency_ms",
			Help:    "Status fetch latency distribution in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600, 3000},
		},
		[]string{"success"},
	)

	runsTerminalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helixheal_runs_terminal_total",
			Help: "Runs that reached a terminal status (completed/failed).",
		},
		[]string{"status"},
	)

	runElapsedSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "helixheal_run_elapsed_seconds",
			Help:    "Wall-clock duration of terminal runs as counted by the elapsed ticker.",
			Buckets: []float64{15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		},
	)
)

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			submissionsTotal, pollTicksTotal, pollLatencyMs,
			runsTerminalTotal, runElapsedSeconds,
		)
	})
}

func IncSubmission(outcome string) {
	submissionsTotal.WithLabelValues(outcome).Inc()
}

func IncPollTick(outcome string) {
	pollTicksTotal.WithLabelValues(outcome).Inc()
}

func ObservePollLatency(ms float64, success bool) {
	label := "false"
	if success {
		label = "true"
	}
	pollLatencyMs.WithLabelValues(label).Observe(ms)
}

func IncRunTerminal(status string, elapsedSeconds int) {
	runsTerminalTotal.WithLabelValues(status).Inc()
	runElapsedSeconds.Observe(float64(elapsedSeconds))
}
