// Package obs exposes prometheus metrics for the scheduler and guardrail.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CandlesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "candles_total", Help: "Candles consumed from the feed"},
		[]string{"symbol"},
	)
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "decisions_total", Help: "Strategy decisions by route and intent"},
		[]string{"route", "intent"},
	)
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "alerts_total", Help: "Guardrail alerts by level"},
		[]string{"level"},
	)
	KillSwitchEngaged = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "kill_switch_engaged", Help: "1 once the kill switch has tripped"},
	)
	StepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "route_step_seconds",
			Help:    "Wall time of a single route step",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		},
	)
)

func init() {
	prometheus.MustRegister(CandlesTotal, DecisionsTotal, AlertsTotal, KillSwitchEngaged, StepDuration)
}

// Serve starts the /metrics endpoint in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
