package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PositionsOpened = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "norvia_positions_opened_total",
		Help: "Positions opened, by who opened them.",
	}, []string{"opened_by"})
	PositionsClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "norvia_positions_closed_total",
		Help: "Positions closed, by reason.",
	}, []string{"reason"})
	Decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "norvia_review_decisions_total",
		Help: "Admin and worker decisions on pending records.",
	}, []string{"kind", "outcome"})
	SweepRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "norvia_sweep_runs_total",
		Help: "Background sweep iterations, by job and result.",
	}, []string{"job", "result"})
	SweepBatch = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "norvia_sweep_last_batch",
		Help: "Records transitioned by the last sweep iteration.",
	}, []string{"job"})
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "norvia_http_requests_total",
		Help: "HTTP requests by route pattern, method and status class.",
	}, []string{"route", "method", "status"})
)

func init() {
	prometheus.MustRegister(PositionsOpened, PositionsClosed, Decisions, SweepRuns, SweepBatch, HTTPRequests)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
