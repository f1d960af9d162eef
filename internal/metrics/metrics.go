package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry - приватный реестр процесса. Методы безопасны на nil (метрики выключены).
type Registry struct {
	reg *prometheus.Registry

	SourceFetch     *prometheus.CounterVec
	SourceRetries   *prometheus.CounterVec
	Classified      *prometheus.CounterVec
	PaymentTerminal *prometheus.CounterVec
	PaymentPolls    *prometheus.CounterVec
	SourceLatency   *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	fetch := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripbox_source_fetch_total",
		Help: "Booking source fetches by kind and result.",
	}, []string{"kind", "result"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripbox_source_retries_total",
		Help: "Booking source retries by kind.",
	}, []string{"kind"})
	classified := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripbox_classified_total",
		Help: "Records whose kind was inferred, by kind and rule.",
	}, []string{"kind", "rule"})
	terminal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripbox_payment_terminal_total",
		Help: "Payment sessions that reached a terminal state.",
	}, []string{"status", "reason"})
	polls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripbox_payment_polls_total",
		Help: "Payment status polls by result.",
	}, []string{"result"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tripbox_source_fetch_seconds",
		Help:    "Booking source fetch latency including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	r.MustRegister(fetch, retries, classified, terminal, polls, latency)
	return &Registry{
		reg:             r,
		SourceFetch:     fetch,
		SourceRetries:   retries,
		Classified:      classified,
		PaymentTerminal: terminal,
		PaymentPolls:    polls,
		SourceLatency:   latency,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

func (r *Registry) ObserveFetch(kind, result string, seconds float64) {
	if r == nil {
		return
	}
	r.SourceFetch.WithLabelValues(kind, result).Inc()
	r.SourceLatency.WithLabelValues(kind).Observe(seconds)
}

func (r *Registry) ObserveRetry(kind string) {
	if r == nil {
		return
	}
	r.SourceRetries.WithLabelValues(kind).Inc()
}

func (r *Registry) ObserveClassified(kind, rule string) {
	if r == nil {
		return
	}
	r.Classified.WithLabelValues(kind, rule).Inc()
}

func (r *Registry) ObserveTerminal(status, reason string) {
	if r == nil {
		return
	}
	r.PaymentTerminal.WithLabelValues(status, reason).Inc()
}

func (r *Registry) ObservePoll(result string) {
	if r == nil {
		return
	}
	r.PaymentPolls.WithLabelValues(result).Inc()
}
