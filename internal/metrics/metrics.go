package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder counts identity events by name and outcome.
type Recorder struct {
	authEvents *prometheus.CounterVec
	gatherer   prometheus.Gatherer
}

func NewRecorder(reg *prometheus.Registry) *Recorder {
	authEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskhub",
		Name:      "auth_events_total",
		Help:      "Authentication events by event and outcome",
	}, []string{"event", "outcome"})
	reg.MustRegister(authEvents)

	return &Recorder{authEvents: authEvents, gatherer: reg}
}

func (r *Recorder) AuthEvent(event, outcome string) {
	r.authEvents.WithLabelValues(event, outcome).Inc()
}

// Handler serves the registry for Prometheus scraping.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
