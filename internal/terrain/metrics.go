package terrain

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request outcomes reported by Metrics.
const (
	OutcomeOK              = "ok"
	OutcomeUnavailable     = "unavailable"
	OutcomeInvalidGeometry = "invalid_geometry"
	OutcomeGPUError        = "gpu_error"
	OutcomeEvicted         = "evicted"
	OutcomeCanceled        = "canceled"
)

// Metrics holds the prometheus collectors for geometry requests.
// A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "terrain",
			Name:      "geometry_requests_total",
			Help:      "Tile geometry requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "terrain",
			Name:      "geometry_request_duration_seconds",
			Help:      "Time from request to attached mesh or failure.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"provider"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "terrain",
			Name:      "geometry_requests_in_flight",
			Help:      "Tile geometry requests not yet resolved.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.requests, m.duration, m.inFlight} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) started() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) finished(provider string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.requests.WithLabelValues(provider, outcome(err)).Inc()
	m.duration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrTileEvicted):
		return OutcomeEvicted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	case errors.Is(err, ErrInvalidGeometry):
		return OutcomeInvalidGeometry
	case errors.Is(err, ErrGPUResource):
		return OutcomeGPUError
	default:
		return OutcomeUnavailable
	}
}
