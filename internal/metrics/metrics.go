package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "gpx2img"

// Photo outcomes.
const (
	OutcomeTagged         = "tagged"
	OutcomePlanned        = "planned"
	OutcomeAlreadyTagged  = "already_tagged"
	OutcomeOutOfTolerance = "out_of_tolerance"
	OutcomeFailed         = "failed"
)

// Recorder collects the metrics of one batch run in its own registry.
type Recorder struct {
	registry      *prometheus.Registry
	photos        *prometheus.CounterVec
	trackpoints   prometheus.Counter
	matchDistance prometheus.Histogram
	lastRun       prometheus.Gauge
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		photos: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "photos_total",
			Help:      "Photos processed, by outcome",
		}, []string{"outcome"}),
		trackpoints: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trackpoints_indexed_total",
			Help:      "Trackpoints read from all track logs",
		}),
		matchDistance: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_distance_seconds",
			Help:      "Time gap between photo capture and nearest trackpoint",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last batch finished",
		}),
	}
}

func (r *Recorder) Photo(outcome string) {
	r.photos.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Trackpoints(n int) {
	r.trackpoints.Add(float64(n))
}

func (r *Recorder) MatchDistance(d time.Duration) {
	r.matchDistance.Observe(d.Seconds())
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Push sends the run's metrics to a Prometheus Pushgateway.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	r.lastRun.SetToCurrentTime()
	if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
