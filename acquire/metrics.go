package acquire

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

type metrics struct {
	reps,
	bytes,
	passes,
	wraps,
	rangeErrors prometheus.Counter
	toggles     *prometheus.CounterVec
	unprocessed prometheus.Gauge
	count       prometheus.Gauge
}

func newMetrics(namespace string, registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		reps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reps_consumed",
			Help:      "Number of repetitions averaged",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_consumed",
			Help:      "Number of sample bytes returned to the card",
		}),
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consume_passes",
			Help:      "Number of consume passes",
		}),
		wraps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wrapped_fetches",
			Help:      "Number of consume passes whose repetitions straddled the end of the ring",
		}),
		rangeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "range_errors",
			Help:      "Number of consume passes skipped because the repetitions were out of range",
		}),
		toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_toggles",
			Help:      "Number of times the trigger was enabled or disabled",
		}, []string{"state"}),
		unprocessed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unprocessed_reps",
			Help:      "Repetitions triggered but not yet averaged",
		}),
		count: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reps_averaged",
			Help:      "Repetitions in the current average",
		}),
	}
	if registerer == nil {
		return m, nil
	}
	err := multierr.Combine(
		registerer.Register(m.reps),
		registerer.Register(m.bytes),
		registerer.Register(m.passes),
		registerer.Register(m.wraps),
		registerer.Register(m.rangeErrors),
		registerer.Register(m.toggles),
		registerer.Register(m.unprocessed),
		registerer.Register(m.count),
	)
	return m, err
}
