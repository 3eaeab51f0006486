package workingsetcompiler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics collects the compiler's end-to-end compile timing and outcome
// counts.
type metrics struct {
	compileDuration   prometheus.Histogram
	candidatesTotal   prometheus.Counter
	errorsTotal       *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		compileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wscompile_compile_duration_seconds",
			Help:    "Time to compile one working set, end to end.",
			Buckets: prometheus.DefBuckets,
		}),
		candidatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wscompile_compile_candidates_total",
			Help: "Total candidates generated across all compilations.",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wscompile_compile_errors_total",
			Help: "Compile errors by kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.compileDuration, m.candidatesTotal, m.errorsTotal)
	}
	return m
}
