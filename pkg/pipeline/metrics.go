package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "pipeline",
		Name:      "state_transitions_total",
		Help:      "Number of submission lifecycle transitions by target state",
	}, []string{"operation", "state"})

	pollAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "pipeline",
		Name:      "poll_attempts",
		Help:      "Number of result fetches needed before a batch finished",
		Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 40},
	})

	gradedOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "pipeline",
		Name:      "graded_outcomes_total",
		Help:      "Number of graded test case outcomes by verdict",
	}, []string{"verdict"})

	autosaveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "pipeline",
		Name:      "autosave_total",
		Help:      "Number of autosave ticks by result",
	}, []string{"result"})
)
