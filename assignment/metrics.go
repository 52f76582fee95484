package assignment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	assignmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assignment_disputes_total",
		Help: "Disputes created and assigned to an analyst.",
	})
	escalationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assignment_escalations_total",
		Help: "Disputes escalated to a manager.",
	})
)
