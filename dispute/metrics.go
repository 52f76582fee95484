package dispute

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dispute_transitions_total",
	Help: "Committed stage transitions by resulting stage.",
}, []string{"stage"})
