package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notify_published_total",
		Help: "Notification events handed to the transport successfully.",
	})
	publishFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notify_publish_failed_total",
		Help: "Publish attempts that errored and were left for retry.",
	})
	deadTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notify_dead_total",
		Help: "Notification events abandoned after exhausting retries.",
	})
)
