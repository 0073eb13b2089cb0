package rabbitmq

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_published_total",
		Help: "Messages published to RabbitMQ by subject and result.",
	}, []string{"subject", "result"})

	handledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_messages_handled_total",
		Help: "Deliveries settled by subject, queue and decision.",
	}, []string{"subject", "queue", "result"})

	handleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "broker_handle_duration_seconds",
		Help:    "Handler latency per subject.",
		Buckets: prometheus.DefBuckets,
	}, []string{"subject"})
)
