package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	consumerLabels = []string{"topic", "consumer_group"}
	producerLabels = []string{"topic"}
)

func consumerCounter(name, help string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kafka",
		Subsystem: "consumer",
		Name:      name,
		Help:      help,
	}, consumerLabels)
}

func producerCounter(name, help string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kafka",
		Subsystem: "producer",
		Name:      name,
		Help:      help,
	}, producerLabels)
}

// Consumer metrics, labelled by topic and consumer group.
var (
	ConsumerMessagesReceived  = consumerCounter("messages_received_total", "Messages fetched from the broker.")
	ConsumerMessagesProcessed = consumerCounter("messages_processed_total", "Messages the handler applied to the index.")
	ConsumerMessagesFailed    = consumerCounter("messages_failed_total", "Messages that exhausted every handler attempt.")
	ConsumerMessagesDuplicate = consumerCounter("messages_duplicate_total", "Redelivered events skipped by the deduplication guard.")
	ConsumerDLQPublished      = consumerCounter("dlq_published_total", "Messages forwarded to a dead-letter topic.")

	ConsumerProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kafka",
		Subsystem: "consumer",
		Name:      "processing_duration_seconds",
		Help:      "Time spent handling one message, retries included.",
		Buckets:   []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10},
	}, consumerLabels)
)

// Producer metrics cover dead-letter publishing, labelled by topic.
var (
	ProducerMessagesPublished = producerCounter("messages_published_total", "Messages written to Kafka.")
	ProducerPublishErrors     = producerCounter("publish_errors_total", "Failed Kafka writes.")

	ProducerPublishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kafka",
		Subsystem: "producer",
		Name:      "publish_duration_seconds",
		Help:      "Latency of Kafka writes.",
		Buckets:   prometheus.DefBuckets,
	}, producerLabels)
)
