package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestDLQTopic(t *testing.T) {
	assert.Equal(t, "catalog.dlq.ecommerce.product.created", DLQTopic("ecommerce.product.created"))
	assert.Equal(t, "catalog.dlq.", DLQTopic(""))
}

func TestDLQProducer_Publish(t *testing.T) {
	w := &recordingWriter{}
	d := &DLQProducer{writer: w, logger: discardLogger()}

	original := kafka.Message{
		Topic:     "ecommerce.product.updated",
		Partition: 2,
		Offset:    41,
		Key:       []byte("sku-1"),
		Value:     []byte(`{"event_id":"e1"}`),
		Headers:   []kafka.Header{{Key: "traceparent", Value: []byte("tp")}},
	}
	require.NoError(t, d.Publish(context.Background(), original, errors.New("engine down"), "catalog"))

	require.Len(t, w.msgs, 1)
	got := w.msgs[0]
	assert.Equal(t, "catalog.dlq.ecommerce.product.updated", got.Topic)
	assert.Equal(t, original.Key, got.Key)
	assert.Equal(t, original.Value, got.Value)

	headers := NewHeaderCarrier(&got.Headers)
	assert.Equal(t, "tp", headers.Get("traceparent"))
	assert.Equal(t, "ecommerce.product.updated", headers.Get("dlq.original_topic"))
	assert.Equal(t, "2", headers.Get("dlq.original_partition"))
	assert.Equal(t, "41", headers.Get("dlq.original_offset"))
	assert.Equal(t, "catalog", headers.Get("dlq.consumer_group"))
	assert.Equal(t, "engine down", headers.Get("dlq.error"))
	assert.Equal(t, float64(1), testutil.ToFloat64(ProducerMessagesPublished.WithLabelValues(got.Topic)))
}

func TestDLQProducer_PublishWithoutError(t *testing.T) {
	w := &recordingWriter{}
	d := &DLQProducer{writer: w, logger: discardLogger()}

	require.NoError(t, d.Publish(context.Background(), kafka.Message{Topic: "t"}, nil, "g"))
	require.Len(t, w.msgs, 1)
	assert.Empty(t, NewHeaderCarrier(&w.msgs[0].Headers).Get("dlq.error"))
}

func TestDLQProducer_WriteFailure(t *testing.T) {
	d := &DLQProducer{writer: &recordingWriter{err: errors.New("no leader")}, logger: discardLogger()}

	err := d.Publish(context.Background(), kafka.Message{Topic: "dlq-write-failure"}, nil, "g")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog.dlq.dlq-write-failure")
	assert.Equal(t, float64(1), testutil.ToFloat64(ProducerPublishErrors.WithLabelValues("catalog.dlq.dlq-write-failure")))
}
