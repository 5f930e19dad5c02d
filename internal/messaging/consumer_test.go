package messaging

import (
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
)

func TestRetryCountReadsHeader(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int64
	}{
		{name: "no headers", headers: nil, want: 0},
		{name: "first delivery", headers: amqp.Table{}, want: 0},
		{name: "int64 header", headers: amqp.Table{retryCountHeader: int64(2)}, want: 2},
		{name: "int32 header", headers: amqp.Table{retryCountHeader: int32(1)}, want: 1},
		{name: "unexpected type", headers: amqp.Table{retryCountHeader: "2"}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := amqp.Delivery{Headers: tt.headers}
			assert.Equal(t, tt.want, retryCount(msg))
		})
	}
}

// The counter rides in our own header because republishing to the work
// exchange never passes a dead-letter exchange: x-death stays empty and
// must not be what the cutoff reads.
func TestShouldRetryStopsAtMaxRequeues(t *testing.T) {
	c := NewConsumer(nil, "test-queue", "test-consumer")

	assert.True(t, c.shouldRetry(amqp.Delivery{}))
	assert.True(t, c.shouldRetry(amqp.Delivery{Headers: amqp.Table{retryCountHeader: int64(maxRequeues - 1)}}))
	assert.False(t, c.shouldRetry(amqp.Delivery{Headers: amqp.Table{retryCountHeader: int64(maxRequeues)}}))
	assert.False(t, c.shouldRetry(amqp.Delivery{Headers: amqp.Table{retryCountHeader: int64(maxRequeues + 5)}}))

	// A delivery that only carries x-death (dead-letter accounting) still
	// counts as a fresh attempt for the republish cutoff.
	dead := amqp.Delivery{Headers: amqp.Table{"x-death": []interface{}{amqp.Table{"count": int64(4)}}}}
	assert.True(t, c.shouldRetry(dead))
}
