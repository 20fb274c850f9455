package queue

import (
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/require"
)

func TestNextRetryCountAdvances(t *testing.T) {
	next, retry := nextRetryCount(amqp.Table{"x-retry-count": int32(0)})
	require.Equal(t, int32(1), next)
	require.True(t, retry)

	next, retry = nextRetryCount(amqp.Table{"x-retry-count": int32(1)})
	require.Equal(t, int32(2), next)
	require.True(t, retry)
}

func TestNextRetryCountExhaustsBudget(t *testing.T) {
	next, retry := nextRetryCount(amqp.Table{"x-retry-count": int32(amqpMaxRetries)})
	require.Equal(t, int32(amqpMaxRetries+1), next)
	require.False(t, retry)
}

func TestNextRetryCountToleratesMissingHeader(t *testing.T) {
	next, retry := nextRetryCount(nil)
	require.Equal(t, int32(1), next)
	require.True(t, retry)

	// Foreign publishers may set the header with a different numeric type;
	// treat anything unreadable as a first delivery.
	next, retry = nextRetryCount(amqp.Table{"x-retry-count": "3"})
	require.Equal(t, int32(1), next)
	require.True(t, retry)
}
