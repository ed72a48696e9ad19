package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsInOrder(t *testing.T) {
	t.Parallel()

	pub := New()
	ctx := context.Background()
	id, err := pub.Publish(ctx, "seo-alerts", map[string]string{"task": "technical-seo"})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id)
	id, err = pub.Publish(ctx, "seo-events", "payload")
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id)

	all := pub.Messages()
	require.Len(t, all, 2)
	assert.Equal(t, "memory-1", all[0].ID)
	assert.JSONEq(t, `{"task":"technical-seo"}`, string(all[0].Data))

	alerts := pub.Topic("seo-alerts")
	require.Len(t, alerts, 1)
	assert.Empty(t, pub.Topic("unknown"))

	all[0].Topic = "mutated"
	assert.Equal(t, "seo-alerts", pub.Messages()[0].Topic)
}

func TestPublisherFailures(t *testing.T) {
	t.Parallel()

	pub := New()
	ctx := context.Background()

	_, err := pub.Publish(ctx, "seo-alerts", func() {})
	require.ErrorContains(t, err, "marshal payload")

	pub.FailWith(errors.New("topic not found"))
	_, err = pub.Publish(ctx, "seo-alerts", "x")
	require.ErrorContains(t, err, "topic not found")

	pub.FailWith(nil)
	_, err = pub.Publish(ctx, "seo-alerts", "x")
	require.NoError(t, err)

	require.NoError(t, pub.Close())
	_, err = pub.Publish(ctx, "seo-alerts", "y")
	require.ErrorIs(t, err, ErrClosed)
	assert.Len(t, pub.Messages(), 1)
}
