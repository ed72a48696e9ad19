package pubsub

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type alertPayload struct {
	Task string `json:"task"`
}

func (alertPayload) Attributes() map[string]string {
	return map[string]string{"event_type": "alert"}
}

func TestPublisherPublishesJSONWithAttributes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := pubsub.NewClient(ctx, "seo-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer client.Close()

	topic, err := client.CreateTopic(ctx, "seo-alerts")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "seo-alerts-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	pub := New(client)
	id, err := pub.Publish(ctx, "seo-alerts", alertPayload{Task: "technical-seo"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	received := make(chan *pubsub.Message, 1)
	recvCtx, stop := context.WithCancel(ctx)
	go func() {
		_ = sub.Receive(recvCtx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			select {
			case received <- msg:
			default:
			}
			stop()
		})
	}()

	select {
	case msg := <-received:
		require.JSONEq(t, `{"task":"technical-seo"}`, string(msg.Data))
		require.Equal(t, "alert", msg.Attributes["event_type"])
		require.Equal(t, "application/json", msg.Attributes["content_type"])
	case <-ctx.Done():
		t.Fatal("message was not delivered")
	}
	stop()
	require.NoError(t, pub.Close())
}

func TestPublisherValidation(t *testing.T) {
	t.Parallel()

	var nilPub *Publisher
	_, err := nilPub.Publish(context.Background(), "seo-alerts", "x")
	require.Error(t, err)

	_, err = Open(context.Background(), "")
	require.Error(t, err)
}
