package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestPublishDeliversJSON(t *testing.T) {
	ctx := context.Background()

	srv := pstest.NewServer()
	defer srv.Close() //nolint:errcheck

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck

	client, err := pubsub.NewClient(ctx, "cefr-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	topic, err := client.CreateTopic(ctx, "cefr-progress")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "cefr-progress-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	p := New(client)
	id, err := p.Publish(ctx, "cefr-progress", map[string]any{"stage": "BATCH_DONE", "cursor": 1000})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	received := make(chan []byte, 1)
	go func() {
		_ = sub.Receive(rctx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			select {
			case received <- msg.Data:
			default:
			}
		})
	}()

	select {
	case data := <-received:
		cancel()
		var payload map[string]any
		require.NoError(t, json.Unmarshal(data, &payload))
		require.Equal(t, "BATCH_DONE", payload["stage"])
		require.InDelta(t, 1000, payload["cursor"], 0)
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}

	require.Len(t, srv.Messages(), 1)
	require.NoError(t, p.Close())
}

func TestPublishRequiresClient(t *testing.T) {
	t.Parallel()

	p := New(nil)
	_, err := p.Publish(context.Background(), "topic", map[string]int{"cursor": 1})
	require.ErrorContains(t, err, "not configured")
	require.NoError(t, p.Close())
}

func TestCarrierRoundTrip(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	c.Set("traceparent", "00-abc-def-01")
	require.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	require.Equal(t, []string{"traceparent"}, c.Keys())
}
