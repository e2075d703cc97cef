package fabric

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/raskyld/ringhook"
	"github.com/stretchr/testify/require"
)

func testHandler(emitter string) slog.Handler {
	return slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	}).WithAttrs([]slog.Attr{
		{Key: "emitter", Value: slog.StringValue(emitter)},
	})
}

func TestFabric(t *testing.T) {
	sink := metrics.NewInmemSink(time.Minute, time.Minute)

	fbNode1, err := Create(
		WithHostname("node1"),
		WithListenOn("127.0.0.1", 6121),
		WithLog(testHandler("node1")),
		WithNeighbours([]string{"127.0.0.1:6122"}),
		WithMetricSink(sink),
		WithCoalescePeriod(0),
		WithQueryTimeout(3*time.Second),
		WithLocalNetwork(),
	)
	require.NoError(t, err)

	fbNode2, err := Create(
		WithHostname("node2"),
		WithListenOn("127.0.0.1", 6122),
		WithLog(testHandler("node2")),
		WithNeighbours([]string{"127.0.0.1:6121"}),
		WithMetricSink(nil),
		WithCoalescePeriod(0),
		WithQueryTimeout(3*time.Second),
		WithLocalNetwork(),
	)
	require.NoError(t, err)
	defer fbNode2.Shutdown()

	require.Equal(t, "node1", fbNode1.Name())

	t.Run("when node1 join node2, node2 can see node1 info", func(t *testing.T) {
		require.NoError(t, fbNode1.JoinCluster())
		require.NoError(t, fbNode2.JoinCluster())
		require.Eventually(t, func() bool {
			for _, mem := range fbNode2.Topology() {
				if mem.Name == "node1" {
					return true
				}
			}
			return false
		}, 10*time.Second, 100*time.Millisecond)
	})

	t.Run("ready callbacks registered after join fire immediately", func(t *testing.T) {
		fired := false
		cancel := fbNode1.OnReady(func() { fired = true })
		defer cancel()
		require.True(t, fired)
	})

	t.Run("events carry their source", func(t *testing.T) {
		received := make(chan ringhook.Message, 1)
		cancel := fbNode2.Subscribe("test-ring::*", func(msg ringhook.Message) {
			select {
			case received <- msg:
			default:
			}
		})
		defer cancel()

		require.NoError(t, fbNode1.Emit("test-ring::new", []byte("hello")))

		select {
		case msg := <-received:
			require.Equal(t, "node1", msg.Source)
			require.Equal(t, "test-ring::new", msg.Event)
			require.Equal(t, []byte("hello"), msg.Payload)
			require.Nil(t, msg.Reply)
		case <-time.After(10 * time.Second):
			t.Fatal("event was not delivered")
		}
	})

	t.Run("requests collect one response per member", func(t *testing.T) {
		c1 := fbNode1.Subscribe("test-ring::find", func(msg ringhook.Message) {
			_ = msg.Reply([]byte("one"))
		})
		defer c1()
		c2 := fbNode2.Subscribe("test-ring::find", func(msg ringhook.Message) {
			_ = msg.Reply([]byte("two"))
		})
		defer c2()

		responses := make(chan ringhook.Response, 2)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, fbNode1.Request(ctx, "test-ring::find", nil, func(r ringhook.Response) {
			responses <- r
		}))

		got := map[string]string{}
		for len(got) < 2 {
			select {
			case r := <-responses:
				require.NoError(t, r.Err)
				got[r.From] = string(r.Payload)
			case <-ctx.Done():
				t.Fatalf("only received %v", got)
			}
		}
		require.Equal(t, map[string]string{"node1": "one", "node2": "two"}, got)
	})

	t.Run("ring client discovers a ring node across the fabric", func(t *testing.T) {
		node, err := ringhook.NewNode(fbNode1,
			ringhook.WithFamily("fabric"),
			ringhook.WithLog(testHandler("node1")),
			ringhook.WithConfigValues(map[string]any{"address": "10.0.0.1:8080"}),
		)
		require.NoError(t, err)
		defer node.Close()
		require.Equal(t, "node1", node.Name())

		client, err := ringhook.NewClient(fbNode2,
			ringhook.WithFamily("fabric"),
			ringhook.WithLog(testHandler("node2")),
		)
		require.NoError(t, err)
		defer client.Close()

		require.Eventually(t, func() bool {
			return client.Len() == 1
		}, 10*time.Second, 100*time.Millisecond)

		picked, err := client.GetNode("some-key")
		require.NoError(t, err)
		require.Equal(t, "node1", picked.Name)
		require.Equal(t, "10.0.0.1:8080", picked.Address())
	})

	t.Run("reported errors are exposed", func(t *testing.T) {
		fbNode2.ReportError(ringhook.ErrNoAddressFound)
		select {
		case err := <-fbNode2.Errors():
			require.ErrorIs(t, err, ringhook.ErrNoAddressFound)
		case <-time.After(time.Second):
			t.Fatal("error was not exposed")
		}
	})

	t.Run("leaving peers are notified", func(t *testing.T) {
		left := make(chan ringhook.Peer, 1)
		cancel := fbNode2.OnDisconnected(func(p ringhook.Peer) {
			select {
			case left <- p:
			default:
			}
		})
		defer cancel()

		// Left pending: nobody answers, shutdown must not wait for it.
		require.NoError(t, fbNode1.Request(context.Background(), "test-ring::silent", nil, func(ringhook.Response) {}))

		require.NoError(t, fbNode1.Shutdown())
		select {
		case peer := <-left:
			require.Equal(t, "node1", peer.Name)
		case <-time.After(15 * time.Second):
			t.Fatal("departure was not notified")
		}

		require.ErrorIs(t, fbNode1.Emit("test-ring::new", nil), ErrFabricClosed)
		require.ErrorIs(t, fbNode1.Request(context.Background(), "test-ring::find", nil, func(ringhook.Response) {}), ErrFabricClosed)
	})
}
