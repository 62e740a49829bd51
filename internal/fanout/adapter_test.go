package fanout_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardcast/boardcast/internal/fanout"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

type received struct {
	Room    string
	Event   string
	Payload string
}

func recordingHandler(ch chan received) fanout.Handler {
	return func(roomID, event string, payload json.RawMessage) {
		ch <- received{Room: roomID, Event: event, Payload: string(payload)}
	}
}

func startAdapter(t *testing.T, addr string, ch chan received) *fanout.Adapter {
	t.Helper()
	a := fanout.New(newTestLogger(), fanout.Options{
		URL:          "redis://" + addr,
		ReadyTimeout: 2 * time.Second,
	})
	if ch != nil {
		a.SetHandler(recordingHandler(ch))
	}
	a.Start(context.Background())
	t.Cleanup(func() { a.Close() })
	return a
}

func TestUnconfiguredMode(t *testing.T) {
	a := fanout.New(newTestLogger(), fanout.Options{URL: ""})
	a.Start(context.Background())
	t.Cleanup(func() { a.Close() })

	assert.Equal(t, fanout.StateUnconfigured, a.State())

	err := a.Publish(context.Background(), "board_b1", "cardMoved", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, fanout.ErrBrokerUnavailable)
}

func TestStartReachesReady(t *testing.T) {
	mr := miniredis.RunT(t)
	a := startAdapter(t, mr.Addr(), nil)
	assert.Equal(t, fanout.StateReady, a.State())
}

func TestDegradedOnUnreachableBroker(t *testing.T) {
	a := fanout.New(newTestLogger(), fanout.Options{
		URL:          "redis://127.0.0.1:1",
		ReadyTimeout: 200 * time.Millisecond,
	})
	a.Start(context.Background())
	t.Cleanup(func() { a.Close() })

	assert.Equal(t, fanout.StateDegraded, a.State())

	err := a.Publish(context.Background(), "board_b1", "cardMoved", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, fanout.ErrBrokerUnavailable)
}

func TestDegradedOnInvalidURL(t *testing.T) {
	a := fanout.New(newTestLogger(), fanout.Options{URL: "not-a-url"})
	a.Start(context.Background())
	t.Cleanup(func() { a.Close() })

	assert.Equal(t, fanout.StateDegraded, a.State())
}

func TestCrossInstanceDelivery(t *testing.T) {
	mr := miniredis.RunT(t)

	chA := make(chan received, 4)
	chB := make(chan received, 4)
	a := startAdapter(t, mr.Addr(), chA)
	b := startAdapter(t, mr.Addr(), chB)

	require.Equal(t, fanout.StateReady, a.State())
	require.Equal(t, fanout.StateReady, b.State())
	require.NotEqual(t, a.Origin(), b.Origin())

	payload := `{"cardId":"c1"}`
	err := a.Publish(context.Background(), "board_b1", "cardMoved", json.RawMessage(payload))
	require.NoError(t, err)

	select {
	case got := <-chB:
		assert.Equal(t, "board_b1", got.Room)
		assert.Equal(t, "cardMoved", got.Event)
		assert.JSONEq(t, payload, got.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("peer instance never received the published event")
	}

	// The publisher must not re-deliver its own event when the broker
	// echoes it back.
	select {
	case got := <-chA:
		t.Fatalf("publisher received its own event back: %+v", got)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestMalformedEnvelopeIsDropped(t *testing.T) {
	mr := miniredis.RunT(t)

	ch := make(chan received, 4)
	a := startAdapter(t, mr.Addr(), ch)
	b := startAdapter(t, mr.Addr(), nil)
	require.Equal(t, fanout.StateReady, a.State())

	// Inject garbage directly onto the shared channel.
	raw := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer raw.Close()
	require.NoError(t, raw.Publish(context.Background(), "boardcast:events", "{not json").Err())

	// A well-formed envelope published afterwards still arrives.
	require.NoError(t, b.Publish(context.Background(), "board_b2", "cardMoved", json.RawMessage(`{"cardId":"c2"}`)))

	select {
	case got := <-ch:
		assert.Equal(t, "board_b2", got.Room)
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop stopped after malformed envelope")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	a := startAdapter(t, mr.Addr(), nil)

	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}
