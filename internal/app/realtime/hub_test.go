package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(boardID string) *Session {
	return &Session{
		boardID: boardID,
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
	}
}

func TestHubPublishReachesBoardSessions(t *testing.T) {
	hub := NewHub(nil)

	s1 := newTestSession("b1")
	s2 := newTestSession("b1")
	other := newTestSession("b2")
	hub.subscribe(s1)
	hub.subscribe(s2)
	hub.subscribe(other)

	require.NoError(t, hub.Publish(context.Background(), "b1", []byte("snap")))

	for _, s := range []*Session{s1, s2} {
		select {
		case got := <-s.send:
			assert.Equal(t, "snap", string(got))
		default:
			t.Fatal("session did not receive broadcast")
		}
	}
	select {
	case <-other.send:
		t.Fatal("session on another board received broadcast")
	default:
	}

	assert.Equal(t, 2, hub.Subscribers("b1"))
	hub.unsubscribe(s1)
	assert.Equal(t, 1, hub.Subscribers("b1"))
}

func TestEnqueueDropsOldestWhenFull(t *testing.T) {
	s := newTestSession("b1")

	for i := 0; i < sendQueueSize+5; i++ {
		s.enqueue([]byte{byte(i)})
	}

	var got []byte
	for {
		select {
		case p := <-s.send:
			got = p
			continue
		default:
		}
		break
	}
	// The newest payload survives; the oldest five were discarded.
	assert.Equal(t, byte(sendQueueSize+4), got[0])
}

func TestEnqueueAfterCloseIsNoop(t *testing.T) {
	s := newTestSession("b1")
	close(s.done)
	s.enqueue([]byte("late"))
	select {
	case <-s.send:
		t.Fatal("closed session should not queue")
	default:
	}
}

func TestRedisBridgeFansOutThroughHub(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hub := NewHub(nil)
	s := newTestSession("b1")
	hub.subscribe(s)

	bridge := NewBridge(client, hub, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = bridge.Run(ctx) }()

	// Wait until the pattern subscription is registered before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := bridge.Publish(ctx, "b1", []byte("snap")); err == nil {
			select {
			case got := <-s.send:
				assert.Equal(t, "snap", string(got))
				return
			default:
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("bridge never delivered the payload")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
