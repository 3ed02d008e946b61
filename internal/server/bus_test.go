package server

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveOne(t *testing.T, sub *Subscription) string {
	t.Helper()
	select {
	case message, ok := <-sub.C():
		require.True(t, ok, "subscription closed unexpectedly")
		return message
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for bus delivery")
		return ""
	}
}

func TestBusDeliversInPublishOrder(t *testing.T) {
	bus := NewBus(10)
	sub, err := bus.Subscribe()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		bus.Publish(fmt.Sprintf("message-%d", i))
	}

	for i := 0; i < 5; i++ {
		assert.Equal(t, fmt.Sprintf("message-%d", i), receiveOne(t, sub))
	}
}

func TestBusDeliversToAllSubscribersIncludingPublisher(t *testing.T) {
	bus := NewBus(10)
	first, err := bus.Subscribe()
	require.NoError(t, err)
	second, err := bus.Subscribe()
	require.NoError(t, err)

	// The bus has no notion of a sender; every open subscription gets the
	// message, which is how chat echo works.
	bus.Publish("hello")

	assert.Equal(t, "hello", receiveOne(t, first))
	assert.Equal(t, "hello", receiveOne(t, second))
}

func TestBusLateSubscriberSeesNoHistory(t *testing.T) {
	bus := NewBus(10)
	bus.Publish("before")

	sub, err := bus.Subscribe()
	require.NoError(t, err)
	bus.Publish("after")

	assert.Equal(t, "after", receiveOne(t, sub))
	select {
	case message := <-sub.C():
		t.Fatalf("unexpected extra delivery: %q", message)
	default:
	}
}

func TestBusDropsOldestForLaggingSubscriber(t *testing.T) {
	bus := NewBus(3)
	lagging, err := bus.Subscribe()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		bus.Publish(fmt.Sprintf("message-%d", i))
	}

	// The two oldest messages are gone; delivery resumes in order.
	assert.Equal(t, "message-2", receiveOne(t, lagging))
	assert.Equal(t, "message-3", receiveOne(t, lagging))
	assert.Equal(t, "message-4", receiveOne(t, lagging))
	assert.Equal(t, uint64(2), lagging.Dropped())
}

func TestBusLagIsIsolatedPerSubscriber(t *testing.T) {
	bus := NewBus(2)
	first, err := bus.Subscribe()
	require.NoError(t, err)
	second, err := bus.Subscribe()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			bus.Publish(fmt.Sprintf("message-%d", i))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked on a lagging subscriber")
	}

	// Each lagging subscriber keeps an in-order subsequence of the publish
	// stream ending at the newest message; neither ever blocked the
	// publisher.
	previous := -1
	for {
		select {
		case message := <-second.C():
			var n int
			_, scanErr := fmt.Sscanf(message, "message-%d", &n)
			require.NoError(t, scanErr)
			assert.Greater(t, n, previous, "deliveries must preserve publish order")
			previous = n
		default:
			assert.Equal(t, 99, previous, "the newest message must survive the lag policy")
			assert.NotZero(t, first.Dropped())
			return
		}
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	bus := NewBus(2)
	sub, err := bus.Subscribe()
	require.NoError(t, err)

	sub.Close()
	sub.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)

	// Publishing after close must not panic or deliver.
	bus.Publish("ignored")
}

func TestBusCloseAll(t *testing.T) {
	bus := NewBus(2)
	sub, err := bus.Subscribe()
	require.NoError(t, err)

	bus.CloseAll()

	_, ok := <-sub.C()
	assert.False(t, ok, "CloseAll must close open subscriptions")

	_, err = bus.Subscribe()
	assert.ErrorIs(t, err, ErrBusClosed)
}
