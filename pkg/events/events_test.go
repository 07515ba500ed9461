package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPublishSubscribe tests event delivery to all subscribers
func TestPublishSubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(&Event{Type: EventTaskLaunched, ServerID: "zk-0", TaskID: "task-1"})

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case event := <-sub:
			assert.Equal(t, EventTaskLaunched, event.Type)
			assert.Equal(t, "zk-0", event.ServerID)
			assert.False(t, event.Timestamp.IsZero(), "timestamp must be stamped on publish")
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

// TestUnsubscribe tests that an unsubscribed channel is closed and dropped
func TestUnsubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub
	require.False(t, open, "unsubscribed channel must be closed")
}

// TestSlowSubscriberSkipped tests that a full subscriber buffer never blocks
// the broker
func TestSlowSubscriberSkipped(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	// Never drained; its 50-slot buffer will fill
	_ = b.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.Publish(&Event{Type: EventOfferDeclined})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broker blocked on a slow subscriber")
	}
}
