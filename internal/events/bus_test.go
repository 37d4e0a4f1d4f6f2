package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishWithNoSubscribersIsNoop(t *testing.T) {
	bus := NewBus(4)
	assert.NotPanics(t, func() {
		bus.Publish(AgentTextDelta(uuid.New(), "hi"))
	})
}

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	agentID := uuid.New()
	bus.Publish(AgentTextDelta(agentID, "hello"))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, KindAgentTextDelta, ev.Kind)
		assert.Equal(t, "hello", ev.Text)
		assert.Equal(t, agentID, ev.AgentID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	bus := NewBus(4)
	sub1 := bus.Subscribe()
	sub2 := bus.Subscribe()
	defer sub1.Unsubscribe()
	defer sub2.Unsubscribe()

	bus.Publish(AgentCompleted(uuid.New(), "done"))

	for _, s := range []*Subscription{sub1, sub2} {
		select {
		case ev := <-s.Events():
			assert.Equal(t, KindAgentCompleted, ev.Kind)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestLaggedSubscriberDropsAndCounts(t *testing.T) {
	bus := NewBus(1)
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	bus.Publish(AgentTextDelta(uuid.New(), "one"))
	bus.Publish(AgentTextDelta(uuid.New(), "two"))
	bus.Publish(AgentTextDelta(uuid.New(), "three"))

	assert.Equal(t, uint64(2), sub.Lagged())

	ev := <-sub.Events()
	assert.Equal(t, "three", ev.Text)
}

func TestUnsubscribeRemovesSubscriber(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()
	require.Equal(t, 1, bus.SubscriberCount())

	sub.Unsubscribe()
	assert.Equal(t, 0, bus.SubscriberCount())

	bus.Publish(AgentTextDelta(uuid.New(), "x"))
	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestSharedBusReferenceSeesPublishedEvents(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	other := bus
	other.Publish(AgentCompleted(uuid.New(), "ack"))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, KindAgentCompleted, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event published through shared bus reference")
	}
}
