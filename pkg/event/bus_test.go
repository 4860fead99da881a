package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus(nil)

	t.Run("no filter receives everything", func(t *testing.T) {
		var seen []Type
		sub := bus.Subscribe(func(ev Event) { seen = append(seen, ev.Type) })
		defer bus.Unsubscribe(sub)

		bus.Publish(NewEvent(NodeAdded, "g1"))
		bus.Publish(NewEvent(RelationshipRemoved, "g1"))

		assert.Equal(t, []Type{NodeAdded, RelationshipRemoved}, seen)
	})

	t.Run("filtered subscriber sees only its types", func(t *testing.T) {
		var seen []Type
		sub := bus.Subscribe(func(ev Event) { seen = append(seen, ev.Type) }, NodeRemoved, GraphRestored)
		defer bus.Unsubscribe(sub)

		bus.Publish(NewEvent(NodeAdded, "g1"))
		bus.Publish(NewEvent(NodeRemoved, "g1"))
		bus.Publish(NewEvent(GraphRestored, "g1"))

		assert.Equal(t, []Type{NodeRemoved, GraphRestored}, seen)
	})
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil)

	calls := 0
	sub := bus.Subscribe(func(Event) { calls++ })

	bus.Publish(NewEvent(NodeAdded, "g1"))
	bus.Unsubscribe(sub)
	bus.Publish(NewEvent(NodeAdded, "g1"))

	assert.Equal(t, 1, calls)

	t.Run("unknown subscription is ignored", func(t *testing.T) {
		bus.Unsubscribe(Subscription(999))
	})
}

func TestBus_PanickingHandler(t *testing.T) {
	bus := NewBus(nil)

	bus.Subscribe(func(Event) { panic("bad subscriber") })

	delivered := false
	bus.Subscribe(func(Event) { delivered = true })

	// Must not propagate the panic, and other subscribers still run.
	require.NotPanics(t, func() {
		bus.Publish(NewEvent(NodeAdded, "g1"))
	})
	assert.True(t, delivered)
}

func TestNewEvent(t *testing.T) {
	a := NewEvent(NodeAdded, "g1")
	b := NewEvent(NodeAdded, "g1")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "g1", a.GraphID)
	assert.False(t, a.Timestamp.IsZero())
}
