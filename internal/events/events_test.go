package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent_PopulatesIdentity(t *testing.T) {
	e := NewEvent(EventTickCompleted, map[string]int{"year": 7})

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, EventTickCompleted, e.Type)
	assert.False(t, e.Timestamp.IsZero())
	assert.NoError(t, e.Validate())
}

func TestEvent_ValidateRequiresType(t *testing.T) {
	e := Event{Payload: "data"}
	assert.ErrorIs(t, e.Validate(), ErrEmptyEventType)
}

func TestEvent_Builders(t *testing.T) {
	e := NewEvent(EventRunStarted, nil).WithRunID("run-1").WithSource("engine")
	assert.Equal(t, "run-1", e.RunID)
	assert.Equal(t, "engine", e.Source)
}

func TestInMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()

	var received []Event
	require.NoError(t, bus.Subscribe(ctx, EventTickCompleted, func(e Event) {
		received = append(received, e)
	}))

	require.NoError(t, bus.Publish(ctx, NewEvent(EventTickCompleted, 1)))
	require.NoError(t, bus.Publish(ctx, NewEvent(EventRunCompleted, 2))) // different topic

	require.Len(t, received, 1)
	assert.Equal(t, EventTickCompleted, received[0].Type)
}

func TestInMemoryBus_WildcardReceivesEverything(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()

	count := 0
	require.NoError(t, bus.Subscribe(ctx, TopicAll, func(Event) { count++ }))

	require.NoError(t, bus.Publish(ctx, NewEvent(EventRunStarted, nil)))
	require.NoError(t, bus.Publish(ctx, NewEvent(EventTickCompleted, nil)))
	require.NoError(t, bus.Publish(ctx, NewEvent(EventRunCompleted, nil)))

	assert.Equal(t, 3, count)
}

func TestInMemoryBus_SubscribeValidation(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()

	assert.ErrorIs(t, bus.Subscribe(ctx, "", func(Event) {}), ErrEmptyTopic)
	assert.ErrorIs(t, bus.Subscribe(ctx, EventRunStarted, nil), ErrNilHandler)
}

func TestInMemoryBus_ClosedBusRejectsTraffic(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(ctx, NewEvent(EventRunStarted, nil)), ErrBusClosed)
	assert.ErrorIs(t, bus.Subscribe(ctx, EventRunStarted, func(Event) {}), ErrBusClosed)
}

func TestInMemoryBus_PublishEmptyTypeRejected(t *testing.T) {
	bus := NewInMemoryBus()
	assert.ErrorIs(t, bus.Publish(context.Background(), Event{}), ErrEmptyEventType)
}

func TestInMemoryBus_CancelledContext(t *testing.T) {
	bus := NewInMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, bus.Publish(ctx, NewEvent(EventRunStarted, nil)))
	assert.Error(t, bus.Subscribe(ctx, EventRunStarted, func(Event) {}))
}

func TestEvent_JSONRoundTrip(t *testing.T) {
	e := NewEvent(EventRunCompleted, map[string]any{"finalCo2": 320.5}).WithRunID("run-9")
	data, err := e.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sim.run.completed"`)
	assert.Contains(t, string(data), `"run-9"`)
}
