package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcher_RunsAllHandlersAndJoinsErrors(t *testing.T) {
	d := NewInMemoryDispatcher()
	first := errors.New("first")
	var calls []string

	d.Subscribe(EventTicketEscalated, func(context.Context, Event) error {
		calls = append(calls, "a")
		return first
	})
	d.Subscribe(EventTicketEscalated, func(context.Context, Event) error {
		calls = append(calls, "b")
		return nil
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "unrelated")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketEscalated, TicketID: "t-1"})

	assert.ErrorIs(t, err, first)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestDispatcher_NoSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()

	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketCreated}))
}
