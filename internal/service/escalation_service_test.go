package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/desk-ticket-service/internal/domain"
	"github.com/spec-kit/desk-ticket-service/internal/events"
	"github.com/spec-kit/desk-ticket-service/internal/sla"
)

type stubLocker struct {
	grant    bool
	err      error
	calls    int
	released int
}

func (l *stubLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	l.calls++
	if l.err != nil || !l.grant {
		return func() {}, false, l.err
	}
	return func() { l.released++ }, true, nil
}

func TestEvaluate_BumpsOncePerTierCrossing(t *testing.T) {
	h := newHarness(t)
	esc := NewEscalationService(h.svc, nil, nil, EscalationOptions{})
	ctx := context.Background()
	ticket := h.create(t, "towel")

	h.advance(10 * time.Minute)
	res, err := esc.Evaluate(ctx, hotelID, ticket.ID)
	require.NoError(t, err)
	assert.False(t, res.Escalated)
	assert.Equal(t, sla.RiskTierDueSoon, res.Tier)

	h.advance(11 * time.Minute) // 4 minutes left
	res, err = esc.Evaluate(ctx, hotelID, ticket.ID)
	require.NoError(t, err)
	assert.True(t, res.Escalated)
	assert.Equal(t, sla.RiskTierDueNow, res.Tier)
	assert.Equal(t, domain.TicketPriorityHigh, res.Priority)

	for i := 0; i < 3; i++ {
		res, err = esc.Evaluate(ctx, hotelID, ticket.ID)
		require.NoError(t, err)
		assert.False(t, res.Escalated)
	}

	h.advance(5 * time.Minute) // overdue
	res, err = esc.Evaluate(ctx, hotelID, ticket.ID)
	require.NoError(t, err)
	assert.True(t, res.Escalated)
	assert.Equal(t, domain.TicketPriorityUrgent, res.Priority)

	for i := 0; i < 5; i++ {
		h.advance(time.Minute)
		res, err = esc.Evaluate(ctx, hotelID, ticket.ID)
		require.NoError(t, err)
		assert.False(t, res.Escalated)
	}

	stored, err := h.tickets.GetByID(ctx, hotelID, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityUrgent, stored.Priority)
	assert.Equal(t, sla.RiskTierOverdue, stored.EscalatedTier)
	assert.Equal(t, domain.TicketStatusNew, stored.Status)
	assert.Len(t, h.events.ofType(events.EventTicketEscalated), 2)

	history, err := h.svc.ListHistory(ctx, hotelID, ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, domain.ActorRoleSystem, history[1].ActorRole)
	assert.Equal(t, "system:escalation", history[1].ActorID)
	assert.Equal(t, domain.OpBumpPriority, history[2].Operation)
}

func TestEvaluate_JumpStraightToOverdueBumpsOnce(t *testing.T) {
	h := newHarness(t)
	esc := NewEscalationService(h.svc, nil, nil, EscalationOptions{})
	ctx := context.Background()
	ticket := h.create(t, "towel")

	h.advance(2 * time.Hour)
	for i := 0; i < 4; i++ {
		_, err := esc.Evaluate(ctx, hotelID, ticket.ID)
		require.NoError(t, err)
	}

	stored, err := h.tickets.GetByID(ctx, hotelID, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityHigh, stored.Priority)
	assert.Equal(t, sla.RiskTierOverdue, stored.EscalatedTier)
}

func TestEvaluate_IgnoresAcceptedTickets(t *testing.T) {
	h := newHarness(t)
	esc := NewEscalationService(h.svc, nil, nil, EscalationOptions{})
	ctx := context.Background()
	ticket := h.create(t, "towel")
	_, err := h.svc.AcceptTicket(ctx, hotelID, ticket.ID, staff)
	require.NoError(t, err)

	h.advance(time.Hour)
	res, err := esc.Evaluate(ctx, hotelID, ticket.ID)
	require.NoError(t, err)

	assert.False(t, res.Escalated)
	assert.Equal(t, sla.RiskTierOverdue, res.Tier)
	assert.Equal(t, domain.TicketPriorityNormal, res.Priority)
}

func TestEvaluate_UnknownTicket(t *testing.T) {
	h := newHarness(t)
	esc := NewEscalationService(h.svc, nil, nil, EscalationOptions{})

	_, err := esc.Evaluate(context.Background(), hotelID, "nope")

	assert.ErrorIs(t, err, domain.ErrTicketNotFound)
}

func TestSweep_EscalatesAcrossHotels(t *testing.T) {
	h := newHarness(t)
	h.catalog.Put(domain.ServiceDefinition{HotelID: "hotel-2", Key: "towel", Department: "housekeeping", DefaultSLAMinutes: 10, Active: true})
	locker := &stubLocker{grant: true}
	esc := NewEscalationService(h.svc, locker, nil, EscalationOptions{BatchSize: 50})
	ctx := context.Background()

	first := h.create(t, "towel")
	second := h.create(t, "plumbing")
	other, err := h.svc.CreateTicket(ctx, "hotel-2", CreateTicketInput{ServiceKey: "towel", Title: "Towels", Actor: guest})
	require.NoError(t, err)

	h.advance(22 * time.Minute)
	result, err := esc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 2, result.Escalated)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 1, locker.released)

	again, err := esc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Escalated)

	for id, hotel := range map[string]string{first.ID: hotelID, other.ID: "hotel-2"} {
		stored, err := h.tickets.GetByID(ctx, hotel, id)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketPriorityHigh, stored.Priority)
	}
	untouched, err := h.tickets.GetByID(ctx, hotelID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityNormal, untouched.Priority)
}

func TestSweep_SkipsWhenLockHeld(t *testing.T) {
	h := newHarness(t)
	esc := NewEscalationService(h.svc, &stubLocker{grant: false}, nil, EscalationOptions{})
	h.create(t, "towel")
	h.advance(time.Hour)

	result, err := esc.Sweep(context.Background())

	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Zero(t, result.Scanned)
}

func TestSweep_LockError(t *testing.T) {
	h := newHarness(t)
	lockErr := errors.New("redis down")
	esc := NewEscalationService(h.svc, &stubLocker{err: lockErr}, nil, EscalationOptions{})

	_, err := esc.Sweep(context.Background())

	assert.ErrorIs(t, err, lockErr)
}

func TestSweep_ReachesFreshTicketsBehindExhaustedOnes(t *testing.T) {
	h := newHarness(t)
	esc := NewEscalationService(h.svc, nil, nil, EscalationOptions{BatchSize: 5})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		h.create(t, "towel")
	}
	h.advance(30 * time.Minute)
	result, err := esc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, result.Escalated)

	fresh := h.create(t, "towel")
	h.advance(24 * time.Minute)

	for i := 0; i < 2; i++ {
		result, err = esc.Sweep(ctx)
		require.NoError(t, err)
	}

	stored, err := h.tickets.GetByID(ctx, hotelID, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityHigh, stored.Priority)
	assert.Equal(t, sla.RiskTierDueNow, stored.EscalatedTier)
	assert.Equal(t, 1, result.Scanned)
}

func TestSweep_PagesThroughEveryCandidate(t *testing.T) {
	h := newHarness(t)
	esc := NewEscalationService(h.svc, nil, nil, EscalationOptions{BatchSize: 2})
	for i := 0; i < 5; i++ {
		h.create(t, "towel")
	}
	h.advance(22 * time.Minute)

	result, err := esc.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 5, result.Scanned)
	assert.Equal(t, 5, result.Escalated)
}
