package repository_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/desk-ticket-service/internal/domain"
	"github.com/spec-kit/desk-ticket-service/internal/repository"
	"github.com/spec-kit/desk-ticket-service/internal/sla"
)

var base = time.Date(2026, 7, 1, 6, 0, 0, 0, time.UTC)

func sampleTicket(id, hotelID string, priority domain.TicketPriority, createdOffset time.Duration) *domain.Ticket {
	return domain.NewTicket(domain.NewTicketParams{
		ID:               id,
		Reference:        "TCK-" + id,
		HotelID:          hotelID,
		ServiceKey:       "towel",
		Department:       "housekeeping",
		Title:            "Towels",
		Source:           domain.TicketSourceGuestApp,
		Priority:         priority,
		SLATargetMinutes: 25,
	}, base.Add(createdOffset))
}

func TestMemoryTicketRepository_UpdateIfVersion(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryTicketRepository()
	ticket := sampleTicket("a", "h1", domain.TicketPriorityNormal, 0)
	require.NoError(t, repo.Create(ctx, ticket))

	update := ticket.Clone()
	update.Priority = domain.TicketPriorityHigh
	require.NoError(t, repo.UpdateIfVersion(ctx, update, 1))
	assert.Equal(t, int64(2), update.Version)

	stale := ticket.Clone()
	stale.Priority = domain.TicketPriorityLow
	err := repo.UpdateIfVersion(ctx, stale, 1)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	stored, err := repo.GetByID(ctx, "h1", "a")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityHigh, stored.Priority)
	assert.Equal(t, int64(2), stored.Version)
}

func TestMemoryTicketRepository_UpdateKeepsImmutableFields(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryTicketRepository()
	ticket := sampleTicket("a", "h1", domain.TicketPriorityNormal, 0)
	require.NoError(t, repo.Create(ctx, ticket))

	tampered := ticket.Clone()
	tampered.SLATargetMinutes = 999
	tampered.DueAt = base.Add(48 * time.Hour)
	tampered.CreatedAt = base.Add(time.Hour)
	require.NoError(t, repo.UpdateIfVersion(ctx, tampered, 1))

	stored, err := repo.GetByID(ctx, "h1", "a")
	require.NoError(t, err)
	assert.Equal(t, 25, stored.SLATargetMinutes)
	assert.Equal(t, base, stored.CreatedAt)
	assert.Equal(t, base.Add(25*time.Minute), stored.DueAt)
}

func TestMemoryTicketRepository_ScopesByHotel(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryTicketRepository()
	require.NoError(t, repo.Create(ctx, sampleTicket("a", "h1", domain.TicketPriorityNormal, 0)))

	_, err := repo.GetByID(ctx, "h2", "a")
	assert.ErrorIs(t, err, domain.ErrTicketNotFound)

	foreign := sampleTicket("a", "h2", domain.TicketPriorityNormal, 0)
	assert.ErrorIs(t, repo.UpdateIfVersion(ctx, foreign, 1), domain.ErrTicketNotFound)
}

func TestMemoryTicketRepository_ConcurrentWritersOneWins(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryTicketRepository()
	require.NoError(t, repo.Create(ctx, sampleTicket("a", "h1", domain.TicketPriorityNormal, 0)))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			current, err := repo.GetByID(ctx, "h1", "a")
			if err != nil {
				return
			}
			next := current.Clone()
			next.Title = fmt.Sprintf("writer %d", i)
			if repo.UpdateIfVersion(ctx, next, 1) == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryTicketRepository_ListOrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryTicketRepository()
	require.NoError(t, repo.Create(ctx, sampleTicket("low-old", "h1", domain.TicketPriorityLow, 0)))
	require.NoError(t, repo.Create(ctx, sampleTicket("urgent", "h1", domain.TicketPriorityUrgent, time.Minute)))
	require.NoError(t, repo.Create(ctx, sampleTicket("low-new", "h1", domain.TicketPriorityLow, 2*time.Minute)))
	require.NoError(t, repo.Create(ctx, sampleTicket("other-hotel", "h2", domain.TicketPriorityUrgent, 0)))

	all, err := repo.ListWithFilter(ctx, repository.TicketFilter{HotelID: "h1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"urgent", "low-new", "low-old"}, ids(all))

	lows, err := repo.ListWithFilter(ctx, repository.TicketFilter{
		HotelID:    "h1",
		Priorities: []domain.TicketPriority{domain.TicketPriorityLow},
		Limit:      1,
		Offset:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"low-old"}, ids(lows))

	none, err := repo.ListWithFilter(ctx, repository.TicketFilter{
		HotelID:  "h1",
		Statuses: []domain.TicketStatus{domain.TicketStatusClosed},
	})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryTicketRepository_EscalationCandidates(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryTicketRepository()
	require.NoError(t, repo.Create(ctx, sampleTicket("b", "h2", domain.TicketPriorityLow, time.Minute)))
	require.NoError(t, repo.Create(ctx, sampleTicket("a", "h1", domain.TicketPriorityLow, 0)))
	require.NoError(t, repo.Create(ctx, sampleTicket("c", "h1", domain.TicketPriorityLow, time.Minute)))

	exhausted := sampleTicket("old", "h1", domain.TicketPriorityLow, -time.Hour)
	exhausted.EscalatedTier = sla.RiskTierOverdue
	require.NoError(t, repo.Create(ctx, exhausted))

	claimed := sampleTicket("taken", "h1", domain.TicketPriorityLow, -time.Minute)
	require.NoError(t, claimed.Apply(domain.OpAccept, "staff-1", base))
	require.NoError(t, repo.Create(ctx, claimed))

	got, err := repo.ListEscalationCandidates(ctx, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))

	first, err := repo.ListEscalationCandidates(ctx, nil, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(first))

	rest, err := repo.ListEscalationCandidates(ctx, repository.CursorOf(first[1]), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(rest))
}

func TestMemoryTicketRepository_OverdueFilterPagesInStore(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryTicketRepository()
	now := base.Add(2 * time.Hour)

	require.NoError(t, repo.Create(ctx, sampleTicket("late", "h1", domain.TicketPriorityNormal, 0)))
	for i := 0; i < repository.MaxListLimit+10; i++ {
		fresh := sampleTicket(fmt.Sprintf("fresh-%03d", i), "h1", domain.TicketPriorityNormal, 2*time.Hour-time.Minute)
		require.NoError(t, repo.Create(ctx, fresh))
	}

	// Paused since creation: no SLA time consumed.
	paused := sampleTicket("paused", "h1", domain.TicketPriorityNormal, 0)
	require.NoError(t, paused.Apply(domain.OpStart, "staff-1", base))
	require.NoError(t, paused.Apply(domain.OpPause, "staff-1", base))
	require.NoError(t, repo.Create(ctx, paused))

	// Resolved late: frozen negative remaining.
	resolved := sampleTicket("resolved-late", "h1", domain.TicketPriorityNormal, 0)
	require.NoError(t, resolved.Apply(domain.OpStart, "staff-1", base))
	require.NoError(t, resolved.Apply(domain.OpResolve, "staff-1", base.Add(time.Hour)))
	require.NoError(t, repo.Create(ctx, resolved))

	overdue := true
	got, err := repo.ListWithFilter(ctx, repository.TicketFilter{HotelID: "h1", Overdue: &overdue, Now: now, Limit: 50})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"late", "resolved-late"}, ids(got))

	onTime := false
	page, err := repo.ListWithFilter(ctx, repository.TicketFilter{HotelID: "h1", Overdue: &onTime, Now: now, Limit: 20, Offset: repository.MaxListLimit})
	require.NoError(t, err)
	assert.Len(t, page, 11)
	assert.NotContains(t, ids(page), "late")
}

func TestMemoryTicketRepository_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := repository.NewMemoryTicketRepository()

	_, err := repo.GetByID(ctx, "h1", "a")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func ids(tickets []domain.Ticket) []string {
	out := make([]string, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.ID)
	}
	return out
}
