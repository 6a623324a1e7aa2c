package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/desk-ticket-service/internal/domain"
	"github.com/spec-kit/desk-ticket-service/internal/sla"
)

// MemoryTicketRepository is an in-memory TicketRepository. It stores private
// copies, so callers never share pointers with the store.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]*domain.Ticket
}

// NewMemoryTicketRepository creates an empty store.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{tickets: make(map[string]*domain.Ticket)}
}

func (r *MemoryTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if err := ctx.Err(); err != nil {
		return storeError("create ticket", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tickets[ticket.ID]; exists {
		return domain.ErrVersionConflict
	}
	r.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (r *MemoryTicketRepository) UpdateIfVersion(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return storeError("update ticket", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[ticket.ID]
	if !ok || stored.HotelID != ticket.HotelID {
		return domain.ErrTicketNotFound
	}
	if stored.Version != expectedVersion {
		return domain.ErrVersionConflict
	}

	next := ticket.Clone()
	next.ID = stored.ID
	next.HotelID = stored.HotelID
	next.ServiceKey = stored.ServiceKey
	next.SLATargetMinutes = stored.SLATargetMinutes
	next.CreatedAt = stored.CreatedAt
	next.DueAt = stored.DueAt
	next.Version = expectedVersion + 1
	r.tickets[ticket.ID] = next
	ticket.Version = next.Version
	return nil
}

func (r *MemoryTicketRepository) GetByID(ctx context.Context, hotelID, id string) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError("get ticket", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.tickets[id]
	if !ok || stored.HotelID != hotelID {
		return nil, domain.ErrTicketNotFound
	}
	return stored.Clone(), nil
}

func (r *MemoryTicketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError("list tickets", err)
	}
	statuses := make(map[domain.TicketStatus]bool, len(filter.Statuses))
	for _, s := range filter.Statuses {
		statuses[s] = true
	}
	priorities := make(map[domain.TicketPriority]bool, len(filter.Priorities))
	for _, p := range filter.Priorities {
		priorities[p] = true
	}

	r.mu.RLock()
	matched := make([]domain.Ticket, 0)
	for _, t := range r.tickets {
		if t.HotelID != filter.HotelID {
			continue
		}
		if len(statuses) > 0 && !statuses[t.Status] {
			continue
		}
		if len(priorities) > 0 && !priorities[t.Priority] {
			continue
		}
		if filter.Overdue != nil && sla.Compute(t.Timeline(), filter.Now).IsOverdue() != *filter.Overdue {
			continue
		}
		matched = append(matched, *t.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	return page(matched, limit, offset), nil
}

func (r *MemoryTicketRepository) ListEscalationCandidates(ctx context.Context, after *SweepCursor, limit int) ([]domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError("list escalation candidates", err)
	}
	r.mu.RLock()
	matched := make([]domain.Ticket, 0)
	for _, t := range r.tickets {
		if t.Status != domain.TicketStatusNew || t.EscalatedTier == sla.RiskTierOverdue {
			continue
		}
		if after != nil && !afterCursor(t, after) {
			continue
		}
		matched = append(matched, *t.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	limit, _ = normalizePage(limit, 0)
	return page(matched, limit, 0), nil
}

func afterCursor(t *domain.Ticket, c *SweepCursor) bool {
	if !t.CreatedAt.Equal(c.CreatedAt) {
		return t.CreatedAt.After(c.CreatedAt)
	}
	return t.ID > c.ID
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
