package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/desk-ticket-service/internal/domain"
)

// TicketHistoryRepository stores audit entries.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, hotelID, ticketID string) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

func (r *ticketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	const q = `
        INSERT INTO ticket_history (id, ticket_id, hotel_id, operation, actor_role, actor_id,
            from_status, to_status, old_value, new_value, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := exec(ctx, r.pool, q,
		history.ID,
		history.TicketID,
		history.HotelID,
		history.Operation,
		history.ActorRole,
		history.ActorID,
		history.FromStatus,
		history.ToStatus,
		history.OldValue,
		history.NewValue,
		history.CreatedAt,
	)
	if err != nil {
		return storeError("create ticket history", err)
	}
	return nil
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, hotelID, ticketID string) ([]domain.TicketHistory, error) {
	const q = `
        SELECT id, ticket_id, hotel_id, operation, actor_role, actor_id, from_status, to_status,
               old_value, new_value, created_at
        FROM ticket_history WHERE ticket_id=$1 AND hotel_id=$2 ORDER BY created_at ASC, id ASC`
	rows, err := query(ctx, r.pool, q, ticketID, hotelID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, storeError("list ticket history", err)
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var history domain.TicketHistory
		if err := rows.Scan(
			&history.ID,
			&history.TicketID,
			&history.HotelID,
			&history.Operation,
			&history.ActorRole,
			&history.ActorID,
			&history.FromStatus,
			&history.ToStatus,
			&history.OldValue,
			&history.NewValue,
			&history.CreatedAt,
		); err != nil {
			return nil, storeError("scan ticket history", err)
		}
		result = append(result, history)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate ticket history", err)
	}
	return result, nil
}

// MemoryTicketHistoryRepository keeps audit entries in process.
type MemoryTicketHistoryRepository struct {
	mu      sync.RWMutex
	entries []domain.TicketHistory
}

// NewMemoryTicketHistoryRepository creates an empty history store.
func NewMemoryTicketHistoryRepository() *MemoryTicketHistoryRepository {
	return &MemoryTicketHistoryRepository{}
}

func (r *MemoryTicketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	if err := ctx.Err(); err != nil {
		return storeError("create ticket history", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *history)
	return nil
}

func (r *MemoryTicketHistoryRepository) ListByTicket(ctx context.Context, hotelID, ticketID string) ([]domain.TicketHistory, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError("list ticket history", err)
	}
	r.mu.RLock()
	result := make([]domain.TicketHistory, 0)
	for _, entry := range r.entries {
		if entry.TicketID == ticketID && entry.HotelID == hotelID {
			result = append(result, entry)
		}
	}
	r.mu.RUnlock()
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
