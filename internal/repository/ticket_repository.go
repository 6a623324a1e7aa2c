package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/desk-ticket-service/internal/domain"
	"github.com/spec-kit/desk-ticket-service/internal/sla"
)

// MaxListLimit caps a single listing query.
const MaxListLimit = 500

// TicketFilter captures desk board search parameters.
type TicketFilter struct {
	HotelID    string
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	// Overdue keeps only tickets whose overdue flag at Now matches.
	Overdue *bool
	Now     time.Time
	Limit   int
	Offset  int
}

// SweepCursor is the (created_at, id) of the last ticket of a sweep page.
type SweepCursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorOf returns the position just after t.
func CursorOf(t domain.Ticket) *SweepCursor {
	return &SweepCursor{CreatedAt: t.CreatedAt, ID: t.ID}
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// UpdateIfVersion writes ticket only if the stored version still equals
	// expectedVersion, then sets ticket.Version to the new value. A lost race
	// returns domain.ErrVersionConflict.
	UpdateIfVersion(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error
	GetByID(ctx context.Context, hotelID, id string) (*domain.Ticket, error)
	// ListWithFilter orders by priority descending, then creation descending.
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// ListEscalationCandidates spans all hotels and backs system sweeps only.
	// It returns NEW tickets not yet escalated to OVERDUE, oldest first,
	// strictly after the cursor (nil starts from the beginning).
	ListEscalationCandidates(ctx context.Context, after *SweepCursor, limit int) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the Postgres repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, reference, hotel_id, service_key, department, title, details, source,
       locator_kind, locator_ref, status, priority, sla_target_minutes, created_at, due_at,
       accepted_at, started_at, paused_at, resolved_at, closed_at, total_paused_seconds,
       frozen_remaining_seconds, assignee, escalated_tier, version, updated_at`

// overdueSQL mirrors sla.Compute: terminal tickets use their frozen value,
// open tickets compare busy seconds (elapsed minus paused, including an open
// pause) with the target. The placeholder is the evaluation instant.
const overdueSQL = `CASE WHEN status IN ('RESOLVED','CLOSED') THEN COALESCE(frozen_remaining_seconds, 0) < 0
    ELSE floor(extract(epoch FROM (%[1]s::timestamptz - created_at)))::bigint
        - total_paused_seconds
        - CASE WHEN status = 'PAUSED' AND paused_at IS NOT NULL
               THEN greatest(0, floor(extract(epoch FROM (%[1]s::timestamptz - paused_at)))::bigint)
               ELSE 0 END
        > sla_target_minutes::bigint * 60
    END`

const priorityOrderSQL = `CASE priority WHEN 'URGENT' THEN 3 WHEN 'HIGH' THEN 2 WHEN 'NORMAL' THEN 1 ELSE 0 END`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, reference, hotel_id, service_key, department, title, details, source,
            locator_kind, locator_ref, status, priority, sla_target_minutes, created_at, due_at,
            total_paused_seconds, escalated_tier, version, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`
	_, err := exec(ctx, r.pool, query,
		ticket.ID,
		ticket.Reference,
		ticket.HotelID,
		ticket.ServiceKey,
		ticket.Department,
		ticket.Title,
		ticket.Details,
		ticket.Source,
		ticket.Locator.Kind,
		ticket.Locator.Ref,
		ticket.Status,
		ticket.Priority,
		ticket.SLATargetMinutes,
		ticket.CreatedAt,
		ticket.DueAt,
		ticket.TotalPausedSeconds,
		ticket.EscalatedTier,
		ticket.Version,
		ticket.UpdatedAt,
	)
	if err != nil {
		return storeError("create ticket", err)
	}
	return nil
}

// UpdateIfVersion never touches the immutable columns (hotel, service, SLA
// target, created/due).
func (r *ticketRepository) UpdateIfVersion(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error {
	const query = `
        UPDATE tickets SET status=$1, priority=$2, accepted_at=$3, started_at=$4, paused_at=$5,
            resolved_at=$6, closed_at=$7, total_paused_seconds=$8, frozen_remaining_seconds=$9,
            assignee=$10, escalated_tier=$11, updated_at=$12, version=version+1
        WHERE id=$13 AND hotel_id=$14 AND version=$15
        RETURNING version`
	var newVersion int64
	err := queryRow(ctx, r.pool, query,
		ticket.Status,
		ticket.Priority,
		ticket.AcceptedAt,
		ticket.StartedAt,
		ticket.PausedAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.TotalPausedSeconds,
		ticket.FrozenRemainingSeconds,
		ticket.Assignee,
		ticket.EscalatedTier,
		ticket.UpdatedAt,
		ticket.ID,
		ticket.HotelID,
		expectedVersion,
	).Scan(&newVersion)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return storeError("update ticket", err)
		}
		if _, getErr := r.GetByID(ctx, ticket.HotelID, ticket.ID); getErr != nil {
			return getErr
		}
		return domain.ErrVersionConflict
	}
	ticket.Version = newVersion
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, hotelID, id string) (*domain.Ticket, error) {
	q := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1 AND hotel_id=$2`
	ticket, err := scanTicket(queryRow(ctx, r.pool, q, id, hotelID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, storeError("get ticket", err)
	}
	return ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"hotel_id=$1"}
	args := []any{filter.HotelID}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Overdue != nil {
		args = append(args, filter.Now)
		predicate := fmt.Sprintf(overdueSQL, fmt.Sprintf("$%d", len(args)))
		if *filter.Overdue {
			clauses = append(clauses, "("+predicate+")")
		} else {
			clauses = append(clauses, "NOT ("+predicate+")")
		}
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	q := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY %s DESC, created_at DESC, id LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), priorityOrderSQL, limit, offset)

	rows, err := query(ctx, r.pool, q, args...)
	if err != nil {
		return nil, storeError("list tickets", err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListEscalationCandidates(ctx context.Context, after *SweepCursor, limit int) ([]domain.Ticket, error) {
	limit, _ = normalizePage(limit, 0)
	clauses := []string{"status=$1", "escalated_tier <> $2"}
	args := []any{domain.TicketStatusNew, sla.RiskTierOverdue}
	if after != nil {
		args = append(args, after.CreatedAt, after.ID)
		clauses = append(clauses, "(created_at, id) > ($3, $4)")
	}
	q := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at ASC, id ASC LIMIT %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit)
	rows, err := query(ctx, r.pool, q, args...)
	if err != nil {
		return nil, storeError("list escalation candidates", err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket domain.Ticket
		tier   string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Reference,
		&ticket.HotelID,
		&ticket.ServiceKey,
		&ticket.Department,
		&ticket.Title,
		&ticket.Details,
		&ticket.Source,
		&ticket.Locator.Kind,
		&ticket.Locator.Ref,
		&ticket.Status,
		&ticket.Priority,
		&ticket.SLATargetMinutes,
		&ticket.CreatedAt,
		&ticket.DueAt,
		&ticket.AcceptedAt,
		&ticket.StartedAt,
		&ticket.PausedAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.TotalPausedSeconds,
		&ticket.FrozenRemainingSeconds,
		&ticket.Assignee,
		&tier,
		&ticket.Version,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ticket.EscalatedTier = sla.RiskTier(tier)
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, storeError("scan ticket", err)
		}
		result = append(result, *ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate tickets", err)
	}
	return result, nil
}
