package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/desk-ticket-service/internal/domain"
	"github.com/spec-kit/desk-ticket-service/internal/events"
	"github.com/spec-kit/desk-ticket-service/internal/repository"
	"github.com/spec-kit/desk-ticket-service/internal/sla"
)

const escalationLockKey = "desk:lock:escalation-sweep"

// Locker grants a cluster-wide exclusive lock.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// EscalationOptions tunes sweeps.
type EscalationOptions struct {
	BatchSize int
	LockTTL   time.Duration
}

// EscalationResult reports what one evaluation did.
type EscalationResult struct {
	TicketID  string
	Tier      sla.RiskTier
	Escalated bool
	Priority  domain.TicketPriority
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Scanned   int
	Escalated int
	Failed    int
	Skipped   bool
}

// EscalationService bumps priority of unaccepted tickets that cross into
// DUE_NOW or OVERDUE. Each tier crossing bumps at most once.
type EscalationService struct {
	tickets *TicketService
	locker  Locker
	logger  *zap.Logger
	opts    EscalationOptions
}

// NewEscalationService wires the controller on top of the ticket write path.
func NewEscalationService(tickets *TicketService, locker Locker, logger *zap.Logger, opts EscalationOptions) *EscalationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.BatchSize > repository.MaxListLimit {
		opts.BatchSize = repository.MaxListLimit
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = time.Minute
	}
	return &EscalationService{tickets: tickets, locker: locker, logger: logger, opts: opts}
}

// Evaluate checks one ticket and escalates it when it newly crossed a tier.
// Calling it again without an intervening transition changes nothing.
func (e *EscalationService) Evaluate(ctx context.Context, hotelID, ticketID string) (EscalationResult, error) {
	actor := domain.SystemActor("escalation")
	result := EscalationResult{TicketID: ticketID}

	ticket, escalated, err := e.tickets.mutate(ctx, hotelID, ticketID, domain.OpBumpPriority, actor,
		func(t *domain.Ticket, now time.Time) (bool, error) {
			tier := e.tickets.View(t, now).RiskTier
			result.Tier = tier
			if !shouldEscalate(t, tier) {
				return false, nil
			}
			if err := t.Apply(domain.OpBumpPriority, "", now); err != nil {
				return false, err
			}
			t.MarkEscalated(tier)
			return true, nil
		})
	if err != nil {
		e.tickets.metrics.RecordOperation("escalate", domain.Code(err))
		return result, err
	}
	result.Priority = ticket.Priority
	result.Escalated = escalated
	if !escalated {
		return result, nil
	}

	e.tickets.metrics.RecordOperation("escalate", domain.Code(nil))
	e.tickets.metrics.RecordEscalation(string(result.Tier))
	snap := e.tickets.View(ticket, e.tickets.clock.Now()).SLA
	e.tickets.publishEvent(ctx, events.Event{
		Type:     events.EventTicketEscalated,
		HotelID:  ticket.HotelID,
		TicketID: ticket.ID,
		Actor:    events.ActorOf(actor),
		Payload: events.TicketEscalatedPayload{
			Tier:             result.Tier,
			RemainingSeconds: snap.RemainingSeconds,
			NewPriority:      ticket.Priority,
		},
	})
	e.logger.Info("ticket escalated",
		zap.String("hotel_id", ticket.HotelID),
		zap.String("ticket_id", ticket.ID),
		zap.String("tier", string(result.Tier)),
		zap.String("priority", string(ticket.Priority)))
	return result, nil
}

func shouldEscalate(t *domain.Ticket, tier sla.RiskTier) bool {
	if t.Status != domain.TicketStatusNew {
		return false
	}
	if tier.Rank() < sla.RiskTierDueNow.Rank() {
		return false
	}
	return tier.Rank() > t.EscalatedTier.Rank()
}

// Sweep evaluates every NEW ticket that can still escalate, across all hotels,
// paging oldest first in batches. Only one replica sweeps at a time; a replica
// that cannot take the lock skips the round.
func (e *EscalationService) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	if e.locker != nil {
		release, ok, err := e.locker.TryLock(ctx, escalationLockKey, e.opts.LockTTL)
		if err != nil {
			e.tickets.metrics.RecordSweep("lock_error")
			return result, err
		}
		if !ok {
			result.Skipped = true
			e.tickets.metrics.RecordSweep("skipped")
			return result, nil
		}
		defer release()
	}

	var cursor *repository.SweepCursor
	for {
		candidates, err := e.tickets.tickets.ListEscalationCandidates(ctx, cursor, e.opts.BatchSize)
		if err != nil {
			e.tickets.metrics.RecordSweep("error")
			return result, err
		}

		for _, candidate := range candidates {
			if err := ctx.Err(); err != nil {
				e.tickets.metrics.RecordSweep("cancelled")
				return result, err
			}
			result.Scanned++
			res, err := e.Evaluate(ctx, candidate.HotelID, candidate.ID)
			switch {
			case err == nil:
				if res.Escalated {
					result.Escalated++
				}
			case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrTicketNotFound):
				// Moved on since listing.
			default:
				result.Failed++
				e.logger.Warn("escalation failed",
					zap.String("hotel_id", candidate.HotelID),
					zap.String("ticket_id", candidate.ID),
					zap.Error(err))
			}
		}

		if len(candidates) < e.opts.BatchSize {
			break
		}
		cursor = repository.CursorOf(candidates[len(candidates)-1])
	}

	e.tickets.metrics.RecordSweep("ok")
	e.logger.Debug("escalation sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("escalated", result.Escalated),
		zap.Int("failed", result.Failed))
	return result, nil
}
