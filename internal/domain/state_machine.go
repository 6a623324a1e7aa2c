package domain

import (
	"time"

	"github.com/spec-kit/desk-ticket-service/internal/sla"
)

// Operation is the closed set of ticket mutations.
type Operation string

const (
	OpCreate       Operation = "create"
	OpAccept       Operation = "accept"
	OpStart        Operation = "start"
	OpPause        Operation = "pause"
	OpResume       Operation = "resume"
	OpResolve      Operation = "resolve"
	OpClose        Operation = "close"
	OpBumpPriority Operation = "bump_priority"
)

// TransitionOps lists every operation that applies to an existing ticket.
var TransitionOps = []Operation{OpAccept, OpStart, OpPause, OpResume, OpResolve, OpClose, OpBumpPriority}

// NewTicketParams carries validated creation input.
type NewTicketParams struct {
	ID               string
	Reference        string
	HotelID          string
	ServiceKey       string
	Department       string
	Title            string
	Details          string
	Source           TicketSource
	Locator          Locator
	Priority         TicketPriority
	SLATargetMinutes int
}

// NewTicket creates a ticket in NEW and starts its SLA clock at now.
func NewTicket(p NewTicketParams, now time.Time) *Ticket {
	priority := p.Priority
	if priority == "" {
		priority = TicketPriorityNormal
	}
	return &Ticket{
		ID:               p.ID,
		Reference:        p.Reference,
		HotelID:          p.HotelID,
		ServiceKey:       p.ServiceKey,
		Department:       p.Department,
		Title:            p.Title,
		Details:          p.Details,
		Source:           p.Source,
		Locator:          p.Locator,
		Status:           TicketStatusNew,
		Priority:         priority,
		SLATargetMinutes: p.SLATargetMinutes,
		CreatedAt:        now,
		DueAt:            now.Add(time.Duration(p.SLATargetMinutes) * time.Minute),
		EscalatedTier:    sla.RiskTierNone,
		Version:          1,
		UpdatedAt:        now,
	}
}

// Allows reports whether op is legal from the ticket's current status.
func (t *Ticket) Allows(op Operation) bool {
	switch op {
	case OpAccept:
		return t.Status == TicketStatusNew
	case OpStart:
		return t.Status == TicketStatusNew || t.Status == TicketStatusAccepted
	case OpPause:
		return t.Status == TicketStatusInProgress
	case OpResume:
		return t.Status == TicketStatusPaused
	case OpResolve:
		return t.Status == TicketStatusInProgress || t.Status == TicketStatusPaused
	case OpClose:
		return t.Status == TicketStatusResolved
	case OpBumpPriority:
		return !t.Status.IsTerminal()
	default:
		return false
	}
}

// Apply validates op against the current status and applies its side
// effects. On error the ticket is left exactly as it was.
func (t *Ticket) Apply(op Operation, actor string, now time.Time) error {
	if !t.Allows(op) {
		return &TransitionError{From: t.Status, Op: op}
	}

	next := t.Clone()
	switch op {
	case OpAccept:
		next.accept(actor, now)
	case OpStart:
		if next.Status == TicketStatusNew {
			next.accept(actor, now)
		}
		if next.StartedAt == nil {
			started := now
			next.StartedAt = &started
		}
		next.Status = TicketStatusInProgress
	case OpPause:
		paused := now
		next.PausedAt = &paused
		next.Status = TicketStatusPaused
	case OpResume:
		next.resume(now)
	case OpResolve:
		if next.Status == TicketStatusPaused {
			next.resume(now)
		}
		remaining := sla.RemainingAt(next.Timeline(), now)
		resolved := now
		next.ResolvedAt = &resolved
		next.FrozenRemainingSeconds = &remaining
		next.Status = TicketStatusResolved
	case OpClose:
		closed := now
		next.ClosedAt = &closed
		next.Assignee = nil
		next.Status = TicketStatusClosed
	case OpBumpPriority:
		next.Priority = next.Priority.Next()
	default:
		return &TransitionError{From: t.Status, Op: op}
	}
	next.UpdatedAt = now

	*t = *next
	return nil
}

// MarkEscalated records that priority was already bumped for tier.
func (t *Ticket) MarkEscalated(tier sla.RiskTier) {
	if tier.Rank() > t.EscalatedTier.Rank() {
		t.EscalatedTier = tier
	}
}

func (t *Ticket) accept(actor string, now time.Time) {
	accepted := now
	t.AcceptedAt = &accepted
	if actor != "" {
		assignee := actor
		t.Assignee = &assignee
	}
	t.Status = TicketStatusAccepted
}

func (t *Ticket) resume(now time.Time) {
	t.TotalPausedSeconds += sla.OpenPauseSeconds(t.PausedAt, now)
	t.PausedAt = nil
	t.Status = TicketStatusInProgress
}
