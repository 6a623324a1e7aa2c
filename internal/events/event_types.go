package events

import (
	"time"

	"github.com/spec-kit/desk-ticket-service/internal/domain"
	"github.com/spec-kit/desk-ticket-service/internal/sla"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketTransitioned    EventType = "ticket_transitioned"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketEscalated       EventType = "ticket_escalated"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Role domain.ActorRole `json:"role"`
	ID   string           `json:"id"`
}

// ActorOf converts a domain actor.
func ActorOf(a domain.Actor) Actor {
	return Actor{Role: a.Role, ID: a.ID}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	HotelID   string    `json:"hotel_id"`
	TicketID  string    `json:"ticket_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	ServiceKey       string                `json:"service_key"`
	Department       string                `json:"department"`
	Priority         domain.TicketPriority `json:"priority"`
	SLATargetMinutes int                   `json:"sla_target_minutes"`
	DueAt            time.Time             `json:"due_at"`
}

// TicketTransitionedPayload payload.
type TicketTransitionedPayload struct {
	Operation domain.Operation    `json:"operation"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	Tier             sla.RiskTier          `json:"tier"`
	RemainingSeconds int64                 `json:"remaining_seconds"`
	NewPriority      domain.TicketPriority `json:"new_priority"`
}
