package domain

import "time"

// TicketHistory is an immutable audit trail entry, one per applied operation.
type TicketHistory struct {
	ID         string
	TicketID   string
	HotelID    string
	Operation  Operation
	ActorRole  ActorRole
	ActorID    string
	FromStatus TicketStatus
	ToStatus   TicketStatus
	OldValue   map[string]any
	NewValue   map[string]any
	CreatedAt  time.Time
}
