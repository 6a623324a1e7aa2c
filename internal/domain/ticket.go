package domain

import (
	"time"

	"github.com/spec-kit/desk-ticket-service/internal/sla"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "NEW"
	TicketStatusAccepted   TicketStatus = "ACCEPTED"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusPaused     TicketStatus = "PAUSED"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// IsTerminal reports whether no further time-affecting transition is allowed.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusNew, TicketStatusAccepted, TicketStatusInProgress,
		TicketStatusPaused, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// TicketPriority enumerates urgency levels, lowest first.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityNormal TicketPriority = "NORMAL"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

var priorityOrder = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityNormal,
	TicketPriorityHigh,
	TicketPriorityUrgent,
}

// Rank returns 0 for LOW up to 3 for URGENT, or -1 for unknown values.
func (p TicketPriority) Rank() int {
	for i, candidate := range priorityOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p is one of the four levels.
func (p TicketPriority) Valid() bool {
	return p.Rank() >= 0
}

// Next returns the priority one level up, capped at URGENT.
func (p TicketPriority) Next() TicketPriority {
	rank := p.Rank()
	if rank < 0 || rank >= len(priorityOrder)-1 {
		return TicketPriorityUrgent
	}
	return priorityOrder[rank+1]
}

// ParsePriority validates a caller-supplied priority.
func ParsePriority(raw string) (TicketPriority, error) {
	p := TicketPriority(raw)
	if !p.Valid() {
		return "", ErrInvalidPriority
	}
	return p, nil
}

// TicketSource is the channel a request came from.
type TicketSource string

const (
	TicketSourceGuestApp  TicketSource = "GUEST_APP"
	TicketSourceStaffDesk TicketSource = "STAFF_DESK"
	TicketSourcePhone     TicketSource = "PHONE"
	TicketSourceFrontDesk TicketSource = "FRONT_DESK"
	TicketSourceSystem    TicketSource = "SYSTEM"
)

// Valid reports whether s is a known channel.
func (s TicketSource) Valid() bool {
	switch s {
	case TicketSourceGuestApp, TicketSourceStaffDesk, TicketSourcePhone,
		TicketSourceFrontDesk, TicketSourceSystem:
		return true
	}
	return false
}

// LocatorKind tells whether a locator points at a room or a public zone.
type LocatorKind string

const (
	LocatorNone LocatorKind = ""
	LocatorRoom LocatorKind = "ROOM"
	LocatorZone LocatorKind = "ZONE"
)

// Locator is the optional place a ticket refers to.
type Locator struct {
	Kind LocatorKind
	Ref  string
}

// Ticket is the aggregate for a tracked service request.
type Ticket struct {
	ID         string
	Reference  string
	HotelID    string
	ServiceKey string
	Department string
	Title      string
	Details    string
	Source     TicketSource
	Locator    Locator
	Status     TicketStatus
	Priority   TicketPriority

	SLATargetMinutes int
	CreatedAt        time.Time
	DueAt            time.Time
	AcceptedAt       *time.Time
	StartedAt        *time.Time
	PausedAt         *time.Time
	ResolvedAt       *time.Time
	ClosedAt         *time.Time

	TotalPausedSeconds     int64
	FrozenRemainingSeconds *int64

	Assignee      *string
	EscalatedTier sla.RiskTier
	Version       int64
	UpdatedAt     time.Time
}

// SLATarget returns the SLA budget as a duration.
func (t *Ticket) SLATarget() time.Duration {
	return time.Duration(t.SLATargetMinutes) * time.Minute
}

// Timeline extracts the stored events the SLA accountant reads.
func (t *Ticket) Timeline() sla.Timeline {
	tl := sla.Timeline{
		CreatedAt:              t.CreatedAt,
		Target:                 t.SLATarget(),
		TotalPausedSeconds:     t.TotalPausedSeconds,
		FrozenRemainingSeconds: t.FrozenRemainingSeconds,
	}
	if t.Status == TicketStatusPaused {
		tl.PausedAt = t.PausedAt
	}
	if t.Status.IsTerminal() {
		tl.ResolvedAt = t.ResolvedAt
	}
	return tl
}

// Clone returns a deep copy so callers can mutate without aliasing pointers.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.AcceptedAt = cloneTime(t.AcceptedAt)
	c.StartedAt = cloneTime(t.StartedAt)
	c.PausedAt = cloneTime(t.PausedAt)
	c.ResolvedAt = cloneTime(t.ResolvedAt)
	c.ClosedAt = cloneTime(t.ClosedAt)
	if t.FrozenRemainingSeconds != nil {
		v := *t.FrozenRemainingSeconds
		c.FrozenRemainingSeconds = &v
	}
	if t.Assignee != nil {
		v := *t.Assignee
		c.Assignee = &v
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
