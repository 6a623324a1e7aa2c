package dto

import (
	"time"

	"github.com/spec-kit/desk-ticket-service/internal/domain"
	"github.com/spec-kit/desk-ticket-service/internal/sla"
)

// CreateTicketRequest payload. At most one of RoomRef and ZoneRef may be set.
type CreateTicketRequest struct {
	ServiceKey string              `json:"service_key"`
	Title      string              `json:"title"`
	Details    string              `json:"details"`
	Source     domain.TicketSource `json:"source"`
	RoomRef    string              `json:"room_ref"`
	ZoneRef    string              `json:"zone_ref"`
	Priority   string              `json:"priority"`
}

// LocatorResponse names the room or zone of a request.
type LocatorResponse struct {
	Kind domain.LocatorKind `json:"kind"`
	Ref  string             `json:"ref"`
}

// TicketResponse is a ticket with live SLA figures.
type TicketResponse struct {
	ID                     string                `json:"id"`
	Reference              string                `json:"reference"`
	HotelID                string                `json:"hotel_id"`
	ServiceKey             string                `json:"service_key"`
	Department             string                `json:"department"`
	Title                  string                `json:"title"`
	Details                string                `json:"details,omitempty"`
	Source                 domain.TicketSource   `json:"source"`
	Locator                *LocatorResponse      `json:"locator,omitempty"`
	Status                 domain.TicketStatus   `json:"status"`
	Priority               domain.TicketPriority `json:"priority"`
	SLATargetMinutes       int                   `json:"sla_target_minutes"`
	CreatedAt              time.Time             `json:"created_at"`
	DueAt                  time.Time             `json:"due_at"`
	AcceptedAt             *time.Time            `json:"accepted_at,omitempty"`
	StartedAt              *time.Time            `json:"started_at,omitempty"`
	PausedAt               *time.Time            `json:"paused_at,omitempty"`
	ResolvedAt             *time.Time            `json:"resolved_at,omitempty"`
	ClosedAt               *time.Time            `json:"closed_at,omitempty"`
	TotalPausedSeconds     int64                 `json:"total_paused_seconds"`
	FrozenRemainingSeconds *int64                `json:"frozen_remaining_seconds,omitempty"`
	Assignee               *string               `json:"assignee,omitempty"`
	Version                int64                 `json:"version"`
	UpdatedAt              time.Time             `json:"updated_at"`
	RemainingSeconds       int64                 `json:"remaining_seconds"`
	MinsRemaining          int64                 `json:"mins_remaining"`
	IsOverdue              bool                  `json:"is_overdue"`
	RiskTier               sla.RiskTier          `json:"risk_tier,omitempty"`
}

// TicketHistoryResponse captures an audit entry.
type TicketHistoryResponse struct {
	ID         string              `json:"id"`
	Operation  domain.Operation    `json:"operation"`
	ActorRole  domain.ActorRole    `json:"actor_role"`
	ActorID    string              `json:"actor_id,omitempty"`
	FromStatus domain.TicketStatus `json:"from_status,omitempty"`
	ToStatus   domain.TicketStatus `json:"to_status"`
	OldValue   map[string]any      `json:"old_value"`
	NewValue   map[string]any      `json:"new_value"`
	CreatedAt  time.Time           `json:"created_at"`
}

// EscalationResponse reports a manual escalation check.
type EscalationResponse struct {
	TicketID  string                `json:"ticket_id"`
	Tier      sla.RiskTier          `json:"tier,omitempty"`
	Escalated bool                  `json:"escalated"`
	Priority  domain.TicketPriority `json:"priority"`
}

// DepartmentRiskResponse is one row of the at-risk departments board.
type DepartmentRiskResponse struct {
	Department string `json:"department"`
	Open       int    `json:"open"`
	OnTrack    int    `json:"on_track"`
	DueSoon    int    `json:"due_soon"`
	DueNow     int    `json:"due_now"`
	Overdue    int    `json:"overdue"`
}
