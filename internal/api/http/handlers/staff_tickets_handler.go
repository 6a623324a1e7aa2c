package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/desk-ticket-service/internal/api/dto"
	"github.com/spec-kit/desk-ticket-service/internal/domain"
	"github.com/spec-kit/desk-ticket-service/internal/service"
	"github.com/spec-kit/desk-ticket-service/internal/sla"
)

// StaffTicketsHandler serves desk actions on existing tickets.
type StaffTicketsHandler struct {
	tickets    *service.TicketService
	escalation *service.EscalationService
}

// NewStaffTicketsHandler constructs handler.
func NewStaffTicketsHandler(ticketService *service.TicketService, escalation *service.EscalationService) *StaffTicketsHandler {
	return &StaffTicketsHandler{tickets: ticketService, escalation: escalation}
}

// Transition returns the handler for POST /v1/hotels/:hotelId/tickets/:id/<op>.
func (h *StaffTicketsHandler) Transition(op domain.Operation) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, err := requirePrincipal(c)
		if err != nil {
			return err
		}
		ticket, err := h.tickets.Transition(c.UserContext(), c.Params("hotelId"), c.Params("id"), op, principal.Actor())
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": ticketResponse(h.tickets.Annotate(ticket))})
	}
}

// Escalate POST /v1/hotels/:hotelId/tickets/:id/escalate.
func (h *StaffTicketsHandler) Escalate(c *fiber.Ctx) error {
	result, err := h.escalation.Evaluate(c.UserContext(), c.Params("hotelId"), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.EscalationResponse{
		TicketID:  result.TicketID,
		Tier:      result.Tier,
		Escalated: result.Escalated,
		Priority:  result.Priority,
	}})
}

// RiskSummary GET /v1/hotels/:hotelId/risk/departments.
func (h *StaffTicketsHandler) RiskSummary(c *fiber.Ctx) error {
	summary, err := h.tickets.RiskSummary(c.UserContext(), c.Params("hotelId"))
	if err != nil {
		return err
	}
	items := make([]dto.DepartmentRiskResponse, 0, len(summary))
	for _, row := range summary {
		items = append(items, dto.DepartmentRiskResponse{
			Department: row.Department,
			Open:       row.Open,
			OnTrack:    row.Tiers[sla.RiskTierOnTrack],
			DueSoon:    row.Tiers[sla.RiskTierDueSoon],
			DueNow:     row.Tiers[sla.RiskTierDueNow],
			Overdue:    row.Tiers[sla.RiskTierOverdue],
		})
	}
	return c.JSON(fiber.Map{"data": items})
}
