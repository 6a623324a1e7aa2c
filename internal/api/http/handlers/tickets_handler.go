package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/desk-ticket-service/internal/api/dto"
	"github.com/spec-kit/desk-ticket-service/internal/auth"
	"github.com/spec-kit/desk-ticket-service/internal/domain"
	"github.com/spec-kit/desk-ticket-service/internal/service"
	apperrors "github.com/spec-kit/desk-ticket-service/pkg/util"
)

// TicketsHandler serves ticket creation and desk board reads.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /v1/hotels/:hotelId/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), c.Params("hotelId"), service.CreateTicketInput{
		ServiceKey: req.ServiceKey,
		Title:      req.Title,
		Details:    req.Details,
		Source:     req.Source,
		RoomRef:    req.RoomRef,
		ZoneRef:    req.ZoneRef,
		Priority:   req.Priority,
		Actor:      principal.Actor(),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(h.service.Annotate(ticket))})
}

// ListTickets GET /v1/hotels/:hotelId/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	views, err := h.service.ListTickets(c.UserContext(), c.Params("hotelId"), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(views))
	for _, view := range views {
		items = append(items, ticketResponse(view))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /v1/hotels/:hotelId/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	view, err := h.service.GetTicket(c.UserContext(), c.Params("hotelId"), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(view)})
}

// ListHistory GET /v1/hotels/:hotelId/tickets/:id/history.
func (h *TicketsHandler) ListHistory(c *fiber.Ctx) error {
	entries, err := h.service.ListHistory(c.UserContext(), c.Params("hotelId"), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(entries)})
}

func requirePrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func parseTicketQuery(c *fiber.Ctx) (service.TicketListFilter, error) {
	filter := service.TicketListFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	if overdueStr := c.Query("overdue"); overdueStr != "" {
		overdue, err := strconv.ParseBool(overdueStr)
		if err != nil {
			return filter, apperrors.NewValidationError("overdue must be true or false", nil)
		}
		filter.Overdue = &overdue
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponse(view service.TicketView) dto.TicketResponse {
	t := view.Ticket
	resp := dto.TicketResponse{
		ID:                     t.ID,
		Reference:              t.Reference,
		HotelID:                t.HotelID,
		ServiceKey:             t.ServiceKey,
		Department:             t.Department,
		Title:                  t.Title,
		Details:                t.Details,
		Source:                 t.Source,
		Status:                 t.Status,
		Priority:               t.Priority,
		SLATargetMinutes:       t.SLATargetMinutes,
		CreatedAt:              t.CreatedAt,
		DueAt:                  t.DueAt,
		AcceptedAt:             t.AcceptedAt,
		StartedAt:              t.StartedAt,
		PausedAt:               t.PausedAt,
		ResolvedAt:             t.ResolvedAt,
		ClosedAt:               t.ClosedAt,
		TotalPausedSeconds:     t.TotalPausedSeconds,
		FrozenRemainingSeconds: t.FrozenRemainingSeconds,
		Assignee:               t.Assignee,
		Version:                t.Version,
		UpdatedAt:              t.UpdatedAt,
		RemainingSeconds:       view.SLA.RemainingSeconds,
		MinsRemaining:          view.MinsRemaining,
		IsOverdue:              view.IsOverdue,
		RiskTier:               view.RiskTier,
	}
	if t.Locator.Kind != domain.LocatorNone {
		resp.Locator = &dto.LocatorResponse{Kind: t.Locator.Kind, Ref: t.Locator.Ref}
	}
	return resp
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.TicketHistoryResponse{
			ID:         entry.ID,
			Operation:  entry.Operation,
			ActorRole:  entry.ActorRole,
			ActorID:    entry.ActorID,
			FromStatus: entry.FromStatus,
			ToStatus:   entry.ToStatus,
			OldValue:   entry.OldValue,
			NewValue:   entry.NewValue,
			CreatedAt:  entry.CreatedAt,
		})
	}
	return resp
}
