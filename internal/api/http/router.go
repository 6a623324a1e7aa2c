package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/desk-ticket-service/internal/api/http/handlers"
	"github.com/spec-kit/desk-ticket-service/internal/auth"
	"github.com/spec-kit/desk-ticket-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	StaffTickets   *handlers.StaffTicketsHandler
	AuthMiddleware *auth.AuthMiddleware
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

var transitionRoutes = map[string]domain.Operation{
	"accept":        domain.OpAccept,
	"start":         domain.OpStart,
	"pause":         domain.OpPause,
	"resume":        domain.OpResume,
	"resolve":       domain.OpResolve,
	"close":         domain.OpClose,
	"bump-priority": domain.OpBumpPriority,
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	hotel := app.Group("/v1/hotels/:hotelId")
	scoped := func(h ...fiber.Handler) []fiber.Handler {
		return append([]fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireHotelScope()}, h...)
	}
	desk := auth.RequireRole(domain.ActorRoleStaff, domain.ActorRoleManager)
	manager := auth.RequireRole(domain.ActorRoleManager)
	anyone := auth.RequireRole(domain.ActorRoleGuest, domain.ActorRoleStaff, domain.ActorRoleManager)

	hotel.Post("/tickets", scoped(anyone, cfg.Tickets.CreateTicket)...)
	hotel.Get("/tickets", scoped(desk, cfg.Tickets.ListTickets)...)
	hotel.Get("/tickets/:id", scoped(desk, cfg.Tickets.GetTicket)...)
	hotel.Get("/tickets/:id/history", scoped(desk, cfg.Tickets.ListHistory)...)

	for path, op := range transitionRoutes {
		hotel.Post("/tickets/:id/"+path, scoped(desk, cfg.StaffTickets.Transition(op))...)
	}
	hotel.Post("/tickets/:id/escalate", scoped(manager, cfg.StaffTickets.Escalate)...)
	hotel.Get("/risk/departments", scoped(manager, cfg.StaffTickets.RiskSummary)...)
}
