package http

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/desk-ticket-service/internal/api/http/handlers"
	"github.com/spec-kit/desk-ticket-service/internal/auth"
	"github.com/spec-kit/desk-ticket-service/internal/clock"
	"github.com/spec-kit/desk-ticket-service/internal/domain"
	"github.com/spec-kit/desk-ticket-service/internal/observability"
	"github.com/spec-kit/desk-ticket-service/internal/repository"
	"github.com/spec-kit/desk-ticket-service/internal/service"
)

const testSecret = "test-secret"

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
	clock  *clock.Manual
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	manual := clock.NewManual(time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC))

	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  repository.NewMemoryTicketRepository(),
		HistoryRepo: repository.NewMemoryTicketHistoryRepository(),
		Catalog: repository.NewMemoryServiceCatalog(domain.ServiceDefinition{
			HotelID: "h1", Key: "towel", Label: "Towels", Department: "housekeeping", DefaultSLAMinutes: 25, Active: true,
		}),
		Clock:   manual,
		Metrics: metrics,
	})
	escalation := service.NewEscalationService(tickets, nil, nil, service.EscalationOptions{})
	tokens := auth.NewTokenManager(testSecret, 60)

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("desk", "test", nil, nil),
		Tickets:        handlers.NewTicketsHandler(tickets),
		StaffTickets:   handlers.NewStaffTicketsHandler(tickets, escalation),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Gatherer:       registry,
	})
	return &testServer{app: app, tokens: tokens, clock: manual}
}

func (s *testServer) token(t *testing.T, hotel string, role domain.ActorRole) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(string(role)+"-1", hotel, role)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	payload := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &payload), string(raw))
	}
	return resp.StatusCode, payload
}

func errorCode(payload map[string]any) string {
	errObj, _ := payload["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func data(payload map[string]any) map[string]any {
	d, _ := payload["data"].(map[string]any)
	return d
}

func (s *testServer) createTicket(t *testing.T) string {
	t.Helper()
	status, payload := s.do(t, "POST", "/v1/hotels/h1/tickets", s.token(t, "h1", domain.ActorRoleGuest),
		`{"service_key":"towel","title":"Two towels","room_ref":"412"}`)
	require.Equal(t, fiber.StatusCreated, status, payload)
	return data(payload)["id"].(string)
}

func TestCreateTicket_ReturnsLiveSLA(t *testing.T) {
	s := newTestServer(t)

	status, payload := s.do(t, "POST", "/v1/hotels/h1/tickets", s.token(t, "h1", domain.ActorRoleGuest),
		`{"service_key":"towel","title":"Two towels","room_ref":"412"}`)

	require.Equal(t, fiber.StatusCreated, status)
	ticket := data(payload)
	assert.Equal(t, "NEW", ticket["status"])
	assert.Equal(t, "NORMAL", ticket["priority"])
	assert.Equal(t, "GUEST_APP", ticket["source"])
	assert.EqualValues(t, 25, ticket["mins_remaining"])
	assert.Equal(t, false, ticket["is_overdue"])
	assert.Equal(t, "DUE_SOON", ticket["risk_tier"])
	assert.Equal(t, map[string]any{"kind": "ROOM", "ref": "412"}, ticket["locator"])
}

func TestCreateTicket_ErrorMapping(t *testing.T) {
	s := newTestServer(t)
	guest := s.token(t, "h1", domain.ActorRoleGuest)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"unknown service", `{"service_key":"spa","title":"Massage"}`, fiber.StatusUnprocessableEntity, "SERVICE_UNKNOWN"},
		{"bad priority", `{"service_key":"towel","title":"Towels","priority":"ASAP"}`, fiber.StatusBadRequest, "INVALID_PRIORITY"},
		{"missing title", `{"service_key":"towel"}`, fiber.StatusBadRequest, "VALIDATION_FAILED"},
		{"room and zone", `{"service_key":"towel","title":"x","room_ref":"1","zone_ref":"spa"}`, fiber.StatusBadRequest, "VALIDATION_FAILED"},
		{"malformed body", `{"service_key":`, fiber.StatusBadRequest, "VALIDATION_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, payload := s.do(t, "POST", "/v1/hotels/h1/tickets", guest, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, errorCode(payload))
		})
	}
}

func TestAuth_ScopeAndRoles(t *testing.T) {
	s := newTestServer(t)
	id := s.createTicket(t)

	status, payload := s.do(t, "GET", "/v1/hotels/h1/tickets", "", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(payload))

	status, _ = s.do(t, "GET", "/v1/hotels/h1/tickets/"+id, s.token(t, "h2", domain.ActorRoleStaff), "")
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = s.do(t, "GET", "/v1/hotels/h1/tickets", s.token(t, "h1", domain.ActorRoleGuest), "")
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = s.do(t, "POST", "/v1/hotels/h1/tickets/"+id+"/escalate", s.token(t, "h1", domain.ActorRoleStaff), "")
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = s.do(t, "GET", "/v1/hotels/h1/tickets", "garbage", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestTransitions_OverHTTP(t *testing.T) {
	s := newTestServer(t)
	id := s.createTicket(t)
	staff := s.token(t, "h1", domain.ActorRoleStaff)
	base := "/v1/hotels/h1/tickets/" + id

	status, payload := s.do(t, "POST", base+"/pause", staff, "")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(payload))

	status, payload = s.do(t, "POST", base+"/accept", staff, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ACCEPTED", data(payload)["status"])
	assert.Equal(t, "STAFF-1", data(payload)["assignee"])

	status, payload = s.do(t, "POST", base+"/accept", s.token(t, "h1", domain.ActorRoleManager), "")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "ALREADY_ACCEPTED", errorCode(payload))

	for _, step := range []string{"start", "pause", "resume", "bump-priority", "resolve", "close"} {
		s.clock.Advance(time.Minute)
		status, payload = s.do(t, "POST", base+"/"+step, staff, "")
		require.Equal(t, fiber.StatusOK, status, "%s: %v", step, payload)
	}
	assert.Equal(t, "CLOSED", data(payload)["status"])
	assert.Equal(t, "HIGH", data(payload)["priority"])
	assert.Nil(t, data(payload)["risk_tier"])

	status, payload = s.do(t, "GET", base+"/history", staff, "")
	require.Equal(t, fiber.StatusOK, status)
	entries, _ := payload["data"].([]any)
	assert.Len(t, entries, 8)

	status, payload = s.do(t, "GET", "/v1/hotels/h1/tickets/unknown", staff, "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(payload))
}

func TestListTickets_OverdueFilter(t *testing.T) {
	s := newTestServer(t)
	s.createTicket(t)
	staff := s.token(t, "h1", domain.ActorRoleStaff)

	status, payload := s.do(t, "GET", "/v1/hotels/h1/tickets?overdue=true", staff, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, payload["data"])

	s.clock.Advance(26 * time.Minute)
	status, payload = s.do(t, "GET", "/v1/hotels/h1/tickets?overdue=true&status=new", staff, "")
	require.Equal(t, fiber.StatusOK, status)
	items, _ := payload["data"].([]any)
	require.Len(t, items, 1)
	assert.EqualValues(t, -1, items[0].(map[string]any)["mins_remaining"])

	status, payload = s.do(t, "GET", "/v1/hotels/h1/tickets?overdue=maybe", staff, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(payload))
}

func TestManagerEndpoints(t *testing.T) {
	s := newTestServer(t)
	id := s.createTicket(t)
	manager := s.token(t, "h1", domain.ActorRoleManager)

	s.clock.Advance(22 * time.Minute)
	status, payload := s.do(t, "POST", "/v1/hotels/h1/tickets/"+id+"/escalate", manager, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, data(payload)["escalated"])
	assert.Equal(t, "DUE_NOW", data(payload)["tier"])
	assert.Equal(t, "HIGH", data(payload)["priority"])

	status, payload = s.do(t, "GET", "/v1/hotels/h1/risk/departments", manager, "")
	require.Equal(t, fiber.StatusOK, status)
	rows, _ := payload["data"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, "housekeeping", row["department"])
	assert.EqualValues(t, 1, row["due_now"])
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	status, payload := s.do(t, "GET", "/health/live", "", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "alive", payload["status"])

	status, payload = s.do(t, "GET", "/health/ready", "", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ready", payload["status"])

	req := httptest.NewRequest("GET", "/metrics", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "http_requests_total")
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	status, payload := s.do(t, "GET", "/v2/nothing", "", "")

	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(payload))
}
