package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/desk-ticket-service/internal/clock"
	"github.com/spec-kit/desk-ticket-service/internal/domain"
	"github.com/spec-kit/desk-ticket-service/internal/events"
	"github.com/spec-kit/desk-ticket-service/internal/repository"
)

const hotelID = "hotel-1"

var (
	epoch   = time.Date(2026, 9, 1, 7, 0, 0, 0, time.UTC)
	guest   = domain.Actor{ID: "guest-12", Role: domain.ActorRoleGuest}
	staff   = domain.Actor{ID: "staff-3", Role: domain.ActorRoleStaff}
	manager = domain.Actor{ID: "mgr-1", Role: domain.ActorRoleManager}
)

type harness struct {
	svc     *TicketService
	tickets *repository.MemoryTicketRepository
	history *repository.MemoryTicketHistoryRepository
	catalog *repository.MemoryServiceCatalog
	clock   *clock.Manual
	events  *eventRecorder
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) record(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) ofType(typ events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func newHarness(t *testing.T, mutate ...func(*TicketDependencies)) *harness {
	t.Helper()
	h := &harness{
		tickets: repository.NewMemoryTicketRepository(),
		history: repository.NewMemoryTicketHistoryRepository(),
		catalog: repository.NewMemoryServiceCatalog(
			domain.ServiceDefinition{HotelID: hotelID, Key: "towel", Label: "Towels", Department: "housekeeping", DefaultSLAMinutes: 25, Active: true},
			domain.ServiceDefinition{HotelID: hotelID, Key: "plumbing", Label: "Plumbing", Department: "engineering", DefaultSLAMinutes: 60, Active: true},
			domain.ServiceDefinition{HotelID: hotelID, Key: "minibar", Label: "Minibar", Department: "f&b", DefaultSLAMinutes: 15, Active: false},
		),
		clock:  clock.NewManual(epoch),
		events: &eventRecorder{},
	}
	dispatcher := events.NewInMemoryDispatcher()
	for _, typ := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketTransitioned,
		events.EventTicketPriorityChanged,
		events.EventTicketEscalated,
	} {
		dispatcher.Subscribe(typ, h.events.record)
	}

	deps := TicketDependencies{
		TicketRepo:  h.tickets,
		Catalog:     h.catalog,
		HistoryRepo: h.history,
		Dispatcher:  dispatcher,
		Clock:       h.clock,
	}
	for _, fn := range mutate {
		fn(&deps)
	}
	h.svc = NewTicketService(deps)
	return h
}

func (h *harness) create(t *testing.T, serviceKey string) *domain.Ticket {
	t.Helper()
	ticket, err := h.svc.CreateTicket(context.Background(), hotelID, CreateTicketInput{
		ServiceKey: serviceKey,
		Title:      "Need help",
		RoomRef:    "412",
		Actor:      guest,
	})
	require.NoError(t, err)
	return ticket
}

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
}
