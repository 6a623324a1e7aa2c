package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/desk-ticket-service/internal/clock"
	"github.com/spec-kit/desk-ticket-service/internal/domain"
	"github.com/spec-kit/desk-ticket-service/internal/events"
	"github.com/spec-kit/desk-ticket-service/internal/observability"
	"github.com/spec-kit/desk-ticket-service/internal/repository"
	"github.com/spec-kit/desk-ticket-service/internal/sla"
)

// TicketCache is the optional eventually consistent read path.
type TicketCache interface {
	Get(ctx context.Context, hotelID, id string) (*domain.Ticket, bool)
	Set(ctx context.Context, ticket *domain.Ticket)
	Invalidate(ctx context.Context, hotelID, id string)
}

type noopCache struct{}

func (noopCache) Get(context.Context, string, string) (*domain.Ticket, bool) { return nil, false }
func (noopCache) Set(context.Context, *domain.Ticket)                       {}
func (noopCache) Invalidate(context.Context, string, string)               {}

// TicketOptions tunes validation and write behavior.
type TicketOptions struct {
	TitleMaxLength   int
	DetailsMaxLength int
	RequireLocator   bool
	MaxWriteRetries  int
}

// DefaultTicketOptions mirrors the config defaults.
func DefaultTicketOptions() TicketOptions {
	return TicketOptions{
		TitleMaxLength:   200,
		DetailsMaxLength: 2000,
		MaxWriteRetries:  3,
	}
}

// TicketService runs the ticket lifecycle: creation, validated transitions
// and SLA-annotated reads.
type TicketService struct {
	tickets    repository.TicketRepository
	catalog    repository.ServiceCatalog
	history    repository.TicketHistoryRepository
	tx         repository.TxManager
	cache      TicketCache
	dispatcher events.Dispatcher
	clock      clock.Clock
	classifier sla.Classifier
	metrics    *observability.Metrics
	logger     *zap.Logger
	opts       TicketOptions
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	Catalog     repository.ServiceCatalog
	HistoryRepo repository.TicketHistoryRepository
	TxManager   repository.TxManager
	Cache       TicketCache
	Dispatcher  events.Dispatcher
	Clock       clock.Clock
	Classifier  sla.Classifier
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Options     TicketOptions
}

// NewTicketService constructs the service, filling defaults for optional
// dependencies.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		tickets:    deps.TicketRepo,
		catalog:    deps.Catalog,
		history:    deps.HistoryRepo,
		tx:         deps.TxManager,
		cache:      deps.Cache,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		classifier: deps.Classifier,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		opts:       deps.Options,
	}
	if s.tx == nil {
		s.tx = repository.NewNoopTxManager()
	}
	if s.cache == nil {
		s.cache = noopCache{}
	}
	if s.clock == nil {
		s.clock = clock.NewSystem()
	}
	if s.classifier == (sla.Classifier{}) {
		s.classifier = sla.NewClassifier(0, 0)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	defaults := DefaultTicketOptions()
	if s.opts.TitleMaxLength <= 0 {
		s.opts.TitleMaxLength = defaults.TitleMaxLength
	}
	if s.opts.DetailsMaxLength <= 0 {
		s.opts.DetailsMaxLength = defaults.DetailsMaxLength
	}
	if s.opts.MaxWriteRetries <= 0 {
		s.opts.MaxWriteRetries = defaults.MaxWriteRetries
	}
	return s
}

// Classifier exposes the configured risk thresholds.
func (s *TicketService) Classifier() sla.Classifier {
	return s.classifier
}

// CreateTicketInput describes a new service request.
type CreateTicketInput struct {
	ServiceKey string
	Title      string
	Details    string
	Source     domain.TicketSource
	RoomRef    string
	ZoneRef    string
	// Priority is optional; empty means NORMAL.
	Priority string
	Actor    domain.Actor
}

// CreateTicket validates input, snapshots the SLA target from the catalog and
// stores a NEW ticket whose clock starts now.
func (s *TicketService) CreateTicket(ctx context.Context, hotelID string, input CreateTicketInput) (*domain.Ticket, error) {
	ticket, err := s.createTicket(ctx, hotelID, input)
	s.metrics.RecordOperation(string(domain.OpCreate), domain.Code(err))
	return ticket, err
}

func (s *TicketService) createTicket(ctx context.Context, hotelID string, input CreateTicketInput) (*domain.Ticket, error) {
	params, err := s.validateCreate(hotelID, input)
	if err != nil {
		return nil, err
	}

	def, err := s.catalog.GetByKey(ctx, hotelID, params.ServiceKey)
	if err != nil {
		return nil, err
	}
	if !def.Active || def.DefaultSLAMinutes <= 0 {
		return nil, domain.ErrServiceUnknown
	}
	params.SLATargetMinutes = def.DefaultSLAMinutes
	params.Department = def.Department
	params.ID = uuid.NewString()
	params.Reference = generateTicketKey()

	ticket := domain.NewTicket(params, s.clock.Now())
	err = s.tx.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.tickets.Create(txCtx, ticket); err != nil {
			return err
		}
		return s.recordHistory(txCtx, input.Actor, domain.OpCreate, nil, ticket)
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		HotelID:  ticket.HotelID,
		TicketID: ticket.ID,
		Actor:    events.ActorOf(input.Actor),
		Payload: events.TicketCreatedPayload{
			ServiceKey:       ticket.ServiceKey,
			Department:       ticket.Department,
			Priority:         ticket.Priority,
			SLATargetMinutes: ticket.SLATargetMinutes,
			DueAt:            ticket.DueAt,
		},
	})
	return ticket, nil
}

func (s *TicketService) validateCreate(hotelID string, input CreateTicketInput) (domain.NewTicketParams, error) {
	var params domain.NewTicketParams

	hotelID = strings.TrimSpace(hotelID)
	if hotelID == "" {
		return params, domain.NewValidationError("hotel_id", "is required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return params, domain.NewValidationError("title", "is required")
	}
	if utf8.RuneCountInString(title) > s.opts.TitleMaxLength {
		return params, domain.NewValidationError("title", fmt.Sprintf("must be at most %d characters", s.opts.TitleMaxLength))
	}
	details := strings.TrimSpace(input.Details)
	if utf8.RuneCountInString(details) > s.opts.DetailsMaxLength {
		return params, domain.NewValidationError("details", fmt.Sprintf("must be at most %d characters", s.opts.DetailsMaxLength))
	}

	source := input.Source
	if source == "" {
		source = defaultSource(input.Actor.Role)
	}
	if !source.Valid() {
		return params, domain.NewValidationError("source", "is not a known channel")
	}

	locator, err := s.resolveLocator(input.RoomRef, input.ZoneRef)
	if err != nil {
		return params, err
	}

	priority := domain.TicketPriorityNormal
	if raw := strings.TrimSpace(input.Priority); raw != "" {
		if priority, err = domain.ParsePriority(strings.ToUpper(raw)); err != nil {
			return params, err
		}
	}

	serviceKey := strings.TrimSpace(input.ServiceKey)
	if serviceKey == "" {
		return params, domain.ErrServiceUnknown
	}

	return domain.NewTicketParams{
		HotelID:    hotelID,
		ServiceKey: serviceKey,
		Title:      title,
		Details:    details,
		Source:     source,
		Locator:    locator,
		Priority:   priority,
	}, nil
}

// resolveLocator accepts at most one of room and zone; neither is accepted
// unless RequireLocator is set.
func (s *TicketService) resolveLocator(roomRef, zoneRef string) (domain.Locator, error) {
	roomRef = strings.TrimSpace(roomRef)
	zoneRef = strings.TrimSpace(zoneRef)
	switch {
	case roomRef != "" && zoneRef != "":
		return domain.Locator{}, domain.NewValidationError("locator", "must be a room or a zone, not both")
	case roomRef != "":
		return domain.Locator{Kind: domain.LocatorRoom, Ref: roomRef}, nil
	case zoneRef != "":
		return domain.Locator{Kind: domain.LocatorZone, Ref: zoneRef}, nil
	case s.opts.RequireLocator:
		return domain.Locator{}, domain.NewValidationError("locator", "room or zone is required")
	default:
		return domain.Locator{}, nil
	}
}

func defaultSource(role domain.ActorRole) domain.TicketSource {
	switch role {
	case domain.ActorRoleGuest:
		return domain.TicketSourceGuestApp
	case domain.ActorRoleSystem:
		return domain.TicketSourceSystem
	default:
		return domain.TicketSourceStaffDesk
	}
}

// AcceptTicket claims a NEW ticket for actor. Only one concurrent caller can
// win; the others get domain.ErrAlreadyAccepted.
func (s *TicketService) AcceptTicket(ctx context.Context, hotelID, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	return s.Transition(ctx, hotelID, ticketID, domain.OpAccept, actor)
}

// StartProgress moves a NEW or ACCEPTED ticket to IN_PROGRESS, accepting it
// implicitly when needed.
func (s *TicketService) StartProgress(ctx context.Context, hotelID, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	return s.Transition(ctx, hotelID, ticketID, domain.OpStart, actor)
}

// PauseTicket stops the SLA clock of an IN_PROGRESS ticket.
func (s *TicketService) PauseTicket(ctx context.Context, hotelID, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	return s.Transition(ctx, hotelID, ticketID, domain.OpPause, actor)
}

// ResumeTicket restarts the SLA clock of a PAUSED ticket.
func (s *TicketService) ResumeTicket(ctx context.Context, hotelID, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	return s.Transition(ctx, hotelID, ticketID, domain.OpResume, actor)
}

// ResolveTicket finishes work and freezes the remaining SLA figure.
func (s *TicketService) ResolveTicket(ctx context.Context, hotelID, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	return s.Transition(ctx, hotelID, ticketID, domain.OpResolve, actor)
}

// CloseTicket closes a RESOLVED ticket.
func (s *TicketService) CloseTicket(ctx context.Context, hotelID, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	return s.Transition(ctx, hotelID, ticketID, domain.OpClose, actor)
}

// BumpPriority raises priority one level, capped at URGENT.
func (s *TicketService) BumpPriority(ctx context.Context, hotelID, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	return s.Transition(ctx, hotelID, ticketID, domain.OpBumpPriority, actor)
}

// Transition applies one state machine operation atomically.
func (s *TicketService) Transition(ctx context.Context, hotelID, ticketID string, op domain.Operation, actor domain.Actor) (*domain.Ticket, error) {
	ticket, _, err := s.mutate(ctx, hotelID, ticketID, op, actor, func(t *domain.Ticket, now time.Time) (bool, error) {
		if op == domain.OpAccept {
			if err := acceptConflict(t); err != nil {
				return false, err
			}
		}
		return true, t.Apply(op, actor.ID, now)
	})
	s.metrics.RecordOperation(string(op), domain.Code(err))
	return ticket, err
}

// acceptConflict rejects Accept on a ticket that left NEW. Open work somebody
// already claimed is a lost race; finished work is an illegal transition.
func acceptConflict(t *domain.Ticket) error {
	switch {
	case t.Status == domain.TicketStatusNew:
		return nil
	case t.AcceptedAt != nil && !t.Status.IsTerminal():
		return domain.ErrAlreadyAccepted
	default:
		return &domain.TransitionError{From: t.Status, Op: domain.OpAccept}
	}
}

// mutation changes t in place. Returning false leaves the ticket unwritten.
type mutation func(t *domain.Ticket, now time.Time) (bool, error)

// mutate is the single write path: read, validate, conditional write. A lost
// write re-reads and re-validates; Accept reports a lost race instead.
func (s *TicketService) mutate(ctx context.Context, hotelID, ticketID string, op domain.Operation, actor domain.Actor, fn mutation) (*domain.Ticket, bool, error) {
	if strings.TrimSpace(hotelID) == "" || strings.TrimSpace(ticketID) == "" {
		return nil, false, domain.ErrTicketNotFound
	}

	for attempt := 1; ; attempt++ {
		current, err := s.tickets.GetByID(ctx, hotelID, ticketID)
		if err != nil {
			return nil, false, err
		}

		next := current.Clone()
		changed, err := fn(next, s.clock.Now())
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return current, false, nil
		}

		err = s.tx.WithTx(ctx, func(txCtx context.Context) error {
			if err := s.tickets.UpdateIfVersion(txCtx, next, current.Version); err != nil {
				return err
			}
			return s.recordHistory(txCtx, actor, op, current, next)
		})
		if err == nil {
			s.cache.Invalidate(ctx, hotelID, ticketID)
			s.publishChange(ctx, actor, op, current, next)
			return next, true, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, false, err
		}

		s.logger.Debug("ticket write lost a race",
			zap.String("ticket_id", ticketID),
			zap.String("operation", string(op)),
			zap.Int("attempt", attempt))

		if op == domain.OpAccept {
			latest, getErr := s.tickets.GetByID(ctx, hotelID, ticketID)
			if getErr != nil {
				return nil, false, getErr
			}
			if err := acceptConflict(latest); err != nil {
				return nil, false, err
			}
		}
		if attempt >= s.opts.MaxWriteRetries {
			return nil, false, domain.ErrConcurrentUpdate
		}
	}
}

// TicketView is a ticket annotated with live SLA figures.
type TicketView struct {
	Ticket        domain.Ticket
	SLA           sla.Snapshot
	RiskTier      sla.RiskTier
	MinsRemaining int64
	IsOverdue     bool
}

// View annotates t as of now.
func (s *TicketService) View(t *domain.Ticket, now time.Time) TicketView {
	snap := sla.Compute(t.Timeline(), now)
	return TicketView{
		Ticket:        *t,
		SLA:           snap,
		RiskTier:      s.classifier.Classify(snap),
		MinsRemaining: snap.MinsRemaining(),
		IsOverdue:     snap.IsOverdue(),
	}
}

// Annotate is View at the current time.
func (s *TicketService) Annotate(t *domain.Ticket) TicketView {
	return s.View(t, s.clock.Now())
}

// GetTicket returns one ticket with live SLA figures. It may be served from
// the cache and lag writes by up to the cache TTL.
func (s *TicketService) GetTicket(ctx context.Context, hotelID, ticketID string) (TicketView, error) {
	if cached, ok := s.cache.Get(ctx, hotelID, ticketID); ok {
		return s.View(cached, s.clock.Now()), nil
	}
	ticket, err := s.tickets.GetByID(ctx, hotelID, ticketID)
	if err != nil {
		return TicketView{}, err
	}
	s.cache.Set(ctx, ticket)
	return s.View(ticket, s.clock.Now()), nil
}

// TicketListFilter describes desk board filters.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	// Overdue, when set, keeps only tickets whose live overdue flag matches.
	Overdue *bool
	Limit   int
	Offset  int
}

// ListTickets returns annotated tickets ordered by priority descending, then
// creation time descending. The overdue filter is evaluated by the store at
// the same instant the views are annotated with.
func (s *TicketService) ListTickets(ctx context.Context, hotelID string, filter TicketListFilter) ([]TicketView, error) {
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, domain.NewValidationError("status", fmt.Sprintf("unknown value %q", st))
		}
	}
	for _, p := range filter.Priorities {
		if !p.Valid() {
			return nil, domain.ErrInvalidPriority
		}
	}

	now := s.clock.Now()
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		HotelID:    hotelID,
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		Overdue:    filter.Overdue,
		Now:        now,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
	if err != nil {
		return nil, err
	}

	views := make([]TicketView, 0, len(tickets))
	for i := range tickets {
		views = append(views, s.View(&tickets[i], now))
	}
	return views, nil
}

// ListHistory returns the audit trail of one ticket, oldest first.
func (s *TicketService) ListHistory(ctx context.Context, hotelID, ticketID string) ([]domain.TicketHistory, error) {
	if _, err := s.tickets.GetByID(ctx, hotelID, ticketID); err != nil {
		return nil, err
	}
	return s.history.ListByTicket(ctx, hotelID, ticketID)
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *TicketService) recordHistory(ctx context.Context, actor domain.Actor, op domain.Operation, before, after *domain.Ticket) error {
	if s.history == nil {
		return nil
	}
	entry := &domain.TicketHistory{
		ID:        uuid.NewString(),
		TicketID:  after.ID,
		HotelID:   after.HotelID,
		Operation: op,
		ActorRole: actor.Role,
		ActorID:   actor.ID,
		ToStatus:  after.Status,
		OldValue:  map[string]any{},
		NewValue:  historyValues(after),
		CreatedAt: after.UpdatedAt,
	}
	if before != nil {
		entry.FromStatus = before.Status
		entry.OldValue = historyValues(before)
	}
	return s.history.Create(ctx, entry)
}

func historyValues(t *domain.Ticket) map[string]any {
	values := map[string]any{
		"status":               string(t.Status),
		"priority":             string(t.Priority),
		"total_paused_seconds": t.TotalPausedSeconds,
	}
	if t.Assignee != nil {
		values["assignee"] = *t.Assignee
	}
	if t.FrozenRemainingSeconds != nil {
		values["frozen_remaining_seconds"] = *t.FrozenRemainingSeconds
	}
	if t.EscalatedTier != sla.RiskTierNone {
		values["escalated_tier"] = string(t.EscalatedTier)
	}
	return values
}

func (s *TicketService) publishChange(ctx context.Context, actor domain.Actor, op domain.Operation, before, after *domain.Ticket) {
	if before.Status != after.Status {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketTransitioned,
			HotelID:  after.HotelID,
			TicketID: after.ID,
			Actor:    events.ActorOf(actor),
			Payload: events.TicketTransitionedPayload{
				Operation: op,
				OldStatus: before.Status,
				NewStatus: after.Status,
			},
		})
	}
	if before.Priority != after.Priority {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketPriorityChanged,
			HotelID:  after.HotelID,
			TicketID: after.ID,
			Actor:    events.ActorOf(actor),
			Payload: events.TicketPriorityChangedPayload{
				OldPriority: before.Priority,
				NewPriority: after.Priority,
			},
		})
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

// DepartmentRisk counts open tickets of one department per risk tier.
type DepartmentRisk struct {
	Department string
	Open       int
	Tiers      map[sla.RiskTier]int
}

var openStatuses = []domain.TicketStatus{
	domain.TicketStatusNew,
	domain.TicketStatusAccepted,
	domain.TicketStatusInProgress,
	domain.TicketStatusPaused,
}

// RiskSummary groups open tickets by department, worst departments first.
// It looks at no more than repository.MaxListLimit open tickets.
func (s *TicketService) RiskSummary(ctx context.Context, hotelID string) ([]DepartmentRisk, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		HotelID:  hotelID,
		Statuses: openStatuses,
		Limit:    repository.MaxListLimit,
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	byDept := make(map[string]*DepartmentRisk)
	for i := range tickets {
		view := s.View(&tickets[i], now)
		dept := tickets[i].Department
		entry, ok := byDept[dept]
		if !ok {
			entry = &DepartmentRisk{Department: dept, Tiers: make(map[sla.RiskTier]int)}
			byDept[dept] = entry
		}
		entry.Open++
		entry.Tiers[view.RiskTier]++
	}

	result := make([]DepartmentRisk, 0, len(byDept))
	for _, entry := range byDept {
		result = append(result, *entry)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		for _, tier := range []sla.RiskTier{sla.RiskTierOverdue, sla.RiskTierDueNow, sla.RiskTierDueSoon} {
			if a.Tiers[tier] != b.Tiers[tier] {
				return a.Tiers[tier] > b.Tiers[tier]
			}
		}
		if a.Open != b.Open {
			return a.Open > b.Open
		}
		return a.Department < b.Department
	})
	return result, nil
}
