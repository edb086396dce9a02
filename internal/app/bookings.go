package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"tour_booking/internal/adapters/observability"
	"tour_booking/internal/domain"
)

// CreateBookingCmd is the input of BookingService.Create.
type CreateBookingCmd struct {
	TourID          string                 `json:"tour_id" validate:"required"`
	Date            string                 `json:"date" validate:"required"`
	Duration        string                 `json:"duration" validate:"required"`
	MealPlan        string                 `json:"meal_plan" validate:"required"`
	Guests          domain.Guests          `json:"guests"`
	PersonalDetails domain.PersonalDetails `json:"personal_details"`
}

// UpdateBookingCmd replaces the selection of a BOOKED booking.
type UpdateBookingCmd struct {
	Date            string                  `json:"date" validate:"required"`
	Duration        string                  `json:"duration" validate:"required"`
	MealPlan        string                  `json:"meal_plan" validate:"required"`
	Guests          domain.Guests           `json:"guests"`
	PersonalDetails *domain.PersonalDetails `json:"personal_details,omitempty" validate:"omitempty"`
}

// ConfirmResult carries a user-facing message; Changed is false when the
// booking was already confirmed.
type ConfirmResult struct {
	Booking domain.Booking
	Message string
	Changed bool
}

// DefaultEventTimeout bounds the delivery of one event across all sinks and
// their retries.
const DefaultEventTimeout = 30 * time.Second

// BookingService is the booking lifecycle orchestrator.
type BookingService struct {
	tours     domain.TourStore
	bookings  domain.BookingStore
	inventory *Inventory
	machine   *StateMachine
	events    domain.EventPublisher
	now       func() time.Time

	eventTimeout time.Duration
	pending      sync.WaitGroup
}

func NewBookingService(
	tours domain.TourStore,
	bookings domain.BookingStore,
	inventory *Inventory,
	machine *StateMachine,
	events domain.EventPublisher,
	now func() time.Time,
) *BookingService {
	if now == nil {
		now = time.Now
	}
	return &BookingService{
		tours:        tours,
		bookings:     bookings,
		inventory:    inventory,
		machine:      machine,
		events:       events,
		now:          now,
		eventTimeout: DefaultEventTimeout,
	}
}

// WithEventTimeout replaces DefaultEventTimeout; d <= 0 keeps it.
func (s *BookingService) WithEventTimeout(d time.Duration) *BookingService {
	if d > 0 {
		s.eventTimeout = d
	}
	return s
}

// Drain blocks until every event handed to the publisher has been delivered or
// given up on.
func (s *BookingService) Drain() { s.pending.Wait() }

// Create books seats on a tour. The capacity debit and the booking insert are
// one atomic unit; if the claim fails nothing is stored.
func (s *BookingService) Create(ctx context.Context, req domain.Requester, cmd CreateBookingCmd) (b domain.Booking, err error) {
	const op = "booking.create"
	defer func() { observeOp("create", err) }()

	if err := requireRole(op, req, domain.RoleCustomer); err != nil {
		return domain.Booking{}, err
	}
	if err := validateCmd(op, cmd); err != nil {
		return domain.Booking{}, err
	}

	tour, err := s.tours.GetTour(ctx, cmd.TourID)
	if err != nil {
		return domain.Booking{}, tourErr(op, cmd.TourID, err)
	}
	if strings.TrimSpace(tour.AgentEmail) == "" {
		return domain.Booking{}, domain.E(domain.KindValidation, op, "tour %s has no assigned agent", tour.ID)
	}
	if tour.AvailableCapacity <= 0 {
		return domain.Booking{}, domain.E(domain.KindInsufficientCapacity, op, "tour %s is sold out", tour.ID)
	}

	start, quote, err := s.selection(op, tour, cmd.Date, cmd.Duration, cmd.MealPlan, cmd.Guests)
	if err != nil {
		return domain.Booking{}, err
	}
	if tour.AvailableCapacity < quote.Seats {
		return domain.Booking{}, insufficient(op, tour.ID, tour.AvailableCapacity, quote.Seats)
	}

	now := s.now().UTC()
	b = domain.Booking{
		ID:                       uuid.NewString(),
		UserID:                   req.UserID,
		TourID:                   tour.ID,
		AgentEmail:               tour.AgentEmail,
		Status:                   domain.StatusBooked,
		StartDate:                start,
		Duration:                 quote.Duration,
		DurationDays:             quote.Days,
		MealPlan:                 quote.MealPlan,
		Adults:                   cmd.Guests.Adults,
		Children:                 cmd.Guests.Children,
		PersonalDetails:          cmd.PersonalDetails,
		TotalPrice:               quote.Total,
		PriceBreakdown:           quote.Breakdown(),
		FreeCancellationDeadline: start.AddDate(0, 0, -tour.CancellationLeadDays()),
		CreatedAt:                now,
		UpdatedAt:                now,
		Version:                  1,
	}

	err = s.inventory.ClaimWith(ctx, tour.ID, quote.Seats, func(ctx context.Context, observed int) error {
		return s.bookings.CreateWithClaim(ctx, b, observed)
	})
	if err != nil {
		return domain.Booking{}, err
	}

	log.Info().Str("booking_id", b.ID).Str("tour_id", b.TourID).Str("user_id", b.UserID).
		Int("seats", b.Seats()).Str("total", b.TotalPrice.String()).Msg("booking created")
	return b, nil
}

// View returns a booking the requester is allowed to see.
func (s *BookingService) View(ctx context.Context, req domain.Requester, bookingID string) (domain.Booking, error) {
	return s.load(ctx, "booking.view", req, bookingID)
}

// List returns the requester's own bookings, the agent's assigned bookings, or
// every booking for an admin.
func (s *BookingService) List(ctx context.Context, req domain.Requester) ([]domain.Booking, error) {
	const op = "booking.list"
	if req.IsZero() {
		return nil, domain.E(domain.KindUnauthorized, op, "missing requester identity")
	}
	var (
		out []domain.Booking
		err error
	)
	switch req.Role {
	case domain.RoleCustomer:
		out, err = s.bookings.FindByUserID(ctx, req.UserID)
	case domain.RoleTravelAgent:
		out, err = s.bookings.FindByAgentEmail(ctx, req.Email)
	case domain.RoleAdmin:
		out, err = s.bookings.FindAll(ctx)
	default:
		return nil, domain.E(domain.KindForbidden, op, "role %q cannot list bookings", req.Role)
	}
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, op, err)
	}
	return out, nil
}

// Update replaces date, duration, meal plan and guests of a BOOKED booking,
// adjusting the tour's capacity by the change in seats and re-pricing.
func (s *BookingService) Update(ctx context.Context, req domain.Requester, bookingID string, cmd UpdateBookingCmd) (nb domain.Booking, err error) {
	const op = "booking.update"
	defer func() { observeOp("update", err) }()

	if err := requireRole(op, req, domain.RoleCustomer); err != nil {
		return domain.Booking{}, err
	}
	if err := validateCmd(op, cmd); err != nil {
		return domain.Booking{}, err
	}
	b, err := s.bookings.Get(ctx, req.UserID, bookingID)
	if err != nil {
		return domain.Booking{}, bookingErr(op, bookingID, err)
	}
	if !b.Status.Modifiable() {
		return domain.Booking{}, domain.E(domain.KindStateConflict, op, "booking in status %s cannot be modified", b.Status)
	}

	tour, err := s.tours.GetTour(ctx, b.TourID)
	if err != nil {
		return domain.Booking{}, tourErr(op, b.TourID, err)
	}
	start, quote, err := s.selection(op, tour, cmd.Date, cmd.Duration, cmd.MealPlan, cmd.Guests)
	if err != nil {
		return domain.Booking{}, err
	}

	nb = b
	nb.StartDate = start
	nb.Duration = quote.Duration
	nb.DurationDays = quote.Days
	nb.MealPlan = quote.MealPlan
	nb.Adults = cmd.Guests.Adults
	nb.Children = cmd.Guests.Children
	nb.TotalPrice = quote.Total
	nb.PriceBreakdown = quote.Breakdown()
	nb.FreeCancellationDeadline = start.AddDate(0, 0, -tour.CancellationLeadDays())
	nb.UpdatedAt = s.now().UTC()
	if cmd.PersonalDetails != nil {
		nb.PersonalDetails = *cmd.PersonalDetails
	}

	delta := nb.Seats() - b.Seats()
	if delta > 0 {
		// claim first so the booking never holds seats the tour did not give up
		if err := s.inventory.AdjustSeats(ctx, b.TourID, delta); err != nil {
			return domain.Booking{}, err
		}
	}
	if err := s.bookings.PutIfStatus(ctx, nb, domain.StatusBooked); err != nil {
		if delta > 0 {
			if rerr := s.inventory.ReleaseSeats(ctx, b.TourID, delta); rerr != nil {
				log.Error().Err(rerr).Str("booking_id", b.ID).Int("seats", delta).Msg("compensating release failed")
			}
		}
		if errors.Is(err, domain.ErrConditionFailed) {
			return domain.Booking{}, domain.E(domain.KindStateConflict, op, "booking %s changed concurrently", b.ID)
		}
		return domain.Booking{}, bookingErr(op, b.ID, err)
	}
	nb.Version++
	if delta < 0 {
		// a failed release under-credits the tour, it never oversells
		if rerr := s.inventory.AdjustSeats(ctx, b.TourID, delta); rerr != nil {
			log.Error().Err(rerr).Str("booking_id", b.ID).Int("seats", -delta).Msg("seat release after downsizing failed")
		}
	}

	log.Info().Str("booking_id", b.ID).Int("seat_delta", delta).Str("total", nb.TotalPrice.String()).Msg("booking updated")
	return nb, nil
}

// Cancel cancels a booking on behalf of its owner, its agent or an admin and
// emits a CANCEL event.
func (s *BookingService) Cancel(ctx context.Context, req domain.Requester, bookingID, reason string) (res CancelResult, err error) {
	const op = "booking.cancel"
	defer func() { observeOp("cancel", err) }()

	b, err := s.load(ctx, op, req, bookingID)
	if err != nil {
		return CancelResult{}, err
	}
	actor := req.Email
	if actor == "" {
		actor = req.UserID
	}
	res, err = s.machine.Cancel(ctx, b, actor, strings.TrimSpace(reason))
	if err != nil {
		return CancelResult{}, err
	}
	log.Info().Str("booking_id", b.ID).Str("actor", actor).Str("fee", res.Fee.String()).
		Int("seats_released", res.SeatsReleased).Msg("booking cancelled")
	s.publish(ctx, domain.NewBookingEvent(domain.EventTypeCancel, res.Booking, s.now()))
	return res, nil
}

// Confirm is performed by the tour's assigned agent. Confirming twice is a
// success without a second write or event.
func (s *BookingService) Confirm(ctx context.Context, req domain.Requester, bookingID string) (res ConfirmResult, err error) {
	const op = "booking.confirm"
	defer func() { observeOp("confirm", err) }()

	if err := requireRole(op, req, domain.RoleTravelAgent); err != nil {
		return ConfirmResult{}, err
	}
	b, err := s.bookings.GetByBookingID(ctx, bookingID)
	if err != nil {
		return ConfirmResult{}, bookingErr(op, bookingID, err)
	}
	agent := b.AgentEmail
	if tour, terr := s.tours.GetTour(ctx, b.TourID); terr == nil && tour.AgentEmail != "" {
		agent = tour.AgentEmail
	} else if terr != nil && !errors.Is(terr, domain.ErrNotFound) {
		return ConfirmResult{}, tourErr(op, b.TourID, terr)
	}
	if !req.IsAgentFor(agent) {
		return ConfirmResult{}, domain.E(domain.KindForbidden, op, "only the assigned agent can confirm this booking")
	}

	nb, changed, err := s.machine.Confirm(ctx, b)
	if err != nil {
		return ConfirmResult{}, err
	}
	if !changed {
		return ConfirmResult{Booking: nb, Message: "booking already confirmed"}, nil
	}
	log.Info().Str("booking_id", nb.ID).Str("agent", req.Email).Msg("booking confirmed")
	s.publish(ctx, domain.NewBookingEvent(domain.EventTypeConfirm, nb, s.now()))
	return ConfirmResult{Booking: nb, Message: "booking confirmed", Changed: true}, nil
}

// selection validates the start date and prices the requested selection.
func (s *BookingService) selection(op string, tour domain.Tour, date, duration, meal string, g domain.Guests) (time.Time, Quote, error) {
	start, err := domain.ParseDate(strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, Quote{}, domain.E(domain.KindValidation, op, "date must be formatted %s", domain.DateLayout)
	}
	if start.Before(domain.Day(s.now())) {
		return time.Time{}, Quote{}, domain.E(domain.KindValidation, op, "start date %s is in the past", date)
	}
	if !tour.OffersStartDate(start) {
		return time.Time{}, Quote{}, domain.E(domain.KindValidation, op, "start date %s is not offered by this tour", date)
	}
	if g.Seats() <= 0 {
		return time.Time{}, Quote{}, domain.E(domain.KindValidation, op, "at least one guest is required")
	}
	q, err := Price(tour, duration, meal, g)
	if err != nil {
		return time.Time{}, Quote{}, err
	}
	return start, q, nil
}

// load fetches a booking visible to the requester: the owner, the assigned
// agent, or an admin.
func (s *BookingService) load(ctx context.Context, op string, req domain.Requester, bookingID string) (domain.Booking, error) {
	if req.IsZero() {
		return domain.Booking{}, domain.E(domain.KindUnauthorized, op, "missing requester identity")
	}
	switch req.Role {
	case domain.RoleCustomer:
		b, err := s.bookings.Get(ctx, req.UserID, bookingID)
		if err != nil {
			return domain.Booking{}, bookingErr(op, bookingID, err)
		}
		return b, nil
	case domain.RoleTravelAgent, domain.RoleAdmin:
		b, err := s.bookings.GetByBookingID(ctx, bookingID)
		if err != nil {
			return domain.Booking{}, bookingErr(op, bookingID, err)
		}
		if req.Role == domain.RoleTravelAgent && !req.IsAgentFor(b.AgentEmail) {
			return domain.Booking{}, domain.E(domain.KindForbidden, op, "booking %s is not assigned to you", bookingID)
		}
		return b, nil
	}
	return domain.Booking{}, domain.E(domain.KindForbidden, op, "role %q is not allowed", req.Role)
}

// publish delivers ev in the background. The operation is already committed,
// so delivery outlives the request and never delays or fails it.
func (s *BookingService) publish(ctx context.Context, ev domain.BookingEvent) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.eventTimeout)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer cancel()
		if err := s.events.Publish(ctx, ev); err != nil {
			log.Warn().Err(err).Str("booking_id", ev.BookingID).Str("type", string(ev.Type)).Msg("booking event not published")
		}
	}()
}

func requireRole(op string, req domain.Requester, roles ...domain.Role) error {
	if req.IsZero() {
		return domain.E(domain.KindUnauthorized, op, "missing requester identity")
	}
	for _, r := range roles {
		if req.Role == r {
			return nil
		}
	}
	return domain.E(domain.KindForbidden, op, "role %s is not allowed", req.Role)
}

func bookingErr(op, bookingID string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.E(domain.KindNotFound, op, "booking %s not found", bookingID)
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.Wrap(domain.KindInternal, op, err)
}

func observeOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = domain.KindOf(err).String()
	}
	observability.ObserveBookingOp(op, outcome)
}
