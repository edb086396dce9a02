package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tour_booking/internal/app"
	"tour_booking/internal/domain"
	"tour_booking/internal/storage/memory"
)

var (
	customer   = domain.Requester{UserID: "u-1", Email: "ana@example.com", Role: domain.RoleCustomer}
	stranger   = domain.Requester{UserID: "u-2", Email: "bo@example.com", Role: domain.RoleCustomer}
	agent      = domain.Requester{UserID: "a-1", Email: "Agent@Example.com", Role: domain.RoleTravelAgent}
	otherAgent = domain.Requester{UserID: "a-2", Email: "other@example.com", Role: domain.RoleTravelAgent}
	admin      = domain.Requester{UserID: "root", Email: "ops@example.com", Role: domain.RoleAdmin}
)

// alpsTour starts with capacity 10; 7 days at 1400.00 and HB at 25.00 per day.
func alpsTour() domain.Tour {
	return domain.Tour{
		ID:                "alps",
		Name:              "Alps Explorer",
		AgentEmail:        "agent@example.com",
		Durations:         []string{"7 days", "10 days"},
		MealPlans:         []string{"BB", "HB"},
		DurationPrices:    map[string]domain.Money{"7 days": 140000},
		PriceFrom:         120000,
		MealSupplements:   map[string]domain.Money{"HB": 2500},
		AvailableCapacity: 10,
	}
}

// createCmd starts on 2025-06-11, so the free cancellation deadline is 2025-06-01.
func createCmd(adults, children int) app.CreateBookingCmd {
	return app.CreateBookingCmd{
		TourID:          "alps",
		Date:            "2025-06-11",
		Duration:        "7 days",
		MealPlan:        "Half Board (HB)",
		Guests:          domain.Guests{Adults: adults, Children: children},
		PersonalDetails: domain.PersonalDetails{FullName: "Ana Lopez", Email: "ana@example.com"},
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.BookingEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	now      time.Time
	store    *memory.Store
	cache    *fakeCache
	events   *recordingPublisher
	inv      *app.Inventory
	machine  *app.StateMachine
	ratings  *app.RatingAggregator
	bookings *app.BookingService
	reviews  *app.ReviewService
	sweep    *app.SweepService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		now:    time.Date(2025, 5, 20, 9, 30, 0, 0, time.UTC),
		store:  memory.New(),
		cache:  &fakeCache{},
		events: &recordingPublisher{},
	}
	h.store.PutTour(alpsTour())
	return h.wire(h.store)
}

// wire builds the services with bookings served by the given store.
func (h *harness) wire(bookings domain.BookingStore) *harness {
	clock := func() time.Time { return h.now }
	h.inv = app.NewInventory(h.store, h.cache, app.DefaultClaimAttempts)
	h.machine = app.NewStateMachine(bookings, h.inv, clock)
	h.ratings = app.NewRatingAggregator(h.store, h.cache, app.DefaultRatingAttempts)
	h.bookings = app.NewBookingService(h.store, bookings, h.inv, h.machine, h.events, clock)
	h.reviews = app.NewReviewService(bookings, h.store, h.ratings, clock)
	h.sweep = app.NewSweepService(bookings, h.machine, 4, clock)
	return h
}

func (h *harness) at(y int, m time.Month, d int) {
	h.now = time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func (h *harness) capacity(t *testing.T) int {
	t.Helper()
	tr, err := h.store.GetTour(context.Background(), "alps")
	require.NoError(t, err)
	return tr.AvailableCapacity
}

func (h *harness) booking(t *testing.T, id string) domain.Booking {
	t.Helper()
	b, err := h.store.GetByBookingID(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (h *harness) create(t *testing.T, adults, children int) domain.Booking {
	t.Helper()
	b, err := h.bookings.Create(context.Background(), customer, createCmd(adults, children))
	require.NoError(t, err)
	return b
}

// finish moves a booking through the sweep transitions to FINISHED.
func (h *harness) finish(t *testing.T, b domain.Booking) domain.Booking {
	t.Helper()
	nb, changed, err := h.machine.MarkFinished(context.Background(), b)
	require.NoError(t, err)
	require.True(t, changed)
	return nb
}

func requireKind(t *testing.T, err error, k domain.Kind) {
	t.Helper()
	require.Error(t, err)
	var de *domain.Error
	require.True(t, errors.As(err, &de), "want *domain.Error, got %T: %v", err, err)
	require.Equal(t, k, de.Kind, "error: %v", err)
}

// conflictingTours loses every capacity write and the first failRatings rating
// writes.
type conflictingTours struct {
	*memory.Store
	capacityCalls int
	ratingCalls   int
	failRatings   int // fail this many rating writes, then delegate; <0 means always
}

func (c *conflictingTours) CompareAndSwapCapacity(ctx context.Context, id string, expected, next int) error {
	c.capacityCalls++
	return domain.ErrConditionFailed
}

func (c *conflictingTours) CompareAndSwapRating(ctx context.Context, id string, expected, next domain.Rating) error {
	c.ratingCalls++
	if c.failRatings < 0 || c.ratingCalls <= c.failRatings {
		return domain.ErrConditionFailed
	}
	return c.Store.CompareAndSwapRating(ctx, id, expected, next)
}

// racingBookings loses every create claim.
type racingBookings struct {
	*memory.Store
	creates int
}

func (r *racingBookings) CreateWithClaim(ctx context.Context, b domain.Booking, observed int) error {
	r.creates++
	return domain.ErrConditionFailed
}
