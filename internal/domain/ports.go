package domain

import "context"

// TourStore persists tours. Conditional writes return ErrConditionFailed when the
// expected prior value no longer matches and ErrNotFound when the tour is absent.
type TourStore interface {
	GetTour(ctx context.Context, id string) (Tour, error)

	// CompareAndSwapCapacity sets capacity to next iff it currently equals expected.
	CompareAndSwapCapacity(ctx context.Context, id string, expected, next int) error
	// AddCapacity credits n seats unconditionally.
	AddCapacity(ctx context.Context, id string, n int) error
	// CompareAndSwapRating replaces the aggregate iff it currently equals expected.
	CompareAndSwapRating(ctx context.Context, id string, expected, next Rating) error
}

type BookingStore interface {
	Get(ctx context.Context, userID, bookingID string) (Booking, error)
	GetByBookingID(ctx context.Context, bookingID string) (Booking, error)

	// Put stores b unconditionally.
	Put(ctx context.Context, b Booking) error
	// PutIfStatus stores b iff the stored booking's status is one of expected
	// and its Version still equals b.Version. The stored copy gets b.Version+1.
	PutIfStatus(ctx context.Context, b Booking, expected ...Status) error
	// CreateWithClaim debits b.Seats() from the tour, conditioned on its capacity
	// still being observedCapacity, and inserts b. Both happen or neither does.
	CreateWithClaim(ctx context.Context, b Booking, observedCapacity int) error

	FindByUserID(ctx context.Context, userID string) ([]Booking, error)
	FindByAgentEmail(ctx context.Context, email string) ([]Booking, error)
	FindAll(ctx context.Context) ([]Booking, error)
	// FindActive returns bookings in BOOKED, CONFIRMED or STARTED.
	FindActive(ctx context.Context) ([]Booking, error)
}

type ReviewStore interface {
	GetReview(ctx context.Context, bookingID string) (Review, error)
	// InsertReview fails with ErrConditionFailed if the booking already has a review.
	InsertReview(ctx context.Context, r Review) error
	// ReplaceReviewOnce overwrites an unedited review and marks it edited.
	ReplaceReviewOnce(ctx context.Context, r Review) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, ev BookingEvent) error
}

// TourCacheKey is shared by readers and the writers that evict.
func TourCacheKey(id string) string { return "tour:" + id }
