package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"tour_booking/internal/domain"
)

const DefaultClaimAttempts = 3

// Inventory claims and releases seats on a tour's capacity counter. It is the
// only writer of Tour.AvailableCapacity.
type Inventory struct {
	tours    domain.TourStore
	cache    domain.Cache
	attempts int
}

func NewInventory(tours domain.TourStore, cache domain.Cache, attempts int) *Inventory {
	if attempts < 1 {
		attempts = DefaultClaimAttempts
	}
	return &Inventory{tours: tours, cache: cache, attempts: attempts}
}

// ClaimFunc performs the conditional debit. observed is the capacity the claim
// was verified against; the write must fail with domain.ErrConditionFailed if the
// stored capacity differs.
type ClaimFunc func(ctx context.Context, observed int) error

// ClaimSeats debits seats from the tour, failing closed when capacity is short.
func (m *Inventory) ClaimSeats(ctx context.Context, tourID string, seats int) error {
	return m.ClaimWith(ctx, tourID, seats, func(ctx context.Context, observed int) error {
		return m.tours.CompareAndSwapCapacity(ctx, tourID, observed, observed-seats)
	})
}

// ClaimWith runs the read / verify / conditional-write loop with a caller supplied
// write, so the debit can be combined with other writes in one atomic unit.
func (m *Inventory) ClaimWith(ctx context.Context, tourID string, seats int, write ClaimFunc) error {
	const op = "inventory.claim"
	if seats <= 0 {
		return domain.E(domain.KindValidation, op, "seats must be positive, got %d", seats)
	}

	err := retryCAS(ctx, m.attempts, "capacity", func(attempt int) error {
		t, err := m.tours.GetTour(ctx, tourID)
		if err != nil {
			return tourErr(op, tourID, err)
		}
		if t.AvailableCapacity < seats {
			return insufficient(op, tourID, t.AvailableCapacity, seats)
		}
		err = write(ctx, t.AvailableCapacity)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, domain.ErrConditionFailed):
			log.Debug().Str("tour_id", tourID).Int("attempt", attempt).Int("observed", t.AvailableCapacity).
				Msg("capacity changed during claim")
			return err
		case errors.Is(err, domain.ErrNotFound):
			return tourErr(op, tourID, err)
		default:
			var de *domain.Error
			if errors.As(err, &de) {
				return err
			}
			return domain.Wrap(domain.KindInternal, op, err)
		}
	})
	if errors.Is(err, errAttemptsExhausted) {
		log.Warn().Str("tour_id", tourID).Int("seats", seats).Int("attempts", m.attempts).
			Msg("capacity claim lost every race")
		return domain.E(domain.KindInsufficientCapacity, op, "capacity of tour %s changed concurrently, retry the request", tourID)
	}
	if err != nil {
		return err
	}
	m.evict(ctx, tourID)
	return nil
}

// ReleaseSeats credits seats back. It is additive and needs no condition: every
// release pairs with an earlier claim of at least the same size.
func (m *Inventory) ReleaseSeats(ctx context.Context, tourID string, seats int) error {
	const op = "inventory.release"
	if seats <= 0 {
		return nil
	}
	if err := m.tours.AddCapacity(ctx, tourID, seats); err != nil {
		return tourErr(op, tourID, err)
	}
	m.evict(ctx, tourID)
	return nil
}

// AdjustSeats claims delta seats when positive and releases -delta when negative.
func (m *Inventory) AdjustSeats(ctx context.Context, tourID string, delta int) error {
	switch {
	case delta > 0:
		return m.ClaimSeats(ctx, tourID, delta)
	case delta < 0:
		return m.ReleaseSeats(ctx, tourID, -delta)
	}
	return nil
}

func (m *Inventory) evict(ctx context.Context, tourID string) {
	if m.cache != nil {
		_ = m.cache.Del(ctx, domain.TourCacheKey(tourID))
	}
}

func insufficient(op, tourID string, available, seats int) error {
	return domain.E(domain.KindInsufficientCapacity, op,
		"tour %s has %d seats left, %d requested", tourID, available, seats)
}

func tourErr(op, tourID string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.E(domain.KindNotFound, op, "tour %s not found", tourID)
	}
	return domain.Wrap(domain.KindInternal, op, err)
}
