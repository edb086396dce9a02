package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"tour_booking/internal/adapters/observability"
	"tour_booking/internal/domain"
)

// StateMachine applies status transitions to stored bookings. Every write is
// conditioned on the status the transition was validated against.
type StateMachine struct {
	bookings  domain.BookingStore
	inventory *Inventory
	now       func() time.Time
}

func NewStateMachine(bookings domain.BookingStore, inventory *Inventory, now func() time.Time) *StateMachine {
	if now == nil {
		now = time.Now
	}
	return &StateMachine{bookings: bookings, inventory: inventory, now: now}
}

// CancelResult describes a completed cancellation.
type CancelResult struct {
	Booking       domain.Booking
	Fee           domain.Money
	Refund        domain.Money
	SeatsReleased int
}

// CancellationFee is zero up to and including the deadline day, the full price after.
func CancellationFee(b domain.Booking, now time.Time) (fee, refund domain.Money) {
	if domain.Day(now).After(domain.Day(b.FreeCancellationDeadline)) {
		return b.TotalPrice, 0
	}
	return 0, b.TotalPrice
}

// Confirm moves a BOOKED booking to CONFIRMED. It reports false without writing
// when the booking is already confirmed.
func (m *StateMachine) Confirm(ctx context.Context, b domain.Booking) (domain.Booking, bool, error) {
	const op = "booking.confirm"
	if b.Status == domain.StatusConfirmed {
		return b, false, nil
	}
	at := m.now().UTC()
	nb, err := m.apply(ctx, op, b, domain.EventConfirm, func(nb *domain.Booking) {
		nb.ConfirmedAt = &at
	})
	if errors.Is(err, domain.ErrConditionFailed) {
		cur, gerr := m.bookings.GetByBookingID(ctx, b.ID)
		if gerr == nil && cur.Status == domain.StatusConfirmed {
			return cur, false, nil
		}
		return b, false, domain.E(domain.KindStateConflict, op, "booking %s changed concurrently", b.ID)
	}
	if err != nil {
		return b, false, err
	}
	return nb, true, nil
}

// Cancel moves the booking to CANCELLED, records the fee and returns the seats
// to the tour when the start date is still ahead.
func (m *StateMachine) Cancel(ctx context.Context, b domain.Booking, actor, reason string) (CancelResult, error) {
	const op = "booking.cancel"
	now := m.now().UTC()
	fee, refund := CancellationFee(b, now)
	nb, err := m.apply(ctx, op, b, domain.EventCancel, func(nb *domain.Booking) {
		nb.Cancellation = &domain.Cancellation{
			Reason:      reason,
			CancelledBy: actor,
			CancelledAt: now,
			Fee:         fee,
			Refund:      refund,
		}
	})
	if errors.Is(err, domain.ErrConditionFailed) {
		return CancelResult{}, domain.E(domain.KindStateConflict, op, "booking %s changed concurrently", b.ID)
	}
	if err != nil {
		return CancelResult{}, err
	}

	res := CancelResult{Booking: nb, Fee: fee, Refund: refund}
	if domain.Day(b.StartDate).After(domain.Day(now)) {
		// the write above succeeds once per booking and only against the stored
		// seat count, so this credits exactly what the booking held
		if rerr := m.inventory.ReleaseSeats(ctx, b.TourID, b.Seats()); rerr != nil {
			log.Error().Err(rerr).Str("booking_id", b.ID).Str("tour_id", b.TourID).Int("seats", b.Seats()).
				Msg("seat release after cancellation failed")
		} else {
			res.SeatsReleased = b.Seats()
		}
	}
	return res, nil
}

// MarkStarted is the sweep transition into STARTED. Losing the race to another
// writer is not an error.
func (m *StateMachine) MarkStarted(ctx context.Context, b domain.Booking) (domain.Booking, bool, error) {
	if b.Status == domain.StatusStarted {
		return b, false, nil
	}
	return m.sweep(ctx, "booking.mark_started", b, domain.EventStart)
}

// MarkFinished is the sweep transition into FINISHED; it is idempotent.
func (m *StateMachine) MarkFinished(ctx context.Context, b domain.Booking) (domain.Booking, bool, error) {
	if b.Status == domain.StatusFinished {
		return b, false, nil
	}
	return m.sweep(ctx, "booking.mark_finished", b, domain.EventFinish)
}

func (m *StateMachine) sweep(ctx context.Context, op string, b domain.Booking, ev domain.Event) (domain.Booking, bool, error) {
	nb, err := m.apply(ctx, op, b, ev, nil)
	if errors.Is(err, domain.ErrConditionFailed) {
		log.Debug().Str("booking_id", b.ID).Str("event", string(ev)).Msg("sweep transition lost race, skipping")
		cur, gerr := m.bookings.GetByBookingID(ctx, b.ID)
		if gerr != nil {
			return b, false, nil
		}
		return cur, false, nil
	}
	if err != nil {
		return b, false, err
	}
	observability.ObserveSweep(string(nb.Status))
	return nb, true, nil
}

// apply validates ev against the transition table and writes the result
// conditioned on b.Status and b.Version. A lost race, including one against a
// write that kept the status, is returned as domain.ErrConditionFailed.
func (m *StateMachine) apply(ctx context.Context, op string, b domain.Booking, ev domain.Event, mutate func(*domain.Booking)) (domain.Booking, error) {
	next, ok := domain.Transition(b.Status, ev)
	if !ok {
		return b, domain.E(domain.KindStateConflict, op, "cannot %s a booking in status %s", ev, b.Status)
	}
	nb := b
	nb.Status = next
	nb.UpdatedAt = m.now().UTC()
	if mutate != nil {
		mutate(&nb)
	}
	err := m.bookings.PutIfStatus(ctx, nb, b.Status)
	switch {
	case err == nil:
		nb.Version++
		return nb, nil
	case errors.Is(err, domain.ErrConditionFailed):
		observability.ObserveCASConflict("status")
		return b, domain.ErrConditionFailed
	case errors.Is(err, domain.ErrNotFound):
		return b, domain.E(domain.KindNotFound, op, "booking %s not found", b.ID)
	default:
		return b, domain.Wrap(domain.KindInternal, op, err)
	}
}
