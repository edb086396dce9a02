package app

import (
	"context"
	"errors"

	"tour_booking/internal/domain"
)

// FanoutPublisher delivers every event to each sink and reports the joined
// failures. One failing sink does not stop the others.
type FanoutPublisher []domain.EventPublisher

func (f FanoutPublisher) Publish(ctx context.Context, ev domain.BookingEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
