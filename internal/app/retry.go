package app

import (
	"context"
	"errors"

	"tour_booking/internal/adapters/observability"
	"tour_booking/internal/domain"
)

var errAttemptsExhausted = errors.New("conditional write attempts exhausted")

// retryCAS runs fn up to attempts times for as long as it reports a lost
// compare-and-swap (domain.ErrConditionFailed). Any other result, nil included,
// ends the loop and is returned as is. There is no backoff between attempts.
func retryCAS(ctx context.Context, attempts int, resource string, fn func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(i)
		if !errors.Is(err, domain.ErrConditionFailed) {
			return err
		}
		observability.ObserveCASConflict(resource)
	}
	return errAttemptsExhausted
}
