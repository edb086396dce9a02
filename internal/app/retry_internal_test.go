package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"tour_booking/internal/domain"
)

func TestRetryCAS(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := retryCAS(ctx, 3, "test", func(int) error { calls++; return domain.ErrConditionFailed })
	assert.ErrorIs(t, err, errAttemptsExhausted)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retryCAS(ctx, 3, "test", func(attempt int) error {
		calls++
		if attempt < 2 {
			return domain.ErrConditionFailed
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)

	boom := errors.New("boom")
	calls = 0
	err = retryCAS(ctx, 3, "test", func(int) error { calls++; return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	err = retryCAS(cctx, 3, "test", func(int) error { t.Fatal("must not run"); return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
