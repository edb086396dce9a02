package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tour_booking/internal/app"
	"tour_booking/internal/domain"
	"tour_booking/internal/storage/memory"
)

func TestRatingAggregator_Arithmetic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r, ok := h.ratings.ApplyNewReview(ctx, "alps", 5)
	require.True(t, ok)
	assert.Equal(t, domain.Rating{Average: 5.0, Count: 1}, r)

	r, ok = h.ratings.ApplyNewReview(ctx, "alps", 3)
	require.True(t, ok)
	assert.Equal(t, domain.Rating{Average: 4.0, Count: 2}, r)

	r, ok = h.ratings.UpdateReview(ctx, "alps", 5, 1)
	require.True(t, ok)
	assert.Equal(t, domain.Rating{Average: 2.0, Count: 2}, r)

	stored, err := h.store.GetTour(ctx, "alps")
	require.NoError(t, err)
	assert.Equal(t, r, stored.Rating)
	assert.Contains(t, h.cache.dels, domain.TourCacheKey("alps"))
}

func TestRatingAggregator_RoundsToTwoDecimals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, v := range []int{5, 4, 4} {
		_, ok := h.ratings.ApplyNewReview(ctx, "alps", v)
		require.True(t, ok)
	}
	tr, _ := h.store.GetTour(ctx, "alps")
	assert.Equal(t, 4.33, tr.Rating.Average)
	assert.Equal(t, 3, tr.Rating.Count)
}

func TestRatingAggregator_RecoversFromLostRaces(t *testing.T) {
	store := memory.New()
	store.PutTour(alpsTour())
	tours := &conflictingTours{Store: store, failRatings: 2}
	agg := app.NewRatingAggregator(tours, nil, 3)

	r, ok := agg.ApplyNewReview(context.Background(), "alps", 4)
	require.True(t, ok)
	assert.Equal(t, domain.Rating{Average: 4, Count: 1}, r)
	assert.Equal(t, 3, tours.ratingCalls)
}

func TestRatingAggregator_ExhaustionIsSoft(t *testing.T) {
	store := memory.New()
	store.PutTour(alpsTour())
	tours := &conflictingTours{Store: store, failRatings: -1}
	agg := app.NewRatingAggregator(tours, nil, 3)

	_, ok := agg.ApplyNewReview(context.Background(), "alps", 4)
	assert.False(t, ok)
	assert.Equal(t, 3, tours.ratingCalls)

	tr, _ := store.GetTour(context.Background(), "alps")
	assert.Equal(t, domain.Rating{}, tr.Rating)
}

func TestRatingAggregator_UpdateWithoutContributions(t *testing.T) {
	h := newHarness(t)
	_, ok := h.ratings.UpdateReview(context.Background(), "alps", 5, 1)
	assert.False(t, ok)

	_, ok = h.ratings.ApplyNewReview(context.Background(), "missing", 5)
	assert.False(t, ok)
}
