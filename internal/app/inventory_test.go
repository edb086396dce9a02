package app_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tour_booking/internal/app"
	"tour_booking/internal/domain"
	"tour_booking/internal/storage/memory"
)

func TestClaimSeats_ConcurrentClaimsNeverOversell(t *testing.T) {
	store := memory.New()
	tour := alpsTour()
	tour.AvailableCapacity = 25
	store.PutTour(tour)
	inv := app.NewInventory(store, nil, 1000)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for i := 0; i < 40; i++ {
		seats := 1 + i%3
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := inv.ClaimSeats(context.Background(), "alps", seats); err == nil {
				mu.Lock()
				claimed += seats
				mu.Unlock()
			} else {
				assert.True(t, domain.IsKind(err, domain.KindInsufficientCapacity), "unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.GetTour(context.Background(), "alps")
	require.NoError(t, err)
	assert.LessOrEqual(t, claimed, 25)
	assert.GreaterOrEqual(t, got.AvailableCapacity, 0)
	assert.Equal(t, 25-claimed, got.AvailableCapacity)
}

func TestClaimSeats_FailsClosed(t *testing.T) {
	h := newHarness(t)

	err := h.inv.ClaimSeats(context.Background(), "alps", 11)
	requireKind(t, err, domain.KindInsufficientCapacity)
	assert.Equal(t, 10, h.capacity(t))

	require.NoError(t, h.inv.ClaimSeats(context.Background(), "alps", 10))
	assert.Equal(t, 0, h.capacity(t))
	requireKind(t, h.inv.ClaimSeats(context.Background(), "alps", 1), domain.KindInsufficientCapacity)
}

func TestClaimSeats_EvictsCachedView(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.inv.ClaimSeats(context.Background(), "alps", 2))
	assert.Contains(t, h.cache.dels, domain.TourCacheKey("alps"))
}

func TestClaimSeats_UnknownTourIsNotFound(t *testing.T) {
	h := newHarness(t)
	requireKind(t, h.inv.ClaimSeats(context.Background(), "nope", 1), domain.KindNotFound)
	requireKind(t, h.inv.ReleaseSeats(context.Background(), "nope", 1), domain.KindNotFound)
}

func TestClaimSeats_LosingEveryRaceIsBounded(t *testing.T) {
	store := memory.New()
	store.PutTour(alpsTour())
	tours := &conflictingTours{Store: store}
	inv := app.NewInventory(tours, nil, 3)

	err := inv.ClaimSeats(context.Background(), "alps", 2)
	requireKind(t, err, domain.KindInsufficientCapacity)
	assert.Equal(t, 3, tours.capacityCalls)

	got, _ := store.GetTour(context.Background(), "alps")
	assert.Equal(t, 10, got.AvailableCapacity)
}

func TestAdjustSeats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.inv.AdjustSeats(ctx, "alps", 4))
	assert.Equal(t, 6, h.capacity(t))
	require.NoError(t, h.inv.AdjustSeats(ctx, "alps", -3))
	assert.Equal(t, 9, h.capacity(t))
	require.NoError(t, h.inv.AdjustSeats(ctx, "alps", 0))
	assert.Equal(t, 9, h.capacity(t))
	requireKind(t, h.inv.AdjustSeats(ctx, "alps", 10), domain.KindInsufficientCapacity)
	assert.Equal(t, 9, h.capacity(t))
}
