package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tour_booking/internal/app"
	"tour_booking/internal/domain"
)

// ---- fakes ----

type fakeTours struct {
	tour  domain.Tour
	err   error
	reads int
}

func (f *fakeTours) GetTour(ctx context.Context, id string) (domain.Tour, error) {
	f.reads++
	if f.err != nil {
		return domain.Tour{}, f.err
	}
	return f.tour, nil
}
func (f *fakeTours) CompareAndSwapCapacity(ctx context.Context, id string, expected, next int) error {
	return nil
}
func (f *fakeTours) AddCapacity(ctx context.Context, id string, n int) error { return nil }
func (f *fakeTours) CompareAndSwapRating(ctx context.Context, id string, expected, next domain.Rating) error {
	return nil
}

type fakeCache struct {
	mu    sync.Mutex
	store map[string]any
	ttls  map[string]int
	dels  []string
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return false, nil
	}
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	switch d := dst.(type) {
	case *domain.TourView:
		*d = v.(domain.TourView)
	}
	return true, nil
}
func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string]any{}
		c.ttls = map[string]int{}
	}
	c.store[key] = v
	c.ttls[key] = ttlSec
	return nil
}
func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dels = append(c.dels, key)
	delete(c.store, key)
	return nil
}

// ---- tests ----

func TestGetTour_CacheMissThenHit(t *testing.T) {
	tours := &fakeTours{tour: domain.Tour{ID: "alps", Name: "Alps", AvailableCapacity: 4, Rating: domain.Rating{Average: 4.5, Count: 2}}}
	cache := &fakeCache{}
	q := app.NewTourQueryService(tours, cache, 10*time.Minute)

	// Miss (first time, populates cache)
	v, err := q.GetTour(context.Background(), "alps")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if v.ID != "alps" || v.AvailableCapacity != 4 || v.AverageRating != 4.5 || v.ReviewCount != 2 {
		t.Fatalf("unexpected view: %+v", v)
	}
	if _, ok := cache.store[domain.TourCacheKey("alps")]; !ok {
		t.Fatalf("expected cache to be populated")
	}

	// Hit (store not consulted again)
	if _, err := q.GetTour(context.Background(), "alps"); err != nil {
		t.Fatalf("err: %v", err)
	}
	if tours.reads != 1 {
		t.Fatalf("store reads = %d, want 1", tours.reads)
	}
}

func TestGetTour_ViewsAlwaysExpire(t *testing.T) {
	key := domain.TourCacheKey("alps")
	for ttl, want := range map[time.Duration]int{
		0:                 60,
		-time.Second:      60,
		30 * time.Second:  30,
		10 * time.Minute:  300,
		300 * time.Second: 300,
	} {
		cache := &fakeCache{}
		q := app.NewTourQueryService(&fakeTours{tour: domain.Tour{ID: "alps"}}, cache, ttl)
		if _, err := q.GetTour(context.Background(), "alps"); err != nil {
			t.Fatalf("err: %v", err)
		}
		if got := cache.ttls[key]; got != want {
			t.Fatalf("ttl %v: cached for %ds, want %ds", ttl, got, want)
		}
	}
}

func TestGetTour_RefetchesAfterEviction(t *testing.T) {
	tours := &fakeTours{tour: domain.Tour{ID: "alps", AvailableCapacity: 4}}
	cache := &fakeCache{}
	q := app.NewTourQueryService(tours, cache, time.Minute)
	ctx := context.Background()

	if _, err := q.GetTour(ctx, "alps"); err != nil {
		t.Fatalf("err: %v", err)
	}
	tours.tour.AvailableCapacity = 1
	_ = cache.Del(ctx, domain.TourCacheKey("alps"))

	v, err := q.GetTour(ctx, "alps")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if v.AvailableCapacity != 1 || tours.reads != 2 {
		t.Fatalf("capacity %d after %d reads, want 1 after 2", v.AvailableCapacity, tours.reads)
	}
}

func TestGetTour_NotFound(t *testing.T) {
	q := app.NewTourQueryService(&fakeTours{err: domain.ErrNotFound}, &fakeCache{}, time.Minute)
	_, err := q.GetTour(context.Background(), "missing")
	if !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestGetTour_StoreFailureIsInternal(t *testing.T) {
	q := app.NewTourQueryService(&fakeTours{err: errors.New("boom")}, nil, time.Minute)
	_, err := q.GetTour(context.Background(), "alps")
	if !domain.IsKind(err, domain.KindInternal) {
		t.Fatalf("err = %v, want internal", err)
	}
}
