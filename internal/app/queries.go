package app

import (
	"context"
	"errors"
	"time"

	"tour_booking/internal/domain"
)

const (
	DefaultTourViewTTL = time.Minute
	MaxTourViewTTL     = 5 * time.Minute
)

// TourQueryService serves the public tour view through a read-through cache.
// Capacity and rating writers evict the entry. A fill that read the store
// before an eviction can still land after it, so a cached view may lag the
// store by at most the TTL. Writes never trust the view: claims and rating
// updates are conditioned on the stored values.
type TourQueryService struct {
	tours    domain.TourStore
	cache    domain.Cache
	cacheTTL time.Duration
}

// NewTourQueryService caches views for ttl, clamped to (0, MaxTourViewTTL]. A
// zero ttl means DefaultTourViewTTL, never an entry without expiry.
func NewTourQueryService(t domain.TourStore, c domain.Cache, ttl time.Duration) *TourQueryService {
	switch {
	case ttl <= 0:
		ttl = DefaultTourViewTTL
	case ttl > MaxTourViewTTL:
		ttl = MaxTourViewTTL
	}
	return &TourQueryService{tours: t, cache: c, cacheTTL: ttl}
}

func (s *TourQueryService) GetTour(ctx context.Context, id string) (domain.TourView, error) {
	const op = "tour.get"
	key := domain.TourCacheKey(id)
	var tv domain.TourView
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &tv); ok {
			return tv, nil
		}
	}
	t, err := s.tours.GetTour(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.TourView{}, domain.E(domain.KindNotFound, op, "tour %s not found", id)
		}
		return domain.TourView{}, domain.Wrap(domain.KindInternal, op, err)
	}
	tv = t.View()
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, tv, int(s.cacheTTL/time.Second))
	}
	return tv, nil
}
