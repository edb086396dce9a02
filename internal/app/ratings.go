package app

import (
	"context"
	"errors"
	"math"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tour_booking/internal/adapters/observability"
	"tour_booking/internal/domain"
)

const DefaultRatingAttempts = 3

// RatingAggregator maintains Tour.Rating with optimistic retries. A failure here
// never reaches the caller: the review is already stored and the displayed
// average simply lags until the next successful write.
type RatingAggregator struct {
	tours    domain.TourStore
	cache    domain.Cache
	attempts int
}

func NewRatingAggregator(tours domain.TourStore, cache domain.Cache, attempts int) *RatingAggregator {
	if attempts < 1 {
		attempts = DefaultRatingAttempts
	}
	return &RatingAggregator{tours: tours, cache: cache, attempts: attempts}
}

// ApplyNewReview adds a first-time contribution. It reports the aggregate that
// was written and whether the write happened.
func (a *RatingAggregator) ApplyNewReview(ctx context.Context, tourID string, rating int) (domain.Rating, bool) {
	return a.update(ctx, "apply", tourID, func(cur domain.Rating) (domain.Rating, bool) {
		n := float64(cur.Count)
		return domain.Rating{
			Average: round2((cur.Average*n + float64(rating)) / (n + 1)),
			Count:   cur.Count + 1,
		}, true
	})
}

// UpdateReview swaps a previous contribution for a new one; the count is unchanged.
func (a *RatingAggregator) UpdateReview(ctx context.Context, tourID string, oldRating, newRating int) (domain.Rating, bool) {
	return a.update(ctx, "replace", tourID, func(cur domain.Rating) (domain.Rating, bool) {
		if cur.Count == 0 {
			return cur, false
		}
		n := float64(cur.Count)
		return domain.Rating{
			Average: round2((cur.Average*n - float64(oldRating) + float64(newRating)) / n),
			Count:   cur.Count,
		}, true
	})
}

func (a *RatingAggregator) update(ctx context.Context, kind, tourID string, next func(domain.Rating) (domain.Rating, bool)) (domain.Rating, bool) {
	var written domain.Rating
	err := retryCAS(ctx, a.attempts, "rating", func(attempt int) error {
		t, err := a.tours.GetTour(ctx, tourID)
		if err != nil {
			return err
		}
		nr, ok := next(t.Rating)
		if !ok {
			return errNothingToReplace
		}
		if err := a.tours.CompareAndSwapRating(ctx, tourID, t.Rating, nr); err != nil {
			return err
		}
		written = nr
		return nil
	})
	if err != nil {
		lvl := zerolog.WarnLevel
		if errors.Is(err, errAttemptsExhausted) {
			lvl = zerolog.ErrorLevel
		}
		log.WithLevel(lvl).Err(err).Str("tour_id", tourID).Str("kind", kind).Int("attempts", a.attempts).
			Msg("rating aggregate not updated")
		observability.ObserveRatingDropped()
		return domain.Rating{}, false
	}
	if a.cache != nil {
		_ = a.cache.Del(ctx, domain.TourCacheKey(tourID))
	}
	return written, true
}

var errNothingToReplace = errors.New("tour has no rating contributions to replace")

// round2 rounds half away from zero to two decimals. Averages are stored
// rounded after every update.
func round2(v float64) float64 { return math.Round(v*100) / 100 }
