package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tour_booking/internal/domain"
)

type ReviewCmd struct {
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// ReviewService accepts one review per finished booking and allows a single edit.
type ReviewService struct {
	bookings domain.BookingStore
	reviews  domain.ReviewStore
	ratings  *RatingAggregator
	now      func() time.Time
}

func NewReviewService(bookings domain.BookingStore, reviews domain.ReviewStore, ratings *RatingAggregator, now func() time.Time) *ReviewService {
	if now == nil {
		now = time.Now
	}
	return &ReviewService{bookings: bookings, reviews: reviews, ratings: ratings, now: now}
}

func (s *ReviewService) Submit(ctx context.Context, req domain.Requester, bookingID string, cmd ReviewCmd) (domain.Review, error) {
	const op = "review.submit"
	b, err := s.finishedBooking(ctx, op, req, bookingID, cmd)
	if err != nil {
		return domain.Review{}, err
	}

	now := s.now().UTC()
	r := domain.Review{
		BookingID: b.ID,
		TourID:    b.TourID,
		UserID:    b.UserID,
		Author:    author(b, req),
		Rating:    cmd.Rating,
		Comment:   strings.TrimSpace(cmd.Comment),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.reviews.InsertReview(ctx, r); err != nil {
		if errors.Is(err, domain.ErrConditionFailed) {
			return domain.Review{}, domain.E(domain.KindStateConflict, op, "booking %s has already been reviewed", b.ID)
		}
		return domain.Review{}, domain.Wrap(domain.KindInternal, op, err)
	}

	agg, ok := s.ratings.ApplyNewReview(ctx, b.TourID, r.Rating)
	log.Info().Str("booking_id", b.ID).Str("tour_id", b.TourID).Int("rating", r.Rating).
		Bool("aggregated", ok).Float64("average", agg.Average).Msg("review submitted")
	return r, nil
}

func (s *ReviewService) Edit(ctx context.Context, req domain.Requester, bookingID string, cmd ReviewCmd) (domain.Review, error) {
	const op = "review.edit"
	b, err := s.finishedBooking(ctx, op, req, bookingID, cmd)
	if err != nil {
		return domain.Review{}, err
	}
	prev, err := s.reviews.GetReview(ctx, b.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Review{}, domain.E(domain.KindNotFound, op, "booking %s has no review", b.ID)
		}
		return domain.Review{}, domain.Wrap(domain.KindInternal, op, err)
	}
	if prev.Edited {
		return domain.Review{}, domain.E(domain.KindStateConflict, op, "review can only be edited once")
	}

	r := prev
	r.Rating = cmd.Rating
	r.Comment = strings.TrimSpace(cmd.Comment)
	r.Edited = true
	r.UpdatedAt = s.now().UTC()
	if err := s.reviews.ReplaceReviewOnce(ctx, r); err != nil {
		if errors.Is(err, domain.ErrConditionFailed) {
			return domain.Review{}, domain.E(domain.KindStateConflict, op, "review can only be edited once")
		}
		return domain.Review{}, domain.Wrap(domain.KindInternal, op, err)
	}

	agg, ok := s.ratings.UpdateReview(ctx, b.TourID, prev.Rating, r.Rating)
	log.Info().Str("booking_id", b.ID).Int("old_rating", prev.Rating).Int("rating", r.Rating).
		Bool("aggregated", ok).Float64("average", agg.Average).Msg("review edited")
	return r, nil
}

func (s *ReviewService) finishedBooking(ctx context.Context, op string, req domain.Requester, bookingID string, cmd ReviewCmd) (domain.Booking, error) {
	if err := requireRole(op, req, domain.RoleCustomer); err != nil {
		return domain.Booking{}, err
	}
	if err := validateCmd(op, cmd); err != nil {
		return domain.Booking{}, err
	}
	b, err := s.bookings.Get(ctx, req.UserID, bookingID)
	if err != nil {
		return domain.Booking{}, bookingErr(op, bookingID, err)
	}
	if b.Status != domain.StatusFinished {
		return domain.Booking{}, domain.E(domain.KindStateConflict, op, "only finished bookings can be reviewed, status is %s", b.Status)
	}
	return b, nil
}

func author(b domain.Booking, req domain.Requester) string {
	if n := strings.TrimSpace(b.PersonalDetails.FullName); n != "" {
		return n
	}
	if req.Email != "" {
		return req.Email
	}
	return req.UserID
}
