// Package memory is a process-local store with the same conditional-write
// semantics as the MySQL store. It backs tests and STORE_DRIVER=memory.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"tour_booking/internal/domain"
)

type Store struct {
	mu       sync.RWMutex
	tours    map[string]domain.Tour
	bookings map[string]domain.Booking
	reviews  map[string]domain.Review
}

func New() *Store {
	return &Store{
		tours:    map[string]domain.Tour{},
		bookings: map[string]domain.Booking{},
		reviews:  map[string]domain.Review{},
	}
}

// PutTour seeds or replaces a tour.
func (s *Store) PutTour(t domain.Tour) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tours[t.ID] = cloneTour(t)
}

func (s *Store) GetTour(_ context.Context, id string) (domain.Tour, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tours[id]
	if !ok {
		return domain.Tour{}, domain.ErrNotFound
	}
	return cloneTour(t), nil
}

func (s *Store) CompareAndSwapCapacity(_ context.Context, id string, expected, next int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tours[id]
	if !ok {
		return domain.ErrNotFound
	}
	if t.AvailableCapacity != expected {
		return domain.ErrConditionFailed
	}
	t.AvailableCapacity = next
	s.tours[id] = t
	return nil
}

func (s *Store) AddCapacity(_ context.Context, id string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tours[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.AvailableCapacity += n
	s.tours[id] = t
	return nil
}

func (s *Store) CompareAndSwapRating(_ context.Context, id string, expected, next domain.Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tours[id]
	if !ok {
		return domain.ErrNotFound
	}
	if t.Rating != expected {
		return domain.ErrConditionFailed
	}
	t.Rating = next
	s.tours[id] = t
	return nil
}

// Get only returns bookings owned by userID.
func (s *Store) Get(_ context.Context, userID, bookingID string) (domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[bookingID]
	if !ok || b.UserID != userID {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, nil
}

func (s *Store) GetByBookingID(_ context.Context, bookingID string) (domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, nil
}

func (s *Store) Put(_ context.Context, b domain.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
	return nil
}

func (s *Store) PutIfStatus(_ context.Context, b domain.Booking, expected ...domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.bookings[b.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != b.Version {
		return domain.ErrConditionFailed
	}
	for _, st := range expected {
		if cur.Status == st {
			b.Version++
			s.bookings[b.ID] = b
			return nil
		}
	}
	return domain.ErrConditionFailed
}

func (s *Store) CreateWithClaim(_ context.Context, b domain.Booking, observedCapacity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tours[b.TourID]
	if !ok {
		return domain.ErrNotFound
	}
	if t.AvailableCapacity != observedCapacity {
		return domain.ErrConditionFailed
	}
	if _, dup := s.bookings[b.ID]; dup {
		return domain.ErrConditionFailed
	}
	t.AvailableCapacity -= b.Seats()
	s.tours[t.ID] = t
	s.bookings[b.ID] = b
	return nil
}

func (s *Store) FindByUserID(_ context.Context, userID string) ([]domain.Booking, error) {
	return s.filter(func(b domain.Booking) bool { return b.UserID == userID }), nil
}

func (s *Store) FindByAgentEmail(_ context.Context, email string) ([]domain.Booking, error) {
	return s.filter(func(b domain.Booking) bool { return strings.EqualFold(b.AgentEmail, email) }), nil
}

func (s *Store) FindAll(_ context.Context) ([]domain.Booking, error) {
	return s.filter(func(domain.Booking) bool { return true }), nil
}

func (s *Store) FindActive(_ context.Context) ([]domain.Booking, error) {
	return s.filter(func(b domain.Booking) bool { return !b.Status.IsTerminal() }), nil
}

// filter returns matches newest first, the order the MySQL store uses.
func (s *Store) filter(keep func(domain.Booking) bool) []domain.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Booking, 0)
	for _, b := range s.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) GetReview(_ context.Context, bookingID string) (domain.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reviews[bookingID]
	if !ok {
		return domain.Review{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *Store) InsertReview(_ context.Context, r domain.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reviews[r.BookingID]; ok {
		return domain.ErrConditionFailed
	}
	s.reviews[r.BookingID] = r
	return nil
}

func (s *Store) ReplaceReviewOnce(_ context.Context, r domain.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.reviews[r.BookingID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Edited {
		return domain.ErrConditionFailed
	}
	r.Edited = true
	s.reviews[r.BookingID] = r
	return nil
}

// cloneTour copies the slices and maps so callers cannot alias stored state.
func cloneTour(t domain.Tour) domain.Tour {
	t.Durations = append([]string(nil), t.Durations...)
	t.MealPlans = append([]string(nil), t.MealPlans...)
	t.StartDates = append(t.StartDates[:0:0], t.StartDates...)
	t.DurationPrices = cloneMoney(t.DurationPrices)
	t.MealSupplements = cloneMoney(t.MealSupplements)
	return t
}

func cloneMoney(m map[string]domain.Money) map[string]domain.Money {
	if m == nil {
		return nil
	}
	out := make(map[string]domain.Money, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
