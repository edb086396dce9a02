package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"tour_booking/internal/domain"
)

// SweepReport summarises one pass.
type SweepReport struct {
	Scanned  int
	Started  int
	Finished int
	Failed   int
}

// SweepService advances bookings whose start or end date has passed. Passes may
// overlap: every transition is conditional and a lost race is skipped.
type SweepService struct {
	bookings domain.BookingStore
	machine  *StateMachine
	workers  int
	now      func() time.Time
}

func NewSweepService(bookings domain.BookingStore, machine *StateMachine, workers int, now func() time.Time) *SweepService {
	if workers <= 0 {
		workers = 4
	}
	if now == nil {
		now = time.Now
	}
	return &SweepService{bookings: bookings, machine: machine, workers: workers, now: now}
}

func (s *SweepService) Run(ctx context.Context) (SweepReport, error) {
	active, err := s.bookings.FindActive(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("sweep: list active bookings: %w", err)
	}
	today := domain.Day(s.now())

	var (
		mu  sync.Mutex
		rep = SweepReport{Scanned: len(active)}
		wg  sync.WaitGroup
		sem = semaphore.NewWeighted(int64(s.workers))
	)
	for _, b := range active {
		if err := sem.Acquire(ctx, 1); err != nil {
			break // ctx cancelled; let in-flight work finish
		}
		wg.Add(1)
		go func(b domain.Booking) {
			defer wg.Done()
			defer sem.Release(1)

			started, finished, err := s.advance(ctx, b, today)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				rep.Failed++
				log.Warn().Err(err).Str("booking_id", b.ID).Msg("sweep transition failed")
			case finished:
				rep.Finished++
			case started:
				rep.Started++
			}
		}(b)
	}
	wg.Wait()

	log.Info().Int("scanned", rep.Scanned).Int("started", rep.Started).Int("finished", rep.Finished).
		Int("failed", rep.Failed).Msg("status sweep completed")
	return rep, ctx.Err()
}

func (s *SweepService) advance(ctx context.Context, b domain.Booking, today time.Time) (started, finished bool, err error) {
	switch {
	case !today.Before(b.EndDate()):
		_, finished, err = s.machine.MarkFinished(ctx, b)
	case !today.Before(domain.Day(b.StartDate)) && b.Status != domain.StatusStarted:
		_, started, err = s.machine.MarkStarted(ctx, b)
	}
	return started, finished, err
}
