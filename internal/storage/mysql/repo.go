package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"

	"tour_booking/internal/domain"
)

const errDupEntry = 1062

func valJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}

func centi(avg float64) int { return int(math.Round(avg * 100)) }

func isDuplicate(err error) bool {
	var me *mysqldrv.MySQLError
	return errors.As(err, &me) && me.Number == errDupEntry
}

type rowScanner interface {
	Scan(dest ...any) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repo implements the tour, booking and review stores on MySQL.
type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// UpsertTour seeds a tour. Capacity and rating columns are only written on
// insert, so re-seeding never touches seats held by bookings.
func (r *Repo) UpsertTour(ctx context.Context, t domain.Tour) error {
	dates := make([]string, 0, len(t.StartDates))
	for _, d := range t.StartDates {
		dates = append(dates, d.Format(domain.DateLayout))
	}
	durations, _ := json.Marshal(nonNil(t.Durations))
	meals, _ := json.Marshal(nonNil(t.MealPlans))
	prices, err := valJSON(t.DurationPrices)
	if err != nil {
		return fmt.Errorf("encode duration prices: %w", err)
	}
	supps, err := valJSON(t.MealSupplements)
	if err != nil {
		return fmt.Errorf("encode meal supplements: %w", err)
	}
	startDates, _ := valJSON(dates)
	_, err = r.db.ExecContext(ctx, upsertTourSQL,
		t.ID,
		t.Name,
		t.AgentEmail,
		string(durations),
		string(meals),
		prices,
		int64(t.PriceFrom),
		supps,
		startDates,
		t.FreeCancellationDays,
		t.AvailableCapacity,
		centi(t.Rating.Average),
		t.Rating.Count,
	)
	return err
}

func (r *Repo) GetTour(ctx context.Context, id string) (domain.Tour, error) {
	var (
		t                                     domain.Tour
		durations, meals, prices, supps, days []byte
		priceFrom                             int64
		avgCenti                              int
	)
	err := r.db.QueryRowContext(ctx, getTourSQL, id).Scan(
		&t.ID, &t.Name, &t.AgentEmail,
		&durations, &meals, &prices, &priceFrom, &supps, &days,
		&t.FreeCancellationDays, &t.AvailableCapacity,
		&avgCenti, &t.Rating.Count,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Tour{}, domain.ErrNotFound
		}
		return domain.Tour{}, err
	}
	t.PriceFrom = domain.Money(priceFrom)
	t.Rating.Average = float64(avgCenti) / 100

	if err := json.Unmarshal(durations, &t.Durations); err != nil {
		return domain.Tour{}, fmt.Errorf("decode durations of %s: %w", id, err)
	}
	if err := json.Unmarshal(meals, &t.MealPlans); err != nil {
		return domain.Tour{}, fmt.Errorf("decode meal plans of %s: %w", id, err)
	}
	if len(prices) > 0 {
		if err := json.Unmarshal(prices, &t.DurationPrices); err != nil {
			return domain.Tour{}, fmt.Errorf("decode duration prices of %s: %w", id, err)
		}
	}
	if len(supps) > 0 {
		if err := json.Unmarshal(supps, &t.MealSupplements); err != nil {
			return domain.Tour{}, fmt.Errorf("decode meal supplements of %s: %w", id, err)
		}
	}
	if len(days) > 0 {
		var raw []string
		if err := json.Unmarshal(days, &raw); err != nil {
			return domain.Tour{}, fmt.Errorf("decode start dates of %s: %w", id, err)
		}
		for _, s := range raw {
			d, err := domain.ParseDate(s)
			if err != nil {
				return domain.Tour{}, fmt.Errorf("decode start dates of %s: %w", id, err)
			}
			t.StartDates = append(t.StartDates, d)
		}
	}
	return t, nil
}

func (r *Repo) CompareAndSwapCapacity(ctx context.Context, id string, expected, next int) error {
	res, err := r.db.ExecContext(ctx, casCapacitySQL, next, id, expected)
	if err != nil {
		return err
	}
	return conditional(ctx, r.db, res, tourExistsSQL, id)
}

func (r *Repo) AddCapacity(ctx context.Context, id string, n int) error {
	res, err := r.db.ExecContext(ctx, addCapacitySQL, n, id)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repo) CompareAndSwapRating(ctx context.Context, id string, expected, next domain.Rating) error {
	res, err := r.db.ExecContext(ctx, casRatingSQL,
		centi(next.Average), next.Count,
		id, centi(expected.Average), expected.Count,
	)
	if err != nil {
		return err
	}
	return conditional(ctx, r.db, res, tourExistsSQL, id)
}

func (r *Repo) Get(ctx context.Context, userID, bookingID string) (domain.Booking, error) {
	b, err := r.GetByBookingID(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	if b.UserID != userID {
		// same answer as a missing booking, so IDs of other users are not probed
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, nil
}

func (r *Repo) GetByBookingID(ctx context.Context, bookingID string) (domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, selectBookingsSQL+"WHERE id = ?", bookingID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Booking{}, domain.ErrNotFound
		}
		return domain.Booking{}, err
	}
	return b, nil
}

func (r *Repo) Put(ctx context.Context, b domain.Booking) error {
	args, err := bookingArgs(b)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, upsertBookingSQL, args...)
	return err
}

func (r *Repo) PutIfStatus(ctx context.Context, b domain.Booking, expected ...domain.Status) error {
	if len(expected) == 0 {
		return domain.ErrConditionFailed
	}
	args, err := bookingArgs(b)
	if err != nil {
		return err
	}
	// id, owner, tour, agent and created_at never change after insert
	set := make([]any, 0, 17+len(expected))
	set = append(set, args[4:17]...)
	set = append(set, args[18], b.ID, b.Version)
	for _, st := range expected {
		set = append(set, string(st))
	}
	q := updateBookingIfStatusPrefix + "(" + placeholders(len(expected)) + ")"
	res, err := r.db.ExecContext(ctx, q, set...)
	if err != nil {
		return err
	}
	return conditional(ctx, r.db, res, bookingExistsSQL, b.ID)
}

// CreateWithClaim debits the seats and inserts the booking in one transaction.
func (r *Repo) CreateWithClaim(ctx context.Context, b domain.Booking, observedCapacity int) (err error) {
	args, err := bookingArgs(b)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	seats := b.Seats()
	res, err := tx.ExecContext(ctx, claimCapacitySQL, seats, b.TourID, observedCapacity, seats)
	if err != nil {
		return err
	}
	if err = conditional(ctx, tx, res, tourExistsSQL, b.TourID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, insertBookingSQL, args...); err != nil {
		if isDuplicate(err) {
			return domain.ErrConditionFailed
		}
		return err
	}
	return tx.Commit()
}

func (r *Repo) FindByUserID(ctx context.Context, userID string) ([]domain.Booking, error) {
	return r.findBookings(ctx, "WHERE user_id = ?", userID)
}

func (r *Repo) FindByAgentEmail(ctx context.Context, email string) ([]domain.Booking, error) {
	return r.findBookings(ctx, "WHERE LOWER(agent_email) = ?", strings.ToLower(email))
}

func (r *Repo) FindAll(ctx context.Context) ([]domain.Booking, error) {
	return r.findBookings(ctx, "")
}

func (r *Repo) FindActive(ctx context.Context) ([]domain.Booking, error) {
	return r.findBookings(ctx, "WHERE status IN (?, ?, ?)",
		string(domain.StatusBooked), string(domain.StatusConfirmed), string(domain.StatusStarted))
}

func (r *Repo) findBookings(ctx context.Context, where string, args ...any) ([]domain.Booking, error) {
	rows, err := r.db.QueryContext(ctx, selectBookingsSQL+where+bookingsOrder, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) GetReview(ctx context.Context, bookingID string) (domain.Review, error) {
	var (
		rv      domain.Review
		comment sql.NullString
	)
	err := r.db.QueryRowContext(ctx, getReviewSQL, bookingID).Scan(
		&rv.BookingID, &rv.TourID, &rv.UserID, &rv.Author, &rv.Rating, &comment,
		&rv.Edited, &rv.CreatedAt, &rv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Review{}, domain.ErrNotFound
		}
		return domain.Review{}, err
	}
	rv.Comment = comment.String
	return rv, nil
}

func (r *Repo) InsertReview(ctx context.Context, rv domain.Review) error {
	_, err := r.db.ExecContext(ctx, insertReviewSQL,
		rv.BookingID, rv.TourID, rv.UserID, rv.Author, rv.Rating, rv.Comment,
		rv.CreatedAt.UTC(), rv.UpdatedAt.UTC(),
	)
	if isDuplicate(err) {
		return domain.ErrConditionFailed
	}
	return err
}

func (r *Repo) ReplaceReviewOnce(ctx context.Context, rv domain.Review) error {
	res, err := r.db.ExecContext(ctx, replaceReviewOnceSQL, rv.Rating, rv.Comment, rv.UpdatedAt.UTC(), rv.BookingID)
	if err != nil {
		return err
	}
	return conditional(ctx, r.db, res, reviewExistsSQL, rv.BookingID)
}

// conditional turns a zero-row conditional write into ErrNotFound or
// ErrConditionFailed by probing for the row.
func conditional(ctx context.Context, q execer, res sql.Result, probeSQL, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	var one int
	if err := q.QueryRowContext(ctx, probeSQL, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}
	return domain.ErrConditionFailed
}

func bookingArgs(b domain.Booking) ([]any, error) {
	details, err := json.Marshal(b.PersonalDetails)
	if err != nil {
		return nil, fmt.Errorf("encode personal details: %w", err)
	}
	breakdown, err := json.Marshal(b.PriceBreakdown)
	if err != nil {
		return nil, fmt.Errorf("encode price breakdown: %w", err)
	}
	var cancellation any
	if b.Cancellation != nil {
		if cancellation, err = valJSON(b.Cancellation); err != nil {
			return nil, fmt.Errorf("encode cancellation: %w", err)
		}
	}
	return []any{
		b.ID,                                   // 0 id
		b.UserID,                               // 1 user_id
		b.TourID,                               // 2 tour_id
		b.AgentEmail,                           // 3 agent_email
		string(b.Status),                       // 4 status
		domain.Day(b.StartDate),                // 5 start_date
		b.Duration,                             // 6 duration
		b.DurationDays,                         // 7 duration_days
		b.MealPlan,                             // 8 meal_plan
		b.Adults,                               // 9 adults
		b.Children,                             // 10 children
		string(details),                        // 11 personal_details
		int64(b.TotalPrice),                    // 12 total_cents
		string(breakdown),                      // 13 price_breakdown
		domain.Day(b.FreeCancellationDeadline), // 14 free_cancellation_deadline
		cancellation,                           // 15 cancellation
		valTime(b.ConfirmedAt),                 // 16 confirmed_at
		b.CreatedAt.UTC(),                      // 17 created_at
		b.UpdatedAt.UTC(),                      // 18 updated_at
		b.Version,                              // 19 version
	}, nil
}

func scanBooking(s rowScanner) (domain.Booking, error) {
	var (
		b                                domain.Booking
		status                           string
		details, breakdown, cancellation []byte
		total                            int64
		confirmedAt                      sql.NullTime
	)
	if err := s.Scan(
		&b.ID, &b.UserID, &b.TourID, &b.AgentEmail, &status,
		&b.StartDate, &b.Duration, &b.DurationDays, &b.MealPlan, &b.Adults, &b.Children,
		&details, &total, &breakdown, &b.FreeCancellationDeadline, &cancellation,
		&confirmedAt, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	); err != nil {
		return domain.Booking{}, err
	}
	b.Status = domain.Status(status)
	b.TotalPrice = domain.Money(total)
	if err := json.Unmarshal(details, &b.PersonalDetails); err != nil {
		return domain.Booking{}, fmt.Errorf("decode personal details of %s: %w", b.ID, err)
	}
	if err := json.Unmarshal(breakdown, &b.PriceBreakdown); err != nil {
		return domain.Booking{}, fmt.Errorf("decode price breakdown of %s: %w", b.ID, err)
	}
	if len(cancellation) > 0 {
		b.Cancellation = &domain.Cancellation{}
		if err := json.Unmarshal(cancellation, b.Cancellation); err != nil {
			return domain.Booking{}, fmt.Errorf("decode cancellation of %s: %w", b.ID, err)
		}
	}
	if confirmedAt.Valid {
		at := confirmedAt.Time.UTC()
		b.ConfirmedAt = &at
	}
	return b, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
