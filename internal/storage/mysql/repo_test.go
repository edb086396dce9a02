package mysql_test

import (
	"context"
	"database/sql/driver"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tour_booking/internal/domain"
	mysqlrepo "tour_booking/internal/storage/mysql"
)

func newMock(t *testing.T) (*mysqlrepo.Repo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return mysqlrepo.New(db), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func sampleBooking() domain.Booking {
	start := time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)
	return domain.Booking{
		ID:                       "b-1",
		UserID:                   "u-1",
		TourID:                   "t-1",
		AgentEmail:               "agent@example.com",
		Status:                   domain.StatusBooked,
		StartDate:                start,
		Duration:                 "7 days",
		DurationDays:             7,
		MealPlan:                 "HB",
		Adults:                   2,
		Children:                 1,
		PersonalDetails:          domain.PersonalDetails{FullName: "Ana Lopez", Email: "ana@example.com"},
		TotalPrice:               315000,
		PriceBreakdown:           domain.PriceBreakdown{BasePerPerson: 100000, SupplementPerDay: 0, Days: 7, Seats: 3},
		FreeCancellationDeadline: start.AddDate(0, 0, -10),
		CreatedAt:                time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt:                time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
		Version:                  1,
	}
}

func TestCreateWithClaim_CommitsClaimAndInsert(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE tours SET available_capacity = available_capacity - ?")).
		WithArgs(3, "t-1", 5, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO bookings")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateWithClaim(context.Background(), sampleBooking(), 5))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithClaim_CapacityChangedRollsBack(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE tours SET available_capacity = available_capacity - ?")).
		WithArgs(3, "t-1", 5, 3).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT 1 FROM tours WHERE id = ?")).
		WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.CreateWithClaim(context.Background(), sampleBooking(), 5)
	require.ErrorIs(t, err, domain.ErrConditionFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithClaim_MissingTour(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE tours SET available_capacity")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT 1 FROM tours WHERE id = ?")).
		WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectRollback()

	err := repo.CreateWithClaim(context.Background(), sampleBooking(), 5)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithClaim_DuplicateIDRollsBackClaim(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE tours SET available_capacity")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO bookings")).
		WillReturnError(&mysqldrv.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	err := repo.CreateWithClaim(context.Background(), sampleBooking(), 5)
	require.ErrorIs(t, err, domain.ErrConditionFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompareAndSwapRating_StoresHundredths(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectExec(q("UPDATE tours SET avg_rating_centi = ?, review_count = ?")).
		WithArgs(400, 2, "t-1", 500, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CompareAndSwapRating(context.Background(), "t-1",
		domain.Rating{Average: 5, Count: 1}, domain.Rating{Average: 4, Count: 2})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutIfStatus_ConditionFailed(t *testing.T) {
	repo, mock := newMock(t)
	b := sampleBooking()
	b.Status = domain.StatusConfirmed

	mock.ExpectExec(q("UPDATE bookings SET")+".*"+q("WHERE id = ? AND version = ? AND status IN (?, ?)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT 1 FROM bookings WHERE id = ?")).
		WithArgs("b-1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	err := repo.PutIfStatus(context.Background(), b, domain.StatusBooked, domain.StatusConfirmed)
	require.ErrorIs(t, err, domain.ErrConditionFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutIfStatus_ConditionedOnVersion(t *testing.T) {
	repo, mock := newMock(t)
	b := sampleBooking()
	b.Version = 3
	b.Adults = 1

	// 14 SET values, then id, version and the expected status
	args := make([]driver.Value, 0, 17)
	for i := 0; i < 14; i++ {
		args = append(args, sqlmock.AnyArg())
	}
	args = append(args, "b-1", 3, "BOOKED")
	mock.ExpectExec(q("version = version + 1") + ".*" + q("WHERE id = ? AND version = ? AND status IN (?)")).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.PutIfStatus(context.Background(), b, domain.StatusBooked))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertTour_ExistingTourKeepsCapacityAndRating(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherFunc(func(_, actual string) error {
		_, update, ok := strings.Cut(actual, "ON DUPLICATE KEY UPDATE")
		if !ok {
			return fmt.Errorf("not an upsert: %s", actual)
		}
		for _, col := range []string{"available_capacity", "avg_rating_centi", "review_count"} {
			if strings.Contains(update, col) {
				return fmt.Errorf("duplicate key overwrites %s", col)
			}
		}
		return nil
	})))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := mysqlrepo.New(db)

	mock.ExpectExec("INSERT INTO tours").WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.UpsertTour(context.Background(), domain.Tour{ID: "t-1", Name: "Alps", AvailableCapacity: 10}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddCapacity_MissingTour(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectExec(q("UPDATE tours SET available_capacity = available_capacity + ?")).
		WithArgs(2, "nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, repo.AddCapacity(context.Background(), "nope", 2), domain.ErrNotFound)
}

func TestGetTour_DecodesColumns(t *testing.T) {
	repo, mock := newMock(t)

	cols := []string{
		"id", "name", "agent_email", "durations", "meal_plans", "duration_prices", "price_from_cents",
		"meal_supplements", "start_dates", "free_cancellation_days", "available_capacity",
		"avg_rating_centi", "review_count",
	}
	mock.ExpectQuery(q("FROM tours")).
		WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"t-1", "Alps", "agent@example.com",
			[]byte(`["7 days","10 days"]`), []byte(`["BB","HB"]`),
			[]byte(`{"7 days":1000.00}`), int64(90000),
			[]byte(`{"HB":15.50}`), []byte(`["2025-06-11"]`),
			0, 12, 433, 3,
		))

	tour, err := repo.GetTour(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"7 days", "10 days"}, tour.Durations)
	assert.Equal(t, domain.Money(100000), tour.DurationPrices["7 days"])
	assert.Equal(t, domain.Money(90000), tour.PriceFrom)
	assert.Equal(t, domain.Money(1550), tour.MealSupplements["HB"])
	require.Len(t, tour.StartDates, 1)
	assert.True(t, tour.OffersStartDate(time.Date(2025, 6, 11, 15, 0, 0, 0, time.UTC)))
	assert.Equal(t, 10, tour.CancellationLeadDays())
	assert.Equal(t, domain.Rating{Average: 4.33, Count: 3}, tour.Rating)
}

func TestGetTour_CorruptColumnIsAnError(t *testing.T) {
	cols := []string{
		"id", "name", "agent_email", "durations", "meal_plans", "duration_prices", "price_from_cents",
		"meal_supplements", "start_dates", "free_cancellation_days", "available_capacity",
		"avg_rating_centi", "review_count",
	}
	good := map[string][]byte{
		"durations":        []byte(`["7 days"]`),
		"meal_plans":       []byte(`["BB"]`),
		"duration_prices":  []byte(`{"7 days":1000.00}`),
		"meal_supplements": []byte(`{"HB":15.50}`),
	}
	for col, want := range map[string]string{
		"durations":        "decode durations of t-1",
		"meal_plans":       "decode meal plans of t-1",
		"duration_prices":  "decode duration prices of t-1",
		"meal_supplements": "decode meal supplements of t-1",
	} {
		t.Run(col, func(t *testing.T) {
			repo, mock := newMock(t)
			v := map[string][]byte{}
			for k, b := range good {
				v[k] = b
			}
			v[col] = []byte(`{not json`)
			mock.ExpectQuery(q("FROM tours")).
				WithArgs("t-1").
				WillReturnRows(sqlmock.NewRows(cols).AddRow(
					"t-1", "Alps", "agent@example.com",
					v["durations"], v["meal_plans"], v["duration_prices"], int64(90000),
					v["meal_supplements"], []byte(`[]`), 0, 12, 0, 0,
				))

			_, err := repo.GetTour(context.Background(), "t-1")
			require.Error(t, err)
			assert.NotErrorIs(t, err, domain.ErrNotFound)
			assert.Contains(t, err.Error(), want)
		})
	}
}

func TestGetTour_NotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(q("FROM tours")).WithArgs("x").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetTour(context.Background(), "x")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGet_OtherUsersBookingIsNotFound(t *testing.T) {
	repo, mock := newMock(t)
	b := sampleBooking()

	cols := []string{
		"id", "user_id", "tour_id", "agent_email", "status", "start_date", "duration", "duration_days",
		"meal_plan", "adults", "children", "personal_details", "total_cents", "price_breakdown",
		"free_cancellation_deadline", "cancellation", "confirmed_at", "created_at", "updated_at",
		"version",
	}
	mock.ExpectQuery(q("FROM bookings")).
		WithArgs("b-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			b.ID, b.UserID, b.TourID, b.AgentEmail, "BOOKED", b.StartDate, b.Duration, 7,
			"HB", 2, 1, []byte(`{"full_name":"Ana Lopez","email":"ana@example.com"}`), int64(315000),
			[]byte(`{"base_per_person":1000.00,"meal_supplement_per_person_per_day":0.00,"days":7,"seats":3}`),
			b.FreeCancellationDeadline, nil, nil, b.CreatedAt, b.UpdatedAt, 1,
		))

	_, err := repo.Get(context.Background(), "someone-else", "b-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInsertReview_DuplicateIsConditionFailed(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(q("INSERT INTO reviews")).
		WillReturnError(&mysqldrv.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := repo.InsertReview(context.Background(), domain.Review{BookingID: "b-1", TourID: "t-1", Rating: 5})
	require.ErrorIs(t, err, domain.ErrConditionFailed)
}
