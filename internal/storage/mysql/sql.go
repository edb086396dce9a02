package mysql

const upsertTourSQL = `
INSERT INTO tours
  (id, name, agent_email, durations, meal_plans, duration_prices, price_from_cents,
   meal_supplements, start_dates, free_cancellation_days, available_capacity,
   avg_rating_centi, review_count)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  name                   = VALUES(name),
  agent_email            = VALUES(agent_email),
  durations              = VALUES(durations),
  meal_plans             = VALUES(meal_plans),
  duration_prices        = VALUES(duration_prices),
  price_from_cents       = VALUES(price_from_cents),
  meal_supplements       = VALUES(meal_supplements),
  start_dates            = VALUES(start_dates),
  free_cancellation_days = VALUES(free_cancellation_days)
`

const getTourSQL = `
SELECT
  id, name, agent_email, durations, meal_plans, duration_prices, price_from_cents,
  meal_supplements, start_dates, free_cancellation_days, available_capacity,
  avg_rating_centi, review_count
FROM tours
WHERE id = ?
`

const tourExistsSQL = `SELECT 1 FROM tours WHERE id = ?`

// Capacity is only written on insert; afterwards the claim and release
// statements below own it.

// Conditional writes. The DSN must set clientFoundRows=true so a matched row
// whose values do not change still counts as affected.
const casCapacitySQL = `
UPDATE tours SET available_capacity = ?
WHERE id = ? AND available_capacity = ?
`

const claimCapacitySQL = `
UPDATE tours SET available_capacity = available_capacity - ?
WHERE id = ? AND available_capacity = ? AND available_capacity >= ?
`

const addCapacitySQL = `
UPDATE tours SET available_capacity = available_capacity + ?
WHERE id = ?
`

const casRatingSQL = `
UPDATE tours SET avg_rating_centi = ?, review_count = ?
WHERE id = ? AND avg_rating_centi = ? AND review_count = ?
`

const bookingColumns = `
  id, user_id, tour_id, agent_email, status, start_date, duration, duration_days,
  meal_plan, adults, children, personal_details, total_cents, price_breakdown,
  free_cancellation_deadline, cancellation, confirmed_at, created_at, updated_at,
  version`

const insertBookingSQL = `
INSERT INTO bookings (` + bookingColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const upsertBookingSQL = insertBookingSQL + `
ON DUPLICATE KEY UPDATE
  status                     = VALUES(status),
  start_date                 = VALUES(start_date),
  duration                   = VALUES(duration),
  duration_days              = VALUES(duration_days),
  meal_plan                  = VALUES(meal_plan),
  adults                     = VALUES(adults),
  children                   = VALUES(children),
  personal_details           = VALUES(personal_details),
  total_cents                = VALUES(total_cents),
  price_breakdown            = VALUES(price_breakdown),
  free_cancellation_deadline = VALUES(free_cancellation_deadline),
  cancellation               = VALUES(cancellation),
  confirmed_at               = VALUES(confirmed_at),
  updated_at                 = VALUES(updated_at),
  version                    = VALUES(version)
`

// updateBookingIfStatusPrefix is completed with one placeholder per expected status.
const updateBookingIfStatusPrefix = `
UPDATE bookings SET
  status = ?, start_date = ?, duration = ?, duration_days = ?, meal_plan = ?,
  adults = ?, children = ?, personal_details = ?, total_cents = ?, price_breakdown = ?,
  free_cancellation_deadline = ?, cancellation = ?, confirmed_at = ?, updated_at = ?,
  version = version + 1
WHERE id = ? AND version = ? AND status IN `

const bookingExistsSQL = `SELECT 1 FROM bookings WHERE id = ?`

const selectBookingsSQL = `SELECT` + bookingColumns + `
FROM bookings
`

const bookingsOrder = ` ORDER BY created_at DESC, id ASC`

const getReviewSQL = "SELECT booking_id, tour_id, user_id, author, rating, `comment`, edited, created_at, updated_at\nFROM reviews WHERE booking_id = ?"

// Note: `comment` is reserved in some modes; keep it quoted everywhere.
const insertReviewSQL = "INSERT INTO reviews\n  (booking_id, tour_id, user_id, author, rating, `comment`, edited, created_at, updated_at)\nVALUES (?, ?, ?, ?, ?, ?, FALSE, ?, ?)"

const replaceReviewOnceSQL = "UPDATE reviews SET rating = ?, `comment` = ?, edited = TRUE, updated_at = ?\nWHERE booking_id = ? AND edited = FALSE"

const reviewExistsSQL = `SELECT 1 FROM reviews WHERE booking_id = ?`
