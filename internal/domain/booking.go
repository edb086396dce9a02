package domain

import "time"

type Booking struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	TourID     string `json:"tour_id"`
	AgentEmail string `json:"agent_email"`
	Status     Status `json:"status"`

	StartDate    time.Time `json:"-"`
	Duration     string    `json:"duration"`
	DurationDays int       `json:"duration_days"`
	MealPlan     string    `json:"meal_plan"`
	Adults       int       `json:"adults"`
	Children     int       `json:"children"`

	PersonalDetails PersonalDetails `json:"personal_details"`

	TotalPrice     Money          `json:"total_price"`
	PriceBreakdown PriceBreakdown `json:"price_breakdown"`

	FreeCancellationDeadline time.Time `json:"-"`

	Cancellation *Cancellation `json:"cancellation,omitempty"`
	ConfirmedAt  *time.Time    `json:"confirmed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// Version is bumped by every conditional write.
	Version int `json:"version"`
}

type PersonalDetails struct {
	FullName string `json:"full_name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone,omitempty" validate:"omitempty,max=40"`
}

// PriceBreakdown records the inputs of TotalPrice at the time it was computed.
type PriceBreakdown struct {
	BasePerPerson    Money `json:"base_per_person"`
	SupplementPerDay Money `json:"meal_supplement_per_person_per_day"`
	Days             int   `json:"days"`
	Seats            int   `json:"seats"`
}

type Cancellation struct {
	Reason      string    `json:"reason"`
	CancelledBy string    `json:"cancelled_by"`
	CancelledAt time.Time `json:"cancelled_at"`
	Fee         Money     `json:"fee"`
	Refund      Money     `json:"refund"`
}

type Guests struct {
	Adults   int `json:"adults" validate:"min=0,max=100"`
	Children int `json:"children" validate:"min=0,max=100"`
}

func (g Guests) Seats() int { return g.Adults + g.Children }

func (b Booking) Seats() int { return b.Adults + b.Children }

func (b Booking) Guests() Guests { return Guests{Adults: b.Adults, Children: b.Children} }

// EndDate is the first day after the tour.
func (b Booking) EndDate() time.Time { return Day(b.StartDate).AddDate(0, 0, b.DurationDays) }

// IsOwnedBy reports whether userID created the booking.
func (b Booking) IsOwnedBy(userID string) bool { return userID != "" && b.UserID == userID }
