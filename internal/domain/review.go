package domain

import "time"

// Review is keyed by the booking it belongs to; a booking has at most one.
type Review struct {
	BookingID string    `json:"booking_id"`
	TourID    string    `json:"tour_id"`
	UserID    string    `json:"user_id"`
	Author    string    `json:"author"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	Edited    bool      `json:"edited"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	MinRating = 1
	MaxRating = 5
)
