package domain

import "time"

type EventType string

const (
	EventTypeConfirm EventType = "CONFIRM"
	EventTypeCancel  EventType = "CANCEL"
)

// BookingEvent is published to downstream consumers after confirm and cancel.
type BookingEvent struct {
	Type       EventType `json:"type"`
	BookingID  string    `json:"bookingId"`
	UserID     string    `json:"userId"`
	TourID     string    `json:"tourId"`
	AgentEmail string    `json:"agentEmail"`
	OccurredAt time.Time `json:"occurredAt"`
}

func NewBookingEvent(t EventType, b Booking, at time.Time) BookingEvent {
	return BookingEvent{
		Type:       t,
		BookingID:  b.ID,
		UserID:     b.UserID,
		TourID:     b.TourID,
		AgentEmail: b.AgentEmail,
		OccurredAt: at.UTC(),
	}
}
