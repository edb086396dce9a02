package domain

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusBooked    Status = "BOOKED"
	StatusConfirmed Status = "CONFIRMED"
	StatusStarted   Status = "STARTED"
	StatusCancelled Status = "CANCELLED"
	StatusFinished  Status = "FINISHED"
)

// Event drives a status transition.
type Event string

const (
	EventConfirm Event = "confirm"
	EventStart   Event = "start"
	EventFinish  Event = "finish"
	EventCancel  Event = "cancel"
)

type transitionKey struct {
	from Status
	on   Event
}

// transitions is the complete lifecycle. Pairs missing from the table are illegal.
var transitions = map[transitionKey]Status{
	{StatusBooked, EventConfirm}: StatusConfirmed,
	{StatusBooked, EventStart}:   StatusStarted,
	{StatusBooked, EventFinish}:  StatusFinished,
	{StatusBooked, EventCancel}:  StatusCancelled,

	{StatusConfirmed, EventStart}:  StatusStarted,
	{StatusConfirmed, EventFinish}: StatusFinished,
	{StatusConfirmed, EventCancel}: StatusCancelled,

	{StatusStarted, EventFinish}: StatusFinished,
	{StatusStarted, EventCancel}: StatusCancelled,
}

var allStatuses = []Status{StatusBooked, StatusConfirmed, StatusStarted, StatusCancelled, StatusFinished}

// Transition returns the status reached from s on e, or false when the
// transition is not allowed.
func Transition(s Status, e Event) (Status, bool) {
	next, ok := transitions[transitionKey{s, e}]
	return next, ok
}

// Sources lists the statuses from which e is legal.
func Sources(e Event) []Status {
	var out []Status
	for _, s := range allStatuses {
		if _, ok := transitions[transitionKey{s, e}]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (s Status) IsTerminal() bool { return s == StatusCancelled || s == StatusFinished }

// Modifiable reports whether the booking details (date, duration, meals, guests)
// may still be changed.
func (s Status) Modifiable() bool { return s == StatusBooked }

func (s Status) Valid() bool {
	for _, v := range allStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }

func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown booking status %q", v)
	}
	return s, nil
}
