package domain

import "time"

const DefaultFreeCancellationDays = 10

type Tour struct {
	ID         string
	Name       string
	AgentEmail string

	Durations       []string         // canonical labels, e.g. "7 days"
	MealPlans       []string         // offered meal codes, e.g. "BB", "HB"
	DurationPrices  map[string]Money // canonical label -> base price per person
	PriceFrom       Money            // fallback base price per person
	MealSupplements map[string]Money // meal code -> supplement per person per day
	StartDates      []time.Time      // empty means any future date

	FreeCancellationDays int

	AvailableCapacity int
	Rating            Rating
}

// Rating is the running review aggregate of a tour.
type Rating struct {
	Average float64
	Count   int
}

func (t Tour) CancellationLeadDays() int {
	if t.FreeCancellationDays <= 0 {
		return DefaultFreeCancellationDays
	}
	return t.FreeCancellationDays
}

// OffersStartDate reports whether d is bookable as a start date.
func (t Tour) OffersStartDate(d time.Time) bool {
	if len(t.StartDates) == 0 {
		return true
	}
	for _, s := range t.StartDates {
		if SameDay(s, d) {
			return true
		}
	}
	return false
}

// TourView is the cached read model served to clients.
type TourView struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Durations         []string         `json:"durations"`
	MealPlans         []string         `json:"meal_plans"`
	DurationPrices    map[string]Money `json:"duration_prices,omitempty"`
	PriceFrom         Money            `json:"price_from"`
	MealSupplements   map[string]Money `json:"meal_supplements,omitempty"`
	StartDates        []string         `json:"start_dates,omitempty"`
	AvailableCapacity int              `json:"available_capacity"`
	AverageRating     float64          `json:"average_rating"`
	ReviewCount       int              `json:"review_count"`
}

func (t Tour) View() TourView {
	v := TourView{
		ID:                t.ID,
		Name:              t.Name,
		Durations:         t.Durations,
		MealPlans:         t.MealPlans,
		DurationPrices:    t.DurationPrices,
		PriceFrom:         t.PriceFrom,
		MealSupplements:   t.MealSupplements,
		AvailableCapacity: t.AvailableCapacity,
		AverageRating:     t.Rating.Average,
		ReviewCount:       t.Rating.Count,
	}
	for _, d := range t.StartDates {
		v.StartDates = append(v.StartDates, d.Format(DateLayout))
	}
	return v
}
