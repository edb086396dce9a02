package shared

import (
	"encoding/json"
	"fmt"
	"os"

	"tour_booking/internal/domain"
)

type tourSeed struct {
	ID                   string                  `json:"id"`
	Name                 string                  `json:"name"`
	AgentEmail           string                  `json:"agent_email"`
	Durations            []string                `json:"durations"`
	MealPlans            []string                `json:"meal_plans"`
	DurationPrices       map[string]domain.Money `json:"duration_prices"`
	PriceFrom            domain.Money            `json:"price_from"`
	MealSupplements      map[string]domain.Money `json:"meal_supplements"`
	StartDates           []string                `json:"start_dates"`
	FreeCancellationDays int                     `json:"free_cancellation_days"`
	Capacity             int                     `json:"capacity"`
}

// LoadTours reads a JSON array of tours. Ratings always start empty.
func LoadTours(path string) ([]domain.Tour, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tours seed: %w", err)
	}
	var seeds []tourSeed
	if err := json.Unmarshal(raw, &seeds); err != nil {
		return nil, fmt.Errorf("decode tours seed: %w", err)
	}

	tours := make([]domain.Tour, 0, len(seeds))
	for i, s := range seeds {
		if s.ID == "" {
			return nil, fmt.Errorf("tours seed entry %d: missing id", i)
		}
		if s.Capacity < 0 {
			return nil, fmt.Errorf("tour %s: negative capacity", s.ID)
		}
		t := domain.Tour{
			ID:                   s.ID,
			Name:                 s.Name,
			AgentEmail:           s.AgentEmail,
			Durations:            s.Durations,
			MealPlans:            s.MealPlans,
			DurationPrices:       s.DurationPrices,
			PriceFrom:            s.PriceFrom,
			MealSupplements:      s.MealSupplements,
			FreeCancellationDays: s.FreeCancellationDays,
			AvailableCapacity:    s.Capacity,
		}
		for _, d := range s.StartDates {
			day, err := domain.ParseDate(d)
			if err != nil {
				return nil, fmt.Errorf("tour %s: start date %q: %w", s.ID, d, err)
			}
			t.StartDates = append(t.StartDates, day)
		}
		tours = append(tours, t)
	}
	return tours, nil
}
