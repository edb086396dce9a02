package app

import (
	"regexp"
	"strconv"
	"strings"

	"tour_booking/internal/domain"
)

var (
	leadingInt = regexp.MustCompile(`^\s*(\d+)`)
	parenCode  = regexp.MustCompile(`\(([^()]*)\)`)
)

// Quote is the outcome of pricing a selection against a tour.
type Quote struct {
	Duration         string // canonical label
	Days             int
	MealPlan         string // code
	Seats            int
	BasePerPerson    domain.Money
	SupplementPerDay domain.Money
	Total            domain.Money
}

func (q Quote) Breakdown() domain.PriceBreakdown {
	return domain.PriceBreakdown{
		BasePerPerson:    q.BasePerPerson,
		SupplementPerDay: q.SupplementPerDay,
		Days:             q.Days,
		Seats:            q.Seats,
	}
}

// DayCount parses the leading integer of a duration label ("7 days" -> 7).
func DayCount(label string) (int, bool) {
	m := leadingInt.FindStringSubmatch(label)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// MealCode extracts "HB" from "Half Board (HB)"; bare input is uppercased.
func MealCode(sel string) string {
	if m := parenCode.FindStringSubmatch(sel); m != nil {
		if code := strings.TrimSpace(m[1]); code != "" {
			return strings.ToUpper(code)
		}
	}
	return strings.ToUpper(strings.TrimSpace(sel))
}

// ResolveDuration finds the tour's own label whose day count matches the
// requested one. Labels are compared by day count, not by text.
func ResolveDuration(t domain.Tour, requested string) (string, int, error) {
	const op = "pricing.duration"
	days, ok := DayCount(requested)
	if !ok {
		return "", 0, domain.E(domain.KindValidation, op, "duration %q has no day count", requested)
	}
	for _, label := range t.Durations {
		if d, ok := DayCount(label); ok && d == days {
			return label, days, nil
		}
	}
	return "", 0, domain.E(domain.KindValidation, op, "duration %q is not offered by this tour", requested)
}

// ResolveMealPlan returns the offered meal code matching sel.
func ResolveMealPlan(t domain.Tour, sel string) (string, error) {
	const op = "pricing.meal_plan"
	code := MealCode(sel)
	if code == "" {
		return "", domain.E(domain.KindValidation, op, "meal plan is required")
	}
	for _, offered := range t.MealPlans {
		if MealCode(offered) == code {
			return code, nil
		}
	}
	return "", domain.E(domain.KindValidation, op, "meal plan %q is not offered by this tour", code)
}

func mealSupplement(t domain.Tour, code string) domain.Money {
	if v, ok := t.MealSupplements[code]; ok {
		return v
	}
	for k, v := range t.MealSupplements {
		if MealCode(k) == code {
			return v
		}
	}
	return 0
}

// Price computes the total for a selection:
//
//	total = base × seats + supplement × days × seats
func Price(t domain.Tour, duration, mealPlan string, g domain.Guests) (Quote, error) {
	const op = "pricing"
	canonical, days, err := ResolveDuration(t, duration)
	if err != nil {
		return Quote{}, err
	}
	code, err := ResolveMealPlan(t, mealPlan)
	if err != nil {
		return Quote{}, err
	}
	if g.Adults < 0 || g.Children < 0 {
		return Quote{}, domain.E(domain.KindValidation, op, "guest counts cannot be negative")
	}
	seats := g.Seats()
	if seats < 1 {
		return Quote{}, domain.E(domain.KindValidation, op, "at least one guest is required")
	}

	base, ok := t.DurationPrices[canonical]
	if !ok || base <= 0 {
		base = t.PriceFrom
	}
	if base <= 0 {
		return Quote{}, domain.E(domain.KindValidation, op, "no price available for duration %q", canonical)
	}
	supp := mealSupplement(t, code)

	n := domain.Money(seats)
	total := base*n + supp*domain.Money(days)*n
	return Quote{
		Duration:         canonical,
		Days:             days,
		MealPlan:         code,
		Seats:            seats,
		BasePerPerson:    base,
		SupplementPerDay: supp,
		Total:            total,
	}, nil
}
