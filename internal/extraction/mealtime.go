package extraction

import (
	"encoding/json"
	"fmt"
)

// MealTime says when a medicine is taken relative to food.
type MealTime string

const (
	BeforeMeal MealTime = "Before Meal"
	AfterMeal  MealTime = "After Meal"
)

// ParseMealTime accepts the display form ("Before Meal") or a compact form
// ("before_meal", "beforemeal"), case-insensitively.
func ParseMealTime(s string) (MealTime, error) {
	switch string(compact(fold(s))) {
	case "beforemeal":
		return BeforeMeal, nil
	case "aftermeal":
		return AfterMeal, nil
	}
	return "", fmt.Errorf("unknown meal time %q", s)
}

// UnmarshalJSON rejects anything outside the two meal times.
func (m *MealTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMealTime(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ClassifyMealTime looks for "before meal", then "after meal" or
// "afternoon", in segment. Anything else is AfterMeal.
func ClassifyMealTime(segment string) MealTime {
	return classifyMealTime(fold(segment))
}

func classifyMealTime(seg []rune) MealTime {
	switch {
	case containsRunes(seg, "before meal"):
		return BeforeMeal
	case containsRunes(seg, "after meal"), containsRunes(seg, "afternoon"):
		// "afternoon" is a loose shortcut and also fires on unrelated
		// mentions of the time of day.
		return AfterMeal
	default:
		return AfterMeal
	}
}

func compact(s []rune) []rune {
	out := s[:0:0]
	for _, r := range s {
		if r == ' ' || r == '_' || r == '-' {
			continue
		}
		out = append(out, r)
	}
	return out
}
