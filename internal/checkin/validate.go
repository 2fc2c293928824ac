package checkin

import "strings"

// Validate checks the required fields of d in the fixed order
// rating, mood, weather, feeling and reports the first one missing.
func Validate(d *Draft) error {
	switch {
	case d.Rating <= 0:
		return &ValidationError{Field: FieldRating}
	case d.Mood == "":
		return &ValidationError{Field: FieldMood}
	case d.Weather == "":
		return &ValidationError{Field: FieldWeather}
	case strings.TrimSpace(d.Feeling) == "":
		return &ValidationError{Field: FieldFeeling}
	}
	return nil
}
