package checkin

import "slices"

// Option is one selectable value of a fixed option set.
type Option struct {
	Value string
	Label string
	Emoji string
}

var (
	MoodOptions = []Option{
		{Value: "excited", Label: "兴奋", Emoji: "😆"},
		{Value: "happy", Label: "开心", Emoji: "😊"},
		{Value: "peaceful", Label: "平静", Emoji: "😌"},
		{Value: "thoughtful", Label: "沉思", Emoji: "🤔"},
		{Value: "amazed", Label: "震撼", Emoji: "😲"},
	}

	WeatherOptions = []Option{
		{Value: "sunny", Label: "晴朗", Emoji: "☀️"},
		{Value: "cloudy", Label: "多云", Emoji: "☁️"},
		{Value: "rainy", Label: "下雨", Emoji: "🌧️"},
		{Value: "snowy", Label: "下雪", Emoji: "❄️"},
		{Value: "windy", Label: "有风", Emoji: "💨"},
	}

	ratingLabels = []string{"", "很差", "一般", "不错", "很好", "极佳"}
)

// IsMood reports whether v is one of MoodOptions.
func IsMood(v string) bool { return hasValue(MoodOptions, v) }

// IsWeather reports whether v is one of WeatherOptions.
func IsWeather(v string) bool { return hasValue(WeatherOptions, v) }

// MoodLabel returns the display label of a mood value, or "" if unknown.
func MoodLabel(v string) string { return label(MoodOptions, v) }

// WeatherLabel returns the display label of a weather value, or "" if unknown.
func WeatherLabel(v string) string { return label(WeatherOptions, v) }

// RatingLabel returns the display label of a 1–5 rating, or "" otherwise.
func RatingLabel(r int) string {
	if r < 1 || r >= len(ratingLabels) {
		return ""
	}
	return ratingLabels[r]
}

func hasValue(opts []Option, v string) bool {
	return slices.ContainsFunc(opts, func(o Option) bool { return o.Value == v })
}

func label(opts []Option, v string) string {
	i := slices.IndexFunc(opts, func(o Option) bool { return o.Value == v })
	if i < 0 {
		return ""
	}
	return opts[i].Label
}
