package quota

import "time"

const (
	minuteLayout = "2006-01-02 15:04"
	dayLayout    = "2006-01-02"
)

// MinuteWindow is the rate-limit window key for t.
func MinuteWindow(t time.Time) string { return t.Format(minuteLayout) }

// DayWindow is the media-limit window key for t.
func DayWindow(t time.Time) string { return t.Format(dayLayout) }
