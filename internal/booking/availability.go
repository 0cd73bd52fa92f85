package booking

import (
	"fmt"
	"time"
)

// Overlaps reports whether two half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Adjacent intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// ValidateInterval rejects inverted or past-dated windows for new bookings.
func ValidateInterval(startAt, endAt, now time.Time) error {
	if !startAt.Before(endAt) {
		return ErrInvalidInterval
	}
	if startAt.Before(now) {
		return ErrPastBooking
	}
	return nil
}

// FitsTemplate reports whether the window fits the court's weekly operating
// template. Exposed for stores that load slots themselves.
func FitsTemplate(slots []TimeSlot, startAt, endAt time.Time) bool {
	return withinTemplate(slots, startAt, endAt)
}

// blockedBy reports whether the requested window intersects any blocked
// availability record.
func blockedBy(blocks []BlockedWindow, startAt, endAt time.Time) bool {
	for _, b := range blocks {
		if Overlaps(startAt, endAt, b.StartAt, b.EndAt) {
			return true
		}
	}
	return false
}

// withinTemplate reports whether the window fits the court's recurring
// weekly operating hours. No slots means always open. The window must fall
// on a single UTC day and inside one slot for that weekday.
func withinTemplate(slots []TimeSlot, startAt, endAt time.Time) bool {
	if len(slots) == 0 {
		return true
	}
	start := startAt.UTC()
	end := endAt.UTC()

	sameDay := start.Year() == end.Year() && start.YearDay() == end.YearDay()
	endMin := minutesOfDay(end)
	// An interval ending exactly at midnight of the next day still belongs
	// to the starting day.
	if !sameDay {
		next := start.AddDate(0, 0, 1)
		if end.Year() == next.Year() && end.YearDay() == next.YearDay() && endMin == 0 {
			endMin = 24 * 60
		} else {
			return false
		}
	}
	startMin := minutesOfDay(start)

	for _, s := range slots {
		if s.DayOfWeek != start.Weekday() {
			continue
		}
		slotStart, err := parseClock(s.Start)
		if err != nil {
			continue
		}
		slotEnd, err := parseClock(s.End)
		if err != nil {
			continue
		}
		if startMin >= slotStart && endMin <= slotEnd {
			return true
		}
	}
	return false
}

// minutesOfDay converts a UTC instant to minutes since midnight.
func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// parseClock parses "15:04" into minutes since midnight.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	return h*60 + m, nil
}
