package cron

import (
	"time"
)

// Spec holds the five raw cron fields of one panel schedule. Missing fields
// are represented as "*".
type Spec struct {
	Minute     string `json:"minute"`
	Hour       string `json:"hour"`
	DayOfMonth string `json:"day_of_month"`
	Month      string `json:"month"`
	DayOfWeek  string `json:"day_of_week"`
}

var monthNames = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// Sunday is 0, matching both the panel dialect and time.Weekday.
var weekdayNames = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

// timeSlotCap bounds the hour x minute Cartesian product for a single day.
// Schedules firing more often than this are almost certainly maintenance
// jobs, not calendar-worthy events; only their first slot is kept.
const timeSlotCap = 8

// Expression joins the five fields into a display string.
func (s Spec) Expression() string {
	return orStar(s.Minute) + " " + orStar(s.Hour) + " " + orStar(s.DayOfMonth) + " " + orStar(s.Month) + " " + orStar(s.DayOfWeek)
}

func orStar(field string) string {
	if field == "" {
		return "*"
	}
	return field
}

// Occurrences expands the spec into concrete UTC instants within
// [windowStart, windowEnd). The walk is day-by-day: a day is admitted by the
// month field, then by the cron day rule: if both day-of-month and
// day-of-week are restricted, a day matches when either does (the traditional
// inclusive-or); a single restricted field decides alone; two wildcards admit
// every day. Each admitted day yields the time slots from buildTimeSlots.
//
// The day-of-month domain is recomputed per month so "31" simply never fires
// in April rather than spilling over.
func (s Spec) Occurrences(windowStart, windowEnd time.Time) []time.Time {
	monthField := ParseField(s.Month, 1, 12, monthNames, nil, false)
	dowField := ParseField(s.DayOfWeek, 0, 6, weekdayNames, normalizeWeekday, true)
	hourField := ParseField(s.Hour, 0, 23, nil, nil, false)
	minuteField := ParseField(s.Minute, 0, 59, nil, nil, false)
	slots := buildTimeSlots(hourField, minuteField)

	var out []time.Time
	windowStart = windowStart.UTC()
	windowEnd = windowEnd.UTC()
	cursor := time.Date(windowStart.Year(), windowStart.Month(), windowStart.Day(), 0, 0, 0, 0, time.UTC)
	endDate := time.Date(windowEnd.Year(), windowEnd.Month(), windowEnd.Day(), 0, 0, 0, 0, time.UTC)

	for cursor.Before(endDate) {
		if !monthField.Contains(int(cursor.Month())) {
			cursor = cursor.AddDate(0, 0, 1)
			continue
		}
		lastDay := daysIn(cursor.Year(), cursor.Month())
		domField := ParseField(s.DayOfMonth, 1, lastDay, nil, nil, false)

		domMatches := domField.Contains(cursor.Day())
		dowMatches := dowField.Contains(int(cursor.Weekday()))

		var matches bool
		switch {
		case domField.All && dowField.All:
			matches = true
		case domField.All:
			matches = dowMatches
		case dowField.All:
			matches = domMatches
		default:
			matches = domMatches || dowMatches
		}

		if matches {
			for _, slot := range slots {
				occ := time.Date(cursor.Year(), cursor.Month(), cursor.Day(), slot.hour, slot.minute, 0, 0, time.UTC)
				if !occ.Before(windowStart) && occ.Before(windowEnd) {
					out = append(out, occ)
				}
			}
		}
		cursor = cursor.AddDate(0, 0, 1)
	}
	return out
}

func normalizeWeekday(v int) int {
	if v == 7 {
		return 0
	}
	return v
}

type timeSlot struct {
	hour   int
	minute int
}

// buildTimeSlots resolves the hour and minute fields into the per-day firing
// times. Wildcards collapse to a single representative slot; two explicit
// fields produce their Cartesian product, capped to the first combination
// beyond timeSlotCap.
func buildTimeSlots(hourField, minuteField Field) []timeSlot {
	switch {
	case hourField.All && minuteField.All:
		return []timeSlot{{0, 0}}
	case hourField.All && len(minuteField.Values) > 0:
		return []timeSlot{{0, minuteField.Values[0]}}
	case minuteField.All && len(hourField.Values) > 0:
		return []timeSlot{{hourField.Values[0], 0}}
	case hourField.All || minuteField.All:
		// One wildcard, the other matched nothing.
		return []timeSlot{{0, 0}}
	}

	combos := make([]timeSlot, 0, len(hourField.Values)*len(minuteField.Values))
	for _, h := range hourField.Values {
		for _, m := range minuteField.Values {
			combos = append(combos, timeSlot{h, m})
		}
	}
	if len(combos) == 0 {
		return nil
	}
	if len(combos) > timeSlotCap {
		return combos[:1]
	}
	return combos
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
