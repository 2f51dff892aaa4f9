package reminder

import "time"

// Instant is one concrete reminder fire time, tagged with the lead-day
// offset it was derived from.
type Instant struct {
	LeadDays int
	At       time.Time
}

// NextDueDate advances a date by whole calendar months, clamping to the last
// day of the target month when the source day does not exist there.
// time.Time.AddDate would normalize Jan 31 + 1 month into early March, which
// is never what a vaccination schedule means.
func NextDueDate(administered time.Time, months int) time.Time {
	y, m, d := administered.Date()
	loc := administered.Location()

	total := int(m) - 1 + months
	ty := y + total/12
	tm := time.Month(total%12 + 1)
	if total < 0 {
		// Go's integer division truncates toward zero; fix up for negatives.
		ty = y + (total-11)/12
		tm = time.Month((total%12+12)%12 + 1)
	}

	if last := daysIn(ty, tm); d > last {
		d = last
	}
	return time.Date(ty, tm, d, 0, 0, 0, 0, loc)
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Instants derives the reminder fire times for a due date: one per lead day,
// at hour:minute in loc, skipping anything not strictly in the future.
// The result is ordered the way leadDays is ordered.
func Instants(due time.Time, leadDays []int, hour, minute int, now time.Time, loc *time.Location) []Instant {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := due.Date()
	out := make([]Instant, 0, len(leadDays))
	for _, lead := range leadDays {
		if lead < 0 {
			continue
		}
		at := time.Date(y, m, d-lead, hour, minute, 0, 0, loc)
		if !at.After(now) {
			continue
		}
		out = append(out, Instant{LeadDays: lead, At: at})
	}
	return out
}

// DaysUntil returns the calendar-day distance from today to the due date,
// ignoring time of day. Negative means overdue.
func DaysUntil(due, today time.Time) int {
	dy, dm, dd := due.Date()
	ty, tm, td := today.Date()
	d0 := time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC)
	t0 := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(d0.Sub(t0) / (24 * time.Hour))
}

// PostponeDays is the fixed shift applied when a reminder's postpone action
// is taken.
const PostponeDays = 7
