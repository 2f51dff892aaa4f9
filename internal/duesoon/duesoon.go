// Package duesoon classifies a user's vaccines by urgency for the digest
// view: overdue, due within the week, or later, plus a single next-up pick.
package duesoon

import (
	"time"

	"vaxbot/internal/reminder"
	"vaxbot/internal/store"
)

// Bucket is an urgency class.
type Bucket int

const (
	Overdue     Bucket = iota // due date already passed
	DueThisWeek               // due within the next 7 days, today included
	Later                     // due after this week
)

// dueThisWeekDays is the inclusive upper bound of the DueThisWeek bucket.
const dueThisWeekDays = 7

// Item is one vaccine with its computed urgency.
type Item struct {
	Vaccine      store.VaccineWithPet
	DaysUntilDue int
	Bucket       Bucket
}

// Summary is the aggregated view rendered into the digest message.
// Vaccines without a due date are not part of any bucket.
type Summary struct {
	Overdue     []Item
	DueThisWeek []Item
	Later       []Item

	// NextUp is the soonest non-overdue vaccine, or nil when nothing is
	// pending. Overdue entries never win next-up; they are already late.
	NextUp *Item
}

// Total counts classified vaccines across all buckets.
func (s Summary) Total() int {
	return len(s.Overdue) + len(s.DueThisWeek) + len(s.Later)
}

// Classify returns the urgency bucket for a days-until-due value.
func Classify(daysUntilDue int) Bucket {
	switch {
	case daysUntilDue < 0:
		return Overdue
	case daysUntilDue <= dueThisWeekDays:
		return DueThisWeek
	default:
		return Later
	}
}

// Build aggregates vaccines into the digest summary relative to today.
// Input order is preserved within each bucket; callers pass store output
// which is already sorted soonest first.
func Build(vaccines []store.VaccineWithPet, today time.Time) Summary {
	var sum Summary
	for _, v := range vaccines {
		if v.DueAt == nil {
			continue
		}
		days := reminder.DaysUntil(*v.DueAt, today)
		item := Item{Vaccine: v, DaysUntilDue: days, Bucket: Classify(days)}
		switch item.Bucket {
		case Overdue:
			sum.Overdue = append(sum.Overdue, item)
		case DueThisWeek:
			sum.DueThisWeek = append(sum.DueThisWeek, item)
		case Later:
			sum.Later = append(sum.Later, item)
		}
		if days >= 0 && (sum.NextUp == nil || days < sum.NextUp.DaysUntilDue) {
			next := item
			sum.NextUp = &next
		}
	}
	return sum
}
