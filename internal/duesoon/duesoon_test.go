package duesoon

import (
	"testing"
	"time"

	"vaxbot/internal/store"
)

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func vax(id int64, pet, name string, due *time.Time) store.VaccineWithPet {
	return store.VaccineWithPet{
		Vaccine: store.Vaccine{ID: id, Name: name, DueAt: due},
		PetName: pet,
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		days int
		want Bucket
	}{
		{-10, Overdue},
		{-1, Overdue},
		{0, DueThisWeek},
		{7, DueThisWeek},
		{8, Later},
		{30, Later},
	}
	for _, tt := range tests {
		if got := Classify(tt.days); got != tt.want {
			t.Fatalf("Classify(%d) = %v, want %v", tt.days, got, tt.want)
		}
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	today := time.Date(2024, time.April, 10, 0, 0, 0, 0, time.UTC)
	vaccines := []store.VaccineWithPet{
		vax(1, "Pamuk", "Rabies", datePtr(2024, time.April, 5)),     // overdue
		vax(2, "Pamuk", "FVRCP", datePtr(2024, time.April, 12)),     // this week
		vax(3, "Boncuk", "Rabies", datePtr(2024, time.May, 1)),      // later
		vax(4, "Boncuk", "Bordetella", nil),                         // no due date
		vax(5, "Karabas", "Distemper", datePtr(2024, time.April, 17)), // this week edge
	}

	sum := Build(vaccines, today)

	if len(sum.Overdue) != 1 || sum.Overdue[0].Vaccine.ID != 1 {
		t.Fatalf("overdue = %+v", sum.Overdue)
	}
	if len(sum.DueThisWeek) != 2 {
		t.Fatalf("due this week = %+v", sum.DueThisWeek)
	}
	if len(sum.Later) != 1 || sum.Later[0].Vaccine.ID != 3 {
		t.Fatalf("later = %+v", sum.Later)
	}
	if sum.Total() != 4 {
		t.Fatalf("total = %d, want 4 (no-due-date entries excluded)", sum.Total())
	}

	// Next-up is the soonest non-negative, never the overdue one.
	if sum.NextUp == nil || sum.NextUp.Vaccine.ID != 2 {
		t.Fatalf("next up = %+v, want vaccine 2", sum.NextUp)
	}
	if sum.NextUp.DaysUntilDue != 2 {
		t.Fatalf("next up days = %d, want 2", sum.NextUp.DaysUntilDue)
	}
}

func TestBuildOnlyOverdue(t *testing.T) {
	t.Parallel()

	today := time.Date(2024, time.April, 10, 0, 0, 0, 0, time.UTC)
	sum := Build([]store.VaccineWithPet{
		vax(1, "Pamuk", "Rabies", datePtr(2024, time.March, 1)),
	}, today)

	if sum.NextUp != nil {
		t.Fatalf("next up should be nil when everything is overdue, got %+v", sum.NextUp)
	}
	if len(sum.Overdue) != 1 {
		t.Fatalf("overdue = %+v", sum.Overdue)
	}
}

func TestBuildEmpty(t *testing.T) {
	t.Parallel()

	sum := Build(nil, time.Now())
	if sum.Total() != 0 || sum.NextUp != nil {
		t.Fatalf("empty build should be zero, got %+v", sum)
	}
}

func TestBuildDueTodayWinsNextUp(t *testing.T) {
	t.Parallel()

	today := time.Date(2024, time.April, 10, 0, 0, 0, 0, time.UTC)
	sum := Build([]store.VaccineWithPet{
		vax(1, "Pamuk", "Rabies", datePtr(2024, time.April, 12)),
		vax(2, "Boncuk", "FeLV", datePtr(2024, time.April, 10)),
	}, today)

	if sum.NextUp == nil || sum.NextUp.Vaccine.ID != 2 || sum.NextUp.DaysUntilDue != 0 {
		t.Fatalf("next up = %+v, want vaccine 2 due today", sum.NextUp)
	}
}
