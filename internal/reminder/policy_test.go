package reminder

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextDueDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		from   time.Time
		months int
		want   time.Time
	}{
		{"plain three months", date(2024, time.January, 15), 3, date(2024, time.April, 15)},
		{"clamp jan31 plus one", date(2024, time.January, 31), 1, date(2024, time.February, 29)},
		{"clamp jan31 non leap", date(2023, time.January, 31), 1, date(2023, time.February, 28)},
		{"clamp may31 plus one", date(2024, time.May, 31), 1, date(2024, time.June, 30)},
		{"year rollover", date(2024, time.November, 15), 3, date(2025, time.February, 15)},
		{"twelve months", date(2024, time.February, 29), 12, date(2025, time.February, 28)},
		{"zero months", date(2024, time.June, 10), 0, date(2024, time.June, 10)},
		{"many months", date(2024, time.January, 31), 25, date(2026, time.February, 28)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NextDueDate(tt.from, tt.months)
			if !got.Equal(tt.want) {
				t.Fatalf("NextDueDate(%v, %d) = %v, want %v", tt.from, tt.months, got, tt.want)
			}
		})
	}
}

func TestInstants(t *testing.T) {
	t.Parallel()

	due := date(2024, time.April, 15)
	now := date(2024, time.April, 1)

	got := Instants(due, []int{7, 3, 1, 0}, 9, 0, now, time.UTC)
	want := []Instant{
		{LeadDays: 7, At: time.Date(2024, time.April, 8, 9, 0, 0, 0, time.UTC)},
		{LeadDays: 3, At: time.Date(2024, time.April, 12, 9, 0, 0, 0, time.UTC)},
		{LeadDays: 1, At: time.Date(2024, time.April, 14, 9, 0, 0, 0, time.UTC)},
		{LeadDays: 0, At: time.Date(2024, time.April, 15, 9, 0, 0, 0, time.UTC)},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d instants, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].LeadDays != want[i].LeadDays || !got[i].At.Equal(want[i].At) {
			t.Fatalf("instant[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestInstantsDropsPast(t *testing.T) {
	t.Parallel()

	due := date(2024, time.April, 15)
	// Noon on the 12th: the 7-day instant (Apr 8) and the 3-day instant
	// (Apr 12 09:00) are already gone.
	now := time.Date(2024, time.April, 12, 12, 0, 0, 0, time.UTC)

	got := Instants(due, []int{7, 3, 1, 0}, 9, 0, now, time.UTC)
	if len(got) != 2 {
		t.Fatalf("got %d instants, want 2: %v", len(got), got)
	}
	if got[0].LeadDays != 1 || got[1].LeadDays != 0 {
		t.Fatalf("unexpected lead days: %v", got)
	}
}

func TestInstantsExactlyNowIsDropped(t *testing.T) {
	t.Parallel()

	due := date(2024, time.April, 15)
	now := time.Date(2024, time.April, 15, 9, 0, 0, 0, time.UTC)

	got := Instants(due, []int{0}, 9, 0, now, time.UTC)
	if len(got) != 0 {
		t.Fatalf("instant equal to now should be dropped, got %v", got)
	}
}

func TestDaysUntil(t *testing.T) {
	t.Parallel()

	today := date(2024, time.April, 10)
	tests := []struct {
		due  time.Time
		want int
	}{
		{date(2024, time.April, 10), 0},
		{date(2024, time.April, 11), 1},
		{date(2024, time.April, 17), 7},
		{date(2024, time.April, 5), -5},
		{date(2024, time.May, 1), 21},
	}
	for _, tt := range tests {
		if got := DaysUntil(tt.due, today); got != tt.want {
			t.Fatalf("DaysUntil(%v) = %d, want %d", tt.due, got, tt.want)
		}
	}
}

func TestDaysUntilIgnoresTimeOfDay(t *testing.T) {
	t.Parallel()

	due := date(2024, time.April, 11)
	lateToday := time.Date(2024, time.April, 10, 23, 50, 0, 0, time.UTC)
	if got := DaysUntil(due, lateToday); got != 1 {
		t.Fatalf("DaysUntil late in the day = %d, want 1", got)
	}
}

func TestName(t *testing.T) {
	t.Parallel()

	if got := Name(12, 7); got != "vaccine:12:lead:7" {
		t.Fatalf("Name = %q", got)
	}
	if Name(12, 7) != Name(12, 7) {
		t.Fatal("Name must be deterministic")
	}
	if Name(12, 7) == Name(12, 3) || Name(12, 7) == Name(13, 7) {
		t.Fatal("Name must differ per vaccine/lead pair")
	}
}

func TestDueSoonPhrase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		days int
		want string
	}{
		{0, "due today"},
		{1, "due tomorrow"},
		{5, "due in 5 days"},
		{-1, "overdue by 1 day"},
		{-3, "overdue by 3 days"},
	}
	for _, tt := range tests {
		if got := dueSoonPhrase(tt.days); got != tt.want {
			t.Fatalf("dueSoonPhrase(%d) = %q, want %q", tt.days, got, tt.want)
		}
	}
}
