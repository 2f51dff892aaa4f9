package reminders

import (
	"reflect"
	"testing"
)

func TestToggleDay(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		days []int
		day  int
		want []int
	}{
		{name: "add to empty", days: nil, day: 3, want: []int{3}},
		{name: "add keeps descending", days: []int{7, 0}, day: 3, want: []int{7, 3, 0}},
		{name: "remove existing", days: []int{7, 3, 0}, day: 3, want: []int{7, 0}},
		{name: "remove last", days: []int{0}, day: 0, want: []int{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := toggleDay(tt.days, tt.day)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("toggleDay(%v, %d) = %v, want %v", tt.days, tt.day, got, tt.want)
			}
		})
	}
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()

	h, m, err := parseHHMM(" 08:30 ")
	if err != nil {
		t.Fatalf("parseHHMM error: %v", err)
	}
	if h != 8 || m != 30 {
		t.Fatalf("unexpected result: %d:%d", h, m)
	}

	for _, bad := range []string{"8", "24:00", "12:60", "ab:cd"} {
		if _, _, err := parseHHMM(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestDescribeLeadDays(t *testing.T) {
	t.Parallel()

	if got := describeLeadDays(nil); got != "none (reminders off)" {
		t.Fatalf("describeLeadDays(nil) = %q", got)
	}
	if got := describeLeadDays([]int{0, 1, 7}); got != "7 days, 1 day, due day" {
		t.Fatalf("describeLeadDays = %q", got)
	}
}
