package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SupportedLeadDays is the full set of lead-day offsets a reminder may use.
var SupportedLeadDays = []int{0, 1, 3, 7, 14}

// DefaultLeadDays is applied when the config and the user select nothing.
var DefaultLeadDays = []int{0, 1, 3, 7}

const (
	DefaultReminderHour   = 9
	DefaultReminderMinute = 0
)

func IsSupportedLeadDay(d int) bool {
	for _, s := range SupportedLeadDays {
		if s == d {
			return true
		}
	}
	return false
}

// Validate checks structural invariants that don't require I/O. Services
// validate their own sections further on Apply.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if _, _, err := ParseDurationField(c.Telegram.PollTimeout, "telegram.poll_timeout"); err != nil {
		return err
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if _, _, err := ParseDurationField(c.Storage.BusyTimeout, "storage.busy_timeout"); err != nil {
		return err
	}
	if _, _, err := ParseDurationField(c.Scheduler.DefaultTimeout, "scheduler.default_timeout"); err != nil {
		return err
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("invalid scheduler.timezone %q: %w", tz, err)
		}
	}
	if n := c.Notifier; n != nil {
		for _, f := range []struct{ raw, name string }{
			{n.RetryBase, "notifier.retry_base"},
			{n.RetryMaxDelay, "notifier.retry_max_delay"},
			{n.DedupWindow, "notifier.dedup_window"},
		} {
			if _, _, err := ParseDurationField(f.raw, f.name); err != nil {
				return err
			}
		}
	}
	return c.Reminders.validate()
}

func (r *RemindersConfig) validate() error {
	seen := make(map[int]bool, len(r.DefaultLeadDays))
	for _, d := range r.DefaultLeadDays {
		if !IsSupportedLeadDay(d) {
			return fmt.Errorf("reminders.default_lead_days: %d is not in %v", d, SupportedLeadDays)
		}
		if seen[d] {
			return fmt.Errorf("reminders.default_lead_days: duplicate %d", d)
		}
		seen[d] = true
	}
	if h := r.DefaultHour; h != nil && (*h < 0 || *h > 23) {
		return fmt.Errorf("reminders.default_hour: %d out of range 0..23", *h)
	}
	if m := r.DefaultMinute; m != nil && (*m < 0 || *m > 59) {
		return fmt.Errorf("reminders.default_minute: %d out of range 0..59", *m)
	}
	return nil
}

// LeadDays returns the configured default lead days, sorted descending
// (farthest reminder first), falling back to DefaultLeadDays.
func (r *RemindersConfig) LeadDays() []int {
	src := r.DefaultLeadDays
	if len(src) == 0 {
		src = DefaultLeadDays
	}
	out := make([]int, len(src))
	copy(out, src)
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// PreferredTime returns the default notification time-of-day.
func (r *RemindersConfig) PreferredTime() (hour, minute int) {
	hour, minute = DefaultReminderHour, DefaultReminderMinute
	if r.DefaultHour != nil {
		hour = *r.DefaultHour
	}
	if r.DefaultMinute != nil {
		minute = *r.DefaultMinute
	}
	return hour, minute
}
