package config

import (
	"reflect"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Token: "123:abc", PollTimeout: "10s"},
		Storage:  StorageConfig{Path: "vaxbot.db"},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.Telegram.Token = " " }, wantErr: true},
		{name: "missing storage path", mutate: func(c *Config) { c.Storage.Path = "" }, wantErr: true},
		{name: "bad poll timeout", mutate: func(c *Config) { c.Telegram.PollTimeout = "soon" }, wantErr: true},
		{name: "negative busy timeout", mutate: func(c *Config) { c.Storage.BusyTimeout = "-1s" }, wantErr: true},
		{name: "bad timezone", mutate: func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "unsupported lead day", mutate: func(c *Config) { c.Reminders.DefaultLeadDays = []int{0, 5} }, wantErr: true},
		{name: "duplicate lead day", mutate: func(c *Config) { c.Reminders.DefaultLeadDays = []int{3, 3} }, wantErr: true},
		{name: "hour out of range", mutate: func(c *Config) { h := 24; c.Reminders.DefaultHour = &h }, wantErr: true},
		{name: "valid reminders", mutate: func(c *Config) {
			h, m := 8, 30
			c.Reminders.DefaultLeadDays = []int{0, 7, 14}
			c.Reminders.DefaultHour = &h
			c.Reminders.DefaultMinute = &m
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRemindersDefaults(t *testing.T) {
	t.Parallel()

	var r RemindersConfig
	if got := r.LeadDays(); !reflect.DeepEqual(got, []int{7, 3, 1, 0}) {
		t.Fatalf("LeadDays() fallback = %v", got)
	}
	if h, m := r.PreferredTime(); h != DefaultReminderHour || m != DefaultReminderMinute {
		t.Fatalf("PreferredTime() fallback = %d:%d", h, m)
	}

	r.DefaultLeadDays = []int{1, 14, 0}
	if got := r.LeadDays(); !reflect.DeepEqual(got, []int{14, 1, 0}) {
		t.Fatalf("LeadDays() = %v, want descending", got)
	}
	hour, minute := 20, 45
	r.DefaultHour, r.DefaultMinute = &hour, &minute
	if h, m := r.PreferredTime(); h != 20 || m != 45 {
		t.Fatalf("PreferredTime() = %d:%d", h, m)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	d, ok, err := ParseDurationField("90s", "test")
	if err != nil || !ok || d != 90*time.Second {
		t.Fatalf("ParseDurationField(90s) = (%v, %v, %v)", d, ok, err)
	}

	if _, ok, err := ParseDurationField("  ", "test"); err != nil || ok {
		t.Fatalf("expected empty field to yield ok=false, got (%v, %v)", ok, err)
	}

	if _, _, err := ParseDurationField("-5m", "test"); err == nil {
		t.Fatal("expected error for negative duration")
	}

	d, err = ParseDurationOrDefault("", "test", 30*time.Second)
	if err != nil || d != 30*time.Second {
		t.Fatalf("ParseDurationOrDefault empty = (%v, %v)", d, err)
	}
}
