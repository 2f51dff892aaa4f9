package config

// Config is the whole on-disk configuration.
//
// JSON is the canonical format; YAML files are accepted and coerced through
// the same strict decoder (unknown fields are rejected in both).
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  *NotifierConfig `json:"notifier,omitempty"`
	Reminders RemindersConfig `json:"reminders"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`

	// PollTimeout is a Go duration string (default "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    FileLogConfig `json:"file"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig locates the SQLite database holding pets, vaccines,
// per-user reminder settings and registered alarms.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// SchedulerConfig controls the trigger service (cron entries + one-shot
// reminder timers) and its execution pool.
type SchedulerConfig struct {
	Enabled        bool   `json:"enabled"`
	Workers        int    `json:"workers,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"` // Go duration string
	Timezone       string `json:"timezone,omitempty"`        // IANA TZ, e.g. "Europe/Istanbul"
	RetryMax       int    `json:"retry_max,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// If the whole section is omitted, the notifier defaults to enabled=true.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
}

// RemindersConfig holds installation-wide reminder defaults. Per-user
// selections (lead days, preferred time) live in storage and override these.
type RemindersConfig struct {
	// DefaultLeadDays is the initial lead-day selection for new users.
	// Values must come from the supported set {0, 1, 3, 7, 14}.
	DefaultLeadDays []int `json:"default_lead_days,omitempty"`

	// DefaultHour/DefaultMinute is the initial preferred notification
	// time-of-day for new users (default 09:00).
	DefaultHour   *int `json:"default_hour,omitempty"`
	DefaultMinute *int `json:"default_minute,omitempty"`

	// DigestCron refreshes every user's due-soon digest message.
	// Default "0 8 * * *".
	DigestCron string `json:"digest_cron,omitempty"`
}
