package app

import (
	"time"

	"vaxbot/internal/config"
	"vaxbot/internal/notifier"
	"vaxbot/internal/reminder"
	"vaxbot/internal/scheduler"
	"vaxbot/internal/store"
)

func mapStoreConfig(cfg *config.Config) (store.Config, error) {
	busy, err := config.ParseDurationOrDefault(cfg.Storage.BusyTimeout, "storage.busy_timeout", 5*time.Second)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	timeout, err := config.ParseDurationOrDefault(cfg.Scheduler.DefaultTimeout, "scheduler.default_timeout", 30*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:        cfg.Scheduler.Enabled,
		Workers:        cfg.Scheduler.Workers,
		DefaultTimeout: timeout,
		Timezone:       cfg.Scheduler.Timezone,
		RetryMax:       cfg.Scheduler.RetryMax,
	}, nil
}

// mapNotifierConfig parses the duration strings; an omitted notifier section
// means enabled with the service defaults.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	if cfg.Notifier == nil {
		return notifier.Config{Enabled: true}, nil
	}
	nc := cfg.Notifier

	retryBase, err := config.ParseDurationOrDefault(nc.RetryBase, "notifier.retry_base", 0)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationOrDefault(nc.RetryMaxDelay, "notifier.retry_max_delay", 0)
	if err != nil {
		return notifier.Config{}, err
	}
	dedupWindow, err := config.ParseDurationOrDefault(nc.DedupWindow, "notifier.dedup_window", 0)
	if err != nil {
		return notifier.Config{}, err
	}

	return notifier.Config{
		Enabled:         nc.Enabled,
		Workers:         nc.Workers,
		QueueSize:       nc.QueueSize,
		RatePerSec:      nc.RatePerSec,
		RetryMax:        nc.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMaxDelay,
		DedupWindow:     dedupWindow,
		DedupMaxEntries: nc.DedupMaxEntries,
		PersistDedup:    nc.PersistDedup,
	}, nil
}

func mapReminderDefaults(cfg *config.Config) reminder.Defaults {
	hour, minute := cfg.Reminders.PreferredTime()
	return reminder.Defaults{
		LeadDays: cfg.Reminders.LeadDays(),
		Hour:     hour,
		Minute:   minute,
	}
}
