package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a human duration string ("30s", "2m") from a
// config field. Empty strings yield zero with ok=false so callers can apply
// their own defaults.
func ParseDurationField(raw, field string) (time.Duration, bool, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, false, fmt.Errorf("invalid %s %q: must not be negative", field, raw)
	}
	return d, true, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for empty or
// invalid values. Invalid values are reported through the returned error but
// the default is still usable.
func ParseDurationOrDefault(raw, field string, def time.Duration) (time.Duration, error) {
	d, ok, err := ParseDurationField(raw, field)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return d, nil
}
