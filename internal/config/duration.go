package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a Go duration string. Empty means 0.
// path names the field in error messages.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def substituted for 0.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// PollInterval returns scheduler.poll_interval, defaulting to 10s.
func (c *Config) PollInterval() (time.Duration, error) {
	d, err := ParseDurationOrDefault("scheduler.poll_interval", c.Scheduler.PollInterval, 10*time.Second)
	if err != nil {
		return 0, err
	}
	if d < 100*time.Millisecond {
		return 0, fmt.Errorf("scheduler.poll_interval: %s is below 100ms", d)
	}
	return d, nil
}
