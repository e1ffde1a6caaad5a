package operation

import (
	"fmt"
	"math"
	"time"
)

const (
	// DefaultTimeoutSeconds is used when Settings.TimeoutSeconds is zero.
	DefaultTimeoutSeconds = 300
	// MinTimeoutSeconds is the smallest accepted timeout. There is no maximum.
	MinTimeoutSeconds = 30

	// DefaultPollingIntervalSeconds is used when Settings.PollingIntervalSeconds is zero.
	DefaultPollingIntervalSeconds = 15
	MinPollingIntervalSeconds     = 1
	MaxPollingIntervalSeconds     = 30
)

// Settings controls the timing of a supervised session.
// A zero field means "use the default".
type Settings struct {
	TimeoutSeconds         int `yaml:"timeout_seconds" toml:"timeout_seconds"`
	PollingIntervalSeconds int `yaml:"polling_interval_seconds" toml:"polling_interval_seconds"`
}

// DefaultSettings returns Settings with every field set to its default.
func DefaultSettings() Settings {
	return Settings{
		TimeoutSeconds:         DefaultTimeoutSeconds,
		PollingIntervalSeconds: DefaultPollingIntervalSeconds,
	}
}

// SetDefaults fills zero fields with their defaults.
func (s *Settings) SetDefaults() {
	if s.TimeoutSeconds == 0 {
		s.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if s.PollingIntervalSeconds == 0 {
		s.PollingIntervalSeconds = DefaultPollingIntervalSeconds
	}
}

// Merge returns s with zero fields taken from fallback.
func (s Settings) Merge(fallback Settings) Settings {
	if s.TimeoutSeconds == 0 {
		s.TimeoutSeconds = fallback.TimeoutSeconds
	}
	if s.PollingIntervalSeconds == 0 {
		s.PollingIntervalSeconds = fallback.PollingIntervalSeconds
	}
	return s
}

// Validate checks the ranges. Call SetDefaults first if zero should mean default.
func (s Settings) Validate() error {
	if s.PollingIntervalSeconds < MinPollingIntervalSeconds || s.PollingIntervalSeconds > MaxPollingIntervalSeconds {
		return fmt.Errorf("%w: %d not in [%d, %d] seconds", ErrInvalidPollingInterval,
			s.PollingIntervalSeconds, MinPollingIntervalSeconds, MaxPollingIntervalSeconds)
	}
	if s.TimeoutSeconds < MinTimeoutSeconds {
		return fmt.Errorf("%w: %d is below the minimum of %d seconds", ErrInvalidTimeout,
			s.TimeoutSeconds, MinTimeoutSeconds)
	}
	return nil
}

// maxTimeoutSeconds is the largest timeout representable as a time.Duration.
const maxTimeoutSeconds = math.MaxInt64 / int64(time.Second)

// Timeout returns the timeout as a duration. Timeouts too large for a
// time.Duration saturate at the maximum duration.
func (s Settings) Timeout() time.Duration {
	if int64(s.TimeoutSeconds) > maxTimeoutSeconds {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// PollingInterval returns the polling interval as a duration.
func (s Settings) PollingInterval() time.Duration {
	return time.Duration(s.PollingIntervalSeconds) * time.Second
}
