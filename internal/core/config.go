package core

import "time"

// SchedulerConfig controls admission, retry, and cooldown behavior.
// Immutable once handed to a scheduler.
type SchedulerConfig struct {
	// MaxConcurrent caps simultaneously dispatched requests.
	MaxConcurrent int `mapstructure:"max_concurrent"`

	// CooldownThresholdPercent triggers a cooldown once the most restrictive
	// snapshot's remaining budget drops to this percentage of its limit.
	CooldownThresholdPercent float64 `mapstructure:"cooldown_threshold_percent"`

	// MinCooldown is the operator-configured cooldown floor.
	MinCooldown time.Duration `mapstructure:"min_cooldown"`

	// BaseRetryDelay seeds the exponential backoff between retry attempts.
	BaseRetryDelay time.Duration `mapstructure:"base_retry_delay"`

	// MaxRetries bounds retry attempts per request.
	MaxRetries int `mapstructure:"max_retries"`

	// RequestTimeout bounds a single Transport dispatch.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// TickInterval is the admission tick period.
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// DefaultSchedulerConfig returns the documented defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrent:            3,
		CooldownThresholdPercent: 10,
		MinCooldown:              60 * time.Second,
		BaseRetryDelay:           2 * time.Second,
		MaxRetries:               3,
		RequestTimeout:           30 * time.Second,
		TickInterval:             250 * time.Millisecond,
	}
}

// Normalize fills zero or negative fields with defaults.
func (c SchedulerConfig) Normalize() SchedulerConfig {
	def := DefaultSchedulerConfig()
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = def.MaxConcurrent
	}
	if c.CooldownThresholdPercent <= 0 {
		c.CooldownThresholdPercent = def.CooldownThresholdPercent
	}
	if c.MinCooldown <= 0 {
		c.MinCooldown = def.MinCooldown
	}
	if c.BaseRetryDelay <= 0 {
		c.BaseRetryDelay = def.BaseRetryDelay
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	return c
}
