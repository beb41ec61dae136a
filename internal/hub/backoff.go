package hub

import (
	"math"
	"math/rand"
	"time"
)

// ReconnectConfig governs the transport-level reconnect loop that runs
// after an established link drops. This is distinct from the session
// manager's application-level retry policy, which guards failures before
// a session is ever established.
type ReconnectConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
	DialTimeout  time.Duration
}

// DefaultReconnectConfig returns the reconnect settings used in production.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxAttempts:  6,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		DialTimeout:  10 * time.Second,
	}
}

// nextBackoffDelay returns the reconnect delay for attempt N (1-based).
func nextBackoffDelay(cfg ReconnectConfig, attempt int) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		delay *= 0.5 + rand.Float64()
	}
	return time.Duration(delay)
}
