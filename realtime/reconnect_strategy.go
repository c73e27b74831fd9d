package realtime

import (
	"math"
	"time"
)

// ReconnectDelayStrategy maps a 1-based retry count to the wait before the
// next connection attempt.
type ReconnectDelayStrategy interface {
	ReconnectDelay(attempt int) time.Duration
}

// FixedDelayStrategy waits the same delay before every attempt.
type FixedDelayStrategy struct {
	Delay time.Duration
}

// NewFixedDelayStrategy returns a new FixedDelayStrategy.
func NewFixedDelayStrategy(delay time.Duration) *FixedDelayStrategy {
	if delay < 0 {
		delay = 0
	}
	return &FixedDelayStrategy{Delay: delay}
}

// ReconnectDelay returns the fixed delay.
func (strategy *FixedDelayStrategy) ReconnectDelay(attempt int) time.Duration {
	if strategy == nil {
		return 0
	}
	return strategy.Delay
}

// ExponentialDelayStrategy waits BaseDelay * Factor^attempt, capped at
// MaxDelay when MaxDelay is positive.
type ExponentialDelayStrategy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Factor    float64
}

// NewExponentialDelayStrategy returns a new ExponentialDelayStrategy.
func NewExponentialDelayStrategy(baseDelay time.Duration, maxDelay time.Duration, factor float64) *ExponentialDelayStrategy {
	if baseDelay < 0 {
		baseDelay = 0
	}
	if maxDelay < 0 {
		maxDelay = 0
	}
	if factor < 1 {
		factor = 2
	}
	return &ExponentialDelayStrategy{
		BaseDelay: baseDelay,
		MaxDelay:  maxDelay,
		Factor:    factor,
	}
}

// DefaultReconnectStrategy waits 2^attempt * 100ms: 200ms, 400ms, 800ms, ...
func DefaultReconnectStrategy() *ExponentialDelayStrategy {
	return NewExponentialDelayStrategy(100*time.Millisecond, 0, 2)
}

// ReconnectDelay returns the delay before attempt.
func (strategy *ExponentialDelayStrategy) ReconnectDelay(attempt int) time.Duration {
	if strategy == nil || strategy.BaseDelay <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}

	delayFloat := float64(strategy.BaseDelay) * math.Pow(strategy.Factor, float64(attempt))
	if strategy.MaxDelay > 0 && delayFloat > float64(strategy.MaxDelay) {
		delayFloat = float64(strategy.MaxDelay)
	}
	if delayFloat > float64(math.MaxInt64) {
		delayFloat = float64(math.MaxInt64)
	}
	return time.Duration(delayFloat)
}
