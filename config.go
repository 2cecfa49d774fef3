package x402

import (
	"fmt"
	"time"
)

// TimeoutConfig holds per-operation timeouts for facilitator calls.
type TimeoutConfig struct {
	// VerifyTimeout bounds verify calls, which do no blocking I/O beyond the
	// facilitator round-trip.
	VerifyTimeout time.Duration

	// SettleTimeout bounds settle calls. Kept longer because a production
	// facilitator may execute a chain transaction on this path.
	SettleTimeout time.Duration

	// RequestTimeout bounds any other facilitator request (info, health).
	RequestTimeout time.Duration
}

// DefaultTimeouts provides the standard timeout configuration.
var DefaultTimeouts = TimeoutConfig{
	VerifyTimeout:  5 * time.Second,
	SettleTimeout:  60 * time.Second,
	RequestTimeout: 120 * time.Second,
}

// Validate checks that all timeouts are positive.
func (c TimeoutConfig) Validate() error {
	if c.VerifyTimeout <= 0 {
		return fmt.Errorf("verify timeout must be positive, got %v", c.VerifyTimeout)
	}
	if c.SettleTimeout <= 0 {
		return fmt.Errorf("settle timeout must be positive, got %v", c.SettleTimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %v", c.RequestTimeout)
	}
	return nil
}
