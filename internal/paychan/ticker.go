package paychan

import "time"

// defaultClaimInterval guards against a zero-valued Settings.ClaimInterval,
// which would otherwise panic time.NewTicker.
const defaultClaimInterval = 10 * time.Minute

func newTicker(interval time.Duration) *time.Ticker {
	if interval <= 0 {
		interval = defaultClaimInterval
	}
	return time.NewTicker(interval)
}
