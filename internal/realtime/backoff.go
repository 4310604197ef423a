package realtime

import (
	"math"
	"time"
)

// reconnectDelay calculates the wait before reconnect attempt n (1-based)
// using exponential backoff with factor 1.5, capped. Millisecond
// truncation keeps the schedule deterministic.
func reconnectDelay(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	ms := int64(float64(base.Milliseconds()) * math.Pow(1.5, float64(attempt-1)))
	delay := time.Duration(ms) * time.Millisecond
	if delay > cap {
		return cap
	}
	return delay
}
