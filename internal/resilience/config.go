package resilience

import "time"

// FromConfig builds a Policy from configuration values. Zero values fall
// back to DefaultPolicy.
func FromConfig(kind Kind, maxAttempts, initialBackoffMs, maxBackoffMs int) Policy {
	p := DefaultPolicy(kind)
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		p.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		p.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	return p
}
