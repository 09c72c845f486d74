package delivery

import "time"

// backoffFor returns min(cap, base * 2^attempt). attempt is zero-based: the
// first retry waits base, the second 2*base, and so on.
func backoffFor(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return max
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
