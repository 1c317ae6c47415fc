package retry

import "time"

// Backoff returns the wait before the next attempt. attempt is the number of
// the attempt that just failed, starting at 1.
type Backoff func(attempt int) time.Duration

// Fixed always waits d.
func Fixed(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

// Exponential waits base * 2^(attempt-1), capped at max.
func Exponential(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		if d > max {
			d = max
		}
		return d
	}
}

// Chain uses steps[0] after the first failure, steps[1] after the second and
// so on. The last step handles every later failure and sees attempt numbers
// relative to the point where it took over.
func Chain(steps ...Backoff) Backoff {
	return func(attempt int) time.Duration {
		if len(steps) == 0 {
			return 0
		}
		if attempt <= len(steps)-1 {
			return steps[attempt-1](1)
		}
		return steps[len(steps)-1](attempt - len(steps) + 1)
	}
}
