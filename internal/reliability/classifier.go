package reliability

import "time"

// DefaultBackoffSteps is the per-host retry schedule for degraded delivery
// targets. The last step repeats until the host recovers or is removed.
var DefaultBackoffSteps = []time.Duration{
	2 * time.Second,
	10 * time.Second,
	30 * time.Second,
	time.Minute,
	5 * time.Minute,
}

// StepBackoff returns the wait before retry number `failures` (1-based) from a
// monotonically increasing step schedule, capped at the last step.
func StepBackoff(failures int, steps []time.Duration) time.Duration {
	if len(steps) == 0 {
		return 0
	}
	if failures < 1 {
		failures = 1
	}
	if failures > len(steps) {
		return steps[len(steps)-1]
	}
	return steps[failures-1]
}
