package cooling

import "time"

// Clock returns the time elapsed on a monotonic clock since an arbitrary
// origin. All history timestamps are expressed on this clock.
type Clock func() time.Duration

var processStart = time.Now()

// MonotonicClock measures from process start. time.Since relies on the
// monotonic reading so wall clock steps do not leak into the control law.
func MonotonicClock() time.Duration {
	return time.Since(processStart)
}
