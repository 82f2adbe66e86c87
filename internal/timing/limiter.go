package timing

import "time"

// TimerFrequency is the fixed rate of the delay and sound timers.
const TimerFrequency = 60

// Limiter paces the frame loop.
type Limiter interface {
	// WaitForNextFrame blocks until it's time for the next frame.
	WaitForNextFrame()

	// Reset restarts the schedule, useful after a reboot.
	Reset()

	// Stop releases any resources held by the limiter.
	Stop()
}

// NewNoOpLimiter returns a limiter that doesn't limit (for headless mode).
func NewNoOpLimiter() Limiter {
	return noOpLimiter{}
}

type noOpLimiter struct{}

func (noOpLimiter) WaitForNextFrame() {}
func (noOpLimiter) Reset()            {}
func (noOpLimiter) Stop()             {}

// FrameDuration returns the duration of a single 60 Hz frame.
func FrameDuration() time.Duration {
	return time.Second / TimerFrequency
}
