package tcp

import (
	"time"
)

// A YieldTimer bounds how long a run of synchronous work may keep going before
// it must yield back to its caller. It is used by the read pipeline to cap how
// many buffered frames one peer may drain in a single pass.
type YieldTimer struct {
	deadline time.Time
}

func NewYieldTimer(budget time.Duration) YieldTimer {
	return YieldTimer{deadline: time.Now().Add(budget)}
}

// ShouldKeepGoing returns true until the budget is exhausted.
func (yt YieldTimer) ShouldKeepGoing() bool {
	return time.Now().Before(yt.deadline)
}
