package tcp

import (
	"time"

	"github.com/cygnusnet/ow/metrics"
)

// A TimestampedMessage is one outbound serialized message in the write queue,
// together with the timestamps needed for write latency metrics.
type TimestampedMessage struct {
	payload []byte

	enqueuedTime  time.Time
	issuedTime    time.Time
	completedTime time.Time
}

// recordWriteTiming observes how long the message sat in the queue before its
// write was issued, and how long the write itself took.
func (tsm *TimestampedMessage) recordWriteTiming(m *metrics.Overlay) {
	m.QueueDelay.Observe(tsm.issuedTime.Sub(tsm.enqueuedTime))
	m.WriteDelay.Observe(tsm.completedTime.Sub(tsm.issuedTime))
}
