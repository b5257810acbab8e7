package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// windowCapacity bounds the number of samples kept by a latency Window. Older
// samples are overwritten in ring order.
const windowCapacity = 1024

// A Counter is a monotonically increasing counter that is safe for concurrent
// use.
type Counter struct {
	n uint64
}

func (c *Counter) Inc() {
	atomic.AddUint64(&c.n, 1)
}

func (c *Counter) Add(n uint64) {
	atomic.AddUint64(&c.n, n)
}

func (c *Counter) Value() uint64 {
	return atomic.LoadUint64(&c.n)
}

// A Window is a bounded rolling window of duration samples from which
// percentiles can be computed. It is safe for concurrent use.
type Window struct {
	mu   sync.Mutex
	buf  []time.Duration
	next int
	full bool
}

func NewWindow() *Window {
	return &Window{buf: make([]time.Duration, windowCapacity)}
}

// Observe adds a sample to the window.
func (w *Window) Observe(d time.Duration) {
	w.mu.Lock()
	w.buf[w.next] = d
	w.next++
	if w.next == len(w.buf) {
		w.next = 0
		w.full = true
	}
	w.mu.Unlock()
}

// Snapshot returns a sorted copy of the samples currently in the window.
func (w *Window) Snapshot() []time.Duration {
	w.mu.Lock()
	n := w.next
	if w.full {
		n = len(w.buf)
	}
	samples := make([]time.Duration, n)
	copy(samples, w.buf[:n])
	w.mu.Unlock()

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return samples
}

// Percentile returns the p-th percentile of the samples in the window, with p
// in [0, 1]. It returns zero when the window is empty.
func (w *Window) Percentile(p float64) time.Duration {
	samples := w.Snapshot()
	if len(samples) == 0 {
		return 0
	}
	idx := int(p * float64(len(samples)-1))
	if idx >= len(samples) {
		idx = len(samples) - 1
	}
	return samples[idx]
}

// Overlay aggregates the counters and latency windows maintained by the
// overlay transport.
type Overlay struct {
	MessageRead  Counter
	MessageWrite Counter
	ByteRead     Counter
	ByteWrite    Counter
	ErrorRead    Counter
	ErrorWrite   Counter
	AsyncRead    Counter

	// QueueDelay measures how long outbound messages sit in the write queue
	// before their write is issued. WriteDelay measures how long the write
	// itself takes.
	QueueDelay *Window
	WriteDelay *Window
}

func NewOverlay() *Overlay {
	return &Overlay{
		QueueDelay: NewWindow(),
		WriteDelay: NewWindow(),
	}
}

// Snapshot is a point-in-time copy of the overlay counters, shaped for JSON
// export.
type Snapshot struct {
	GeneratedAt  time.Time `json:"generated_at"`
	MessageRead  uint64    `json:"message_read"`
	MessageWrite uint64    `json:"message_write"`
	ByteRead     uint64    `json:"byte_read"`
	ByteWrite    uint64    `json:"byte_write"`
	ErrorRead    uint64    `json:"error_read"`
	ErrorWrite   uint64    `json:"error_write"`
	AsyncRead    uint64    `json:"async_read"`

	QueueDelayP50 time.Duration `json:"queue_delay_p50"`
	QueueDelayP99 time.Duration `json:"queue_delay_p99"`
	WriteDelayP50 time.Duration `json:"write_delay_p50"`
	WriteDelayP99 time.Duration `json:"write_delay_p99"`
}

func (m *Overlay) Snapshot() Snapshot {
	return Snapshot{
		GeneratedAt:  time.Now(),
		MessageRead:  m.MessageRead.Value(),
		MessageWrite: m.MessageWrite.Value(),
		ByteRead:     m.ByteRead.Value(),
		ByteWrite:    m.ByteWrite.Value(),
		ErrorRead:    m.ErrorRead.Value(),
		ErrorWrite:   m.ErrorWrite.Value(),
		AsyncRead:    m.AsyncRead.Value(),

		QueueDelayP50: m.QueueDelay.Percentile(0.5),
		QueueDelayP99: m.QueueDelay.Percentile(0.99),
		WriteDelayP50: m.WriteDelay.Percentile(0.5),
		WriteDelayP99: m.WriteDelay.Percentile(0.99),
	}
}
