package streamlink

import (
	"sync/atomic"
)

// LinkMetrics contains atomic metrics for a Link.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type LinkMetrics struct {
	// FrameSendCount indicates the number of frames written, retransmits included.
	FrameSendCount atomic.Uint64
	// FrameRecvCount indicates the number of valid response frames received.
	FrameRecvCount atomic.Uint64
	// FrameErrCount indicates the number of damaged response frames.
	FrameErrCount atomic.Uint64
	// RetryCount indicates the number of retransmits.
	RetryCount atomic.Uint64
	// TimeoutCount indicates the number of response timeouts.
	TimeoutCount atomic.Uint64
}

func (m *LinkMetrics) incFrameSendCount() {
	m.FrameSendCount.Add(1)
}

func (m *LinkMetrics) incFrameRecvCount() {
	m.FrameRecvCount.Add(1)
}

func (m *LinkMetrics) incFrameErrCount() {
	m.FrameErrCount.Add(1)
}

func (m *LinkMetrics) incRetryCount() {
	m.RetryCount.Add(1)
}

func (m *LinkMetrics) incTimeoutCount() {
	m.TimeoutCount.Add(1)
}
