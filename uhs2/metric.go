package uhs2

import (
	"sync/atomic"
)

// Metrics contains atomic metrics for a Host.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc; see NewCollector.
type Metrics struct {
	// PacketSendCount indicates the number of packets submitted to the transport.
	PacketSendCount atomic.Uint64
	// TransportErrCount indicates the number of submissions that failed in the transport.
	TransportErrCount atomic.Uint64
	// ProtocolErrCount indicates the number of responses rejected as protocol violations.
	ProtocolErrCount atomic.Uint64

	// DeviceInitAttemptCount indicates the number of DEVICE_INIT packets sent.
	DeviceInitAttemptCount atomic.Uint64
	// DeviceInitBackoffCount indicates the number of discriminator increments.
	DeviceInitBackoffCount atomic.Uint64
	// DeviceInitTimeoutCount indicates the number of DEVICE_INIT loops that exhausted their attempts.
	DeviceInitTimeoutCount atomic.Uint64

	// EnumerateCount indicates the number of successful enumerations.
	EnumerateCount atomic.Uint64
	// DormantCount indicates the number of acknowledged dormant transitions.
	DormantCount atomic.Uint64
}

func (m *Metrics) incPacketSendCount() {
	m.PacketSendCount.Add(1)
}

func (m *Metrics) incTransportErrCount() {
	m.TransportErrCount.Add(1)
}

func (m *Metrics) incProtocolErrCount() {
	m.ProtocolErrCount.Add(1)
}

func (m *Metrics) incDeviceInitAttemptCount() {
	m.DeviceInitAttemptCount.Add(1)
}

func (m *Metrics) incDeviceInitBackoffCount() {
	m.DeviceInitBackoffCount.Add(1)
}

func (m *Metrics) incDeviceInitTimeoutCount() {
	m.DeviceInitTimeoutCount.Add(1)
}

func (m *Metrics) incEnumerateCount() {
	m.EnumerateCount.Add(1)
}

func (m *Metrics) incDormantCount() {
	m.DormantCount.Add(1)
}
