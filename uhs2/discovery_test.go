package uhs2

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-uhs2/logger"
	"github.com/arloliu/go-uhs2/tlp"
)

// ===========================================================================
// initState tests
// ===========================================================================

func TestInitState_Payload(t *testing.T) {
	capability := DeviceInitPayload(0, 0xF, 0x1, true)

	s := initState{gd: 0x5}
	word := s.payload(capability)
	assert.Equal(t, uint8(0x5), DeviceInitGD(word))
	assert.Equal(t, uint8(0xF), DeviceInitGap(word))
	assert.Equal(t, uint8(0x1), DeviceInitDap(word))
	assert.NotZero(t, word&DeviceInitCF)

	// The discriminator replaces, never accumulates.
	s.gd = 0x2
	assert.Equal(t, uint8(0x2), DeviceInitGD(s.payload(word)))
}

func TestInitState_Next(t *testing.T) {
	const maxGap = 0xF

	s, step := initState{}.next(DeviceInitPayload(0, 0x3, 0, true), maxGap)
	assert.Equal(t, initResolved, step)
	assert.Equal(t, initState{gd: 0, attempt: 1}, s)

	s, step = initState{gd: 4, attempt: 2}.next(DeviceInitPayload(4, maxGap, 0, false), maxGap)
	assert.Equal(t, initBackoff, step)
	assert.Equal(t, initState{gd: 5, attempt: 3}, s)

	s, step = initState{gd: 4, attempt: 2}.next(DeviceInitPayload(4, maxGap-1, 0, false), maxGap)
	assert.Equal(t, initConverging, step)
	assert.Equal(t, initState{gd: 4, attempt: 3}, s)

	s, step = initState{gd: MaxDiscriminator}.next(DeviceInitPayload(0, maxGap, 0, false), maxGap)
	assert.Equal(t, initBackoff, step)
	assert.Equal(t, uint8(0), s.gd, "discriminator wraps at its field width")

	assert.Equal(t, "converging", initConverging.String())
}

// ===========================================================================
// DeviceInit tests
// ===========================================================================

func TestDeviceInit_ResolvesOnAttemptK(t *testing.T) {
	for _, k := range []int{1, 2, 7, DefaultDiscoveryAttempts} {
		tr := &scriptedTransport{respond: func(n int, env *tlp.Envelope) (*tlp.Packet, error) {
			word := DeviceInitPayload(0, 0x3, 0, n == k)
			return tlp.EncodeResponse(env.Send, []uint32{word})
		}}
		h := newTestHost(t, tr)

		require.NoError(t, h.DeviceInit(context.Background()), "k=%d", k)
		assert.Len(t, tr.submissions(), k)
		assert.Equal(t, uint64(k), h.Metrics().DeviceInitAttemptCount.Load())
	}
}

func TestDeviceInit_Timeout(t *testing.T) {
	tr := &scriptedTransport{respond: echo(DeviceInitPayload(0, 0x3, 0, false))}
	h := newTestHost(t, tr)

	err := h.DeviceInit(context.Background())
	require.ErrorIs(t, err, ErrDeviceInitTimeout)
	assert.Len(t, tr.submissions(), DefaultDiscoveryAttempts)
	assert.Equal(t, uint64(1), h.Metrics().DeviceInitTimeoutCount.Load())
}

func TestDeviceInit_ConfigurableBound(t *testing.T) {
	tr := &scriptedTransport{respond: echo(DeviceInitPayload(0, 0x3, 0, false))}
	h := newTestHost(t, tr, WithDiscoveryAttempts(5))

	require.ErrorIs(t, h.DeviceInit(context.Background()), ErrDeviceInitTimeout)
	assert.Len(t, tr.submissions(), 5)
}

func TestDeviceInit_RequestLayout(t *testing.T) {
	tr := &scriptedTransport{respond: echo(DeviceInitPayload(0, 0, 0, true))}
	h := newTestHost(t, tr, WithMaxGap(0xC), WithMaxDap(0x4))

	require.NoError(t, h.DeviceInit(context.Background()))

	envs := tr.submissions()
	require.Len(t, envs, 1)
	env := envs[0]
	pkt := env.Send

	assert.Equal(t, tlp.CommandNormal, env.Kind)
	assert.Zero(t, env.Retries)
	assert.Equal(t, tlp.TypeControl, pkt.Type())
	assert.True(t, pkt.Native())
	assert.Equal(t, tlp.UnassignedNode, pkt.DestID())
	assert.True(t, pkt.IsWrite())
	assert.Equal(t, tlp.SpaceCommand, pkt.Space())
	assert.Equal(t, RegDeviceInit, pkt.Offset())
	require.Len(t, pkt.Payload, 1)
	assert.Equal(t, DeviceInitPayload(0, 0xC, 0x4, true), pkt.Payload[0])
}

func TestDeviceInit_SaturatedGapAdvancesDiscriminator(t *testing.T) {
	tr := &scriptedTransport{respond: echo(DeviceInitPayload(0, DefaultMaxGap, 0, false))}
	h := newTestHost(t, tr)

	require.ErrorIs(t, h.DeviceInit(context.Background()), ErrDeviceInitTimeout)

	envs := tr.submissions()
	require.Len(t, envs, DefaultDiscoveryAttempts)
	for i := 1; i < len(envs); i++ {
		prev := DeviceInitGD(envs[i-1].Send.Payload[0])
		cur := DeviceInitGD(envs[i].Send.Payload[0])
		assert.Equal(t, (prev+1)&MaxDiscriminator, cur, "attempt %d", i+1)
	}
	assert.Equal(t, uint64(DefaultDiscoveryAttempts), h.Metrics().DeviceInitBackoffCount.Load())
}

func TestDeviceInit_ConvergingGapKeepsDiscriminator(t *testing.T) {
	// Saturate twice, then report a gap below the ceiling.
	tr := &scriptedTransport{respond: func(n int, env *tlp.Envelope) (*tlp.Packet, error) {
		gap := uint8(DefaultMaxGap)
		if n > 2 {
			gap = 0x2
		}
		return tlp.EncodeResponse(env.Send, []uint32{DeviceInitPayload(0, gap, 0, false)})
	}}
	h := newTestHost(t, tr, WithDiscoveryAttempts(6))

	require.ErrorIs(t, h.DeviceInit(context.Background()), ErrDeviceInitTimeout)

	var gds []uint8
	for _, env := range tr.submissions() {
		gds = append(gds, DeviceInitGD(env.Send.Payload[0]))
	}
	assert.Equal(t, []uint8{0, 1, 2, 2, 2, 2}, gds)
}

func TestDeviceInit_TransportErrorIsFatal(t *testing.T) {
	tr := &scriptedTransport{respond: func(int, *tlp.Envelope) (*tlp.Packet, error) {
		return nil, errLinkDown
	}}
	h := newTestHost(t, tr)

	err := h.DeviceInit(context.Background())
	require.ErrorIs(t, err, errLinkDown)
	assert.NotErrorIs(t, err, ErrDeviceInitTimeout)
	assert.Len(t, tr.submissions(), 1, "no retry on transport error")
	assert.Equal(t, uint64(1), h.Metrics().TransportErrCount.Load())
}

func TestDeviceInit_ProtocolViolation(t *testing.T) {
	tests := []struct {
		name    string
		respond func(int, *tlp.Envelope) (*tlp.Packet, error)
	}{
		{"empty payload", echo()},
		{"not a response", func(_ int, env *tlp.Envelope) (*tlp.Packet, error) {
			return env.Send.Clone(), nil
		}},
		{"nil response", func(int, *tlp.Envelope) (*tlp.Packet, error) {
			return nil, nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &scriptedTransport{respond: tt.respond}
			h := newTestHost(t, tr)

			require.ErrorIs(t, h.DeviceInit(context.Background()), ErrProtocolViolation)
			assert.Len(t, tr.submissions(), 1)
		})
	}
}

func TestDeviceInit_ContextCanceled(t *testing.T) {
	tr := &scriptedTransport{respond: echo(DeviceInitPayload(0, 0, 0, true))}
	h := newTestHost(t, tr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, h.DeviceInit(ctx), context.Canceled)
	assert.Empty(t, tr.submissions())
}

func TestDeviceInit_LogsExhaustion(t *testing.T) {
	l := logger.NewQuietMockLogger()
	l.On("Warn", "uhs2: device init did not complete", mock.Anything).Once()

	tr := &scriptedTransport{respond: echo(DeviceInitPayload(0, 0, 0, false))}
	h := newTestHost(t, tr, WithLogger(l), WithDiscoveryAttempts(2))

	require.ErrorIs(t, h.DeviceInit(context.Background()), ErrDeviceInitTimeout)
	l.AssertExpectations(t)
}

// ===========================================================================
// Enumerate tests
// ===========================================================================

func TestEnumerate(t *testing.T) {
	tr := &scriptedTransport{respond: echo(0x0A000000)}
	h := newTestHost(t, tr)
	node := NewNode()

	id, err := h.Enumerate(context.Background(), node)
	require.NoError(t, err)
	assert.Equal(t, tlp.NodeID(10), id)

	got, ok := node.ID()
	assert.True(t, ok)
	assert.Equal(t, tlp.NodeID(10), got)

	envs := tr.submissions()
	require.Len(t, envs, 1)
	pkt := envs[0].Send
	assert.Equal(t, tlp.UnassignedNode, pkt.DestID())
	assert.Equal(t, uint16(0x203), pkt.IOADR())
	assert.Equal(t, []uint32{0}, pkt.Payload)
}

func TestEnumerate_FailureLeavesNodeUnassigned(t *testing.T) {
	tests := []struct {
		name    string
		respond func(int, *tlp.Envelope) (*tlp.Packet, error)
		want    error
	}{
		{"transport error", func(int, *tlp.Envelope) (*tlp.Packet, error) { return nil, errLinkDown }, errLinkDown},
		{"empty payload", echo(), ErrProtocolViolation},
		{"unassigned node ID", echo(EnumeratePayload(tlp.UnassignedNode)), ErrProtocolViolation},
		{"wrong register", func(_ int, env *tlp.Envelope) (*tlp.Packet, error) {
			rsp, err := tlp.EncodeResponse(env.Send, []uint32{0x0A000000})
			rsp.SetIOADR(tlp.IOADR(tlp.SpaceCommand, RegDeviceInit))
			return rsp, err
		}, ErrProtocolViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHost(t, &scriptedTransport{respond: tt.respond})
			node := NewNode()

			_, err := h.Enumerate(context.Background(), node)
			require.ErrorIs(t, err, tt.want)
			assert.False(t, node.Enumerated())
		})
	}
}
