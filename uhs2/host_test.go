package uhs2

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-uhs2/tlp"
)

func TestNewHost(t *testing.T) {
	_, err := NewHost(nil, nil)
	require.ErrorIs(t, err, ErrTransportNil)

	h, err := NewHost(TransportFunc(func(context.Context, *tlp.Envelope) (*tlp.Packet, error) {
		return nil, errLinkDown
	}), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultDiscoveryAttempts, h.Config().DiscoveryAttempts())
	assert.NotNil(t, h.Metrics())
}

func TestCheckResponse(t *testing.T) {
	read, err := tlp.EncodeControl(tlp.ControlRequest{Dest: 1, Space: tlp.SpaceConfig, Offset: 4, Length: 2})
	require.NoError(t, err)
	cmd, err := tlp.EncodeCommand(tlp.Command{Dest: 1, Index: 13})
	require.NoError(t, err)

	good, err := tlp.EncodeResponse(read, []uint32{1, 2})
	require.NoError(t, err)
	require.NoError(t, checkResponse(read, good))

	goodCmd, err := tlp.EncodeResponse(cmd, []uint32{0x900})
	require.NoError(t, err)
	require.NoError(t, checkResponse(cmd, goodCmd))

	tests := []struct {
		name   string
		req    *tlp.Packet
		mutate func(p *tlp.Packet)
	}{
		{"wrong type", read, func(p *tlp.Packet) { p.SetType(tlp.TypeControl) }},
		{"length mismatch", read, func(p *tlp.Packet) { p.Payload = p.Payload[:1] }},
		{"native mismatch", read, func(p *tlp.Packet) { p.SetNative(false) }},
		{"wrong IOADR", read, func(p *tlp.Packet) { p.SetIOADR(tlp.IOADR(tlp.SpaceConfig, 5)) }},
		{"wrong direction", read, func(p *tlp.Packet) { p.SetWrite(true) }},
		{"wrong command index", cmd, func(p *tlp.Packet) { p.SetCmdIndex(17) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rsp *tlp.Packet
			if tt.req == read {
				rsp = good.Clone()
			} else {
				rsp = goodCmd.Clone()
			}
			tt.mutate(rsp)

			require.ErrorIs(t, checkResponse(tt.req, rsp), ErrProtocolViolation)
		})
	}

	require.ErrorIs(t, checkResponse(read, nil), ErrProtocolViolation)
}

// ===========================================================================
// Node addressing
// ===========================================================================

func TestHost_RequiresEnumeratedNode(t *testing.T) {
	tr := &scriptedTransport{respond: echo()}
	h := newTestHost(t, tr)
	node := NewNode()
	ctx := context.Background()

	_, err := h.ReadConfig(ctx, node, 0, 1)
	require.ErrorIs(t, err, ErrNotEnumerated)
	require.ErrorIs(t, h.WriteConfig(ctx, node, 0, []uint32{1}), ErrNotEnumerated)
	require.ErrorIs(t, h.GoDormant(ctx, node, false), ErrNotEnumerated)
	require.ErrorIs(t, h.FullReset(ctx, node), ErrNotEnumerated)
	require.ErrorIs(t, h.TransAbort(ctx, node), ErrNotEnumerated)
	_, err = h.Command(ctx, node, 0, false, 0)
	require.ErrorIs(t, err, ErrNotEnumerated)
	_, err = h.DataCommand(ctx, node, DataRequest{Index: 18})
	require.ErrorIs(t, err, ErrNotEnumerated)

	assert.Empty(t, tr.submissions())
}

// ===========================================================================
// GoDormant
// ===========================================================================

func TestGoDormant(t *testing.T) {
	send := func(hibernate bool) *tlp.Envelope {
		tr := &scriptedTransport{respond: echo()}
		h := newTestHost(t, tr)

		require.NoError(t, h.GoDormant(context.Background(), NewEnumeratedNode(3, tlp.Lane2LHD), hibernate))
		assert.Equal(t, uint64(1), h.Metrics().DormantCount.Load())

		envs := tr.submissions()
		require.Len(t, envs, 1)

		return envs[0]
	}

	hib := send(true)
	assert.Equal(t, tlp.CommandGoDormant, hib.Kind)
	assert.Equal(t, tlp.NodeID(3), hib.Send.DestID())
	assert.True(t, hib.Send.Native())
	assert.True(t, hib.Send.IsWrite())
	assert.Equal(t, tlp.IOADR(tlp.SpaceCommand, RegGoDormantState), hib.Send.IOADR())
	require.Len(t, hib.Send.Payload, 1)
	assert.Equal(t, DormantHibernate, hib.Send.Payload[0]&DormantHibernate)

	dormant := send(false)
	assert.Equal(t, tlp.CommandGoDormant, dormant.Kind)
	assert.Zero(t, dormant.Send.Payload[0]&DormantHibernate)

	// Only the hibernate bit differs.
	assert.Equal(t, hib.Send.Header, dormant.Send.Header)
	assert.Equal(t, hib.Send.Argument, dormant.Send.Argument)
	assert.Equal(t, hib.Send.Payload[0]&^DormantHibernate, dormant.Send.Payload[0])
}

func TestGoDormant_NoAcknowledge(t *testing.T) {
	tr := &scriptedTransport{respond: func(int, *tlp.Envelope) (*tlp.Packet, error) {
		return nil, errLinkDown
	}}
	h := newTestHost(t, tr)

	require.ErrorIs(t, h.GoDormant(context.Background(), NewEnumeratedNode(3, 0), true), errLinkDown)
	assert.Zero(t, h.Metrics().DormantCount.Load())
}

func TestGoDormant_AcknowledgmentWithPayload(t *testing.T) {
	tr := &scriptedTransport{respond: echo(0xDEADBEEF)}
	h := newTestHost(t, tr)

	err := h.GoDormant(context.Background(), NewEnumeratedNode(3, 0), true)
	require.ErrorIs(t, err, ErrProtocolViolation)
	assert.Zero(t, h.Metrics().DormantCount.Load())
	assert.Equal(t, uint64(1), h.Metrics().ProtocolErrCount.Load())
}

func TestFullReset(t *testing.T) {
	tr := &scriptedTransport{respond: echo()}
	h := newTestHost(t, tr)
	node := NewEnumeratedNode(5, tlp.Lane2LHD)

	require.NoError(t, h.FullReset(context.Background(), node))
	assert.False(t, node.Enumerated())

	envs := tr.submissions()
	require.Len(t, envs, 1)
	assert.Equal(t, tlp.CommandNormal, envs[0].Kind)
	assert.Equal(t, tlp.IOADR(tlp.SpaceCommand, RegFullReset), envs[0].Send.IOADR())
}

// ===========================================================================
// Config access
// ===========================================================================

func TestReadConfig(t *testing.T) {
	tr := &scriptedTransport{respond: echo(0x11, 0x22)}
	h := newTestHost(t, tr)
	node := NewEnumeratedNode(2, 0)

	words, err := h.ReadConfig(context.Background(), node, RegPhyCapL, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x11, 0x22}, words)

	pkt := tr.submissions()[0].Send
	assert.False(t, pkt.IsWrite())
	assert.Equal(t, 2, pkt.PayloadLen())
	assert.Empty(t, pkt.Payload)
	assert.Equal(t, tlp.IOADR(tlp.SpaceConfig, RegPhyCapL), pkt.IOADR())
}

func TestReadConfig_Errors(t *testing.T) {
	node := NewEnumeratedNode(2, 0)

	t.Run("short response", func(t *testing.T) {
		h := newTestHost(t, &scriptedTransport{respond: echo(0x11)})
		_, err := h.ReadConfig(context.Background(), node, 0, 2)
		require.ErrorIs(t, err, ErrProtocolViolation)
	})

	t.Run("too long", func(t *testing.T) {
		tr := &scriptedTransport{respond: echo()}
		h := newTestHost(t, tr)
		_, err := h.ReadConfig(context.Background(), node, 0, tlp.MaxPayloadWords+1)
		require.ErrorIs(t, err, tlp.ErrEncoding)
		assert.Empty(t, tr.submissions())
	})

	t.Run("past the end of the space", func(t *testing.T) {
		tr := &scriptedTransport{respond: echo()}
		h := newTestHost(t, tr)
		_, err := h.ReadConfig(context.Background(), node, 0xFF, 2)
		require.ErrorIs(t, err, tlp.ErrEncoding)
		assert.Empty(t, tr.submissions())
	})
}

func TestWriteConfig(t *testing.T) {
	tr := &scriptedTransport{respond: echo()}
	h := newTestHost(t, tr)

	require.NoError(t, h.SetConfigComplete(context.Background(), NewEnumeratedNode(4, 0), true))

	pkt := tr.submissions()[0].Send
	assert.True(t, pkt.IsWrite())
	assert.Equal(t, tlp.NodeID(4), pkt.DestID())
	assert.Equal(t, tlp.IOADR(tlp.SpaceConfig, RegGenSetL), pkt.IOADR())
	assert.Equal(t, []uint32{GenSetLowPowerMode, GenSetConfigComplete}, pkt.Payload)
}

func TestReadCapabilities(t *testing.T) {
	tr := &scriptedTransport{respond: echo(GenCapPayload(tlp.Lane2D1UFD|tlp.Lane2LHD, AppSDIO), 0)}
	h := newTestHost(t, tr)
	node := NewEnumeratedNode(1, 0)

	caps, err := h.ReadCapabilities(context.Background(), node)
	require.NoError(t, err)
	assert.Equal(t, tlp.Lane2D1UFD|tlp.Lane2LHD, caps.LaneMode)
	assert.Equal(t, AppSDIO, caps.AppType)
	assert.Equal(t, caps.LaneMode, node.LaneMode())
}

// ===========================================================================
// SD-TRAN commands
// ===========================================================================

func TestCommand(t *testing.T) {
	tr := &scriptedTransport{respond: echo(0x900)}
	h := newTestHost(t, tr)

	resp, err := h.Command(context.Background(), NewEnumeratedNode(1, 0), 13, false, 0x10000)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x900), resp)

	pkt := tr.submissions()[0].Send
	assert.False(t, pkt.Native())
	assert.Equal(t, uint8(13), pkt.CmdIndex())
	assert.Equal(t, []uint32{0x10000}, pkt.Payload)
}

func TestDataCommand_TransferModeFromLaneMode(t *testing.T) {
	tests := []struct {
		mode tlp.LaneMode
		want uint8
	}{
		{tlp.Lane2LHD, tlp.TModeLengthSpecified | tlp.TModeHalfDuplex},
		{tlp.Lane2D2UFD, tlp.TModeLengthSpecified},
	}

	for _, tt := range tests {
		tr := &scriptedTransport{respond: echo(0x900)}
		h := newTestHost(t, tr)

		rsp, err := h.DataCommand(context.Background(), NewEnumeratedNode(1, tt.mode), DataRequest{
			Index:      18,
			MultiBlock: true,
			Arg:        0x100,
			BlockCount: 8,
		})
		require.NoError(t, err)
		assert.Equal(t, tlp.TypeResponse, rsp.Type())

		pkt := tr.submissions()[0].Send
		assert.Equal(t, tlp.TypeData, pkt.Type())
		assert.Equal(t, tt.want, pkt.TransferMode())
		assert.Equal(t, []uint32{0x100, 8}, pkt.Payload)
	}
}
