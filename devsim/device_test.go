package devsim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-uhs2/tlp"
	"github.com/arloliu/go-uhs2/uhs2"
)

func submit(t *testing.T, d *Device, pkt *tlp.Packet, kind tlp.CommandKind) (*tlp.Packet, error) {
	t.Helper()

	return d.Submit(context.Background(), tlp.NewEnvelope(pkt, kind))
}

func commandPacket(t *testing.T, dest tlp.NodeID, reg uint8, word uint32) *tlp.Packet {
	t.Helper()

	pkt, err := tlp.EncodeControl(tlp.ControlRequest{
		Dest:   dest,
		Write:  true,
		Space:  tlp.SpaceCommand,
		Offset: reg,
		Words:  []uint32{word},
	})
	require.NoError(t, err)

	return pkt
}

func TestDevice_InitAndEnumerate(t *testing.T) {
	d := New(WithNodeID(0xA), WithContention(ResolveAfter(3, 0x7)))

	// ENUMERATE before DEVICE_INIT completed is ignored.
	_, err := submit(t, d, commandPacket(t, tlp.UnassignedNode, uhs2.RegEnumerate, 0), tlp.CommandNormal)
	require.ErrorIs(t, err, ErrNoResponse)

	for round := 1; round <= 3; round++ {
		word := uhs2.DeviceInitPayload(uint8(round), 0xF, 0x2, true)
		rsp, err := submit(t, d, commandPacket(t, tlp.UnassignedNode, uhs2.RegDeviceInit, word), tlp.CommandNormal)
		require.NoError(t, err)

		got := rsp.Payload[0]
		assert.Equal(t, uint8(round), uhs2.DeviceInitGD(got), "discriminator is echoed")
		assert.Equal(t, uint8(0x2), uhs2.DeviceInitDap(got))
		assert.Equal(t, round == 3, got&uhs2.DeviceInitCF != 0, "round %d", round)
		if round < 3 {
			assert.Equal(t, uint8(0x7), uhs2.DeviceInitGap(got))
		}
	}

	rsp, err := submit(t, d, commandPacket(t, tlp.UnassignedNode, uhs2.RegEnumerate, 0), tlp.CommandNormal)
	require.NoError(t, err)
	assert.Equal(t, tlp.NodeID(0xA), uhs2.EnumerateNodeID(rsp.Payload[0]))

	id, ok := d.NodeID()
	assert.True(t, ok)
	assert.Equal(t, tlp.NodeID(0xA), id)

	// An enumerated device no longer takes part in DEVICE_INIT.
	_, err = submit(t, d, commandPacket(t, tlp.UnassignedNode, uhs2.RegDeviceInit, 0), tlp.CommandNormal)
	require.ErrorIs(t, err, ErrNoResponse)
}

func TestDevice_ConfigSpace(t *testing.T) {
	d := New(WithNodeID(2), WithCapabilities(tlp.Lane2D2UFD, uhs2.AppSDIO))
	_, err := submit(t, d, commandPacket(t, 0, uhs2.RegDeviceInit, 0), tlp.CommandNormal)
	require.NoError(t, err)
	_, err = submit(t, d, commandPacket(t, 0, uhs2.RegEnumerate, 0), tlp.CommandNormal)
	require.NoError(t, err)

	assert.Equal(t, uhs2.GenCapPayload(tlp.Lane2D2UFD, uhs2.AppSDIO), d.Register(tlp.SpaceConfig, uhs2.RegGenCapL))

	write, err := tlp.EncodeControl(tlp.ControlRequest{Dest: 2, Write: true, Space: tlp.SpaceVendor, Offset: 0x10, Words: []uint32{5, 6}})
	require.NoError(t, err)
	_, err = submit(t, d, write, tlp.CommandNormal)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), d.Register(tlp.SpaceVendor, 0x11))
	assert.Zero(t, d.Register(tlp.SpaceConfig, 0x11), "address spaces are separate")

	read, err := tlp.EncodeControl(tlp.ControlRequest{Dest: 2, Space: tlp.SpaceVendor, Offset: 0x10, Length: 2})
	require.NoError(t, err)
	rsp, err := submit(t, d, read, tlp.CommandNormal)
	require.NoError(t, err)
	assert.Equal(t, []uint32{5, 6}, rsp.Payload)

	// Packets addressed at another node are not answered.
	other, err := tlp.EncodeControl(tlp.ControlRequest{Dest: 3, Space: tlp.SpaceConfig, Length: 1})
	require.NoError(t, err)
	_, err = submit(t, d, other, tlp.CommandNormal)
	require.ErrorIs(t, err, ErrNoResponse)
}

func TestDevice_DormantAndReset(t *testing.T) {
	d := New(WithNodeID(3))
	_, err := submit(t, d, commandPacket(t, 0, uhs2.RegDeviceInit, 0), tlp.CommandNormal)
	require.NoError(t, err)
	_, err = submit(t, d, commandPacket(t, 0, uhs2.RegEnumerate, 0), tlp.CommandNormal)
	require.NoError(t, err)

	_, err = submit(t, d, commandPacket(t, 3, uhs2.RegGoDormantState, uhs2.DormantHibernate), tlp.CommandGoDormant)
	require.NoError(t, err)

	dormant, hibernate := d.Dormant()
	assert.True(t, dormant)
	assert.True(t, hibernate)

	_, err = submit(t, d, commandPacket(t, 3, uhs2.RegTransAbort, 0), tlp.CommandNormal)
	require.ErrorIs(t, err, ErrNoResponse, "a dormant device does not answer")

	d.Wake()
	_, err = submit(t, d, commandPacket(t, 3, uhs2.RegFullReset, 0), tlp.CommandNormal)
	require.NoError(t, err)

	_, ok := d.NodeID()
	assert.False(t, ok, "FULL_RESET drops the node ID")
}

func TestDevice_SDTranCommand(t *testing.T) {
	d := New(WithNodeID(1))
	_, err := submit(t, d, commandPacket(t, 0, uhs2.RegDeviceInit, 0), tlp.CommandNormal)
	require.NoError(t, err)
	_, err = submit(t, d, commandPacket(t, 0, uhs2.RegEnumerate, 0), tlp.CommandNormal)
	require.NoError(t, err)

	pkt, err := tlp.EncodeCommand(tlp.Command{Dest: 1, Index: 13, Arg: 0})
	require.NoError(t, err)
	rsp, err := submit(t, d, pkt, tlp.CommandNormal)
	require.NoError(t, err)
	assert.Equal(t, uint8(13), rsp.CmdIndex())
	assert.Equal(t, []uint32{DefaultCardStatus}, rsp.Payload)
	assert.Equal(t, 3, d.Received())
}

func TestDevice_SubmitErrors(t *testing.T) {
	d := New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Submit(ctx, tlp.NewEnvelope(&tlp.Packet{}, tlp.CommandNormal))
	require.ErrorIs(t, err, context.Canceled)

	_, err = d.Submit(context.Background(), &tlp.Envelope{})
	require.Error(t, err)

	_, err = d.Submit(context.Background(), tlp.NewEnvelope(&tlp.Packet{}, tlp.CommandKind(9)))
	require.Error(t, err)
}
