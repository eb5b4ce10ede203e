package streamlink

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-uhs2/tlp"
)

// newTestConfig creates a LinkConfig with short timeouts suitable for tests.
func newTestConfig(t *testing.T, opts ...LinkOption) *LinkConfig {
	t.Helper()

	defaults := []LinkOption{
		WithResponseTimeout(100 * time.Millisecond),
		WithDormantTimeout(50 * time.Millisecond),
		WithInterCharTimeout(20 * time.Millisecond),
	}

	cfg, err := NewLinkConfig(append(defaults, opts...)...)
	require.NoError(t, err)

	return cfg
}

// newPipeConn creates a net.Pipe pair and registers cleanup.
func newPipeConn(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	return local, remote
}

// newTestLink creates a Link backed by the local end of net.Pipe().
// Returns the link and a frameIO on the remote end for device simulation.
func newTestLink(t *testing.T, opts ...LinkOption) (*Link, *frameIO) {
	t.Helper()

	cfg := newTestConfig(t, opts...)
	local, remote := newPipeConn(t)

	link, err := NewLink(local, cfg)
	require.NoError(t, err)

	return link, newFrameIO(remote, cfg)
}

// newTCPLink creates a Link over a loopback TCP connection. Unlike net.Pipe,
// TCP buffers a frame the host is not reading yet.
// Returns the link and a frameIO on the accepted end for device simulation.
func newTCPLink(t *testing.T, opts ...LinkOption) (*Link, *frameIO) {
	t.Helper()

	cfg := newTestConfig(t, opts...)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()

	local, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	remote, ok := <-accepted
	require.True(t, ok, "accept failed")

	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	link, err := NewLink(local, cfg)
	require.NoError(t, err)

	return link, newFrameIO(remote, cfg)
}

// readRequest reads one frame on the device side, failing the test on error.
func readRequest(t *testing.T, peer *frameIO) *tlp.Packet {
	t.Helper()

	pkt, err := peer.readFrame(time.Now().Add(time.Second))
	if err != nil {
		t.Errorf("readRequest: %v", err)
		return nil
	}

	return pkt
}

// countRequests reads frames on the device side until none arrives within
// idle, and returns how many were read.
func countRequests(peer *frameIO, idle time.Duration) int {
	n := 0
	for {
		if _, err := peer.readFrame(time.Now().Add(idle)); err != nil {
			return n
		}
		n++
	}
}

// reply writes the response to req with words on the device side.
func reply(t *testing.T, peer *frameIO, req *tlp.Packet, words ...uint32) {
	t.Helper()

	rsp, err := tlp.EncodeResponse(req, words)
	if err != nil {
		t.Errorf("reply: %v", err)
		return
	}

	if err := peer.writeAll(packFrame(rsp), time.Now().Add(time.Second)); err != nil {
		t.Errorf("reply: %v", err)
	}
}

// readPacket returns a native read request of one config register of node 1.
func readPacket(t *testing.T) *tlp.Packet {
	t.Helper()

	pkt, err := tlp.EncodeControl(tlp.ControlRequest{Dest: 1, Space: tlp.SpaceConfig, Offset: 0, Length: 1})
	require.NoError(t, err)

	return pkt
}

// dormantPacket returns a GO_DORMANT_STATE request to node 1.
func dormantPacket(t *testing.T) *tlp.Packet {
	t.Helper()

	pkt, err := tlp.EncodeControl(tlp.ControlRequest{Dest: 1, Write: true, Space: tlp.SpaceCommand, Offset: 0x01, Words: []uint32{0}})
	require.NoError(t, err)

	return pkt
}
