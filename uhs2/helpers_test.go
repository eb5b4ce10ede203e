package uhs2

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-uhs2/tlp"
)

// scriptedTransport records every envelope and answers with respond.
// n is the 1-based submission count.
type scriptedTransport struct {
	mu      sync.Mutex
	envs    []*tlp.Envelope
	respond func(n int, env *tlp.Envelope) (*tlp.Packet, error)
}

func (s *scriptedTransport) Submit(_ context.Context, env *tlp.Envelope) (*tlp.Packet, error) {
	s.mu.Lock()
	s.envs = append(s.envs, env)
	n := len(s.envs)
	s.mu.Unlock()

	return s.respond(n, env)
}

func (s *scriptedTransport) submissions() []*tlp.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*tlp.Envelope(nil), s.envs...)
}

// echo answers every request with a response carrying words.
func echo(words ...uint32) func(int, *tlp.Envelope) (*tlp.Packet, error) {
	return func(_ int, env *tlp.Envelope) (*tlp.Packet, error) {
		return tlp.EncodeResponse(env.Send, words)
	}
}

var errLinkDown = errors.New("link down")

// newTestHost creates a Host over tr with a short discovery bound unless overridden.
func newTestHost(t *testing.T, tr Transport, opts ...HostOption) *Host {
	t.Helper()

	cfg, err := NewHostConfig(opts...)
	require.NoError(t, err)

	h, err := NewHost(tr, cfg)
	require.NoError(t, err)

	return h
}
