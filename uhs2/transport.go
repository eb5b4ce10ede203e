package uhs2

import (
	"context"

	"github.com/arloliu/go-uhs2/tlp"
)

// Transport submits one envelope to the link and waits for the peer's response.
//
// Submit is synchronous from the caller's point of view: it returns either the
// response packet or a transport error, including timeouts. Implementations
// select their timeout and retry policy from env.Kind and may retransmit at
// most env.Retries times.
type Transport interface {
	Submit(ctx context.Context, env *tlp.Envelope) (*tlp.Packet, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, env *tlp.Envelope) (*tlp.Packet, error)

// Submit calls f(ctx, env).
func (f TransportFunc) Submit(ctx context.Context, env *tlp.Envelope) (*tlp.Packet, error) {
	return f(ctx, env)
}
