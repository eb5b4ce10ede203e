package tlp

import "fmt"

// CommandKind tags an envelope so the transport can select its timeout and
// retry policy. The set of kinds is closed.
type CommandKind uint8

const (
	// CommandNormal is every exchange except a dormant transition.
	CommandNormal CommandKind = iota
	// CommandGoDormant is a GO_DORMANT_STATE request. The device stops
	// responding shortly after acknowledging it.
	CommandGoDormant
)

// String returns the kind name.
func (k CommandKind) String() string {
	switch k {
	case CommandNormal:
		return "normal"
	case CommandGoDormant:
		return "go-dormant"
	default:
		return fmt.Sprintf("CommandKind(%d)", uint8(k))
	}
}

// Valid reports whether k is a defined kind.
func (k CommandKind) Valid() bool {
	return k <= CommandGoDormant
}

// Envelope pairs an outgoing packet with the metadata a transport needs to
// deliver it. The peer's response and any transport error are the return
// values of the submit call. An envelope is built for one exchange and not
// reused.
type Envelope struct {
	// Send is the outgoing packet.
	Send *Packet
	// Kind selects the transport timeout and retry policy.
	Kind CommandKind
	// Retries is the number of retransmissions the transport may attempt.
	Retries int
}

// NewEnvelope creates a single-shot envelope for pkt.
func NewEnvelope(pkt *Packet, kind CommandKind) *Envelope {
	return &Envelope{Send: pkt, Kind: kind}
}
