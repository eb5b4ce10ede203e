package uhs2

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/arloliu/go-uhs2/tlp"
)

// GoDormant asks node to enter the dormant state, or hibernate when hibernate
// is true.
//
// The envelope is tagged CommandGoDormant so the transport can apply the policy
// for a device about to stop responding. Success means the device acknowledged
// the request, not that it has reached the low-power state.
func (h *Host) GoDormant(ctx context.Context, node *Node, hibernate bool) (err error) {
	dest, err := node.dest()
	if err != nil {
		return err
	}

	ctx, span := h.startSpan(ctx, "GoDormant", nodeAttr(dest), attribute.Bool("uhs2.hibernate", hibernate))
	defer func() { endSpan(span, err) }()

	var word uint32
	if hibernate {
		word = DormantHibernate
	}

	if err := h.writeCommand(ctx, dest, RegGoDormantState, word, tlp.CommandGoDormant); err != nil {
		return err
	}

	h.metrics.incDormantCount()
	h.logger.Debug("uhs2: dormant transition acknowledged", "nodeID", dest, "hibernate", hibernate)

	return nil
}

// FullReset resets node through the FULL_RESET command register. On success the
// node loses its node ID and must be discovered and enumerated again.
func (h *Host) FullReset(ctx context.Context, node *Node) (err error) {
	dest, err := node.dest()
	if err != nil {
		return err
	}

	ctx, span := h.startSpan(ctx, "FullReset", nodeAttr(dest))
	defer func() { endSpan(span, err) }()

	if err := h.writeCommand(ctx, dest, RegFullReset, 0, tlp.CommandNormal); err != nil {
		return err
	}

	node.reset()
	h.logger.Info("uhs2: device reset", "nodeID", dest)

	return nil
}

// TransAbort aborts the transaction in progress on node through the
// TRANS_ABORT command register.
func (h *Host) TransAbort(ctx context.Context, node *Node) (err error) {
	dest, err := node.dest()
	if err != nil {
		return err
	}

	ctx, span := h.startSpan(ctx, "TransAbort", nodeAttr(dest))
	defer func() { endSpan(span, err) }()

	return h.writeCommand(ctx, dest, RegTransAbort, 0, tlp.CommandNormal)
}

// writeCommand writes a single word to a command register of dest. The
// acknowledgment of a command register write carries no payload.
func (h *Host) writeCommand(ctx context.Context, dest tlp.NodeID, reg uint8, word uint32, kind tlp.CommandKind) error {
	pkt, err := tlp.EncodeControl(tlp.ControlRequest{
		Dest:   dest,
		Write:  true,
		Space:  tlp.SpaceCommand,
		Offset: reg,
		Words:  []uint32{word},
	})
	if err != nil {
		return err
	}

	rsp, err := h.exchange(ctx, pkt, kind)
	if err != nil {
		return err
	}

	if n := rsp.PayloadLen(); n != 0 {
		h.metrics.incProtocolErrCount()
		return fmt.Errorf("%w: command 0x%02X acknowledged with %d payload words", ErrProtocolViolation, reg, n)
	}

	return nil
}
