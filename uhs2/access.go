package uhs2

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/arloliu/go-uhs2/internal/util"
	"github.com/arloliu/go-uhs2/tlp"
)

// ReadConfig reads length words from the configuration space of node,
// starting at offset.
//
// The exchange is single-shot. A length the packet cannot carry is an encoding
// error and nothing is sent. A response whose payload length differs from
// length is an ErrProtocolViolation.
func (h *Host) ReadConfig(ctx context.Context, node *Node, offset uint8, length int) (words []uint32, err error) {
	dest, err := node.dest()
	if err != nil {
		return nil, err
	}

	ctx, span := h.startSpan(ctx, "ReadConfig", nodeAttr(dest),
		attribute.Int("uhs2.offset", int(offset)),
		attribute.Int("uhs2.length", length),
	)
	defer func() { endSpan(span, err) }()

	pkt, err := tlp.EncodeControl(tlp.ControlRequest{
		Dest:   dest,
		Space:  tlp.SpaceConfig,
		Offset: offset,
		Length: length,
	})
	if err != nil {
		return nil, err
	}

	rsp, err := h.exchange(ctx, pkt, tlp.CommandNormal)
	if err != nil {
		return nil, err
	}

	if rsp.PayloadLen() != length {
		h.metrics.incProtocolErrCount()
		return nil, fmt.Errorf("%w: read %d words, want %d", ErrProtocolViolation, rsp.PayloadLen(), length)
	}

	return util.CloneSlice(rsp.Payload, 0), nil
}

// WriteConfig writes words to the configuration space of node, starting at offset.
//
// The exchange is single-shot. More words than a packet can carry is an
// encoding error and nothing is sent.
func (h *Host) WriteConfig(ctx context.Context, node *Node, offset uint8, words []uint32) (err error) {
	dest, err := node.dest()
	if err != nil {
		return err
	}

	ctx, span := h.startSpan(ctx, "WriteConfig", nodeAttr(dest),
		attribute.Int("uhs2.offset", int(offset)),
		attribute.Int("uhs2.length", len(words)),
	)
	defer func() { endSpan(span, err) }()

	pkt, err := tlp.EncodeControl(tlp.ControlRequest{
		Dest:   dest,
		Write:  true,
		Space:  tlp.SpaceConfig,
		Offset: offset,
		Words:  words,
	})
	if err != nil {
		return err
	}

	_, err = h.exchange(ctx, pkt, tlp.CommandNormal)

	return err
}

// ReadCapabilities reads the generic capabilities register of node and records
// the capabilities, including the advertised lane mode, on it.
func (h *Host) ReadCapabilities(ctx context.Context, node *Node) (Capabilities, error) {
	words, err := h.ReadConfig(ctx, node, RegGenCapL, 2)
	if err != nil {
		return Capabilities{}, err
	}

	caps := decodeCapabilities(words)
	node.setCapabilities(caps)

	h.logger.Debug("uhs2: capabilities", "nodeID", node.id, "laneMode", caps.LaneMode, "appType", caps.AppType)

	return caps, nil
}

// SetConfigComplete writes the generic settings register of node with
// CONFIG_COMPLETE set, optionally enabling the low-power mode.
func (h *Host) SetConfigComplete(ctx context.Context, node *Node, lowPower bool) error {
	var low uint32
	if lowPower {
		low = GenSetLowPowerMode
	}

	return h.WriteConfig(ctx, node, RegGenSetL, []uint32{low, GenSetConfigComplete})
}
