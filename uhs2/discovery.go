package uhs2

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/arloliu/go-uhs2/tlp"
)

// initStep classifies the outcome of one DEVICE_INIT round.
type initStep int

const (
	initResolved   initStep = iota // CF set, a single device is addressable
	initBackoff                    // gap saturated at the ceiling, discriminator advanced
	initConverging                 // gap below the ceiling, discriminator kept
)

func (s initStep) String() string {
	switch s {
	case initResolved:
		return "resolved"
	case initBackoff:
		return "backoff"
	case initConverging:
		return "converging"
	default:
		return fmt.Sprintf("initStep(%d)", int(s))
	}
}

// initState is the DEVICE_INIT state threaded through each round.
type initState struct {
	gd      uint8 // discriminator, MaxDiscriminator wraps to 0
	attempt int   // rounds completed
}

// payload returns the DEVICE_INIT word for the next round: the host capability
// word with the current discriminator in the GD field.
func (s initState) payload(capability uint32) uint32 {
	return capability&^gdMask | uint32(s.gd)<<gdShift
}

// next consumes the device's response word and returns the state for the next
// round together with the round's outcome.
func (s initState) next(rsp uint32, maxGap uint8) (initState, initStep) {
	s.attempt++

	if rsp&DeviceInitCF != 0 {
		return s, initResolved
	}

	if DeviceInitGap(rsp) == maxGap {
		s.gd = (s.gd + 1) & MaxDiscriminator
		return s, initBackoff
	}

	return s, initConverging
}

// DeviceInit runs the DEVICE_INIT handshake against the devices that have not
// been assigned a node ID.
//
// Each round sends the host capability word (CF, max gap, max dap) with the
// current discriminator to the unassigned target:
//
//   - A transport error ends the handshake and is returned unchanged.
//   - A response with CF set ends the handshake successfully.
//   - A response whose gap equals the host max gap advances the discriminator.
//   - Any other response repeats the round with the same discriminator.
//
// After the configured number of rounds without CF, ErrDeviceInitTimeout is returned.
func (h *Host) DeviceInit(ctx context.Context) (err error) {
	ctx, span := h.startSpan(ctx, "DeviceInit",
		attribute.Int("uhs2.max_gap", int(h.cfg.maxGap)),
		attribute.Int("uhs2.max_dap", int(h.cfg.maxDap)),
	)
	defer func() { endSpan(span, err) }()

	capability := DeviceInitPayload(0, h.cfg.maxGap, h.cfg.maxDap, true)
	state := initState{}

	for state.attempt < h.cfg.discoveryAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}

		pkt, err := tlp.EncodeControl(tlp.ControlRequest{
			Dest:   tlp.UnassignedNode,
			Write:  true,
			Space:  tlp.SpaceCommand,
			Offset: RegDeviceInit,
			Words:  []uint32{state.payload(capability)},
		})
		if err != nil {
			return err
		}

		h.metrics.incDeviceInitAttemptCount()
		rsp, err := h.exchange(ctx, pkt, tlp.CommandNormal)
		if err != nil {
			return err
		}

		word, err := firstWord(rsp)
		if err != nil {
			h.metrics.incProtocolErrCount()
			return err
		}

		var step initStep
		prevGD := state.gd
		state, step = state.next(word, h.cfg.maxGap)

		h.logger.Debug("uhs2: device init round",
			"attempt", state.attempt,
			"gd", prevGD,
			"gap", DeviceInitGap(word),
			"step", step,
		)

		switch step {
		case initResolved:
			span.SetAttributes(attribute.Int("uhs2.device_init_attempts", state.attempt))
			return nil
		case initBackoff:
			h.metrics.incDeviceInitBackoffCount()
		case initConverging:
		}
	}

	h.metrics.incDeviceInitTimeoutCount()
	h.logger.Warn("uhs2: device init did not complete", "attempts", state.attempt, "maxGap", h.cfg.maxGap)

	return fmt.Errorf("%w: no completion after %d attempts", ErrDeviceInitTimeout, state.attempt)
}

// Enumerate runs the ENUMERATE handshake and records the node ID returned by
// the device on node.
//
// The exchange is single-shot. node is updated only after a valid response;
// a device reporting node ID 0, the unassigned target, is a protocol violation.
func (h *Host) Enumerate(ctx context.Context, node *Node) (id tlp.NodeID, err error) {
	ctx, span := h.startSpan(ctx, "Enumerate")
	defer func() { endSpan(span, err) }()

	pkt, err := tlp.EncodeControl(tlp.ControlRequest{
		Dest:   tlp.UnassignedNode,
		Write:  true,
		Space:  tlp.SpaceCommand,
		Offset: RegEnumerate,
		Words:  []uint32{0},
	})
	if err != nil {
		return 0, err
	}

	rsp, err := h.exchange(ctx, pkt, tlp.CommandNormal)
	if err != nil {
		return 0, err
	}

	word, err := firstWord(rsp)
	if err != nil {
		h.metrics.incProtocolErrCount()
		return 0, err
	}

	id = EnumerateNodeID(word)
	if id == tlp.UnassignedNode {
		h.metrics.incProtocolErrCount()
		return 0, fmt.Errorf("%w: device reported the unassigned node ID", ErrProtocolViolation)
	}

	node.assign(id)

	h.metrics.incEnumerateCount()
	span.SetAttributes(nodeAttr(id))
	h.logger.Info("uhs2: device enumerated", "nodeID", id)

	return id, nil
}
