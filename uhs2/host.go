package uhs2

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/arloliu/go-uhs2/logger"
	"github.com/arloliu/go-uhs2/tlp"
)

// Host drives the transaction-layer handshakes over a Transport.
//
// A Host has no per-device state and may be shared by goroutines working on
// different devices.
type Host struct {
	tr      Transport
	cfg     *HostConfig
	logger  logger.Logger
	tracer  trace.Tracer
	metrics Metrics
}

// NewHost creates a Host submitting packets through tr.
// A nil cfg uses the defaults of NewHostConfig.
func NewHost(tr Transport, cfg *HostConfig) (*Host, error) {
	if tr == nil {
		return nil, ErrTransportNil
	}

	if cfg == nil {
		var err error
		if cfg, err = NewHostConfig(); err != nil {
			return nil, err
		}
	}

	return &Host{
		tr:     tr,
		cfg:    cfg,
		logger: cfg.logger,
		tracer: cfg.tracer,
	}, nil
}

// Config returns the host configuration.
func (h *Host) Config() *HostConfig {
	return h.cfg
}

// Metrics returns the host metrics.
func (h *Host) Metrics() *Metrics {
	return &h.metrics
}

// exchange submits pkt once and validates the response against it.
//
// A transport error is returned unchanged. A response that does not match the
// request is reported as ErrProtocolViolation.
func (h *Host) exchange(ctx context.Context, pkt *tlp.Packet, kind tlp.CommandKind) (*tlp.Packet, error) {
	env := tlp.NewEnvelope(pkt, kind)

	h.metrics.incPacketSendCount()
	rsp, err := h.tr.Submit(ctx, env)
	if err != nil {
		h.metrics.incTransportErrCount()
		h.logger.Debug("uhs2: transport error", "packet", pkt, "kind", kind, "error", err)

		return nil, err
	}

	if err := checkResponse(pkt, rsp); err != nil {
		h.metrics.incProtocolErrCount()
		h.logger.Debug("uhs2: invalid response", "packet", pkt, "error", err)

		return nil, err
	}

	return rsp, nil
}

// checkResponse verifies that rsp answers req.
func checkResponse(req, rsp *tlp.Packet) error {
	if rsp == nil {
		return fmt.Errorf("%w: missing response", ErrProtocolViolation)
	}

	if rsp.Type() != tlp.TypeResponse {
		return fmt.Errorf("%w: response type %s", ErrProtocolViolation, rsp.Type())
	}

	if err := rsp.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	}

	if rsp.Native() != req.Native() {
		return fmt.Errorf("%w: native flag mismatch", ErrProtocolViolation)
	}

	if req.Native() {
		if rsp.IOADR() != req.IOADR() {
			return fmt.Errorf("%w: IOADR 0x%03X, want 0x%03X", ErrProtocolViolation, rsp.IOADR(), req.IOADR())
		}
		if rsp.IsWrite() != req.IsWrite() {
			return fmt.Errorf("%w: direction mismatch", ErrProtocolViolation)
		}

		return nil
	}

	if rsp.CmdIndex() != req.CmdIndex() {
		return fmt.Errorf("%w: command index %d, want %d", ErrProtocolViolation, rsp.CmdIndex(), req.CmdIndex())
	}

	return nil
}

// firstWord returns payload word 0 of a response that must carry one.
func firstWord(rsp *tlp.Packet) (uint32, error) {
	w, ok := rsp.Word(0)
	if !ok {
		return 0, fmt.Errorf("%w: empty response payload", ErrProtocolViolation)
	}

	return w, nil
}

func (h *Host) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return h.tracer.Start(ctx, "uhs2."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func nodeAttr(id tlp.NodeID) attribute.KeyValue {
	return attribute.Int("uhs2.node_id", int(id))
}
