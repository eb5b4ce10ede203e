package uhs2

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/arloliu/go-uhs2/tlp"
)

// Command sends a legacy command to node in an SD-TRAN CCMD and returns the
// first word of the response (the command response).
func (h *Host) Command(ctx context.Context, node *Node, index uint8, appCmd bool, arg uint32) (resp uint32, err error) {
	dest, err := node.dest()
	if err != nil {
		return 0, err
	}

	ctx, span := h.startSpan(ctx, "Command", nodeAttr(dest), attribute.Int("uhs2.cmd_index", int(index)))
	defer func() { endSpan(span, err) }()

	pkt, err := tlp.EncodeCommand(tlp.Command{Dest: dest, Index: index, AppCmd: appCmd, Arg: arg})
	if err != nil {
		return 0, err
	}

	rsp, err := h.exchange(ctx, pkt, tlp.CommandNormal)
	if err != nil {
		return 0, err
	}

	resp, err = firstWord(rsp)
	if err != nil {
		h.metrics.incProtocolErrCount()
	}

	return resp, err
}

// DataRequest describes a data command sent with Host.DataCommand.
type DataRequest struct {
	Index      uint8
	AppCmd     bool
	Write      bool
	MultiBlock bool
	Arg        uint32
	// BlockCount is the number of blocks of a multi-block transfer, 0 if unknown.
	BlockCount uint32
}

// DataCommand sends a DCMD to node. The transfer mode is derived from the lane
// mode recorded on node. The response packet is returned as received; the data
// phase itself belongs to the transport.
func (h *Host) DataCommand(ctx context.Context, node *Node, req DataRequest) (rsp *tlp.Packet, err error) {
	dest, err := node.dest()
	if err != nil {
		return nil, err
	}

	ctx, span := h.startSpan(ctx, "DataCommand", nodeAttr(dest),
		attribute.Int("uhs2.cmd_index", int(req.Index)),
		attribute.Bool("uhs2.multi_block", req.MultiBlock),
	)
	defer func() { endSpan(span, err) }()

	pkt, err := tlp.EncodeData(tlp.DataCommand{
		Dest:       dest,
		Index:      req.Index,
		AppCmd:     req.AppCmd,
		Write:      req.Write,
		MultiBlock: req.MultiBlock,
		LaneMode:   node.LaneMode(),
		Arg:        req.Arg,
		BlockCount: req.BlockCount,
	})
	if err != nil {
		return nil, err
	}

	return h.exchange(ctx, pkt, tlp.CommandNormal)
}
