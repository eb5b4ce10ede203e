package tlp

import (
	"fmt"

	"github.com/arloliu/go-uhs2/internal/util"
)

// ControlRequest describes a native CCMD addressed at the IOADR space.
type ControlRequest struct {
	// Dest is the destination node. Use UnassignedNode before enumeration.
	Dest NodeID
	// Write selects the write direction. Read requests carry no payload.
	Write bool
	// Space and Offset form the IOADR of the first register accessed.
	Space  Space
	Offset uint8
	// Length is the number of words requested by a read. Ignored for writes.
	Length int
	// Words is the payload of a write, in register order.
	Words []uint32
}

// EncodeControl builds a native CCMD.
//
// The header carries NP and NATIVE with the destination node ID. The argument
// declares the direction, the payload length and the IOADR. A write copies
// Words into the payload; a read declares Length and carries no payload.
//
// Returns an error wrapping ErrEncoding when the request cannot be represented:
// destination above MaxNodeID, undefined address space, more than MaxPayloadWords
// words, a read of zero words, or an access running past the end of the space.
func EncodeControl(req ControlRequest) (*Packet, error) {
	if req.Dest > MaxNodeID {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidNodeID, req.Dest)
	}
	if !req.Space.Valid() {
		return nil, fmt.Errorf("%w: 0x%X", ErrInvalidSpace, uint8(req.Space))
	}

	n := req.Length
	if req.Write {
		n = len(req.Words)
	} else {
		if len(req.Words) != 0 {
			return nil, fmt.Errorf("%w: read request carries %d payload words", ErrInvalidLength, len(req.Words))
		}
		if n < 1 {
			return nil, fmt.Errorf("%w: got %d", ErrInvalidLength, n)
		}
	}

	if n > MaxPayloadWords {
		return nil, fmt.Errorf("%w: got %d", ErrPayloadTooLong, n)
	}
	if int(req.Offset)+n > SpaceWords {
		return nil, fmt.Errorf("%w: offset 0x%02X + %d words", ErrAddressOverflow, req.Offset, n)
	}

	pkt := &Packet{}
	pkt.SetType(TypeControl)
	pkt.SetNoPause(true)
	pkt.SetNative(true)
	pkt.SetDestID(req.Dest)
	pkt.SetWrite(req.Write)
	pkt.SetPayloadLen(n)
	pkt.SetIOADR(IOADR(req.Space, req.Offset))

	if req.Write {
		pkt.Payload = util.CloneSlice(req.Words, 0)
	}

	return pkt, nil
}

// Command describes a legacy command carried in an SD-TRAN CCMD.
type Command struct {
	Dest   NodeID
	Index  uint8
	AppCmd bool
	Arg    uint32
}

// EncodeCommand packs a legacy command into an SD-TRAN CCMD with a single
// argument word. The application command flag replaces the separate APP_CMD
// exchange used on the legacy bus.
func EncodeCommand(cmd Command) (*Packet, error) {
	if cmd.Dest > MaxNodeID {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidNodeID, cmd.Dest)
	}
	if cmd.Index > argCmdIndexMask {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCmdIndex, cmd.Index)
	}

	pkt := &Packet{}
	pkt.SetType(TypeControl)
	pkt.SetDestID(cmd.Dest)
	pkt.SetCmdIndex(cmd.Index)
	pkt.SetAppCmd(cmd.AppCmd)
	pkt.SetPayloadLen(1)
	pkt.Payload = []uint32{cmd.Arg}

	return pkt, nil
}

// DataCommand describes a DCMD.
type DataCommand struct {
	Dest   NodeID
	Index  uint8
	AppCmd bool
	// Write is taken from the data direction of the transfer.
	Write bool
	// MultiBlock marks a transfer whose length is given by BlockCount.
	MultiBlock bool
	// LaneMode is the lane capability of the destination device.
	LaneMode LaneMode
	Arg      uint32
	// BlockCount is the transfer length of a multi-block transfer, 0 if unknown.
	BlockCount uint32
}

// EncodeData builds a DCMD.
//
// The payload always holds two words: the command argument and the transfer
// length. For a multi-block transfer TMODE declares "length specified", plus the
// half-duplex bit when the device supports 2-lane half duplex, and the transfer
// length is BlockCount. Otherwise TMODE is 0 and the transfer length is 0.
func EncodeData(cmd DataCommand) (*Packet, error) {
	if cmd.Dest > MaxNodeID {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidNodeID, cmd.Dest)
	}
	if cmd.Index > argCmdIndexMask {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCmdIndex, cmd.Index)
	}

	var tmode uint8
	var tlen uint32
	if cmd.MultiBlock {
		tmode |= TModeLengthSpecified
		if cmd.LaneMode.HalfDuplex() {
			tmode |= TModeHalfDuplex
		}
		tlen = cmd.BlockCount
	}

	pkt := &Packet{}
	pkt.SetType(TypeData)
	pkt.SetDestID(cmd.Dest)
	pkt.SetCmdIndex(cmd.Index)
	pkt.SetAppCmd(cmd.AppCmd)
	pkt.SetWrite(cmd.Write)
	pkt.SetTransferMode(tmode)
	pkt.SetPayloadLen(2)
	pkt.Payload = []uint32{cmd.Arg, tlen}

	return pkt, nil
}

// EncodeResponse builds the RES packet a device returns for req.
//
// The argument of req is echoed with PLEN replaced by len(words), so the host
// can match the response to its request. The destination is the host
// (UnassignedNode).
func EncodeResponse(req *Packet, words []uint32) (*Packet, error) {
	if len(words) > MaxPayloadWords {
		return nil, fmt.Errorf("%w: got %d", ErrPayloadTooLong, len(words))
	}

	pkt := &Packet{Argument: req.Argument}
	pkt.SetType(TypeResponse)
	pkt.SetNoPause(req.NoPause())
	pkt.SetNative(req.Native())
	pkt.SetDestID(UnassignedNode)
	pkt.SetPayloadLen(len(words))
	pkt.Payload = util.CloneSlice(words, 0)

	return pkt, nil
}
