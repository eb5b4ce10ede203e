package tlp

import (
	"fmt"

	"github.com/arloliu/go-uhs2/internal/util"
)

// MaxPayloadWords is the largest payload a packet can declare (5-bit PLEN field).
const MaxPayloadWords = 31

// SpaceWords is the number of 32-bit registers addressable in one address space (8-bit offset).
const SpaceWords = 256

// PacketType is the 2-bit packet type carried in header bits [15:14].
type PacketType uint8

const (
	TypeControl  PacketType = 0 // CCMD
	TypeData     PacketType = 1 // DCMD
	TypeResponse PacketType = 2 // RES
	TypeDataBody PacketType = 3 // DATA
)

// String returns the short protocol name of the packet type.
func (t PacketType) String() string {
	switch t {
	case TypeControl:
		return "CCMD"
	case TypeData:
		return "DCMD"
	case TypeResponse:
		return "RES"
	case TypeDataBody:
		return "DATA"
	default:
		return fmt.Sprintf("PacketType(%d)", uint8(t))
	}
}

// NodeID is the 4-bit node identifier assigned to a device during enumeration.
type NodeID uint8

const (
	// UnassignedNode is the destination used before a device has a node ID.
	UnassignedNode NodeID = 0

	// MaxNodeID is the largest representable node ID.
	MaxNodeID NodeID = 0x0F
)

// Space is the 4-bit address space selector of an IOADR.
type Space uint8

const (
	SpaceConfig    Space = 0x0 // 000h-0FFh
	SpaceInterrupt Space = 0x1 // 100h-17Fh
	SpaceStatus    Space = 0x1 // 180h-1FFh, shares the interrupt space selector
	SpaceCommand   Space = 0x2 // 200h-2FFh
	SpaceVendor    Space = 0xF // F00h-FFFh
)

// Valid reports whether s selects a defined address space.
func (s Space) Valid() bool {
	switch s {
	case SpaceConfig, SpaceInterrupt, SpaceCommand, SpaceVendor:
		return true
	default:
		return false
	}
}

// IOADR packs an address space selector and register offset into a 12-bit IOADR.
func IOADR(space Space, offset uint8) uint16 {
	return uint16(space&0x0F)<<8 | uint16(offset)
}

// LaneMode holds the lane configuration capability bits of a device.
type LaneMode uint8

const (
	Lane2LHD   LaneMode = 0x01 // 2 lanes, half duplex
	Lane2D1UFD LaneMode = 0x02 // 2 down 1 up, full duplex
	Lane1D2UFD LaneMode = 0x04 // 1 down 2 up, full duplex
	Lane2D2UFD LaneMode = 0x08 // 2 down 2 up, full duplex
)

// HalfDuplex reports whether the device supports the 2-lane half-duplex mode.
func (m LaneMode) HalfDuplex() bool {
	return m&Lane2LHD != 0
}

// Transfer mode bits of the 2-bit TMODE field.
const (
	TModeHalfDuplex      uint8 = 0x1 // DM
	TModeLengthSpecified uint8 = 0x2 // LM
)

const (
	headerTypeShift = 14
	headerTypeMask  = 0x3 << headerTypeShift
	headerNoPause   = 1 << 13
	headerNative    = 1 << 7
	headerDIDMask   = 0x0F
)

const (
	argDirWrite     = 1 << 31
	argPLenShift    = 26
	argPLenMask     = 0x1F << argPLenShift
	argTModeShift   = 24
	argTModeMask    = 0x3 << argTModeShift
	argAppCmd       = 1 << 23
	argIOADRMask    = 0x0FFF
	argCmdIndexMask = 0x3F
)

// Packet is a single transaction layer packet.
type Packet struct {
	Header   uint16
	Argument uint32
	Payload  []uint32
}

// --- Header accessors ---

// Type returns the packet type (header bits [15:14]).
func (p *Packet) Type() PacketType {
	return PacketType((p.Header & headerTypeMask) >> headerTypeShift)
}

// SetType sets the packet type.
func (p *Packet) SetType(t PacketType) {
	p.Header = (p.Header &^ headerTypeMask) | (uint16(t)<<headerTypeShift)&headerTypeMask
}

// NoPause returns the NP flag (header bit 13).
func (p *Packet) NoPause() bool {
	return p.Header&headerNoPause != 0
}

// SetNoPause sets or clears the NP flag.
func (p *Packet) SetNoPause(v bool) {
	if v {
		p.Header |= headerNoPause
	} else {
		p.Header &^= headerNoPause
	}
}

// Native reports whether the packet addresses the IOADR space (header bit 7).
// An SD-TRAN packet carries a command index instead.
func (p *Packet) Native() bool {
	return p.Header&headerNative != 0
}

// SetNative sets or clears the NATIVE flag.
func (p *Packet) SetNative(v bool) {
	if v {
		p.Header |= headerNative
	} else {
		p.Header &^= headerNative
	}
}

// DestID returns the 4-bit destination node ID.
func (p *Packet) DestID() NodeID {
	return NodeID(p.Header & headerDIDMask)
}

// SetDestID sets the destination node ID. Values above 4 bits are masked.
func (p *Packet) SetDestID(id NodeID) {
	p.Header = (p.Header &^ headerDIDMask) | uint16(id)&headerDIDMask
}

// --- Argument accessors ---

// IsWrite returns the DIR bit: true for write, false for read.
func (p *Packet) IsWrite() bool {
	return p.Argument&argDirWrite != 0
}

// SetWrite sets the DIR bit.
func (p *Packet) SetWrite(v bool) {
	if v {
		p.Argument |= argDirWrite
	} else {
		p.Argument &^= argDirWrite
	}
}

// PayloadLen returns the declared payload length in words.
func (p *Packet) PayloadLen() int {
	return int((p.Argument & argPLenMask) >> argPLenShift)
}

// SetPayloadLen sets the declared payload length. Values above 5 bits are masked.
func (p *Packet) SetPayloadLen(n int) {
	p.Argument = (p.Argument &^ argPLenMask) | (uint32(n)<<argPLenShift)&argPLenMask //nolint:gosec // masked
}

// TransferMode returns the 2-bit TMODE field.
func (p *Packet) TransferMode() uint8 {
	return uint8((p.Argument & argTModeMask) >> argTModeShift)
}

// SetTransferMode sets the TMODE field.
func (p *Packet) SetTransferMode(mode uint8) {
	p.Argument = (p.Argument &^ argTModeMask) | (uint32(mode)<<argTModeShift)&argTModeMask
}

// AppCmd returns the application command flag.
func (p *Packet) AppCmd() bool {
	return p.Argument&argAppCmd != 0
}

// SetAppCmd sets or clears the application command flag.
func (p *Packet) SetAppCmd(v bool) {
	if v {
		p.Argument |= argAppCmd
	} else {
		p.Argument &^= argAppCmd
	}
}

// IOADR returns the 12-bit IOADR of a native packet.
func (p *Packet) IOADR() uint16 {
	return uint16(p.Argument & argIOADRMask)
}

// SetIOADR sets the 12-bit IOADR.
func (p *Packet) SetIOADR(ioadr uint16) {
	p.Argument = (p.Argument &^ argIOADRMask) | uint32(ioadr)&argIOADRMask
}

// Space returns the address space selector of the IOADR.
func (p *Packet) Space() Space {
	return Space((p.IOADR() >> 8) & 0x0F)
}

// Offset returns the register offset of the IOADR.
func (p *Packet) Offset() uint8 {
	return uint8(p.IOADR() & 0xFF)
}

// CmdIndex returns the command index of an SD-TRAN or data packet.
func (p *Packet) CmdIndex() uint8 {
	return uint8(p.Argument & argCmdIndexMask)
}

// SetCmdIndex sets the command index. Values above 6 bits are masked.
func (p *Packet) SetCmdIndex(idx uint8) {
	p.Argument = (p.Argument &^ argCmdIndexMask) | uint32(idx)&argCmdIndexMask
}

// --- Payload ---

// WireWords returns the number of payload words the packet carries on the wire.
//
// It equals PayloadLen for every packet except a native read CCMD, which
// requests PayloadLen words from the device and carries none itself.
func (p *Packet) WireWords() int {
	if p.Type() == TypeControl && p.Native() && !p.IsWrite() {
		return 0
	}

	return p.PayloadLen()
}

// Validate checks that the payload holds exactly WireWords words.
func (p *Packet) Validate() error {
	if want := p.WireWords(); len(p.Payload) != want {
		return fmt.Errorf("%w: declared %d words, carries %d", ErrPayloadLengthMismatch, want, len(p.Payload))
	}

	return nil
}

// Word returns payload word i, or false if i is beyond the declared payload.
func (p *Packet) Word(i int) (uint32, bool) {
	if i < 0 || i >= p.WireWords() || i >= len(p.Payload) {
		return 0, false
	}

	return p.Payload[i], true
}

// Clone returns a deep copy of the packet.
func (p *Packet) Clone() *Packet {
	clone := &Packet{Header: p.Header, Argument: p.Argument}
	if p.Payload != nil {
		clone.Payload = util.CloneSlice(p.Payload, 0)
	}

	return clone
}

// String returns a compact description for logging.
func (p *Packet) String() string {
	if p.Native() {
		return fmt.Sprintf("%s did=%d dir=%s ioadr=0x%03X plen=%d", p.Type(), p.DestID(), dirString(p.IsWrite()), p.IOADR(), p.PayloadLen())
	}

	return fmt.Sprintf("%s did=%d dir=%s cmd=%d app=%t plen=%d tmode=%d",
		p.Type(), p.DestID(), dirString(p.IsWrite()), p.CmdIndex(), p.AppCmd(), p.PayloadLen(), p.TransferMode())
}

func dirString(write bool) string {
	if write {
		return "W"
	}

	return "R"
}
