package tlp

import (
	"encoding/binary"
	"fmt"
)

// headerArgSize is the size of header + argument on the wire.
const headerArgSize = 6

// MaxPacketSize is the largest packet on the wire.
const MaxPacketSize = headerArgSize + 4*MaxPayloadWords

// Len returns the size of the packet on the wire in bytes.
func (p *Packet) Len() int {
	return headerArgSize + 4*len(p.Payload)
}

// Pack serializes the packet to its big-endian wire format:
//
//	[Header(2)][Argument(4)][Payload(4 * n)]
//
// Pack writes the payload as held; call Validate first when the packet was not
// produced by one of the encoders.
func (p *Packet) Pack() []byte {
	buf := make([]byte, p.Len())
	binary.BigEndian.PutUint16(buf[0:2], p.Header)
	binary.BigEndian.PutUint32(buf[2:6], p.Argument)
	for i, w := range p.Payload {
		binary.BigEndian.PutUint32(buf[headerArgSize+4*i:], w)
	}

	return buf
}

// ParsePacket deserializes a packet from its wire format.
//
// The number of payload words is taken from the header and argument (see
// Packet.WireWords). data must hold exactly that many words: a shorter or
// longer buffer yields ErrPayloadLengthMismatch, so the decoder never reads past
// the declared length.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < headerArgSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrShortPacket, len(data))
	}

	pkt := &Packet{
		Header:   binary.BigEndian.Uint16(data[0:2]),
		Argument: binary.BigEndian.Uint32(data[2:6]),
	}

	words := pkt.WireWords()
	if want := headerArgSize + 4*words; len(data) != want {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrPayloadLengthMismatch, len(data), want)
	}

	if words > 0 {
		pkt.Payload = make([]uint32, words)
		for i := range pkt.Payload {
			pkt.Payload[i] = binary.BigEndian.Uint32(data[headerArgSize+4*i:])
		}
	}

	return pkt, nil
}
