package streamlink

import (
	"encoding/binary"
	"fmt"

	"github.com/arloliu/go-uhs2/tlp"
)

const (
	// MinFrameLength is the smallest valid Length byte (header and argument only).
	MinFrameLength = 6

	// MaxFrameLength is the largest valid Length byte (31 payload words).
	MaxFrameLength = tlp.MaxPacketSize

	checksumSize = 2
)

// checksum returns the 16-bit arithmetic sum of data.
func checksum(data []byte) uint16 {
	var sum uint32
	for _, v := range data {
		sum += uint32(v)
	}

	return uint16(sum & 0xFFFF) //nolint:gosec // 16-bit sum by definition
}

// validLength reports whether n is a Length byte value a packet can produce.
func validLength(n int) bool {
	return n >= MinFrameLength && n <= MaxFrameLength && (n-MinFrameLength)%4 == 0
}

// packFrame serializes pkt to its frame:
//
//	[Length(1)][Packet(Length)][Checksum(2)]
func packFrame(pkt *tlp.Packet) []byte {
	body := pkt.Pack()
	buf := make([]byte, 1+len(body)+checksumSize)

	buf[0] = byte(len(body))
	copy(buf[1:], body)
	binary.BigEndian.PutUint16(buf[1+len(body):], checksum(body))

	return buf
}

// parseFrame decodes a frame from its Length byte and the bytes that follow it.
// data must hold exactly lengthByte + checksumSize bytes.
func parseFrame(lengthByte byte, data []byte) (*tlp.Packet, error) {
	length := int(lengthByte)
	if !validLength(length) {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLength, length)
	}

	if len(data) != length+checksumSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidLength, len(data), length+checksumSize)
	}

	body := data[:length]
	wire := binary.BigEndian.Uint16(data[length:])
	if calc := checksum(body); wire != calc {
		return nil, fmt.Errorf("%w: wire=0x%04X, computed=0x%04X", ErrChecksumMismatch, wire, calc)
	}

	return tlp.ParsePacket(body)
}
