package tlp

import (
	"errors"
	"fmt"
)

// ErrEncoding is the root of every error returned by the packet encoders.
// Encoding errors are local: the packet is never put on the wire.
var ErrEncoding = errors.New("tlp: encoding error")

var (
	ErrPayloadTooLong  = fmt.Errorf("%w: payload exceeds %d words", ErrEncoding, MaxPayloadWords)
	ErrInvalidSpace    = fmt.Errorf("%w: invalid address space", ErrEncoding)
	ErrInvalidNodeID   = fmt.Errorf("%w: node ID out of range [0, %d]", ErrEncoding, MaxNodeID)
	ErrAddressOverflow = fmt.Errorf("%w: access crosses the end of the address space", ErrEncoding)
	ErrInvalidLength   = fmt.Errorf("%w: invalid read length", ErrEncoding)
	ErrInvalidCmdIndex = fmt.Errorf("%w: command index out of range [0, %d]", ErrEncoding, argCmdIndexMask)
)

// ErrMalformed is the root of every error returned while decoding a packet.
var ErrMalformed = errors.New("tlp: malformed packet")

var (
	// ErrShortPacket indicates that the buffer is smaller than header + argument.
	ErrShortPacket = fmt.Errorf("%w: shorter than %d bytes", ErrMalformed, headerArgSize)

	// ErrPayloadLengthMismatch indicates that the number of payload words differs
	// from the length declared by the header and argument.
	ErrPayloadLengthMismatch = fmt.Errorf("%w: payload length mismatch", ErrMalformed)
)
