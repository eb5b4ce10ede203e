package streamlink

import "errors"

var (
	// ErrResponseTimeout indicates that no response frame arrived within the
	// timeout of the command kind, after all allowed retransmits.
	ErrResponseTimeout = errors.New("streamlink: response timeout")

	// ErrInterCharTimeout indicates that a frame stopped arriving part way through.
	ErrInterCharTimeout = errors.New("streamlink: inter-character timeout")

	// ErrChecksumMismatch indicates a frame whose checksum does not match its content.
	ErrChecksumMismatch = errors.New("streamlink: checksum mismatch")

	// ErrInvalidLength indicates a length byte that does not describe a packet.
	ErrInvalidLength = errors.New("streamlink: invalid frame length")

	// ErrLinkClosed indicates that the link has been closed.
	ErrLinkClosed = errors.New("streamlink: link closed")

	// ErrConnNil indicates that a nil connection was provided.
	ErrConnNil = errors.New("streamlink: connection is nil")

	// ErrEmptyEnvelope indicates an envelope without a packet.
	ErrEmptyEnvelope = errors.New("streamlink: envelope has no packet")

	// ErrInvalidKind indicates an envelope with a command kind the link has no policy for.
	ErrInvalidKind = errors.New("streamlink: invalid command kind")
)
