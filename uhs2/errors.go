package uhs2

import "errors"

var (
	// ErrTransportNil indicates that a nil Transport was provided.
	ErrTransportNil = errors.New("uhs2: transport is nil")

	// ErrDeviceInitTimeout indicates that DEVICE_INIT did not complete within the
	// configured number of attempts.
	ErrDeviceInitTimeout = errors.New("uhs2: device init timeout")

	// ErrProtocolViolation indicates a response that does not match its request:
	// wrong packet type, mismatched IOADR or direction, or a payload inconsistent
	// with its declared length.
	ErrProtocolViolation = errors.New("uhs2: protocol violation")

	// ErrNotEnumerated indicates an addressed operation on a node without a node ID.
	ErrNotEnumerated = errors.New("uhs2: node is not enumerated")

	// ErrUnknownNode indicates that no attached node has the requested node ID.
	ErrUnknownNode = errors.New("uhs2: unknown node")

	// ErrNodeIDConflict indicates that enumeration returned a node ID already attached.
	ErrNodeIDConflict = errors.New("uhs2: node ID already attached")
)
