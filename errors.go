package bridge

import "errors"

// Sentinel errors surfaced to callers.
var (
	// ErrInvalidPacket is returned when an input buffer is too short or
	// carries an unrecognized IP version nibble.
	ErrInvalidPacket = errors.New("l2bridge: invalid packet")

	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = errors.New("l2bridge: translator closed")
)
