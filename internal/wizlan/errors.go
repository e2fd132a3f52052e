package wizlan

import "errors"

var (
	// ErrTimeout indicates the bulb did not answer within the deadline.
	ErrTimeout = errors.New("wizlan: request timed out")

	// ErrConnectionFailed indicates the socket could not be set up or
	// the datagram could not be sent.
	ErrConnectionFailed = errors.New("wizlan: connection failed")

	// ErrInvalidResponse indicates the bulb answered with a datagram
	// that could not be decoded.
	ErrInvalidResponse = errors.New("wizlan: invalid response")

	// ErrBulbError indicates the bulb answered with a protocol-level
	// error object.
	ErrBulbError = errors.New("wizlan: bulb returned error")
)
