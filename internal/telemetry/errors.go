package telemetry

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportUnavailable means no serial capability exists on this host
	ErrTransportUnavailable = errors.New("serial transport unavailable")
	// ErrConnectionFailed covers open and permission failures
	ErrConnectionFailed = errors.New("connection failed")
	// ErrStreamFailed is a read failure in the middle of a session
	ErrStreamFailed = errors.New("stream read failed")
	// ErrMalformedRecord is a framed line that produced no usable sample
	ErrMalformedRecord = errors.New("malformed record")
	// ErrNoUsableField is a decoded record with none of the known keys
	ErrNoUsableField = fmt.Errorf("%w: no usable field", ErrMalformedRecord)

	ErrNotDisconnected      = errors.New("connection is not disconnected")
	ErrMultiplierOutOfRange = errors.New("calibration multiplier out of range")
	ErrUnsupportedBaudRate  = errors.New("unsupported baud rate")
)
