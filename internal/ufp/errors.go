package ufp

import (
	"errors"
	"fmt"
)

var (
	// ErrNoResponse is returned when a request expecting an answer got none.
	ErrNoResponse = errors.New("no response from device")

	// ErrUnsupportedSectorSize is returned by ReadGPT for unknown response sizes.
	ErrUnsupportedSectorSize = errors.New("unsupported sector size")
)

// UnexpectedResponseError reports a response that does not match the request.
type UnexpectedResponseError struct {
	Command string
	Reason  string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected response to %s: %s", e.Command, e.Reason)
}

// DeviceError is a non-zero status word returned for a plain command.
type DeviceError struct {
	Command string
	Code    uint16
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s failed with error 0x%04X", e.Command, e.Code)
}
