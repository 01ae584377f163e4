package flasher

import (
	"errors"
	"fmt"

	"github.com/bigbag/ufptool/internal/protocol"
)

var (
	// ErrNoSupportedProtocol is returned when the device advertises neither
	// sync protocol.
	ErrNoSupportedProtocol = errors.New("the device supports neither FFU protocol sync v1 nor sync v2")

	// ErrV2Unsupported is returned when the device refuses a v2 header packet.
	ErrV2Unsupported = errors.New("flash protocol v2 not supported")

	// ErrShortResponse is returned for a packet answer without a result word.
	ErrShortResponse = errors.New("short response to flash packet")
)

// FlashError is a non-zero result code reported for an FFU packet.
type FlashError struct {
	Code uint16
}

func (e *FlashError) Error() string {
	return fmt.Sprintf("Error 0x%04X: %s", e.Code, protocol.ErrorMessage(e.Code))
}

// Diagnosis returns the human-readable meaning of the code.
func (e *FlashError) Diagnosis() string {
	return protocol.ErrorMessage(e.Code)
}
