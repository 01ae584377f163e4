package ufp

import (
	"context"
	"fmt"

	"github.com/bigbag/ufptool/internal/gpt"
	"github.com/bigbag/ufptool/internal/protocol"
)

// ReadGPT reads the primary GPT from the boot device. The response carries
// an 8-byte prefix, the protective MBR sector, the header sector and the
// entry table; the prefix and MBR are dropped.
//
// On a secure bootloader this only works from the boot manager, so callers
// holding a DeviceInfo with IsBootloaderSecure set must switch modes first.
func (d *Device) ReadGPT(ctx context.Context) (*gpt.Table, error) {
	resp, err := d.SendAndReceive(ctx, protocol.NewRequest(protocol.GetGPTSignature, 4))
	if err != nil {
		return nil, fmt.Errorf("unable to read GPT: %w", err)
	}
	if len(resp) < protocol.GPTResponseSize512 {
		if code, ok := protocol.ResultCode(resp); ok && code != protocol.ResultOK {
			return nil, &DeviceError{Command: protocol.GetGPTSignature, Code: code}
		}
		return nil, &UnexpectedResponseError{
			Command: protocol.GetGPTSignature,
			Reason:  fmt.Sprintf("short response of %d bytes", len(resp)),
		}
	}
	if code, _ := protocol.ResultCode(resp); code != protocol.ResultOK {
		return nil, &DeviceError{Command: protocol.GetGPTSignature, Code: code}
	}

	var sectorSize uint32
	switch len(resp) {
	case protocol.GPTResponseSize512:
		sectorSize = 512
	case protocol.GPTResponseSize4096:
		sectorSize = 4096
	default:
		return nil, fmt.Errorf("%w: GPT response of 0x%X bytes", ErrUnsupportedSectorSize, len(resp)-8)
	}

	buf := make([]byte, len(resp)-8-int(sectorSize))
	copy(buf, resp[8+int(sectorSize):])
	return gpt.Parse(buf, sectorSize)
}
