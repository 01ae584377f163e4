package ufp

import (
	"context"

	"github.com/bigbag/ufptool/internal/protocol"
)

// ReadLog pulls a complete device log in pages sized to fit the transport
// buffer. The log is absent if its size is unknown or zero, or if any page
// comes back malformed.
func (d *Device) ReadLog(ctx context.Context, logType LogType) ([]byte, bool) {
	size, ok := d.ReadLogSize(ctx, logType)
	if !ok || size == 0 {
		return nil, false
	}

	ceiling := uint64(d.config.TransferBufferSize - protocol.LogResponseHeader)
	log := make([]byte, 0, size)
	for offset := uint64(0); offset < size; {
		page := size - offset
		if page > ceiling {
			page = ceiling
		}

		resp := d.query(ctx, protocol.LogPageRequest(byte(logType), uint32(page), offset))
		if len(resp) < protocol.LogResponseHeader {
			d.config.Logger.Debug("log page malformed", "offset", offset, "length", len(resp))
			return nil, false
		}
		log = append(log, resp[protocol.LogResponseHeader:]...)
		offset += page
	}
	return log, true
}
