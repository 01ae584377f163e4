package protocol

import (
	"fmt"
)

// FFU protocol bits advertised in the info query. The protocol tag written
// into a secure flash packet equals the bit of the protocol in use.
const (
	ProtocolSyncV1  uint16 = 0x0001
	ProtocolSyncV2  uint16 = 0x0002
	ProtocolAsyncV3 uint16 = 0x0004
)

// Secure flash subblock types
const (
	SubblockHeaderV1  = 0x0B
	SubblockPayloadV1 = 0x0C
	SubblockPayloadV2 = 0x1B
	SubblockHeaderV2  = 0x21
	SubblockPayloadV3 = 0x1D
)

// Fixed prefix sizes of the secure flash packets, before the data bytes.
const (
	HeaderV1Prefix  = 0x20
	HeaderV2Prefix  = 0x3C
	PayloadV1Prefix = 0x1C
	PayloadV2Prefix = 0x20
	PayloadV3Prefix = 0x40
)

// Parameter request layout
const (
	ParamRequestSize   = 0x0B
	ParamCodeOffset    = 0x07
	ParamArgOffset     = 0x0F
	ParamLengthOffset  = 0x10
	ParamPayloadOffset = 0x11
)

// Log page layout
const (
	LogRequestSize    = 0x13
	LogResponseHeader = 0x0C
)

// GPT read response sizes for 512 and 4096 byte sectors.
const (
	GPTResponseSize512  = 0x4408
	GPTResponseSize4096 = 0x6008
)

// Default transport buffer ceiling used for paged reads.
const DefaultTransferBufferSize = 0xF000

// SectorSize is the unit of the raw sector write command.
const SectorSize = 0x200

// NewRequest allocates a request of size bytes starting with signature.
func NewRequest(signature string, size int) []byte {
	if size < len(signature) {
		size = len(signature)
	}
	req := make([]byte, size)
	copy(req, signature)
	return req
}

// HasSignature reports whether b starts with signature.
func HasSignature(b []byte, signature string) bool {
	return len(b) >= len(signature) && string(b[:len(signature)]) == signature
}

// ResultCode returns the big-endian status word at bytes 6-7 of a response.
func ResultCode(resp []byte) (uint16, bool) {
	return Uint16(resp, 6)
}

// ParamCode pads a parameter key to its fixed 4-byte wire form.
func ParamCode(code string) [4]byte {
	var c [4]byte
	copy(c[:], code)
	return c
}

// ReadParamRequest builds a parameter read request. Keys taking arguments
// need a larger buffer; size is raised to at least ParamRequestSize.
func ReadParamRequest(code string, size int) []byte {
	if size < ParamRequestSize {
		size = ParamRequestSize
	}
	req := NewRequest(ReadParamSignature, size)
	c := ParamCode(code)
	copy(req[ParamCodeOffset:], c[:])
	return req
}

// ParamPayload extracts the length-prefixed payload of a parameter response.
func ParamPayload(resp []byte) ([]byte, bool) {
	if len(resp) < ParamPayloadOffset {
		return nil, false
	}
	n := int(resp[ParamLengthOffset])
	if ParamPayloadOffset+n > len(resp) {
		return nil, false
	}
	return resp[ParamPayloadOffset : ParamPayloadOffset+n], true
}

// secureFlashPacket fills the fields shared by every secure flash packet.
func secureFlashPacket(prefix, dataLen int, protocol uint16, progress byte, subblockType, subblockLen uint32) []byte {
	req := NewRequest(SecureFlashSignature, prefix+dataLen)
	PutUint16(req, 0x06, protocol)
	req[0x08] = progress
	req[0x0B] = 1
	PutUint32(req, 0x0C, subblockType)
	PutUint32(req, 0x10, subblockLen)
	return req
}

// FfuHeaderV1 carries the complete combined FFU header in one packet.
func FfuHeaderV1(header []byte, progress, options byte) []byte {
	req := secureFlashPacket(HeaderV1Prefix, len(header), ProtocolSyncV1, progress,
		SubblockHeaderV1, uint32(len(header)+0x0C))
	PutUint32(req, 0x14, 0) // header type
	PutUint32(req, 0x18, uint32(len(header)))
	req[0x1C] = options
	copy(req[HeaderV1Prefix:], header)
	return req
}

// FfuHeaderV2 carries one part of the combined FFU header. totalLen is the
// full header length and offset the position of this part within it.
func FfuHeaderV2(part []byte, totalLen, offset uint32, progress, options byte) []byte {
	req := secureFlashPacket(HeaderV2Prefix, len(part), ProtocolSyncV2, progress,
		SubblockHeaderV2, uint32(len(part)+0x28))
	PutUint32(req, 0x14, 0) // header type
	PutUint32(req, 0x18, totalLen)
	req[0x1C] = options
	PutUint32(req, 0x1D, offset)
	PutUint32(req, 0x21, uint32(len(part)))
	req[0x25] = 0 // no erase
	copy(req[HeaderV2Prefix:], part)
	return req
}

// FfuPayloadV1 carries one chunk of payload data.
func FfuPayloadV1(chunk []byte, progress, options byte) []byte {
	req := secureFlashPacket(PayloadV1Prefix, len(chunk), ProtocolSyncV1, progress,
		SubblockPayloadV1, uint32(len(chunk)+0x08))
	PutUint32(req, 0x14, uint32(len(chunk)))
	req[0x18] = options
	copy(req[PayloadV1Prefix:], chunk)
	return req
}

// FfuPayloadV2 carries up to one write buffer of payload data.
func FfuPayloadV2(chunk []byte, progress, options byte) []byte {
	req := secureFlashPacket(PayloadV2Prefix, len(chunk), ProtocolSyncV2, progress,
		SubblockPayloadV2, uint32(len(chunk)+0x0C))
	PutUint32(req, 0x14, uint32(len(chunk)))
	req[0x18] = options
	copy(req[PayloadV2Prefix:], chunk)
	return req
}

// FfuPayloadV3 carries one asynchronously written chunk along with its
// write descriptor index and CRC32.
func FfuPayloadV3(chunk []byte, writeDescriptorIndex, crc uint32, progress, options byte) []byte {
	req := secureFlashPacket(PayloadV3Prefix, len(chunk), ProtocolAsyncV3, progress,
		SubblockPayloadV3, uint32(len(chunk)+0x2C))
	PutUint32(req, 0x14, uint32(len(chunk)))
	req[0x18] = options
	PutUint32(req, 0x19, writeDescriptorIndex)
	PutUint32(req, 0x1D, crc)
	copy(req[PayloadV3Prefix:], chunk)
	return req
}

// FlashSectorsRequest writes raw sectors starting at startSector. data must
// be a multiple of SectorSize.
func FlashSectorsRequest(target byte, startSector uint32, data []byte, progress byte) ([]byte, error) {
	if len(data)%SectorSize != 0 {
		return nil, fmt.Errorf("sector data length %d is not a multiple of 0x%X", len(data), SectorSize)
	}
	req := NewRequest(FlashSignature, 0x40+len(data))
	req[0x05] = target
	PutUint32(req, 0x0B, startSector)
	PutUint32(req, 0x0F, uint32(len(data)/SectorSize))
	req[0x13] = progress
	copy(req[0x40:], data)
	return req, nil
}

// LogPageRequest asks for pageSize bytes of the given log starting at offset.
func LogPageRequest(logType byte, pageSize uint32, offset uint64) []byte {
	req := NewRequest(GetLogsSignature, LogRequestSize)
	req[0x06] = logType
	PutUint32(req, 0x07, pageSize)
	PutUint64(req, 0x0B, offset)
	return req
}

// SwitchModeRequest builds a mode switch request for target.
func SwitchModeRequest(target SwitchTarget) []byte {
	req := NewRequest(SwitchModeSignature, len(SwitchModeSignature)+1)
	req[len(SwitchModeSignature)] = byte(target)
	return req
}

// EchoRequest asks the device to send data back.
func EchoRequest(data []byte) []byte {
	req := NewRequest(EchoSignature, 10+len(data))
	PutUint32(req, 6, uint32(len(data)))
	copy(req[10:], data)
	return req
}

// DisplayMessageRequest shows msg on the given screen row.
func DisplayMessageRequest(row uint16, msg string) []byte {
	text := EncodeUTF16LE(msg)
	req := NewRequest(DisplayCustomMessageSignature, 8+len(text))
	PutUint16(req, 6, row)
	copy(req[8:], text)
	return req
}
