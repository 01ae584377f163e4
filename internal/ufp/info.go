package ufp

import (
	"context"
	"fmt"

	"github.com/bigbag/ufptool/internal/protocol"
	"github.com/bigbag/ufptool/internal/subblock"
)

// FlashApp identifies the application that answered the info query.
type FlashApp byte

// AppFlash is the UFP flash app. Only it reports version bytes.
const AppFlash FlashApp = 2

// Info query response layout
const (
	infoAppOffset      = 5
	infoVersionOffset  = 6
	infoCountOffset    = 10
	infoSubblockOffset = 11
)

// BootDevice describes one storage device the flash app can boot from.
type BootDevice struct {
	SectorCount uint32
	SectorSize  uint32
	FlashType   uint16
	FlashIndex  uint16
	Unknown     uint32
	DevicePath  string
}

// DeviceInfo is the capability record decoded from the info query.
// It is produced once per session and passed explicitly to operations
// that depend on it.
type DeviceInfo struct {
	// Supported is false when the device answered the query with NOKU.
	Supported bool

	App                   FlashApp
	FlashAppProtocolMajor byte
	FlashAppProtocolMinor byte
	FlashAppMajor         byte
	FlashAppMinor         byte

	TransferSize        uint32
	WriteBufferSize     uint32
	EmmcSizeInSectors   uint32
	SdCardSizeInSectors uint32
	PlatformID          string
	AsyncSupport        bool
	MmosOverUsb         bool
	LargestMemoryRegion uint64
	AppType             byte

	// SecureFfuProtocolMask holds protocol.ProtocolSyncV1 and friends.
	SecureFfuProtocolMask uint16

	PlatformSecureBootEnabled   bool
	SecureFfuEnabled            bool
	JtagDisabled                bool
	RdcPresent                  bool
	Authenticated               bool
	UefiSecureBootEnabled       bool
	SecondaryHardwareKeyPresent bool

	Identity    TargetingInfo
	BootDevices []BootDevice
}

// IsBootloaderSecure reports whether the flash app enforces FFU security.
// GPT reads on secure bootloaders require a mode switch first.
func (i *DeviceInfo) IsBootloaderSecure() bool {
	return !(i.Authenticated || i.RdcPresent || !i.SecureFfuEnabled)
}

// SupportsProtocol reports whether every bit of p is advertised.
func (i *DeviceInfo) SupportsProtocol(p uint16) bool {
	return i.SecureFfuProtocolMask&p == p
}

type subblockDecoder func(info *DeviceInfo, payload []byte)

// infoDecoders maps subblock IDs to their decoders. IDs missing from the
// table are skipped using their declared length.
var infoDecoders = map[byte]subblockDecoder{
	0x01: func(i *DeviceInfo, p []byte) { i.TransferSize, _ = protocol.Uint32(p, 0) },
	0x02: func(i *DeviceInfo, p []byte) { i.WriteBufferSize, _ = protocol.Uint32(p, 0) },
	0x03: func(i *DeviceInfo, p []byte) { i.EmmcSizeInSectors, _ = protocol.Uint32(p, 0) },
	0x04: func(i *DeviceInfo, p []byte) {
		if i.App == AppFlash {
			i.SdCardSizeInSectors, _ = protocol.Uint32(p, 0)
		}
	},
	0x05: func(i *DeviceInfo, p []byte) { i.PlatformID = protocol.TrimString(string(p)) },
	0x0D: func(i *DeviceInfo, p []byte) {
		if len(p) > 1 {
			i.AsyncSupport = p[1] == 1
		}
	},
	0x0F: decodeSecurityState,
	0x10: func(i *DeviceInfo, p []byte) { i.SecureFfuProtocolMask, _ = protocol.Uint16(p, 1) },
	0x1F: func(i *DeviceInfo, p []byte) {
		if len(p) > 0 {
			i.MmosOverUsb = p[0] == 1
		}
	},
	0x20: func(*DeviceInfo, []byte) {}, // CRC header info
	0x22: decodeBootDevice,
	0x23: func(i *DeviceInfo, p []byte) {
		if id, ok := parseTargetingInfo(p); ok {
			i.Identity = id
		}
	},
	0x24: func(i *DeviceInfo, p []byte) { i.LargestMemoryRegion, _ = protocol.Uint64(p, 0) },
	0x25: func(i *DeviceInfo, p []byte) {
		if len(p) > 0 {
			i.AppType = p[0]
		}
	},
}

// decodeSecurityState reads the security cluster. Byte 0 is the cluster version.
func decodeSecurityState(i *DeviceInfo, p []byte) {
	if len(p) < 8 {
		return
	}
	i.PlatformSecureBootEnabled = p[1] == 1
	i.SecureFfuEnabled = p[2] == 1
	i.JtagDisabled = p[3] == 1
	i.RdcPresent = p[4] == 1
	i.Authenticated = p[5] == 1 || p[5] == 2
	i.UefiSecureBootEnabled = p[6] == 1
	i.SecondaryHardwareKeyPresent = p[7] == 1
}

func decodeBootDevice(i *DeviceInfo, p []byte) {
	if len(p) < 16 {
		return
	}
	var bd BootDevice
	bd.SectorCount, _ = protocol.Uint32(p, 0)
	bd.SectorSize, _ = protocol.Uint32(p, 4)
	bd.FlashType, _ = protocol.Uint16(p, 8)
	bd.FlashIndex, _ = protocol.Uint16(p, 10)
	bd.Unknown, _ = protocol.Uint32(p, 12)
	bd.DevicePath = protocol.TrimString(protocol.DecodeUTF16LE(p[16:]))
	i.BootDevices = append(i.BootDevices, bd)
}

// ParseInfo decodes an info query response. It never fails: fields that
// are missing or truncated keep their zero value.
func ParseInfo(resp []byte) *DeviceInfo {
	info := &DeviceInfo{}
	if len(resp) <= infoCountOffset || protocol.HasSignature(resp, protocol.UnsupportedSignature) {
		return info
	}
	info.Supported = true
	info.App = FlashApp(resp[infoAppOffset])
	if info.App == AppFlash {
		v := resp[infoVersionOffset:]
		info.FlashAppProtocolMajor = v[0]
		info.FlashAppProtocolMinor = v[1]
		info.FlashAppMajor = v[2]
		info.FlashAppMinor = v[3]
	}

	blocks, _ := subblock.Decode(resp[infoSubblockOffset:], int(resp[infoCountOffset]))
	for _, b := range blocks {
		if decode, ok := infoDecoders[b.ID]; ok {
			decode(info, b.Payload)
		}
	}
	return info
}

// Info returns the capability record, querying the device on first use.
func (d *Device) Info(ctx context.Context) (*DeviceInfo, error) {
	d.mu.Lock()
	cached := d.info
	d.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	resp, err := d.SendAndReceive(ctx, protocol.NewRequest(protocol.InfoQuerySignature, 4))
	if err != nil {
		return nil, err
	}
	info := ParseInfo(resp)
	d.config.Logger.Debug("device info",
		"app", info.App,
		"protocol", fmtVersion(info.FlashAppProtocolMajor, info.FlashAppProtocolMinor),
		"version", fmtVersion(info.FlashAppMajor, info.FlashAppMinor),
		"platform", info.PlatformID,
		"secure", info.IsBootloaderSecure(),
		"jtag_disabled", info.JtagDisabled)

	d.mu.Lock()
	d.info = info
	d.mu.Unlock()
	return info, nil
}

// InvalidateInfo drops the cached capability record, e.g. after a mode switch.
func (d *Device) InvalidateInfo() {
	d.mu.Lock()
	d.info = nil
	d.mu.Unlock()
}

func fmtVersion(major, minor byte) string {
	return fmt.Sprintf("%d.%d", major, minor)
}
