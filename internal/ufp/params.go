package ufp

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bigbag/ufptool/internal/protocol"
)

// Parameter keys understood by the flash app. Keys shorter than four
// characters are NUL padded on the wire.
const (
	ParamAppType               = "APPT"
	ParamResetProtection       = "ATRP"
	ParamBitlocker             = "BITL"
	ParamBuildInfo             = "BNFO"
	ParamCurrentBootOption     = "CUFO"
	ParamAsyncSupport          = "DAS\x00"
	ParamDirectoryEntriesSize  = "DES\x00"
	ParamPlatformID            = "DPI\x00"
	ParamDeviceProperties      = "DPR\x00"
	ParamTargetingInfo         = "DTI\x00"
	ParamDataVerifySpeed       = "DTSP"
	ParamDeviceID              = "DUI\x00"
	ParamEmmcTestResult        = "EMMT"
	ParamEmmcSize              = "EMS\x00"
	ParamEmmcWriteSpeed        = "EMWS"
	ParamFlashAppInfo          = "FAI\x00"
	ParamFlashOptions          = "FO\x00\x00"
	ParamFlashingStatus        = "FS\x00\x00"
	ParamFileSize              = "FZ\x00\x00"
	ParamSecureBootStatus      = "GSBS"
	ParamUEFIVariable          = "GUFV"
	ParamUEFIVariableSize      = "GUVS"
	ParamLargestMemoryRegion   = "LGMR"
	ParamLogSize               = "LZ\x00\x00"
	ParamMacAddress            = "MAC\x00"
	ParamModeData              = "MODE"
	ParamProcessorManufacturer = "pm\x00\x00"
	ParamSDCardSize            = "SDS\x00"
	ParamFFUProtocolInfo       = "SFPI"
	ParamSMBIOSData            = "SMBD"
	ParamSerialNumber          = "SN\x00\x00"
	ParamSystemMemorySize      = "SOSM"
	ParamSecurityStatus        = "SS\x00\x00"
	ParamTelemetryLogSize      = "TELS"
	ParamTransferSize          = "TS\x00\x00"
	ParamUEFIBootFlag          = "UBF\x00"
	ParamUEFIBootOptions       = "UEBO"
	ParamUnlockID              = "UKID"
	ParamUnlockTokenFiles      = "UKTF"
	ParamUSBSpeed              = "USBS"
	ParamWriteBufferSize       = "WBS\x00"
)

// Offsets of the arguments carried by file, directory and UEFI variable queries.
const (
	pathPartitionOffset = 15
	pathNameOffset      = 87
	maxPartitionName    = 35

	varGUIDOffset       = 15
	varSizeOffset       = 31
	varNameLengthOffset = 35
	varNameOffset       = 39
)

// AppType identifies the UEFI application answering UFP requests.
type AppType byte

const (
	AppTypeUnknown AppType = 0
	AppTypeUFP     AppType = 1
)

func (a AppType) String() string {
	if a == AppTypeUFP {
		return "UFP"
	}
	return "Unknown"
}

// LogType selects which device log is read.
type LogType byte

const (
	LogFlashing  LogType = 1
	LogServicing LogType = 2
)

// ResetProtection is the decoded ATRP parameter.
type ResetProtection struct {
	Enabled      bool
	MajorVersion uint32
	MinorVersion uint32
}

// FlashAppInfo is the decoded FAI parameter.
type FlashAppInfo struct {
	ProtocolMajor byte
	ProtocolMinor byte
	Major         byte
	Minor         byte
}

// TargetingInfo is the SMBIOS-derived identity of the device.
type TargetingInfo struct {
	Manufacturer          string
	Family                string
	ProductName           string
	ProductVersion        string
	SKUNumber             string
	BaseboardManufacturer string
	BaseboardProduct      string
}

// USBSpeed is the decoded USBS parameter.
type USBSpeed struct {
	Current byte
	Max     byte
}

// UEFIVariable is the decoded GUFV parameter.
type UEFIVariable struct {
	Attributes uint32
	Data       []byte
}

// ReadParam reads a raw parameter. The result is absent when the device does
// not answer, answers with a short packet, or declares more payload than it sent.
func (d *Device) ReadParam(ctx context.Context, code string) ([]byte, bool) {
	return d.readParam(ctx, protocol.ReadParamRequest(code, protocol.ParamRequestSize))
}

func (d *Device) readParam(ctx context.Context, req []byte) ([]byte, bool) {
	resp := d.query(ctx, req)
	if resp == nil {
		return nil, false
	}
	payload, ok := protocol.ParamPayload(resp)
	if !ok {
		d.config.Logger.Debug("parameter absent", "code", strings.TrimRight(string(req[7:11]), "\x00"), "length", len(resp))
		return nil, false
	}
	return payload, true
}

// ReadStringParam reads a parameter as ASCII with NUL padding removed.
func (d *Device) ReadStringParam(ctx context.Context, code string) (string, bool) {
	b, ok := d.ReadParam(ctx, code)
	if !ok {
		return "", false
	}
	return strings.Trim(string(b), "\x00"), true
}

func (d *Device) readExact(ctx context.Context, code string, n int) ([]byte, bool) {
	b, ok := d.ReadParam(ctx, code)
	if !ok || len(b) != n {
		return nil, false
	}
	return b, true
}

func (d *Device) readUint16(ctx context.Context, code string) (uint16, bool) {
	b, ok := d.readExact(ctx, code, 2)
	if !ok {
		return 0, false
	}
	return protocol.Uint16(b, 0)
}

func (d *Device) readUint32(ctx context.Context, code string) (uint32, bool) {
	b, ok := d.readExact(ctx, code, 4)
	if !ok {
		return 0, false
	}
	return protocol.Uint32(b, 0)
}

func (d *Device) readUint64(ctx context.Context, code string) (uint64, bool) {
	b, ok := d.readExact(ctx, code, 8)
	if !ok {
		return 0, false
	}
	return protocol.Uint64(b, 0)
}

func (d *Device) readFlag(ctx context.Context, code string) (bool, bool) {
	b, ok := d.ReadParam(ctx, code)
	if !ok || len(b) == 0 {
		return false, false
	}
	return b[0] == 1, true
}

func (d *Device) readGUID(ctx context.Context, code string) (uuid.UUID, bool) {
	b, ok := d.readExact(ctx, code, 16)
	if !ok {
		return uuid.Nil, false
	}
	return protocol.GUID(b, 0)
}

// ReadAppType returns the application type, AppTypeUnknown when absent.
func (d *Device) ReadAppType(ctx context.Context) AppType {
	b, ok := d.ReadParam(ctx, ParamAppType)
	if !ok || len(b) == 0 || b[0] != byte(AppTypeUFP) {
		return AppTypeUnknown
	}
	return AppTypeUFP
}

// ReadResetProtection returns the anti-theft reset protection state.
func (d *Device) ReadResetProtection(ctx context.Context) (ResetProtection, bool) {
	b, ok := d.ReadParam(ctx, ParamResetProtection)
	if !ok || len(b) < 9 {
		return ResetProtection{}, false
	}
	major, _ := protocol.Uint32(b, 1)
	minor, _ := protocol.Uint32(b, 5)
	return ResetProtection{Enabled: b[0] == 1, MajorVersion: major, MinorVersion: minor}, true
}

// ReadBitlocker reports whether BitLocker is enabled.
func (d *Device) ReadBitlocker(ctx context.Context) (bool, bool) {
	return d.readFlag(ctx, ParamBitlocker)
}

func (d *Device) ReadBuildInfo(ctx context.Context) (string, bool) {
	return d.ReadStringParam(ctx, ParamBuildInfo)
}

func (d *Device) ReadCurrentBootOption(ctx context.Context) (uint16, bool) {
	return d.readUint16(ctx, ParamCurrentBootOption)
}

// ReadAsyncSupport reports whether the flash app accepts asynchronous writes.
func (d *Device) ReadAsyncSupport(ctx context.Context) (bool, bool) {
	v, ok := d.readUint16(ctx, ParamAsyncSupport)
	if !ok {
		return false, false
	}
	return v == 1, true
}

// pathRequest builds a DES/FZ query carrying a partition and a path name.
func pathRequest(code, partition, name string) ([]byte, error) {
	if len(partition) > maxPartitionName {
		return nil, fmt.Errorf("partition name %q longer than %d characters", partition, maxPartitionName)
	}
	nameBytes := protocol.EncodeUTF16LE(name)
	req := protocol.ReadParamRequest(code, pathNameOffset+len(nameBytes)+2)
	copy(req[pathPartitionOffset:], protocol.EncodeUTF16LE(partition))
	copy(req[pathNameOffset:], nameBytes)
	return req, nil
}

func (d *Device) readPathSize(ctx context.Context, code, partition, name string) (uint64, bool) {
	req, err := pathRequest(code, partition, name)
	if err != nil {
		d.config.Logger.Debug("invalid path query", "error", err)
		return 0, false
	}
	b, ok := d.readParam(ctx, req)
	if !ok || len(b) != 8 {
		return 0, false
	}
	return protocol.Uint64(b, 0)
}

// ReadDirectoryEntriesSize returns the size of a directory listing on a partition.
func (d *Device) ReadDirectoryEntriesSize(ctx context.Context, partition, dir string) (uint64, bool) {
	return d.readPathSize(ctx, ParamDirectoryEntriesSize, partition, dir)
}

// ReadFileSize returns the size of a file on a partition.
func (d *Device) ReadFileSize(ctx context.Context, partition, file string) (uint64, bool) {
	return d.readPathSize(ctx, ParamFileSize, partition, file)
}

func (d *Device) ReadPlatformID(ctx context.Context) (string, bool) {
	return d.ReadStringParam(ctx, ParamPlatformID)
}

// ReadDeviceProperties returns the MSRuntimeDeviceProperties UEFI variable.
func (d *Device) ReadDeviceProperties(ctx context.Context) (string, bool) {
	return d.ReadStringParam(ctx, ParamDeviceProperties)
}

// ReadTargetingInfo returns the device identity strings.
func (d *Device) ReadTargetingInfo(ctx context.Context) (TargetingInfo, bool) {
	b, ok := d.ReadParam(ctx, ParamTargetingInfo)
	if !ok {
		return TargetingInfo{}, false
	}
	return parseTargetingInfo(b)
}

// parseTargetingInfo decodes seven big-endian lengths followed by the
// concatenated ASCII fields they describe.
func parseTargetingInfo(b []byte) (TargetingInfo, bool) {
	fields, ok := splitLengthPrefixed(b, 7)
	if !ok {
		return TargetingInfo{}, false
	}
	return TargetingInfo{
		Manufacturer:          fields[0],
		Family:                fields[1],
		ProductName:           fields[2],
		ProductVersion:        fields[3],
		SKUNumber:             fields[4],
		BaseboardManufacturer: fields[5],
		BaseboardProduct:      fields[6],
	}, true
}

func splitLengthPrefixed(b []byte, n int) ([]string, bool) {
	offset := n * 2
	if len(b) < offset {
		return nil, false
	}
	fields := make([]string, n)
	for i := 0; i < n; i++ {
		length, _ := protocol.Uint16(b, i*2)
		s, ok := protocol.ASCII(b, offset, int(length))
		if !ok {
			return nil, false
		}
		fields[i] = s
		offset += int(length)
	}
	return fields, true
}

// ReadDataVerifySpeed returns the last FFU verify speed in KB/s.
func (d *Device) ReadDataVerifySpeed(ctx context.Context) (uint32, bool) {
	return d.readUint32(ctx, ParamDataVerifySpeed)
}

func (d *Device) ReadDeviceID(ctx context.Context) (uuid.UUID, bool) {
	return d.readGUID(ctx, ParamDeviceID)
}

func (d *Device) ReadEmmcTestResult(ctx context.Context) (uint32, bool) {
	return d.readUint32(ctx, ParamEmmcTestResult)
}

// ReadEmmcSize returns the eMMC size in sectors.
func (d *Device) ReadEmmcSize(ctx context.Context) (uint32, bool) {
	return d.readUint32(ctx, ParamEmmcSize)
}

// ReadEmmcWriteSpeed returns the eMMC write speed in KB/s.
func (d *Device) ReadEmmcWriteSpeed(ctx context.Context) (uint32, bool) {
	return d.readUint32(ctx, ParamEmmcWriteSpeed)
}

// ReadFlashAppInfo returns the flash app and protocol versions.
func (d *Device) ReadFlashAppInfo(ctx context.Context) (FlashAppInfo, bool) {
	b, ok := d.readExact(ctx, ParamFlashAppInfo, 6)
	if !ok || b[0] != 2 {
		return FlashAppInfo{}, false
	}
	return FlashAppInfo{ProtocolMajor: b[1], ProtocolMinor: b[2], Major: b[3], Minor: b[4]}, true
}

// ReadFlashOptions returns the FfuConfigurationOptions UEFI variable.
func (d *Device) ReadFlashOptions(ctx context.Context) (string, bool) {
	return d.ReadStringParam(ctx, ParamFlashOptions)
}

func (d *Device) ReadFlashingStatus(ctx context.Context) (uint32, bool) {
	return d.readUint32(ctx, ParamFlashingStatus)
}

func (d *Device) ReadSecureBootStatus(ctx context.Context) (bool, bool) {
	return d.readFlag(ctx, ParamSecureBootStatus)
}

// uefiVariableRequest builds a GUFV/GUVS query. The name is sent NUL
// terminated and its byte length includes the terminator.
func uefiVariableRequest(code string, vendor uuid.UUID, name string, size uint32) []byte {
	nameBytes := append(protocol.EncodeUTF16LE(name), 0, 0)
	req := protocol.ReadParamRequest(code, varNameOffset+len(nameBytes))
	protocol.PutGUID(req, varGUIDOffset, vendor)
	protocol.PutUint32(req, varSizeOffset, size)
	protocol.PutUint32(req, varNameLengthOffset, uint32(len(nameBytes)))
	copy(req[varNameOffset:], nameBytes)
	return req
}

// ReadUEFIVariable reads up to size bytes of a UEFI variable.
func (d *Device) ReadUEFIVariable(ctx context.Context, vendor uuid.UUID, name string, size uint32) (UEFIVariable, bool) {
	b, ok := d.readParam(ctx, uefiVariableRequest(ParamUEFIVariable, vendor, name, size))
	if !ok {
		return UEFIVariable{}, false
	}
	return parseUEFIVariable(b)
}

func parseUEFIVariable(b []byte) (UEFIVariable, bool) {
	attributes, ok := protocol.Uint32(b, 0)
	if !ok {
		return UEFIVariable{}, false
	}
	size, ok := protocol.Uint32(b, 4)
	if !ok || uint64(8)+uint64(size) > uint64(len(b)) {
		return UEFIVariable{}, false
	}
	return UEFIVariable{Attributes: attributes, Data: b[8 : 8+size]}, true
}

// ReadUEFIVariableSize returns the size of a UEFI variable.
func (d *Device) ReadUEFIVariableSize(ctx context.Context, vendor uuid.UUID, name string) (uint32, bool) {
	b, ok := d.readParam(ctx, uefiVariableRequest(ParamUEFIVariableSize, vendor, name, 0))
	if !ok || len(b) != 4 {
		return 0, false
	}
	return protocol.Uint32(b, 0)
}

// ReadLargestMemoryRegion returns the largest memory region usable by the flash app, in bytes.
func (d *Device) ReadLargestMemoryRegion(ctx context.Context) (uint64, bool) {
	return d.readUint64(ctx, ParamLargestMemoryRegion)
}

// ReadLogSize returns the size of the selected device log.
func (d *Device) ReadLogSize(ctx context.Context, logType LogType) (uint64, bool) {
	req := protocol.ReadParamRequest(ParamLogSize, 0x10)
	req[protocol.ParamArgOffset] = byte(logType)
	b, ok := d.readParam(ctx, req)
	if !ok || len(b) != 8 {
		return 0, false
	}
	return protocol.Uint64(b, 0)
}

// ReadMacAddress returns the MAC address formatted as xx-xx-xx-xx-xx-xx.
func (d *Device) ReadMacAddress(ctx context.Context) (string, bool) {
	return d.ReadStringParam(ctx, ParamMacAddress)
}

// ReadModeData returns the data associated with a boot mode.
func (d *Device) ReadModeData(ctx context.Context, mode byte) (uint32, bool) {
	req := protocol.ReadParamRequest(ParamModeData, 0x10)
	req[protocol.ParamArgOffset] = mode
	b, ok := d.readParam(ctx, req)
	if !ok || len(b) != 4 {
		return 0, false
	}
	return protocol.Uint32(b, 0)
}

func (d *Device) ReadProcessorManufacturer(ctx context.Context) (string, bool) {
	return d.ReadStringParam(ctx, ParamProcessorManufacturer)
}

// ReadSDCardSize returns the SD card size in sectors.
func (d *Device) ReadSDCardSize(ctx context.Context) (uint32, bool) {
	return d.readUint32(ctx, ParamSDCardSize)
}

func (d *Device) ReadFFUProtocolInfo(ctx context.Context) (string, bool) {
	return d.ReadStringParam(ctx, ParamFFUProtocolInfo)
}

func (d *Device) ReadSMBIOSData(ctx context.Context) (string, bool) {
	return d.ReadStringParam(ctx, ParamSMBIOSData)
}

func (d *Device) ReadSerialNumber(ctx context.Context) (uuid.UUID, bool) {
	return d.readGUID(ctx, ParamSerialNumber)
}

// ReadSystemMemorySize returns the size of system memory in kB.
func (d *Device) ReadSystemMemorySize(ctx context.Context) (uint64, bool) {
	return d.readUint64(ctx, ParamSystemMemorySize)
}

func (d *Device) ReadSecurityStatus(ctx context.Context) (string, bool) {
	return d.ReadStringParam(ctx, ParamSecurityStatus)
}

func (d *Device) ReadTelemetryLogSize(ctx context.Context) (string, bool) {
	return d.ReadStringParam(ctx, ParamTelemetryLogSize)
}

func (d *Device) ReadTransferSize(ctx context.Context) (uint32, bool) {
	return d.readUint32(ctx, ParamTransferSize)
}

func (d *Device) ReadUEFIBootFlag(ctx context.Context) (string, bool) {
	return d.ReadStringParam(ctx, ParamUEFIBootFlag)
}

func (d *Device) ReadUEFIBootOptions(ctx context.Context) (string, bool) {
	return d.ReadStringParam(ctx, ParamUEFIBootOptions)
}

// ReadUnlockID returns the raw UnlockID UEFI variable.
func (d *Device) ReadUnlockID(ctx context.Context) ([]byte, bool) {
	return d.ReadParam(ctx, ParamUnlockID)
}

func (d *Device) ReadUnlockTokenFiles(ctx context.Context) (string, bool) {
	return d.ReadStringParam(ctx, ParamUnlockTokenFiles)
}

func (d *Device) ReadUSBSpeed(ctx context.Context) (USBSpeed, bool) {
	b, ok := d.readExact(ctx, ParamUSBSpeed, 2)
	if !ok {
		return USBSpeed{}, false
	}
	return USBSpeed{Current: b[0], Max: b[1]}, true
}

func (d *Device) ReadWriteBufferSize(ctx context.Context) (uint32, bool) {
	return d.readUint32(ctx, ParamWriteBufferSize)
}
