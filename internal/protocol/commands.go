package protocol

// Message tiers. These are prefixes only and never sent on their own.
const (
	Signature                      = "NOK"
	ExtendedMessageSignature       = Signature + "X"
	CommonExtendedMessageSignature = ExtendedMessageSignature + "C"
	UFPExtendedMessageSignature    = ExtendedMessageSignature + "F"
)

// Normal commands
const (
	FlashSignature          = Signature + "F"
	HelloSignature          = Signature + "I"
	MassStorageSignature    = Signature + "M"
	TelemetryEndSignature   = Signature + "N"
	RebootSignature         = Signature + "R"
	TelemetryStartSignature = Signature + "S"
	GetGPTSignature         = Signature + "T"
	InfoQuerySignature      = Signature + "V"
	ShutdownSignature       = Signature + "Z"
)

// Common extended commands
const (
	SwitchModeSignature           = CommonExtendedMessageSignature + "B"
	ClearScreenSignature          = CommonExtendedMessageSignature + "C"
	GetDirectoryEntriesSignature  = CommonExtendedMessageSignature + "D"
	EchoSignature                 = CommonExtendedMessageSignature + "E"
	GetFileSignature              = CommonExtendedMessageSignature + "F"
	DisplayCustomMessageSignature = CommonExtendedMessageSignature + "M"
	PutFileSignature              = CommonExtendedMessageSignature + "P"
	BenchmarkTestsSignature       = CommonExtendedMessageSignature + "T"
)

// UFP extended commands
const (
	AsyncFlashModeSignature = UFPExtendedMessageSignature + "F"
	UnlockSignature         = UFPExtendedMessageSignature + "I"
	RelockSignature         = UFPExtendedMessageSignature + "O"
	ReadParamSignature      = UFPExtendedMessageSignature + "R"
	SecureFlashSignature    = UFPExtendedMessageSignature + "S"
	TelemetryReadSignature  = UFPExtendedMessageSignature + "T"
	WriteParamSignature     = UFPExtendedMessageSignature + "W"
	GetLogsSignature        = UFPExtendedMessageSignature + "X"
)

// UnsupportedSignature is echoed by the device for commands it does not implement.
const UnsupportedSignature = "NOKU"

// SwitchTarget is the suffix appended to SwitchModeSignature.
type SwitchTarget byte

const (
	SwitchReboot    SwitchTarget = 'R'
	SwitchToUFP     SwitchTarget = 'U'
	SwitchContinue  SwitchTarget = 'W'
	SwitchPowerOff  SwitchTarget = 'Z'
	SwitchToBootApp SwitchTarget = 'T'
)

// ExpectsResponse reports whether the device answers a switch request
// before leaving the current mode.
func (t SwitchTarget) ExpectsResponse() bool {
	return t != SwitchPowerOff && t != SwitchToBootApp
}

// String returns the human-readable name of the target mode.
func (t SwitchTarget) String() string {
	switch t {
	case SwitchReboot:
		return "reboot"
	case SwitchToUFP:
		return "ufp"
	case SwitchContinue:
		return "continue-boot"
	case SwitchPowerOff:
		return "power-off"
	case SwitchToBootApp:
		return "boot-app"
	default:
		return "unknown"
	}
}

// Result codes reported by the flash app in FFU packet responses.
const (
	ResultOK                      = 0x0000
	ResultAllocFailed             = 0x0001
	ResultFlashReadFailed         = 0x0002
	ResultFlashWriteFailed        = 0x0004
	ResultUnsupportedProtocol     = 0x0008
	ResultLocateProtocolFailed    = 0x0009
	ResultFlashVerifyFailed       = 0x000D
	ResultInvalidSubblockType     = 0x000E
	ResultInvalidSubblockCount    = 0x000F
	ResultInvalidSubblockLength   = 0x0010
	ResultAuthenticationRequired  = 0x0012
	ResultFailedAsyncMessage      = 0x0013
	ResultInvalidHeaderType       = 0x1000
	ResultUnknownHeaderData       = 0x1001
	ResultHashMismatch            = 0x1003
	ResultHeadersNotImported      = 0x1004
	ResultDataNotAligned          = 0x1005
	ResultHashNotFound            = 0x1006
	ResultIncompletePayload       = 0x1007
	ResultInternalError           = 0x1008
	ResultTooMuchPayload          = 0x100B
	ResultInvalidSignature        = 0x1100
	ResultInvalidStructSize       = 0x1101
	ResultUnsupportedAlgorithm    = 0x1102
	ResultInvalidChunkSize        = 0x1103
	ResultInvalidCatalogSize      = 0x1104
	ResultInvalidHashTableSize    = 0x1105
	ResultSecurityHeaderInvalid   = 0x1106
	ResultImageStructSize         = 0x1202
	ResultImageAlgorithm          = 0x1203
	ResultImageChunkSize          = 0x1204
	ResultInvalidUpdateType       = 0x1301
	ResultUnsupportedStruct       = 0x1302
	ResultUnsupportedFFUVersion   = 0x1303
	ResultInvalidPlatformID       = 0x1304
	ResultInvalidBlockSize        = 0x1305
	ResultInvalidWriteDescriptor  = 0x1306
	ResultInvalidWriteDescriptor2 = 0x1307
)

// ErrorMessage returns the diagnosis for a flash result code.
func ErrorMessage(code uint16) string {
	switch code {
	case ResultUnsupportedProtocol:
		return "Unsupported protocol / Invalid options"
	case ResultInvalidSubblockCount:
		return "Invalid sub block count"
	case ResultInvalidSubblockLength:
		return "Invalid sub block length"
	case ResultAuthenticationRequired:
		return "Authentication required"
	case ResultInvalidSubblockType:
		return "Invalid sub block type"
	case ResultFailedAsyncMessage:
		return "Failed async message"
	case ResultInvalidHeaderType:
		return "Invalid header type"
	case ResultUnknownHeaderData:
		return "FFU header contain unknown extra data"
	case ResultAllocFailed:
		return "Couldn't allocate memory"
	case ResultSecurityHeaderInvalid:
		return "Security header validation failed"
	case ResultInvalidHashTableSize:
		return "Invalid hash table size"
	case ResultInvalidCatalogSize:
		return "Invalid catalog size"
	case ResultInvalidChunkSize, ResultImageChunkSize:
		return "Invalid chunk size"
	case ResultUnsupportedAlgorithm, ResultImageAlgorithm:
		return "Unsupported algorithm"
	case ResultInvalidStructSize, ResultImageStructSize:
		return "Invalid struct size"
	case ResultInvalidSignature:
		return "Invalid signature"
	case ResultDataNotAligned:
		return "Data not aligned correctly"
	case ResultLocateProtocolFailed:
		return "Locate protocol failed"
	case ResultHashMismatch:
		return "Hash mismatch"
	case ResultHashNotFound:
		return "Couldn't find hash from security header for index"
	case ResultHeadersNotImported:
		return "Security header import missing / All FFU headers have not been imported"
	case ResultInvalidPlatformID:
		return "Invalid platform ID"
	case ResultInvalidWriteDescriptor, ResultInvalidWriteDescriptor2:
		return "Invalid write descriptor info"
	case ResultInvalidBlockSize:
		return "Invalid block size"
	case ResultUnsupportedFFUVersion:
		return "Unsupported FFU version"
	case ResultUnsupportedStruct:
		return "Unsupported struct version"
	case ResultInvalidUpdateType:
		return "Invalid update type"
	case ResultTooMuchPayload:
		return "Too much payload data, all data has already been written"
	case ResultInternalError:
		return "Internal error"
	case ResultIncompletePayload:
		return "Payload data does not contain all data"
	case ResultFlashWriteFailed:
		return "Flash write failed"
	case ResultFlashVerifyFailed:
		return "Flash verify failed"
	case ResultFlashReadFailed:
		return "Flash read failed"
	default:
		return "Unknown error"
	}
}
