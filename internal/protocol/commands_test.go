package protocol

import (
	"strings"
	"testing"
)

func TestSignatures_Tiers(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"extended", ExtendedMessageSignature, "NOKX"},
		{"common extended", CommonExtendedMessageSignature, "NOKXC"},
		{"ufp extended", UFPExtendedMessageSignature, "NOKXF"},
		{"flash", FlashSignature, "NOKF"},
		{"hello", HelloSignature, "NOKI"},
		{"mass storage", MassStorageSignature, "NOKM"},
		{"telemetry end", TelemetryEndSignature, "NOKN"},
		{"reboot", RebootSignature, "NOKR"},
		{"telemetry start", TelemetryStartSignature, "NOKS"},
		{"get gpt", GetGPTSignature, "NOKT"},
		{"info query", InfoQuerySignature, "NOKV"},
		{"shutdown", ShutdownSignature, "NOKZ"},
		{"switch mode", SwitchModeSignature, "NOKXCB"},
		{"clear screen", ClearScreenSignature, "NOKXCC"},
		{"echo", EchoSignature, "NOKXCE"},
		{"display message", DisplayCustomMessageSignature, "NOKXCM"},
		{"relock", RelockSignature, "NOKXFO"},
		{"read param", ReadParamSignature, "NOKXFR"},
		{"secure flash", SecureFlashSignature, "NOKXFS"},
		{"get logs", GetLogsSignature, "NOKXFX"},
	}

	for _, tc := range tests {
		if tc.got != tc.expected {
			t.Errorf("%s signature = %q, want %q", tc.name, tc.got, tc.expected)
		}
		if !strings.HasPrefix(tc.got, Signature) {
			t.Errorf("%s signature %q does not start with %q", tc.name, tc.got, Signature)
		}
	}
}

func TestSwitchTarget_ExpectsResponse(t *testing.T) {
	tests := []struct {
		target   SwitchTarget
		expected bool
	}{
		{SwitchReboot, true},
		{SwitchToUFP, true},
		{SwitchContinue, true},
		{SwitchPowerOff, false},
		{SwitchToBootApp, false},
	}

	for _, tc := range tests {
		if got := tc.target.ExpectsResponse(); got != tc.expected {
			t.Errorf("%s.ExpectsResponse() = %v, want %v", tc.target, got, tc.expected)
		}
	}
}

func TestErrorMessage_KnownCodes(t *testing.T) {
	tests := []struct {
		code     uint16
		expected string
	}{
		{ResultAllocFailed, "Couldn't allocate memory"},
		{ResultFlashReadFailed, "Flash read failed"},
		{ResultFlashWriteFailed, "Flash write failed"},
		{ResultUnsupportedProtocol, "Unsupported protocol / Invalid options"},
		{ResultFlashVerifyFailed, "Flash verify failed"},
		{ResultAuthenticationRequired, "Authentication required"},
		{ResultHashMismatch, "Hash mismatch"},
		{ResultSecurityHeaderInvalid, "Security header validation failed"},
		{ResultInvalidChunkSize, "Invalid chunk size"},
		{ResultImageChunkSize, "Invalid chunk size"},
		{ResultInvalidWriteDescriptor, "Invalid write descriptor info"},
		{ResultInvalidWriteDescriptor2, "Invalid write descriptor info"},
		{ResultTooMuchPayload, "Too much payload data, all data has already been written"},
		{ResultInvalidPlatformID, "Invalid platform ID"},
	}

	for _, tc := range tests {
		result := ErrorMessage(tc.code)
		if result != tc.expected {
			t.Errorf("ErrorMessage(0x%04X) = %q, want %q", tc.code, result, tc.expected)
		}
	}
}

func TestErrorMessage_Unknown(t *testing.T) {
	unknownCodes := []uint16{0x0003, 0x00FF, 0x2000, 0xFFFF}
	for _, code := range unknownCodes {
		result := ErrorMessage(code)
		if result != "Unknown error" {
			t.Errorf("ErrorMessage(0x%04X) = %q, want %q", code, result, "Unknown error")
		}
	}
}
