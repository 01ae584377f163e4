package ufp

import (
	"context"
	"fmt"

	"github.com/bigbag/ufptool/internal/protocol"
)

// Hello checks that a UFP flash app is listening.
func (d *Device) Hello(ctx context.Context) error {
	resp, err := d.SendAndReceive(ctx, protocol.NewRequest(protocol.HelloSignature, 4))
	if err != nil {
		return fmt.Errorf("hello failed: %w", err)
	}
	if !protocol.HasSignature(resp, protocol.HelloSignature) {
		return &UnexpectedResponseError{Command: protocol.HelloSignature, Reason: "signature not echoed"}
	}
	return nil
}

// ResetPhone reboots the device. The device usually drops off the bus before
// the request completes, so transport errors are ignored.
func (d *Device) ResetPhone(ctx context.Context) {
	d.config.Logger.Info("rebooting device")
	if err := d.Send(ctx, protocol.NewRequest(protocol.RebootSignature, 4)); err != nil {
		d.config.Logger.Debug("reset request failed, assuming reset already in progress", "error", err)
	}
	d.InvalidateInfo()
}

// SwitchMode asks the device to leave the current mode. Targets that power
// down or hand over to another app are not answered.
func (d *Device) SwitchMode(ctx context.Context, target protocol.SwitchTarget) {
	d.config.Logger.Info("switching mode", "target", target)
	req := protocol.SwitchModeRequest(target)
	var err error
	if target.ExpectsResponse() {
		_, err = d.SendAndReceive(ctx, req)
	} else {
		err = d.Send(ctx, req)
	}
	if err != nil {
		d.config.Logger.Debug("mode switch lost connection", "target", target, "error", err)
	}
	d.InvalidateInfo()
}

// Shutdown powers the device off.
func (d *Device) Shutdown(ctx context.Context) {
	if err := d.Send(ctx, protocol.NewRequest(protocol.ShutdownSignature, 4)); err != nil {
		d.config.Logger.Debug("shutdown request failed", "error", err)
	}
	d.InvalidateInfo()
}

// MassStorage restarts the device as a USB mass storage device.
func (d *Device) MassStorage(ctx context.Context) {
	if _, err := d.SendAndReceive(ctx, protocol.NewRequest(protocol.MassStorageSignature, 7)); err != nil {
		d.config.Logger.Debug("mass storage request lost connection", "error", err)
	}
	d.InvalidateInfo()
}

// Relock relocks an unlocked bootloader.
func (d *Device) Relock(ctx context.Context) error {
	resp, err := d.SendAndReceive(ctx, protocol.NewRequest(protocol.RelockSignature, 7))
	if err != nil {
		return fmt.Errorf("relock failed: %w", err)
	}
	return checkResult(protocol.RelockSignature, resp)
}

// TelemetryStart starts telemetry collection.
func (d *Device) TelemetryStart(ctx context.Context) error {
	return d.Send(ctx, protocol.NewRequest(protocol.TelemetryStartSignature, 4))
}

// TelemetryEnd stops telemetry collection.
func (d *Device) TelemetryEnd(ctx context.Context) error {
	return d.Send(ctx, protocol.NewRequest(protocol.TelemetryEndSignature, 4))
}

// ClearScreen blanks the device display.
func (d *Device) ClearScreen(ctx context.Context) error {
	_, err := d.SendAndReceive(ctx, protocol.NewRequest(protocol.ClearScreenSignature, 6))
	return err
}

// DisplayCustomMessage shows msg on the given display row.
func (d *Device) DisplayCustomMessage(ctx context.Context, row uint16, msg string) error {
	_, err := d.SendAndReceive(ctx, protocol.DisplayMessageRequest(row, msg))
	return err
}

// Echo sends data to the device and returns what it sent back.
func (d *Device) Echo(ctx context.Context, data []byte) ([]byte, error) {
	resp, err := d.SendAndReceive(ctx, protocol.EchoRequest(data))
	if err != nil {
		return nil, err
	}
	if !protocol.HasSignature(resp, protocol.EchoSignature) {
		return nil, &UnexpectedResponseError{Command: protocol.EchoSignature, Reason: "signature not echoed"}
	}
	if len(resp) < 6+len(data) {
		return nil, &UnexpectedResponseError{
			Command: protocol.EchoSignature,
			Reason:  fmt.Sprintf("got %d bytes, want %d", len(resp)-6, len(data)),
		}
	}
	return resp[6 : 6+len(data)], nil
}

// FlashSectors writes whole sectors to the boot device starting at
// startSector. progress is shown on the device display.
func (d *Device) FlashSectors(ctx context.Context, startSector uint32, data []byte, progress byte) error {
	req, err := protocol.FlashSectorsRequest(0, startSector, data, progress)
	if err != nil {
		return err
	}
	resp, err := d.SendAndReceive(ctx, req)
	if err != nil {
		return fmt.Errorf("flash sectors at 0x%X failed: %w", startSector, err)
	}
	return checkResult(protocol.FlashSignature, resp)
}

// checkResult turns a non-zero status word into a DeviceError.
func checkResult(command string, resp []byte) error {
	code, ok := protocol.ResultCode(resp)
	if !ok {
		return &UnexpectedResponseError{Command: command, Reason: fmt.Sprintf("short response of %d bytes", len(resp))}
	}
	if code != protocol.ResultOK {
		return &DeviceError{Command: command, Code: code}
	}
	return nil
}
