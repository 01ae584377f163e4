package detect

import (
	"context"
	"fmt"

	"github.com/bigbag/ufptool/internal/ufp"
	"github.com/bigbag/ufptool/internal/usb"
)

// Result represents a detected UFP device.
type Result struct {
	Device     usb.Device
	App        ufp.FlashApp
	AppVersion string
	PlatformID string
	CanFlash   bool
}

// DetectDevice returns the first device that answers the UFP hello.
func DetectDevice(ctx context.Context, opts usb.Options) (*Result, error) {
	devices, err := usb.List(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	if len(devices) == 0 {
		return nil, usb.ErrNoDevice
	}

	var lastErr error
	for _, dev := range devices {
		result, err := tryDevice(ctx, dev, opts)
		if err != nil {
			lastErr = err
			continue
		}
		return result, nil
	}

	return nil, fmt.Errorf("no device answered the UFP hello (last error: %w)", lastErr)
}

// ListDevices probes every matching device. Devices that do not answer are
// still listed, with CanFlash false.
func ListDevices(ctx context.Context, opts usb.Options) ([]Result, error) {
	devices, err := usb.List(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	var results []Result
	for _, dev := range devices {
		result, err := tryDevice(ctx, dev, opts)
		if err != nil {
			results = append(results, Result{Device: dev})
			continue
		}
		results = append(results, *result)
	}

	return results, nil
}

func tryDevice(ctx context.Context, dev usb.Device, opts usb.Options) (*Result, error) {
	opts.Bus, opts.Address = dev.Bus, dev.Address
	port, err := usb.Open(opts)
	if err != nil {
		return nil, err
	}
	defer port.Close()

	result, err := Probe(ctx, port)
	if err != nil {
		return nil, err
	}
	result.Device = dev
	return result, nil
}

// Probe says hello over t and reads the device capabilities.
func Probe(ctx context.Context, t ufp.Transport) (*Result, error) {
	d := ufp.New(t)
	if err := d.Hello(ctx); err != nil {
		return nil, fmt.Errorf("hello failed: %w", err)
	}

	info, err := d.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("info query failed: %w", err)
	}

	result := &Result{
		App:        info.App,
		PlatformID: info.PlatformID,
		CanFlash:   info.Supported && info.App == ufp.AppFlash,
	}
	if info.App == ufp.AppFlash {
		result.AppVersion = fmt.Sprintf("%d.%d", info.FlashAppMajor, info.FlashAppMinor)
	}
	if result.PlatformID == "" {
		result.PlatformID, _ = d.ReadPlatformID(ctx)
	}
	return result, nil
}
