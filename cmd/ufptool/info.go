package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bigbag/ufptool/internal/detect"
	"github.com/bigbag/ufptool/internal/ufp"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show device info",
		Long:  "Query the flash app capabilities, security state and boot devices.",
		Args:  cobra.NoArgs,
		RunE:  runInfo,
	}
}

func newParamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "param [name...]",
		Short: "Read device parameters",
		Long: `Read one or more device parameters by name. Without arguments every
known parameter is read. Parameters the device does not report are shown
as "not available".`,
		RunE: runParam,
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List connected UFP devices",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
}

func runInfo(cmd *cobra.Command, args []string) error {
	return withDevice(func(ctx context.Context, d *ufp.Device) error {
		info, err := d.Info(ctx)
		if err != nil {
			return err
		}
		if !info.Supported {
			fmt.Println("The device does not support the info query")
			return nil
		}
		printDeviceInfo(info)
		return nil
	})
}

func printDeviceInfo(info *ufp.DeviceInfo) {
	fmt.Printf("  App:                  %d\n", info.App)
	if info.App == ufp.AppFlash {
		fmt.Printf("  Flash app:            %d.%d (protocol %d.%d)\n",
			info.FlashAppMajor, info.FlashAppMinor, info.FlashAppProtocolMajor, info.FlashAppProtocolMinor)
	}
	fmt.Printf("  Platform ID:          %s\n", info.PlatformID)
	fmt.Printf("  Transfer size:        0x%X\n", info.TransferSize)
	fmt.Printf("  Write buffer size:    0x%X\n", info.WriteBufferSize)
	fmt.Printf("  eMMC sectors:         0x%X\n", info.EmmcSizeInSectors)
	if info.SdCardSizeInSectors != 0 {
		fmt.Printf("  SD card sectors:      0x%X\n", info.SdCardSizeInSectors)
	}
	fmt.Printf("  Async support:        %v\n", info.AsyncSupport)
	fmt.Printf("  FFU protocols:        0x%X\n", info.SecureFfuProtocolMask)
	fmt.Printf("  Largest memory:       0x%X\n", info.LargestMemoryRegion)
	fmt.Println()
	fmt.Printf("  Platform secure boot: %v\n", info.PlatformSecureBootEnabled)
	fmt.Printf("  Secure FFU:           %v\n", info.SecureFfuEnabled)
	fmt.Printf("  JTAG disabled:        %v\n", info.JtagDisabled)
	fmt.Printf("  RDC present:          %v\n", info.RdcPresent)
	fmt.Printf("  Authenticated:        %v\n", info.Authenticated)
	fmt.Printf("  UEFI secure boot:     %v\n", info.UefiSecureBootEnabled)
	fmt.Printf("  Secondary HW key:     %v\n", info.SecondaryHardwareKeyPresent)
	fmt.Printf("  Bootloader secure:    %v\n", info.IsBootloaderSecure())

	if id := info.Identity; id.ProductName != "" {
		fmt.Println()
		fmt.Printf("  Manufacturer:         %s\n", id.Manufacturer)
		fmt.Printf("  Product:              %s (%s)\n", id.ProductName, id.ProductVersion)
		fmt.Printf("  SKU:                  %s\n", id.SKUNumber)
	}

	for i, bd := range info.BootDevices {
		fmt.Printf("\n  Boot device %d:\n", i)
		fmt.Printf("    Path:    %s\n", bd.DevicePath)
		fmt.Printf("    Sectors: 0x%X x %d bytes\n", bd.SectorCount, bd.SectorSize)
		fmt.Printf("    Type:    %d, index %d\n", bd.FlashType, bd.FlashIndex)
	}
}

// paramReaders maps parameter names to readers formatting the value.
func paramReaders(ctx context.Context, d *ufp.Device) map[string]func() (string, bool) {
	str := func(read func(context.Context) (string, bool)) func() (string, bool) {
		return func() (string, bool) { return read(ctx) }
	}
	num := func(read func(context.Context) (uint32, bool)) func() (string, bool) {
		return func() (string, bool) {
			v, ok := read(ctx)
			return fmt.Sprintf("0x%X", v), ok
		}
	}
	flag := func(read func(context.Context) (bool, bool)) func() (string, bool) {
		return func() (string, bool) {
			v, ok := read(ctx)
			return fmt.Sprint(v), ok
		}
	}

	return map[string]func() (string, bool){
		"platform-id":       str(d.ReadPlatformID),
		"build-info":        str(d.ReadBuildInfo),
		"device-properties": str(d.ReadDeviceProperties),
		"flash-options":     str(d.ReadFlashOptions),
		"ffu-protocol-info": str(d.ReadFFUProtocolInfo),
		"mac-address":       str(d.ReadMacAddress),
		"processor":         str(d.ReadProcessorManufacturer),
		"security-status":   str(d.ReadSecurityStatus),
		"smbios":            str(d.ReadSMBIOSData),
		"uefi-boot-options": str(d.ReadUEFIBootOptions),
		"unlock-tokens":     str(d.ReadUnlockTokenFiles),
		"emmc-size":         num(d.ReadEmmcSize),
		"emmc-write-speed":  num(d.ReadEmmcWriteSpeed),
		"data-verify-speed": num(d.ReadDataVerifySpeed),
		"flashing-status":   num(d.ReadFlashingStatus),
		"sd-size":           num(d.ReadSDCardSize),
		"transfer-size":     num(d.ReadTransferSize),
		"write-buffer-size": num(d.ReadWriteBufferSize),
		"async-support":     flag(d.ReadAsyncSupport),
		"bitlocker":         flag(d.ReadBitlocker),
		"secure-boot":       flag(d.ReadSecureBootStatus),
		"app-type": func() (string, bool) {
			return d.ReadAppType(ctx).String(), true
		},
		"device-id": func() (string, bool) {
			v, ok := d.ReadDeviceID(ctx)
			return v.String(), ok
		},
		"serial-number": func() (string, bool) {
			v, ok := d.ReadSerialNumber(ctx)
			return v.String(), ok
		},
		"unlock-id": func() (string, bool) {
			v, ok := d.ReadUnlockID(ctx)
			return hex.EncodeToString(v), ok
		},
		"largest-memory-region": func() (string, bool) {
			v, ok := d.ReadLargestMemoryRegion(ctx)
			return fmt.Sprintf("0x%X", v), ok
		},
		"system-memory-size": func() (string, bool) {
			v, ok := d.ReadSystemMemorySize(ctx)
			return fmt.Sprintf("0x%X", v), ok
		},
		"reset-protection": func() (string, bool) {
			v, ok := d.ReadResetProtection(ctx)
			return fmt.Sprintf("enabled=%v version=%d.%d", v.Enabled, v.MajorVersion, v.MinorVersion), ok
		},
		"flash-app-info": func() (string, bool) {
			v, ok := d.ReadFlashAppInfo(ctx)
			return fmt.Sprintf("%d.%d (protocol %d.%d)", v.Major, v.Minor, v.ProtocolMajor, v.ProtocolMinor), ok
		},
		"usb-speed": func() (string, bool) {
			v, ok := d.ReadUSBSpeed(ctx)
			return fmt.Sprintf("current=%d max=%d", v.Current, v.Max), ok
		},
		"targeting-info": func() (string, bool) {
			v, ok := d.ReadTargetingInfo(ctx)
			return fmt.Sprintf("%s %s %s (%s)", v.Manufacturer, v.Family, v.ProductName, v.SKUNumber), ok
		},
	}
}

func runParam(cmd *cobra.Command, args []string) error {
	return withDevice(func(ctx context.Context, d *ufp.Device) error {
		readers := paramReaders(ctx, d)
		names := args
		if len(names) == 0 {
			names = slices.Sorted(maps.Keys(readers))
		}

		for _, name := range names {
			read, ok := readers[strings.ToLower(name)]
			if !ok {
				return fmt.Errorf("unknown parameter %q", name)
			}
			value, ok := read()
			if !ok {
				value = "not available"
			}
			fmt.Printf("  %-22s %s\n", name+":", value)
		}
		return nil
	})
}

func runList(cmd *cobra.Command, args []string) error {
	devices, err := detect.ListDevices(context.Background(), usbOptions())
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		fmt.Println("No UFP devices found")
		return nil
	}

	for i, d := range devices {
		fmt.Printf("[Device %d]\n", i)
		fmt.Printf("  USB:       %s\n", d.Device)
		fmt.Printf("  Can flash: %v\n", d.CanFlash)
		if d.AppVersion != "" {
			fmt.Printf("  Flash app: %s\n", d.AppVersion)
		}
		if d.PlatformID != "" {
			fmt.Printf("  Platform:  %s\n", d.PlatformID)
		}
		fmt.Println()
	}
	fmt.Printf("Found %d device(s) in total.\n", len(devices))
	return nil
}
