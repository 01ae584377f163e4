package main

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/bigbag/ufptool/internal/ffu"
	"github.com/bigbag/ufptool/internal/flasher"
	"github.com/bigbag/ufptool/internal/ufp"
)

var (
	skipPlatformCheckFlag bool
	skipSignatureFlag     bool
	skipHashFlag          bool
	verifyWriteFlag       bool
	skipWriteFlag         bool
	forceSyncFlag         bool
	noResetFlag           bool
)

func newFlashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flash <image.ffu>",
		Short: "Flash an FFU image to the device",
		Long: `Flash an FFU image to the device.

The transfer protocol (sync v1, sync v2 or async v3) is picked from the
capabilities the flash app reports. The device reboots when done unless
--no-reset is given.`,
		Args: cobra.ExactArgs(1),
		RunE: runFlash,
	}
	addFlashFlags(cmd)
	cmd.Flags().BoolVar(&noResetFlag, "no-reset", false, "Do not reboot the device after flashing")
	return cmd
}

func newRambootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ramboot <image.ffu>",
		Short: "Boot an FFU image from device memory",
		Args:  cobra.ExactArgs(1),
		RunE:  runRamboot,
	}
	addFlashFlags(cmd)
	return cmd
}

func addFlashFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&skipPlatformCheckFlag, "skip-platform-check", false, "Skip the platform ID check")
	cmd.Flags().BoolVar(&skipSignatureFlag, "skip-signature", false, "Skip the signature check")
	cmd.Flags().BoolVar(&skipHashFlag, "skip-hash", false, "Skip hash verification")
	cmd.Flags().BoolVar(&verifyWriteFlag, "verify", false, "Verify written data")
	cmd.Flags().BoolVar(&skipWriteFlag, "skip-write", false, "Run the transfer without writing storage")
	cmd.Flags().BoolVar(&forceSyncFlag, "force-sync", false, "Never use the asynchronous protocol")
}

func flashFlags() flasher.FlashFlags {
	flags := flasher.Normal
	set := func(on bool, f flasher.FlashFlags) {
		if on {
			flags |= f
		}
	}
	set(skipPlatformCheckFlag, flasher.SkipPlatformIDCheck)
	set(skipSignatureFlag, flasher.SkipSignatureCheck)
	set(skipHashFlag, flasher.SkipHash)
	set(verifyWriteFlag, flasher.VerifyWrite)
	set(skipWriteFlag, flasher.SkipWrite)
	set(forceSyncFlag || cfg.Flash.ForceSync, flasher.ForceSynchronousWrite)
	return flags
}

func runFlash(cmd *cobra.Command, args []string) error {
	return transferImage(args[0], func(ctx context.Context, f *flasher.Flasher, img *ffu.Image) error {
		opts := flasher.Options{
			Flags:      flashFlags(),
			ResetAfter: cfg.Flash.ResetAfter && !noResetFlag,
		}
		return f.FlashFFU(ctx, img, opts)
	})
}

func runRamboot(cmd *cobra.Command, args []string) error {
	return transferImage(args[0], func(ctx context.Context, f *flasher.Flasher, img *ffu.Image) error {
		return f.Ramboot(ctx, img, flashFlags())
	})
}

func transferImage(path string, run func(context.Context, *flasher.Flasher, *ffu.Image) error) error {
	img, err := ffu.Open(path)
	if err != nil {
		return err
	}
	defer img.Close()

	fmt.Printf("Image: %s (%d bytes)\n", path, img.Size())
	fmt.Printf("  Platform:   %s\n", img.PlatformID())
	fmt.Printf("  Chunk size: 0x%X\n", img.ChunkSize())
	fmt.Printf("  Header:     0x%X bytes\n", img.HeaderSize())

	return withDevice(func(ctx context.Context, d *ufp.Device) error {
		info, err := d.Info(ctx)
		if err != nil {
			return fmt.Errorf("failed to read device info: %w", err)
		}
		if info.PlatformID != "" && img.PlatformID() != "" && info.PlatformID != img.PlatformID() && !skipPlatformCheckFlag {
			fmt.Printf("Warning: image platform %s does not match device platform %s\n", img.PlatformID(), info.PlatformID)
		}

		f := flasher.New(d, info, flasher.WithLogger(newLogger()))

		bar := progressbar.NewOptions(int(img.TotalChunkCount()),
			progressbar.OptionSetDescription("Flashing"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowBytes(false),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(100),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		f.SetProgressCallback(func(p flasher.Progress) {
			bar.Set(int(p.Completed))
		})

		if err := run(ctx, f, img); err != nil {
			fmt.Println()
			return err
		}

		bar.Finish()
		fmt.Println("\nDone!")
		return nil
	})
}
