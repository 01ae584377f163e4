package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigbag/ufptool/internal/config"
	"github.com/bigbag/ufptool/internal/ufp"
	"github.com/bigbag/ufptool/internal/usb"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configFlag  string
	verboseFlag bool
	busFlag     int
	addressFlag int

	cfg *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ufptool",
		Short: "Flash and inspect devices in UFP flash mode",
		Long: `ufptool talks to phones running the Unified Flashing Platform (UFP)
flash app over USB.

It flashes and ramboots FFU images, reads device parameters and logs,
and dumps, merges and writes the GPT partition table.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(configFlag)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("verbose") {
				c.Log.Verbose = verboseFlag
			}
			cfg = c
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Config file (default ./ufptool.yaml or ~/.config/ufptool/ufptool.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log protocol traffic to stderr")
	rootCmd.PersistentFlags().IntVar(&busFlag, "bus", 0, "USB bus of the device (when several are connected)")
	rootCmd.PersistentFlags().IntVar(&addressFlag, "address", 0, "USB address of the device (when several are connected)")

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ufptool %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	rootCmd.AddCommand(
		newFlashCmd(),
		newRambootCmd(),
		newInfoCmd(),
		newParamCmd(),
		newListCmd(),
		newLogCmd(),
		newGPTCmd(),
		versionCmd,
	)
	rootCmd.AddCommand(newPowerCmds()...)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() ufp.Logger {
	level := slog.LevelInfo
	if cfg != nil && cfg.Log.Verbose {
		level = slog.LevelDebug
	}
	return slogLogger{slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
}

// slogLogger adapts slog to the key-value Logger of the core packages.
type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) Debug(msg string, kv ...interface{}) { s.l.Debug(msg, kv...) }
func (s slogLogger) Info(msg string, kv ...interface{})  { s.l.Info(msg, kv...) }
func (s slogLogger) Error(msg string, kv ...interface{}) { s.l.Error(msg, kv...) }

func usbOptions() usb.Options {
	opts := cfg.USBOptions()
	opts.Bus = busFlag
	opts.Address = addressFlag
	return opts
}

// openDevice opens the selected device and starts a UFP session on it.
func openDevice() (*ufp.Device, *usb.Port, error) {
	port, err := usb.Open(usbOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open device: %w", err)
	}

	d := ufp.New(port,
		ufp.WithLogger(newLogger()),
		ufp.WithTransferBufferSize(cfg.USB.ReadBufferSize),
	)
	fmt.Printf("Device: %s\n", port.Device())
	return d, port, nil
}

// withDevice runs fn against a freshly opened session and closes it after.
func withDevice(fn func(ctx context.Context, d *ufp.Device) error) error {
	d, port, err := openDevice()
	if err != nil {
		return err
	}
	defer port.Close()

	return fn(context.Background(), d)
}
