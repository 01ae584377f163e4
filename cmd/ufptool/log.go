package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bigbag/ufptool/internal/ufp"
)

var (
	servicingFlag bool
	logDirFlag    string
)

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Download the device flashing log",
		Long: `Download the flashing log, or the servicing log with --servicing, and
save it as FlashLog_<date>.log in the output directory.`,
		Args: cobra.NoArgs,
		RunE: runLog,
	}
	cmd.Flags().BoolVar(&servicingFlag, "servicing", false, "Read the servicing log instead of the flashing log")
	cmd.Flags().StringVarP(&logDirFlag, "output-dir", "o", "", "Directory to save the log in (default from config)")
	return cmd
}

// logFileName names a log after the local time it was saved.
func logFileName(t time.Time) string {
	return fmt.Sprintf("FlashLog_%d_%d_%d_%d_%d_%d_%s.log",
		int(t.Month()), t.Day(), t.Year(), t.Hour(), t.Minute(), t.Second(), t.Format("PM"))
}

func runLog(cmd *cobra.Command, args []string) error {
	dir := cfg.Log.OutputDir
	if logDirFlag != "" {
		dir = logDirFlag
	}
	logType := ufp.LogFlashing
	if servicingFlag {
		logType = ufp.LogServicing
	}

	return withDevice(func(ctx context.Context, d *ufp.Device) error {
		data, ok := d.ReadLog(ctx, logType)
		if !ok {
			return fmt.Errorf("the device did not return a log")
		}

		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		name := filepath.Join(dir, logFileName(time.Now()))
		if err := os.WriteFile(name, data, 0o644); err != nil {
			return fmt.Errorf("failed to save log: %w", err)
		}
		fmt.Printf("Saved %d bytes to %s\n", len(data), name)
		return nil
	})
}
