package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigbag/ufptool/internal/gpt"
	"github.com/bigbag/ufptool/internal/protocol"
	"github.com/bigbag/ufptool/internal/ufp"
)

var (
	gptInputFlag      string
	gptOutputFlag     string
	gptArchiveFlag    string
	gptSectorSizeFlag uint32
	gptRoundFlag      bool
	gptWriteFlag      bool
)

func newGPTCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gpt",
		Short: "Inspect and edit the GPT partition table",
	}

	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the partition table as an XML descriptor",
		Args:  cobra.NoArgs,
		RunE:  runGPTDump,
	}

	mergeCmd := &cobra.Command{
		Use:   "merge <descriptor.xml>",
		Short: "Merge a partition descriptor into the partition table",
		Long: `Merge an XML partition descriptor into the partition table.

Partitions present in the archive are sized from their images. Partitions
at the end of the table that the archive replaces are relocated after the
last fixed partition. The rebuilt table is written to --output, and to the
device with --write.`,
		Args: cobra.ExactArgs(1),
		RunE: runGPTMerge,
	}
	mergeCmd.Flags().StringVarP(&gptArchiveFlag, "archive", "a", "", "Zip archive with partition images")
	mergeCmd.Flags().BoolVar(&gptRoundFlag, "round", false, "Align relocated partitions to 0x100 sectors (default from config)")

	restoreCmd := &cobra.Command{
		Use:   "restore-backup",
		Short: "Swap boot partitions back from their BACKUP_ copies",
		Args:  cobra.NoArgs,
		RunE:  runGPTRestore,
	}

	for _, c := range []*cobra.Command{dumpCmd, mergeCmd, restoreCmd} {
		c.Flags().StringVarP(&gptInputFlag, "input", "i", "", "Read the table from a file instead of the device")
		c.Flags().Uint32Var(&gptSectorSizeFlag, "sector-size", 512, "Sector size of --input")
		c.Flags().StringVarP(&gptOutputFlag, "output", "o", "", "Write the result to a file")
	}
	for _, c := range []*cobra.Command{mergeCmd, restoreCmd} {
		c.Flags().BoolVar(&gptWriteFlag, "write", false, "Write the rebuilt table to the device")
	}

	cmd.AddCommand(dumpCmd, mergeCmd, restoreCmd)
	return cmd
}

// withTable loads the table from --input or the device, runs fn, then
// writes the result where requested.
func withTable(fn func(t *gpt.Table) error) error {
	if gptInputFlag != "" {
		if gptWriteFlag {
			return fmt.Errorf("--write needs the table read from the device")
		}
		data, err := os.ReadFile(gptInputFlag)
		if err != nil {
			return fmt.Errorf("failed to read table: %w", err)
		}
		t, err := gpt.Parse(data, gptSectorSizeFlag)
		if err != nil {
			return err
		}
		return fn(t)
	}

	return withDevice(func(ctx context.Context, d *ufp.Device) error {
		t, err := d.ReadGPT(ctx)
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		if gptWriteFlag {
			return writeTable(ctx, d, t)
		}
		return nil
	})
}

// writeTable flashes the rebuilt table right after the protective MBR.
func writeTable(ctx context.Context, d *ufp.Device, t *gpt.Table) error {
	if !t.HasChanged() {
		fmt.Println("Partition table unchanged, nothing to write")
		return nil
	}
	if t.SectorSize() != protocol.SectorSize {
		return fmt.Errorf("writing %d byte sector tables is not supported", t.SectorSize())
	}
	if err := d.FlashSectors(ctx, 1, t.Bytes(), 0); err != nil {
		return fmt.Errorf("failed to write partition table: %w", err)
	}
	fmt.Println("Partition table written")
	return nil
}

func output() (io.Writer, func() error, error) {
	if gptOutputFlag == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(gptOutputFlag)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output: %w", err)
	}
	return f, f.Close, nil
}

func printTable(t *gpt.Table) {
	fmt.Printf("%-20s %-12s %-12s %-12s %s\n", "Name", "First", "Last", "Sectors", "Attributes")
	for _, p := range t.Partitions {
		fmt.Printf("%-20s 0x%-10X 0x%-10X 0x%-10X 0x%016X\n",
			p.Name, p.FirstSector(), p.LastSector(), p.SizeInSectors(), p.Attributes)
	}
}

func runGPTDump(cmd *cobra.Command, args []string) error {
	return withTable(func(t *gpt.Table) error {
		w, closeOutput, err := output()
		if err != nil {
			return err
		}
		if err := gpt.WriteDescriptor(w, t); err != nil {
			closeOutput()
			return err
		}
		return closeOutput()
	})
}

func runGPTMerge(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open descriptor: %w", err)
	}
	desc, err := gpt.ParseDescriptor(f)
	f.Close()
	if err != nil {
		return err
	}

	var archive gpt.Archive
	if gptArchiveFlag != "" {
		za, err := gpt.OpenZipArchive(gptArchiveFlag)
		if err != nil {
			return err
		}
		defer za.Close()
		archive = za
	}

	round := cfg.GPT.RoundToChunks
	if cmd.Flags().Changed("round") {
		round = gptRoundFlag
	}

	return withTable(func(t *gpt.Table) error {
		if err := t.Merge(desc, archive, round); err != nil {
			return err
		}
		printTable(t)
		return saveTable(t)
	})
}

func runGPTRestore(cmd *cobra.Command, args []string) error {
	return withTable(func(t *gpt.Table) error {
		if err := t.RestoreBackupPartitions(cfg.GPT.BackupThreshold); err != nil {
			return err
		}
		if t.HasChanged() {
			if _, err := t.Rebuild(); err != nil {
				return err
			}
		}
		printTable(t)
		return saveTable(t)
	})
}

func saveTable(t *gpt.Table) error {
	if gptOutputFlag == "" {
		return nil
	}
	if err := os.WriteFile(gptOutputFlag, t.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	fmt.Printf("Table written to %s\n", gptOutputFlag)
	return nil
}
