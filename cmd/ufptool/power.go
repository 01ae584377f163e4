package main

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigbag/ufptool/internal/protocol"
	"github.com/bigbag/ufptool/internal/ufp"
)

var switchTargets = map[string]protocol.SwitchTarget{
	"reboot":    protocol.SwitchReboot,
	"ufp":       protocol.SwitchToUFP,
	"continue":  protocol.SwitchContinue,
	"power-off": protocol.SwitchPowerOff,
	"boot-app":  protocol.SwitchToBootApp,
}

// deviceCmd wraps a single device action in a command without arguments.
func deviceCmd(use, short string, fn func(ctx context.Context, d *ufp.Device) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(fn)
		},
	}
}

func newPowerCmds() []*cobra.Command {
	modeCmd := &cobra.Command{
		Use:       "mode <reboot|ufp|continue|power-off|boot-app>",
		Short:     "Switch the device to another mode",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"reboot", "ufp", "continue", "power-off", "boot-app"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, ok := switchTargets[args[0]]
			if !ok {
				return fmt.Errorf("unknown mode %q", args[0])
			}
			return withDevice(func(ctx context.Context, d *ufp.Device) error {
				d.SwitchMode(ctx, target)
				fmt.Printf("Switched to %s\n", target)
				return nil
			})
		},
	}

	return []*cobra.Command{
		deviceCmd("reboot", "Reboot the device", func(ctx context.Context, d *ufp.Device) error {
			d.ResetPhone(ctx)
			fmt.Println("Rebooting")
			return nil
		}),
		deviceCmd("shutdown", "Power the device off", func(ctx context.Context, d *ufp.Device) error {
			d.Shutdown(ctx)
			fmt.Println("Shutting down")
			return nil
		}),
		deviceCmd("skip", "Leave flash mode and continue booting", func(ctx context.Context, d *ufp.Device) error {
			d.SwitchMode(ctx, protocol.SwitchContinue)
			fmt.Println("Continuing boot")
			return nil
		}),
		deviceCmd("mass-storage", "Restart the device as USB mass storage", func(ctx context.Context, d *ufp.Device) error {
			d.MassStorage(ctx)
			fmt.Println("Restarting in mass storage mode")
			return nil
		}),
		deviceCmd("relock", "Relock the bootloader", func(ctx context.Context, d *ufp.Device) error {
			if err := d.Relock(ctx); err != nil {
				return err
			}
			fmt.Println("Device relocked")
			return nil
		}),
		deviceCmd("unlock-id", "Print the UnlockID variable", func(ctx context.Context, d *ufp.Device) error {
			id, ok := d.ReadUnlockID(ctx)
			if !ok {
				return fmt.Errorf("the device did not return an unlock ID")
			}
			fmt.Println(hex.EncodeToString(id))
			return nil
		}),
		modeCmd,
	}
}
