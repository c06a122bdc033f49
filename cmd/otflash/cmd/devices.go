package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceFlash/pkg/dfu"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List connected devices in DFU mode",
	Long: `Scan USB for devices of a supported platform that are in DFU mode and print
their identifiers and the memory layout they report.`,
	RunE: runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	devs, err := dfu.Enumerate(ctx)
	if err != nil {
		return fmt.Errorf("enumerate devices: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(devs) == 0 {
		fmt.Fprintln(out, "No devices in DFU mode found.")
		return nil
	}

	fmt.Fprintln(out, "Devices in DFU mode:")
	for _, d := range devs {
		fmt.Fprintf(out, "  - %s\n", d.Label())
		if d.Layout != nil {
			fmt.Fprintf(out, "    %s\n", d.Layout.Name)
		}
	}
	return nil
}
