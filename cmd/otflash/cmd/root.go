package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceFlash/internal/config"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "otflash",
	Short: "Firmware flasher for DFU, serial and cloud targets",
	Long: `otflash writes firmware module binaries to devices. It reads the module
header of the image to decide which flash segment it belongs to, checks it
against the connected device and hands it to dfu-util, a serial YMODEM
transfer or the device cloud.

Examples:
  otflash flash --usb firmware.bin          # Flash over USB DFU
  otflash flash --usb my-device tinker      # Flash a known app to a named device
  otflash flash --serial system-part1.bin   # Flash in listening mode
  otflash flash my-device app.cpp lib.h     # Compile and flash over the air
  otflash inspect system-part2.bin          # Show where an image would go`,
	Version:       "0.9.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			flag.Set("v", "1")
		}
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return nil
	},
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	defer glog.Flush()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		glog.Flush()
		stop()
		os.Exit(1)
	}
}

func init() {
	// glog writes to files unless told otherwise
	flag.Set("logtostderr", "true")
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose output (same as --v=1)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/otflash/config.json)")
}
