package cmd

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceFlash/internal/config"
	"github.com/OpenTraceLab/OpenTraceFlash/internal/prompt"
	"github.com/OpenTraceLab/OpenTraceFlash/pkg/cloud"
	"github.com/OpenTraceLab/OpenTraceFlash/pkg/dfu"
	"github.com/OpenTraceLab/OpenTraceFlash/pkg/flash"
	"github.com/OpenTraceLab/OpenTraceFlash/pkg/knownapp"
	"github.com/OpenTraceLab/OpenTraceFlash/pkg/serialflash"
)

var (
	flashUSB     bool
	flashSerial  bool
	flashCloud   bool
	flashFactory bool
	flashForce   bool
	flashYes     bool
	flashPort    string
	flashTarget  string
	flashLeave   bool
	flashNoLeave bool
)

var flashCmd = &cobra.Command{
	Use:   "flash [device|image] [files...]",
	Short: "Flash firmware to a device",
	Long: `Flash a firmware image to a device over USB DFU, serial or the cloud.

Over USB the module header decides the destination: system parts go to their
system firmware segment, radio stacks to the radio segment and applications to
user firmware (or the factory reset slot with --factory). If the image path does
not exist but names a known application such as tinker, that app is flashed.

Examples:
  otflash flash --usb firmware.bin
  otflash flash --usb 0123456789abcdef01234567 system-part1.bin
  otflash flash --usb --factory tinker
  otflash flash --serial --port /dev/ttyACM0 firmware.bin
  otflash flash --target 5.8.0 my-device src/`,
	Args: cobra.ArbitraryArgs,
	RunE: runFlash,
}

func init() {
	rootCmd.AddCommand(flashCmd)

	f := flashCmd.Flags()
	f.BoolVar(&flashUSB, "usb", false, "flash over USB DFU")
	f.BoolVar(&flashSerial, "serial", false, "flash over a serial port in listening mode")
	f.BoolVar(&flashCloud, "cloud", false, "flash over the air (default)")
	f.BoolVar(&flashFactory, "factory", false, "write to the factory reset segment")
	f.BoolVar(&flashForce, "force", false, "flash despite CRC, platform or module type errors")
	f.BoolVarP(&flashYes, "yes", "y", false, "do not ask for confirmation")
	f.StringVar(&flashPort, "port", "", "serial port (auto-detected if empty)")
	f.StringVar(&flashTarget, "target", "", "firmware version to build against (cloud)")
	f.BoolVar(&flashLeave, "leave", false, "leave DFU mode after the write")
	f.BoolVar(&flashNoLeave, "no-leave", false, "stay in DFU mode after the write")
}

func runFlash(cmd *cobra.Command, args []string) error {
	opts, err := flashOptions(cmd, args)
	if err != nil {
		return err
	}
	d := newDispatcher(cfg)
	d.Out = cmd.OutOrStdout()
	return d.Flash(cmd.Context(), opts)
}

func flashOptions(cmd *cobra.Command, args []string) (flash.Options, error) {
	opts := flash.Options{
		Factory: flashFactory,
		Force:   flashForce,
		Yes:     flashYes,
		Port:    flashPort,
		Target:  flashTarget,
	}
	if len(args) > 0 {
		opts.Device = args[0]
		opts.Files = args[1:]
	}

	n := 0
	for _, set := range []bool{flashUSB, flashSerial, flashCloud} {
		if set {
			n++
		}
	}
	if n > 1 {
		return opts, errors.New("only one of --usb, --serial and --cloud may be given")
	}
	switch {
	case flashUSB:
		opts.Mode = flash.ModeUSB
	case flashSerial:
		opts.Mode = flash.ModeSerial
	default:
		opts.Mode = flash.ModeCloud
	}

	leave, noLeave := cmd.Flags().Changed("leave"), cmd.Flags().Changed("no-leave")
	switch {
	case leave && noLeave:
		return opts, errors.New("--leave and --no-leave are mutually exclusive")
	case leave:
		opts.Leave = &flashLeave
	case noLeave:
		v := !flashNoLeave
		opts.Leave = &v
	}
	return opts, nil
}

func newDispatcher(cfg *config.Config) *flash.Dispatcher {
	p := prompt.Terminal()

	util := &dfu.Util{Path: cfg.DFUUtil}
	if verbose {
		util.Progress = os.Stderr
	}
	client := cloud.NewClient(cfg.APIURL, authStrategy(cfg, p))

	return &flash.Dispatcher{
		Toolchain: util,
		Finder:    &dfu.Finder{Wait: time.Duration(cfg.DeviceWait)},
		KnownApps: &knownapp.Registry{Dir: cfg.KnownAppsDir, BaseURL: cfg.KnownAppsURL},
		Writer:    util,
		Directory: client,
		Serial: &serialflash.Flasher{
			Baud:     cfg.SerialBaud,
			Confirm:  p.Confirm,
			Progress: serialProgress,
		},
		Cloud: &cloud.Flasher{Client: client, Confirm: p.Confirm},
	}
}

// authStrategy uses the configured token or asks for one the first time the
// API needs it, offering to store it in the config file.
func authStrategy(cfg *config.Config, p *prompt.Prompter) cloud.AuthStrategy {
	if cfg.AccessToken != "" {
		return cloud.BearerToken(cfg.AccessToken)
	}
	var (
		once sync.Once
		tok  string
		err  error
	)
	return cloud.TokenFunc(func() (string, error) {
		once.Do(func() {
			tok, err = p.Token()
			if err != nil {
				err = fmt.Errorf("no access token (set %s or access_token in the config): %w", config.EnvAccessToken, err)
				return
			}
			if ok, _ := p.Confirm("Save the access token to the config file?"); ok {
				cfg.AccessToken = tok
				if err := config.Save(configPath, cfg); err != nil {
					glog.Warningf("save config: %v", err)
				}
			}
		})
		return tok, err
	})
}

func serialProgress(sent, total int) {
	if verbose {
		fmt.Fprintf(os.Stderr, "\rsent %d/%d bytes", sent, total)
		if sent == total {
			fmt.Fprintln(os.Stderr)
		}
	}
}
