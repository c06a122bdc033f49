package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceFlash/pkg/flash"
	"github.com/OpenTraceLab/OpenTraceFlash/pkg/image"
	"github.com/OpenTraceLab/OpenTraceFlash/pkg/module"
	"github.com/OpenTraceLab/OpenTraceFlash/pkg/segment"
)

var (
	inspectPlatform string
	inspectFactory  bool
	inspectForce    bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <image>",
	Short: "Show the module header of an image and where it would be flashed",
	Long: `Decode the module prefix and suffix of a firmware binary (or Intel HEX file)
and resolve its flash destination without touching a device.

The destination is resolved for the platform recorded in the image unless
--platform selects another one.

Examples:
  otflash inspect system-part1.bin
  otflash inspect --platform electron --factory app.bin`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVarP(&inspectPlatform, "platform", "p", "", "platform to resolve for (name or ID)")
	inspectCmd.Flags().BoolVar(&inspectFactory, "factory", false, "resolve for the factory reset segment")
	inspectCmd.Flags().BoolVar(&inspectForce, "force", false, "ignore CRC, platform and module type errors")
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	out := cmd.OutOrStdout()

	img := image.Open(path)
	if image.IsHex(path) {
		var err error
		if img, err = image.FromHex(path); err != nil {
			return err
		}
	}
	defer img.Close()

	desc, err := module.ParseFile(img.Path)
	if err != nil {
		return &flash.ParseError{Path: path, Err: err}
	}
	desc.Path = path
	printDescriptor(out, desc)

	p, err := inspectTarget(desc)
	if err != nil {
		return err
	}

	plan, err := flash.Resolve(flash.Request{
		Image:      img,
		Descriptor: desc,
		Factory:    inspectFactory,
		Force:      inspectForce,
	}, p)
	if err != nil {
		return err
	}
	defer plan.Close()

	fmt.Fprintf(out, "\nDestination on %s:\n", p.Name)
	fmt.Fprintf(out, "  Segment: %s\n", plan.Segment)
	fmt.Fprintf(out, "  Address: %s\n", plan.Address)
	fmt.Fprintf(out, "  Leave:   %t\n", plan.Leave)
	if plan.Image.Temporary() {
		fmt.Fprintf(out, "  Header:  stripped (%d bytes)\n", module.HeaderSize)
	}
	return nil
}

func inspectTarget(desc *module.Descriptor) (segment.Platform, error) {
	if inspectPlatform != "" {
		if p, ok := lookupPlatform(inspectPlatform); ok {
			return p, nil
		}
		return segment.Platform{}, fmt.Errorf("unknown platform %q", inspectPlatform)
	}
	if p, ok := segment.ByID(desc.PlatformID); ok {
		return p, nil
	}
	return segment.Platform{}, fmt.Errorf("image platform %d is not supported; use --platform", desc.PlatformID)
}

func printDescriptor(w io.Writer, d *module.Descriptor) {
	platform := "unknown"
	if p, ok := segment.ByID(d.PlatformID); ok {
		platform = p.Name
	}

	fmt.Fprintf(w, "Module: %s\n", d.Path)
	fmt.Fprintf(w, "  Function: %s\n", d.Function)
	if d.Function == module.FunctionSystemPart {
		fmt.Fprintf(w, "  Index:    %d\n", d.Index)
	}
	fmt.Fprintf(w, "  Platform: %d (%s)\n", d.PlatformID, platform)
	fmt.Fprintf(w, "  Version:  %d\n", d.Version)
	fmt.Fprintf(w, "  Start:    %s\n", segment.FormatAddress(d.StartAddress))
	fmt.Fprintf(w, "  End:      %s\n", segment.FormatAddress(d.EndAddress))
	fmt.Fprintf(w, "  Flags:    0x%02x\n", uint8(d.Flags))
	fmt.Fprintf(w, "  Size:     %d bytes\n", d.Size)

	for i, dep := range d.Dependencies {
		if dep.Function == module.FunctionNone {
			continue
		}
		fmt.Fprintf(w, "  Depends:  [%d] %s %d v%d\n", i, dep.Function, dep.Index, dep.Version)
	}

	if d.SuffixUnknown() {
		fmt.Fprintln(w, "  Suffix:   unknown (CRC and platform not verifiable)")
		return
	}
	valid := "valid"
	if !d.CRCValid {
		valid = fmt.Sprintf("INVALID, computed 0x%08x", d.ComputedCRC)
	}
	fmt.Fprintf(w, "  Product:  %d v%d\n", d.ProductID, d.ProductVersion)
	fmt.Fprintf(w, "  CRC:      0x%08x (%s)\n", d.StoredCRC, valid)
}
