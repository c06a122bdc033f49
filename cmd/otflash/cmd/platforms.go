package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceFlash/pkg/knownapp"
	"github.com/OpenTraceLab/OpenTraceFlash/pkg/segment"
)

var platformsCmd = &cobra.Command{
	Use:   "platforms [platform]",
	Short: "List supported platforms and their flash segments",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPlatforms,
}

func init() {
	rootCmd.AddCommand(platformsCmd)
}

func runPlatforms(cmd *cobra.Command, args []string) error {
	platforms := segment.All()
	if len(args) == 1 {
		p, ok := lookupPlatform(args[0])
		if !ok {
			return fmt.Errorf("unknown platform %q", args[0])
		}
		platforms = []segment.Platform{p}
	}

	apps := &knownapp.Registry{Dir: cfg.KnownAppsDir}
	out := cmd.OutOrStdout()
	for _, p := range platforms {
		fmt.Fprintf(out, "%s (ID %d, DFU %04X:%04X)\n", p.Name, p.ID, p.VendorID, p.ProductID)
		for _, s := range p.Segments() {
			fmt.Fprintf(out, "  %-20s %s\n", s.Name, s.Hex())
		}
		// missing cache dir just means no apps
		if names, err := apps.List(p); err == nil && len(names) > 0 {
			fmt.Fprintf(out, "  known apps: %s\n", strings.Join(names, ", "))
		}
	}
	return nil
}

// lookupPlatform accepts a platform name or numeric ID.
func lookupPlatform(s string) (segment.Platform, bool) {
	if id, err := strconv.ParseUint(s, 10, 16); err == nil {
		return segment.ByID(uint16(id))
	}
	return segment.ByName(s)
}
