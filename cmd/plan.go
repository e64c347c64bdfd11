package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/stratabuild/strata/pkg/strata"
	"github.com/stratabuild/strata/pkg/strata/overlay"
)

// planCmd represents the plan command
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Prints the part processing order and layer cache state",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := getProject()
		if err != nil {
			return err
		}

		var baseHash overlay.LayerHash
		if baseDigest, _ := cmd.Flags().GetString("base-digest"); baseDigest != "" {
			baseHash, err = hex.DecodeString(baseDigest)
			if err != nil {
				return xerrors.Errorf("invalid base digest: %w", err)
			}
		}

		layers, err := overlay.NewLayerState(project.Parts, baseHash)
		if err != nil {
			return err
		}

		viewers := make(map[string]struct{})
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer tw.Flush()
		fmt.Fprintln(tw, "PART\tOVERLAY\tLAYER")
		for _, part := range project.Parts {
			visible, err := strata.HasOverlayVisibility(part, project.Parts, viewers)
			if err != nil {
				return err
			}

			overlayState := "-"
			if part.HasOverlay() {
				overlayState = "declares"
			} else if visible {
				overlayState = "visible"
			}

			computed, err := layers.ComputeLayerHash(part)
			if err != nil {
				return err
			}
			layerState := "missing"
			if known := layers.GetLayerHash(part); known != nil {
				if computed.Equal(known) {
					layerState = "cached"
				} else {
					layerState = "stale"
				}
			}
			// chain subsequent parts off the declared inputs, not prior state
			layers.SetLayerHash(part, computed)

			fmt.Fprintf(tw, "%s\t%s\t%s\n", part.Name, overlayState, layerState)
		}

		log.WithField("parts", len(project.Parts)).Debug("planned processing order")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().String("base-digest", "", "hex digest of the overlay base layer")
}
