package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratabuild/strata/pkg/strata"
	"github.com/stratabuild/strata/pkg/strata/overlay"
)

// mountCmd represents the mount command
var mountCmd = &cobra.Command{
	Use:   "mount <part>",
	Short: "[experimental] Mounts the overlay layer stack up to a part",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := getProject()
		if err != nil {
			return err
		}

		part, err := strata.PartByName(args[0], project.Parts)
		if err != nil {
			return err
		}

		baseLayer, _ := cmd.Flags().GetString("base-layer")
		pkgCache, _ := cmd.Flags().GetBool("pkg-cache")

		mgr := overlay.NewManager(project.Config, project.Parts, baseLayer)
		if err := mgr.Mkdirs(); err != nil {
			return err
		}
		if err := mgr.MountLayer(part, pkgCache); err != nil {
			return err
		}

		fmt.Printf("mounted overlay for %s on %s\n", part.Name, project.Config.Dirs.OverlayMountDir)
		return nil
	},
}

// umountCmd represents the umount command
var umountCmd = &cobra.Command{
	Use:   "umount",
	Short: "[experimental] Unmounts the overlay layer stack",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := getProject()
		if err != nil {
			return err
		}

		return overlay.UnmountPath(project.Config.Dirs.OverlayMountDir)
	},
}

func init() {
	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(umountCmd)

	mountCmd.Flags().String("base-layer", "", "directory containing the overlay base layer")
	mountCmd.Flags().Bool("pkg-cache", false, "splice the package cache layer into the stack")
}
