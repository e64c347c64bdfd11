package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratabuild/strata/pkg/strata"
	"github.com/stratabuild/strata/pkg/strata/overlay"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Checks all parts for conflicting staged files",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := getProject()
		if err != nil {
			return err
		}

		if err := strata.CheckStageCollisions(project.Parts, project.Config); err != nil {
			return err
		}
		if project.Config.Features.EnableOverlay {
			if err := overlay.CheckStageCollisions(project.Parts, project.Config); err != nil {
				return err
			}
		}

		fmt.Println("no conflicting files")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
