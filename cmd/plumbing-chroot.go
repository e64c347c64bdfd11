package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stratabuild/strata/pkg/strata/chroot"
)

// plumbingChrootCmd is the child-side entry point of the isolated execution
// boundary. The parent re-executes this binary with this command, passes a
// work unit request on stdin and reads the result from stdout.
var plumbingChrootCmd = &cobra.Command{
	Use:   "chroot",
	Short: "Executes a work unit in a chroot environment",
	Run: func(cmd *cobra.Command, args []string) {
		if err := chroot.ExecuteChild(os.Stdin, os.Stdout); err != nil {
			log.WithError(err).Fatal("chroot execution failed")
		}
	},
}

func init() {
	plumbingCmd.AddCommand(plumbingChrootCmd)
}
