package cmd

import (
	"github.com/spf13/cobra"
)

// plumbingCmd represents the plumbing command
var plumbingCmd = &cobra.Command{
	Use:    "plumbing",
	Short:  "Internal commands - use at your own risk",
	Hidden: true,
}

func init() {
	rootCmd.AddCommand(plumbingCmd)
}
