package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stratabuild/strata/pkg/strata"
	"github.com/stratabuild/strata/pkg/strata/packages"
)

const (
	// EnvvarProjectRoot names the environment variable we check for the project root path
	EnvvarProjectRoot = "STRATA_PROJECT_ROOT"
)

var (
	// version is set during the build using ldflags
	version string = "unknown"

	projectRoot      string
	workDir          string
	verbose          bool
	enableOverlay    bool
	enablePartitions bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Builds artifacts from a declarative list of parts",
	Long: `Strata processes a declarative list of parts through ordered steps
whose outputs are merged into shared staging and final payload trees.
Each part contributes one layer to a stacked overlay filesystem; layers
are cached across runs and invalidated through a content-derived hash
chain.

A project is declared in a strata.yaml file listing its parts, their
ordering constraints ("after"), overlay content, stage/prime file
filters and permission rules.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	root := os.Getenv(EnvvarProjectRoot)
	if root == "" {
		root = "."
	}

	rootCmd.PersistentFlags().StringVarP(&projectRoot, "project", "p", root, "project root containing strata.yaml")
	rootCmd.PersistentFlags().StringVar(&workDir, "work-dir", "", "work directory for parts, overlay and staging trees (defaults to the project root)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enables verbose logging")
	rootCmd.PersistentFlags().BoolVar(&enableOverlay, "enable-overlay", false, "enables the overlay step")
	rootCmd.PersistentFlags().BoolVar(&enablePartitions, "enable-partitions", false, "enables named output partitions")

	// repository operations must resolve in the parent and the re-executed
	// chroot child alike
	packages.RegisterWorkUnits(packages.NoRepository{})
}

func getProject() (*strata.Project, error) {
	fn, err := strata.FindProjectFile(projectRoot)
	if err != nil {
		return nil, err
	}

	wd := workDir
	if wd == "" {
		wd = projectRoot
	}

	return strata.LoadProject(fn, wd, strata.Features{
		EnableOverlay:    enableOverlay,
		EnablePartitions: enablePartitions,
	})
}
