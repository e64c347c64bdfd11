package cmd

import (
	"os"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stratabuild/strata/pkg/prettyprint"
	"github.com/stratabuild/strata/pkg/strata"
)

// partDescription is the printable description of a part
type partDescription struct {
	Name         string          `json:"name" yaml:"name"`
	Overlay      bool            `json:"overlay" yaml:"overlay"`
	Dependencies []string        `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Spec         strata.PartSpec `json:"spec" yaml:"spec"`
}

// describeCmd represents the describe command
var describeCmd = &cobra.Command{
	Use:   "describe <part>",
	Short: "Prints the specification of a part",
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

		deps, err := strata.PartDependencies(part, project.Parts, true)
		if err != nil {
			return err
		}
		depNames := make([]string, 0, len(deps))
		for name := range deps {
			depNames = append(depNames, name)
		}
		sort.Strings(depNames)

		w := getWriterFromFlags(cmd)
		if w.Format == prettyprint.TemplateFormat && w.FormatString == "" {
			w.FormatString = `Name:{{"\t"}}{{ .Name }}
Overlay:{{"\t"}}{{ .Overlay }}
{{ if .Dependencies -}}
Dependencies:
{{- range $k, $v := .Dependencies }}
{{"\t"}}{{ $v -}}
{{ end }}
{{ end -}}
`
		}

		return w.Write(partDescription{
			Name:         part.Name,
			Overlay:      part.HasOverlay(),
			Dependencies: depNames,
			Spec:         part.Spec,
		})
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
	addFormatFlags(describeCmd)
}

// addFormatFlags adds the output format flags of prettyprint-based commands
func addFormatFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "o", string(prettyprint.TemplateFormat), "the description format. Valid choices are: template, json, yaml")
	cmd.Flags().String("format-string", "", "override the template of the template format")
}

func getWriterFromFlags(cmd *cobra.Command) *prettyprint.Writer {
	format, _ := cmd.Flags().GetString("format")
	formatString, _ := cmd.Flags().GetString("format-string")
	if formatString != "" {
		format = string(prettyprint.TemplateFormat)
	}

	valid := false
	for _, f := range prettyprint.Formats() {
		if prettyprint.Format(format) == f {
			valid = true
			break
		}
	}
	if !valid {
		log.WithField("format", format).Fatal("unknown description format")
	}

	return &prettyprint.Writer{
		Out:          os.Stdout,
		Format:       prettyprint.Format(format),
		FormatString: formatString,
	}
}
