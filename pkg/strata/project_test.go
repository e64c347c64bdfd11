package strata_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratabuild/strata/pkg/strata"
)

func writeProjectFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	fn := filepath.Join(dir, strata.ProjectFilename)
	require.NoError(t, os.WriteFile(fn, []byte(content), 0644))
	return fn
}

func TestLoadProject(t *testing.T) {
	fn := writeProjectFile(t, `
parts:
  app:
    after: [lib]
    stage:
      - bin/*
  lib:
    after: [base]
  base:
    overlay-packages: [ca-certificates]
    overlay-script: |
      update-ca-certificates
`)

	prj, err := strata.LoadProject(fn, t.TempDir(), strata.Features{EnableOverlay: true})
	require.NoError(t, err)
	require.Len(t, prj.Parts, 3)
	require.Equal(t, "base", prj.Parts[0].Name)
	require.Equal(t, "lib", prj.Parts[1].Name)
	require.Equal(t, "app", prj.Parts[2].Name)
	require.True(t, prj.Parts[0].HasOverlay())
	require.False(t, prj.Parts[2].HasOverlay())
}

func TestLoadProjectErrors(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		features    strata.Features
		expectation string
	}{
		{
			name:        "no parts",
			content:     "parts: {}\n",
			expectation: "declares no parts",
		},
		{
			name: "unknown fields rejected",
			content: `
parts:
  app:
    afterr: [lib]
`,
			expectation: "cannot parse",
		},
		{
			name: "overlay content without the overlay feature",
			content: `
parts:
  base:
    overlay-packages: [curl]
`,
			expectation: "part declares overlay content but the overlay feature is not enabled",
		},
		{
			name: "invalid part name",
			content: `
parts:
  Base:
    after: []
`,
			expectation: "part names must contain only lowercase letters",
		},
		{
			name: "dependency cycle",
			content: `
parts:
  a:
    after: [b]
  b:
    after: [a]
`,
			expectation: "circular dependency",
		},
		{
			name: "partitions without the feature",
			content: `
partitions: [default, kernel]
parts:
  app: {}
`,
			expectation: "partitions are defined but the partitions feature is not enabled",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fn := writeProjectFile(t, test.content)
			_, err := strata.LoadProject(fn, t.TempDir(), test.features)
			require.ErrorContains(t, err, test.expectation)
		})
	}
}

func TestLoadProjectPartitioned(t *testing.T) {
	fn := writeProjectFile(t, `
partitions: [default, kernel]
parts:
  app: {}
`)

	prj, err := strata.LoadProject(fn, t.TempDir(), strata.Features{EnablePartitions: true})
	require.NoError(t, err)
	require.Equal(t, []string{"default", "kernel"}, prj.Config.EffectivePartitions())

	stage, err := prj.Config.Dirs.StageDir("kernel")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(prj.Config.Dirs.WorkDir, "stage", "kernel"), stage)

	stage, err = prj.Config.Dirs.StageDir("default")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(prj.Config.Dirs.WorkDir, "stage"), stage)

	_, err = prj.Config.Dirs.StageDir("ghost")
	require.ErrorContains(t, err, "unknown partition")
}

func TestFindProjectFile(t *testing.T) {
	dir := t.TempDir()
	_, err := strata.FindProjectFile(dir)
	require.Error(t, err)

	fn := filepath.Join(dir, strata.ProjectFilename)
	require.NoError(t, os.WriteFile(fn, []byte("parts: {}\n"), 0644))

	found, err := strata.FindProjectFile(dir)
	require.NoError(t, err)
	require.Equal(t, fn, found)
}

func TestNewConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		features    strata.Features
		partitions  []string
		expectation string
	}{
		{
			name: "no features",
		},
		{
			name:     "overlay only",
			features: strata.Features{EnableOverlay: true},
		},
		{
			name:       "partitions only",
			features:   strata.Features{EnablePartitions: true},
			partitions: []string{"default", "kernel"},
		},
		{
			name:        "overlay and partitions are mutually exclusive",
			features:    strata.Features{EnableOverlay: true, EnablePartitions: true},
			partitions:  []string{"default"},
			expectation: "mutually exclusive",
		},
		{
			name:        "partitions feature without partitions",
			features:    strata.Features{EnablePartitions: true},
			expectation: "no partitions are defined",
		},
		{
			name:        "first partition must be default",
			features:    strata.Features{EnablePartitions: true},
			partitions:  []string{"kernel", "default"},
			expectation: "the first partition must be \"default\"",
		},
		{
			name:        "invalid partition name",
			features:    strata.Features{EnablePartitions: true},
			partitions:  []string{"default", "Kernel"},
			expectation: "invalid partition name \"Kernel\"",
		},
		{
			name:        "duplicate partition",
			features:    strata.Features{EnablePartitions: true},
			partitions:  []string{"default", "kernel", "kernel"},
			expectation: "partition \"kernel\" is defined twice",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := strata.NewConfig(t.TempDir(), test.features, test.partitions)
			if test.expectation == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, test.expectation)
		})
	}
}
