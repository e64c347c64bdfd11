package strata

import (
	"fmt"
	"path/filepath"
	"regexp"
)

// OverlayPartition is the distinguished partition receiving overlay content.
// Files a part organizes into this partition mark the package cache level.
const OverlayPartition = "overlay"

// DefaultPartition is the partition used when no partition is named.
const DefaultPartition = "default"

var partitionNameRegexp = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Features enables optional subsystems for a single project. It replaces a
// process-wide feature flag singleton so that multiple projects can be
// processed in the same process without cross-talk.
type Features struct {
	EnableOverlay    bool
	EnablePartitions bool
}

// Config carries the per-project configuration shared by all subsystems.
// A Config is immutable once constructed.
type Config struct {
	Features   Features
	Dirs       *ProjectDirs
	Partitions []string
}

// NewConfig validates the feature/partition combination once and computes the
// project directory layout. All later operations trust this validation.
func NewConfig(workDir string, features Features, partitions []string) (*Config, error) {
	if features.EnableOverlay && features.EnablePartitions {
		return nil, ConfigurationErr{Message: "the overlay and partitions features are mutually exclusive"}
	}
	if len(partitions) > 0 && !features.EnablePartitions {
		return nil, ConfigurationErr{Message: "partitions are defined but the partitions feature is not enabled"}
	}
	if features.EnablePartitions {
		if len(partitions) == 0 {
			return nil, ConfigurationErr{Message: "the partitions feature is enabled but no partitions are defined"}
		}
		if partitions[0] != DefaultPartition {
			return nil, ConfigurationErr{Message: fmt.Sprintf("the first partition must be \"%s\"", DefaultPartition)}
		}
		seen := make(map[string]struct{}, len(partitions))
		for _, p := range partitions {
			if !partitionNameRegexp.MatchString(p) {
				return nil, ConfigurationErr{Message: fmt.Sprintf("invalid partition name \"%s\"", p)}
			}
			if _, ok := seen[p]; ok {
				return nil, ConfigurationErr{Message: fmt.Sprintf("partition \"%s\" is defined twice", p)}
			}
			seen[p] = struct{}{}
		}
	}

	dirs, err := newProjectDirs(workDir, partitions)
	if err != nil {
		return nil, err
	}

	return &Config{
		Features:   features,
		Dirs:       dirs,
		Partitions: partitions,
	}, nil
}

// EffectivePartitions returns the partitions to iterate over. Without the
// partitions feature this is a single unnamed partition.
func (c *Config) EffectivePartitions() []string {
	if !c.Features.EnablePartitions {
		return []string{""}
	}
	return c.Partitions
}

// ProjectDirs provides the project work directory layout. The subpaths are a
// contract consumed by the upstream step scheduler and must remain stable
// across runs for layer caching to work.
type ProjectDirs struct {
	WorkDir string

	PartsDir string

	OverlayDir         string
	OverlayMountDir    string
	OverlayPackagesDir string
	OverlayWorkDir     string

	baseStageDir string
	basePrimeDir string

	stageDirs map[string]string
	primeDirs map[string]string
}

func newProjectDirs(workDir string, partitions []string) (*ProjectDirs, error) {
	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, err
	}

	overlayDir := filepath.Join(workDir, "overlay")
	d := &ProjectDirs{
		WorkDir:            workDir,
		PartsDir:           filepath.Join(workDir, "parts"),
		OverlayDir:         overlayDir,
		OverlayMountDir:    filepath.Join(overlayDir, "overlay"),
		OverlayPackagesDir: filepath.Join(overlayDir, "packages"),
		OverlayWorkDir:     filepath.Join(overlayDir, "work"),
		baseStageDir:       filepath.Join(workDir, "stage"),
		basePrimeDir:       filepath.Join(workDir, "prime"),
		stageDirs:          make(map[string]string),
		primeDirs:          make(map[string]string),
	}

	if len(partitions) == 0 {
		d.stageDirs[""] = d.baseStageDir
		d.primeDirs[""] = d.basePrimeDir
		return d, nil
	}

	for _, p := range partitions {
		if p == DefaultPartition {
			d.stageDirs[p] = d.baseStageDir
			d.primeDirs[p] = d.basePrimeDir
			continue
		}
		d.stageDirs[p] = filepath.Join(d.baseStageDir, p)
		d.primeDirs[p] = filepath.Join(d.basePrimeDir, p)
	}
	return d, nil
}

// StageDir returns the staging tree for the given partition
func (d *ProjectDirs) StageDir(partition string) (string, error) {
	res, ok := d.stageDirs[partition]
	if !ok {
		return "", ConfigurationErr{Message: fmt.Sprintf("unknown partition \"%s\"", partition)}
	}
	return res, nil
}

// PrimeDir returns the final payload tree for the given partition
func (d *ProjectDirs) PrimeDir(partition string) (string, error) {
	res, ok := d.primeDirs[partition]
	if !ok {
		return "", ConfigurationErr{Message: fmt.Sprintf("unknown partition \"%s\"", partition)}
	}
	return res, nil
}
