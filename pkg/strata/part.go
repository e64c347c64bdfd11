package strata

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var partNameRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// PartSpec is the declarative specification of a part. It is read from the
// project parts file and immutable for the duration of a run.
type PartSpec struct {
	After           []string          `yaml:"after,omitempty"`
	OverlayPackages []string          `yaml:"overlay-packages,omitempty"`
	OverlayFiles    []string          `yaml:"overlay,omitempty"`
	OverlayScript   string            `yaml:"overlay-script,omitempty"`
	StageFiles      []string          `yaml:"stage,omitempty"`
	PrimeFiles      []string          `yaml:"prime,omitempty"`
	OrganizeFiles   map[string]string `yaml:"organize,omitempty"`
	Permissions     []*PermissionRule `yaml:"permissions,omitempty"`
}

// defaultFileFilter matches everything. Overlay, stage and prime filters
// default to it when unset.
var defaultFileFilter = []string{"*"}

// Part is a single unit of build work. All subsystems read parts, none owns
// them: a part is immutable once constructed for a run.
type Part struct {
	Name string
	Spec PartSpec

	dirs *ProjectDirs
}

// NewPart validates the part specification and binds it to the project layout
func NewPart(name string, spec PartSpec, dirs *ProjectDirs) (*Part, error) {
	if !partNameRegexp.MatchString(name) {
		return nil, PartSpecificationErr{Part: name, Message: "part names must contain only lowercase letters, digits and hyphens"}
	}

	if spec.OverlayFiles == nil {
		spec.OverlayFiles = defaultFileFilter
	}
	if spec.StageFiles == nil {
		spec.StageFiles = defaultFileFilter
	}
	if spec.PrimeFiles == nil {
		spec.PrimeFiles = defaultFileFilter
	}

	for _, fs := range [][]string{spec.OverlayFiles, spec.StageFiles, spec.PrimeFiles} {
		for _, entry := range fs {
			e := strings.TrimPrefix(entry, "-")
			if e == "" {
				return nil, PartSpecificationErr{Part: name, Message: "file filter entries must not be empty"}
			}
			if filepath.IsAbs(e) {
				return nil, PartSpecificationErr{Part: name, Message: fmt.Sprintf("\"%s\" must be a relative path", e)}
			}
		}
	}

	for _, dep := range spec.After {
		if dep == name {
			return nil, PartSpecificationErr{Part: name, Message: "a part cannot come after itself"}
		}
	}

	for _, rule := range spec.Permissions {
		if err := rule.Validate(); err != nil {
			return nil, PartSpecificationErr{Part: name, Message: err.Error()}
		}
	}

	return &Part{Name: name, Spec: spec, dirs: dirs}, nil
}

// Dependencies returns the names of the parts this part comes after
func (p *Part) Dependencies() []string {
	return p.Spec.After
}

// HasOverlay returns true if the part declares overlay content: packages,
// a script, or a non-default overlay file filter.
func (p *Part) HasOverlay() bool {
	if len(p.Spec.OverlayPackages) > 0 {
		return true
	}
	if p.Spec.OverlayScript != "" {
		return true
	}
	if len(p.Spec.OverlayFiles) != 1 || p.Spec.OverlayFiles[0] != "*" {
		return true
	}
	return false
}

// OrganizesToOverlay returns true if the part moves any of its build output
// into the distinguished overlay partition. The package cache layer is placed
// directly above the last such part in processing order.
func (p *Part) OrganizesToOverlay() bool {
	prefix := fmt.Sprintf("(%s)/", OverlayPartition)
	for _, dst := range p.Spec.OrganizeFiles {
		if strings.HasPrefix(dst, prefix) {
			return true
		}
	}
	return false
}

// PartDir is the directory holding all working state of this part
func (p *Part) PartDir() string {
	return filepath.Join(p.dirs.PartsDir, p.Name)
}

// StateDir holds the part's persistent step state, e.g. the layer hash
func (p *Part) StateDir() string {
	return filepath.Join(p.PartDir(), "state")
}

// LayerDir is the part's overlay upper directory. It persists across runs
// and holds cached overlay build artifacts.
func (p *Part) LayerDir() string {
	return filepath.Join(p.PartDir(), "layer")
}

// InstallDir returns the directory the part's build step installs into for
// the given partition. The default and unnamed partitions share a location.
func (p *Part) InstallDir(partition string) string {
	if partition == "" || partition == DefaultPartition {
		return filepath.Join(p.PartDir(), "install")
	}
	return filepath.Join(p.PartDir(), "partitions", partition, "install")
}
