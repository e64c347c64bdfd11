package strata

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// ProjectFilename is the name of the file declaring the parts of a project
const ProjectFilename = "strata.yaml"

type projectFile struct {
	Partitions []string            `yaml:"partitions,omitempty"`
	Parts      map[string]PartSpec `yaml:"parts"`
}

// Project is a loaded parts declaration bound to a work directory. Parts are
// kept in processing order as computed by SortParts.
type Project struct {
	Config *Config
	Parts  []*Part
}

// FindProjectFile looks for a project file in the given directory
func FindProjectFile(dir string) (string, error) {
	fn := filepath.Join(dir, ProjectFilename)
	if _, err := os.Stat(fn); err != nil {
		return "", xerrors.Errorf("no %s found in %s", ProjectFilename, dir)
	}
	return fn, nil
}

// LoadProject reads a project file, validates every part against the
// feature configuration and returns the parts in processing order.
func LoadProject(path, workDir string, features Features) (*Project, error) {
	fc, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("cannot read project file: %w", err)
	}

	var pf projectFile
	dec := yaml.NewDecoder(bytes.NewReader(fc))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		return nil, xerrors.Errorf("cannot parse %s: %w", path, err)
	}
	if len(pf.Parts) == 0 {
		return nil, xerrors.Errorf("%s declares no parts", path)
	}

	cfg, err := NewConfig(workDir, features, pf.Partitions)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(pf.Parts))
	for name := range pf.Parts {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]*Part, 0, len(names))
	for _, name := range names {
		part, err := NewPart(name, pf.Parts[name], cfg.Dirs)
		if err != nil {
			return nil, err
		}
		if part.HasOverlay() && !features.EnableOverlay {
			return nil, PartSpecificationErr{Part: name, Message: "part declares overlay content but the overlay feature is not enabled"}
		}
		parts = append(parts, part)
	}

	sorted, err := SortParts(parts)
	if err != nil {
		return nil, err
	}
	log.WithField("parts", len(sorted)).WithField("project", path).Debug("loaded project")

	return &Project{Config: cfg, Parts: sorted}, nil
}
