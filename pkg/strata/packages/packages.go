// Package packages defines the boundary to the system package repository.
// Concrete repository clients (apt, dnf, ...) live outside this module; the
// overlay manager only needs the operations below, executed inside the
// mounted overlay so that repository state lands in the overlay's upper
// directory instead of on the host.
package packages

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/stratabuild/strata/pkg/strata/chroot"
)

// Work unit names under which repository operations run inside the
// isolated execution boundary.
const (
	UnitRefresh  = "packages/refresh"
	UnitDownload = "packages/download"
	UnitInstall  = "packages/install"
)

// Repository is the set of package repository operations the overlay step
// relies on.
type Repository interface {
	// Refresh updates the list of available packages
	Refresh() error
	// Download fetches the given packages into the local package cache
	Download(names []string) error
	// Install installs the given packages onto the local system
	Install(names []string) error
}

// Payload carries the package names of a repository work unit across the
// process boundary.
type Payload struct {
	Names []string `json:"names,omitempty"`
}

// RegisterWorkUnits registers the repository operations as chroot work
// units backed by repo. Call once at process start, in the parent and child
// alike.
func RegisterWorkUnits(repo Repository) {
	for unit, fn := range workUnits(repo) {
		chroot.Register(unit, fn)
	}
}

func workUnits(repo Repository) map[string]chroot.WorkFunc {
	return map[string]chroot.WorkFunc{
		UnitRefresh: func(payload json.RawMessage) (interface{}, error) {
			return nil, repo.Refresh()
		},
		UnitDownload: func(payload json.RawMessage) (interface{}, error) {
			var p Payload
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, err
			}
			return nil, repo.Download(p.Names)
		},
		UnitInstall: func(payload json.RawMessage) (interface{}, error) {
			var p Payload
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, err
			}
			return nil, repo.Install(p.Names)
		},
	}
}

// NoRepository is the default repository used when no client is wired in.
// All operations succeed without doing anything.
type NoRepository struct{}

// Refresh updates the list of available packages
func (NoRepository) Refresh() error {
	log.Debug("no package repository configured, skipping refresh")
	return nil
}

// Download fetches the given packages into the local package cache
func (NoRepository) Download(names []string) error {
	log.WithField("packages", names).Debug("no package repository configured, skipping download")
	return nil
}

// Install installs the given packages onto the local system
func (NoRepository) Install(names []string) error {
	log.WithField("packages", names).Debug("no package repository configured, skipping install")
	return nil
}
