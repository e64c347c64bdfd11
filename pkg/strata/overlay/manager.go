package overlay

import (
	"os"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/stratabuild/strata/pkg/strata"
	"github.com/stratabuild/strata/pkg/strata/chroot"
	"github.com/stratabuild/strata/pkg/strata/packages"
)

// Manager mounts and unmounts the overlay layer stack and runs package
// repository operations inside it. A manager owns the overlay directories it
// mounts; at most one layer stack may be mounted per manager at a time.
type Manager struct {
	cfg          *strata.Config
	parts        []*strata.Part
	layerDirs    []string
	baseLayerDir string
	cacheLevel   int

	// UseHostSources re-homes the host's package trust configuration into
	// the overlay for cross-distribution package operations.
	UseHostSources bool

	fs *OverlayFS
}

// NewManager creates an overlay manager for parts in processing order.
// baseLayerDir is the filesystem tree below all part layers; it may be empty
// when the project declares no overlay content, in which case all mount
// operations fail.
func NewManager(cfg *strata.Config, parts []*strata.Part, baseLayerDir string) *Manager {
	layerDirs := make([]string, len(parts))
	for i, p := range parts {
		layerDirs[i] = p.LayerDir()
	}

	return &Manager{
		cfg:          cfg,
		parts:        parts,
		layerDirs:    layerDirs,
		baseLayerDir: baseLayerDir,
		cacheLevel:   computeCacheLevel(parts),
	}
}

// computeCacheLevel places the package cache layer directly above the last
// part which organizes files into the overlay partition. Parts after that
// level reuse the materialized cache instead of re-resolving packages.
// Returns -1 when no part does, which puts the cache right above the base.
func computeCacheLevel(parts []*strata.Part) int {
	level := -1
	for i, p := range parts {
		if p.OrganizesToOverlay() {
			level = i
		}
	}
	return level
}

// BaseLayerDir returns the path of the base layer, if any
func (m *Manager) BaseLayerDir() string {
	return m.baseLayerDir
}

// CacheLevel returns the layer index above which the package cache layer is
// inserted, or -1 for directly above the base layer.
func (m *Manager) CacheLevel() int {
	return m.cacheLevel
}

// Mkdirs creates the overlay mountpoint, package cache and scratch
// directories. Layer directories are created when their part is first
// processed.
func (m *Manager) Mkdirs() error {
	for _, dir := range []string{
		m.cfg.Dirs.OverlayMountDir,
		m.cfg.Dirs.OverlayPackagesDir,
		m.cfg.Dirs.OverlayWorkDir,
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// MountLayer mounts the layer stack up to and including the given part: all
// lower layers plus the base, with the part's own layer directory as the
// writable upper. With pkgCache, the package cache layer is spliced in once
// the top part is at or past the cache level.
func (m *Manager) MountLayer(top *strata.Part, pkgCache bool) error {
	index, err := m.partIndex(top)
	if err != nil {
		return err
	}
	lowers, err := m.lowerDirs(index, pkgCache)
	if err != nil {
		return err
	}
	return m.mount(lowers, m.layerDirs[index])
}

// MountPkgCache mounts the layers up to the cache level with the package
// cache directory as the writable upper, so package downloads materialize
// the cache layer itself.
func (m *Manager) MountPkgCache() error {
	lowers, err := m.lowerDirs(m.cacheLevel+1, false)
	if err != nil {
		return err
	}
	return m.mount(lowers, m.cfg.Dirs.OverlayPackagesDir)
}

// lowerDirs assembles the lower directory list for a mount whose upper is
// the layer at the given index. The result is in union mount stacking order:
// highest priority first, the base layer last.
func (m *Manager) lowerDirs(index int, pkgCache bool) ([]string, error) {
	if m.baseLayerDir == "" {
		return nil, xerrors.Errorf("request to mount overlay without a base layer")
	}

	// processing order first: base, then the layers below index
	lowers := make([]string, 0, index+2)
	lowers = append(lowers, m.baseLayerDir)
	lowers = append(lowers, m.layerDirs[:index]...)

	if pkgCache && index >= m.cacheLevel {
		// splice the cache directly above the cache-level layer; position 0
		// is the base, layer i sits at position i+1
		at := m.cacheLevel + 2
		if at > len(lowers) {
			at = len(lowers)
		}
		lowers = append(lowers[:at], append([]string{m.cfg.Dirs.OverlayPackagesDir}, lowers[at:]...)...)
	}

	// the mount option string lists lower dirs from highest to lowest priority
	for i, j := 0, len(lowers)-1; i < j; i, j = i+1, j-1 {
		lowers[i], lowers[j] = lowers[j], lowers[i]
	}
	return lowers, nil
}

func (m *Manager) partIndex(part *strata.Part) (int, error) {
	for i, p := range m.parts {
		if p.Name == part.Name {
			return i, nil
		}
	}
	return -1, strata.PartNotFoundErr{Part: part.Name}
}

func (m *Manager) mount(lowers []string, upper string) error {
	if m.fs != nil {
		return xerrors.Errorf("overlay filesystem is already mounted on %s", m.cfg.Dirs.OverlayMountDir)
	}

	fs := NewOverlayFS(lowers, upper, m.cfg.Dirs.OverlayWorkDir)
	if err := fs.Mount(m.cfg.Dirs.OverlayMountDir); err != nil {
		return err
	}
	m.fs = fs
	return nil
}

// Unmount releases the currently mounted layer stack. Calling Unmount
// without a mounted stack is an error.
func (m *Manager) Unmount() error {
	if m.fs == nil {
		return xerrors.Errorf("overlay filesystem is not mounted")
	}
	if err := m.fs.Unmount(); err != nil {
		return err
	}
	m.fs = nil
	return nil
}

// RefreshPackagesList updates the list of available packages inside the
// mounted overlay.
func (m *Manager) RefreshPackagesList() error {
	return m.runPackageUnit(packages.UnitRefresh, packages.Payload{})
}

// DownloadPackages downloads packages into the overlay package cache
func (m *Manager) DownloadPackages(names []string) error {
	return m.runPackageUnit(packages.UnitDownload, packages.Payload{Names: names})
}

// InstallPackages installs packages into the overlay area
func (m *Manager) InstallPackages(names []string) error {
	return m.runPackageUnit(packages.UnitInstall, packages.Payload{Names: names})
}

// runPackageUnit executes a package repository operation inside the mounted
// overlay, so repository state changes land in the upper directory rather
// than on the host.
func (m *Manager) runPackageUnit(unit string, payload packages.Payload) error {
	if m.fs == nil {
		return xerrors.Errorf("overlay filesystem is not mounted")
	}

	log.WithField("unit", unit).WithField("mountpoint", m.fs.Mountpoint()).Debug("running package operation in overlay")
	_, err := chroot.Run(m.fs.Mountpoint(), chroot.Opts{UseHostSources: m.UseHostSources}, unit, payload)
	return err
}
