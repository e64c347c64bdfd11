package overlay

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// OverlayFS drives a single union filesystem mount. Lower directories are
// given in stacking order: the first entry has the highest priority, the
// last one (typically the base layer) the lowest.
type OverlayFS struct {
	lowerDirs []string
	upperDir  string
	workDir   string

	mountpoint string
}

// NewOverlayFS creates an overlay filesystem description. Nothing is mounted
// until Mount is called.
func NewOverlayFS(lowerDirs []string, upperDir, workDir string) *OverlayFS {
	return &OverlayFS{
		lowerDirs: lowerDirs,
		upperDir:  upperDir,
		workDir:   workDir,
	}
}

// Mount mounts the overlay filesystem at the given mountpoint
func (o *OverlayFS) Mount(mountpoint string) error {
	opts := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s",
		strings.Join(o.lowerDirs, ":"), o.upperDir, o.workDir)
	log.WithField("mountpoint", mountpoint).WithField("options", opts).Debug("mounting overlayfs")

	if err := mountOverlayfs(mountpoint, opts); err != nil {
		return MountError{Mountpoint: mountpoint, Message: err.Error()}
	}
	o.mountpoint = mountpoint
	return nil
}

// Unmount releases the overlay filesystem mount. Unmounting a filesystem
// that was never mounted is not an error.
func (o *OverlayFS) Unmount() error {
	if o.mountpoint == "" {
		return nil
	}

	log.WithField("mountpoint", o.mountpoint).Debug("unmounting overlayfs")
	if err := unmountPath(o.mountpoint); err != nil {
		return UnmountError{Mountpoint: o.mountpoint, Message: err.Error()}
	}
	o.mountpoint = ""
	return nil
}

// Mountpoint returns the current mountpoint, or an empty string when the
// filesystem is not mounted.
func (o *OverlayFS) Mountpoint() string {
	return o.mountpoint
}

// UnmountPath releases an overlay mount at the given path without requiring
// the OverlayFS instance which created it, e.g. from a later process.
func UnmountPath(mountpoint string) error {
	if err := unmountPath(mountpoint); err != nil {
		return UnmountError{Mountpoint: mountpoint, Message: err.Error()}
	}
	return nil
}
