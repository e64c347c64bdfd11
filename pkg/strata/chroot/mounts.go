package chroot

import (
	log "github.com/sirupsen/logrus"
)

// mounter is a single mount entry of the isolated environment. Prepare
// reports whether the mount was actually performed; optional mounts with a
// missing destination are skipped.
type mounter interface {
	Dst() string
	Prepare(root string) (mounted bool, err error)
	Unmount(root string) error
}

// setupMounts prepares the given mounts in order and returns those that were
// actually performed. On error the returned list still holds everything
// mounted so far, including a mount whose Prepare failed after mounting, so
// the caller can tear it down.
func setupMounts(root string, mounts []mounter) (prepared []mounter, err error) {
	for _, m := range mounts {
		mounted, err := m.Prepare(root)
		if mounted {
			prepared = append(prepared, m)
		}
		if err != nil {
			return prepared, err
		}
	}
	return prepared, nil
}

// teardownMounts releases the prepared mounts in reverse order of
// preparation. Individual unmount failures are logged but do not stop the
// teardown of the remaining mounts.
func teardownMounts(root string, prepared []mounter, clog *log.Entry) {
	for i := len(prepared) - 1; i >= 0; i-- {
		m := prepared[i]
		if err := m.Unmount(root); err != nil {
			clog.WithError(err).WithField("dst", m.Dst()).Warn("cannot unmount chroot mount")
		}
	}
}
