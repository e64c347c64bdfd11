package chroot

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

// fakeMount records the order of mount and unmount calls in a shared journal
type fakeMount struct {
	dst  string
	skip bool
	// prepErr fails Prepare outright; with mountFirst the mount is
	// performed before the failure, like a tmpfs clone whose copy fails
	prepErr    error
	mountFirst bool
	umErr      error

	journal *[]string
}

func (m *fakeMount) Dst() string { return m.dst }

func (m *fakeMount) Prepare(root string) (bool, error) {
	if m.prepErr != nil && !m.mountFirst {
		return false, m.prepErr
	}
	if m.skip {
		return false, nil
	}
	*m.journal = append(*m.journal, "mount "+m.dst)
	return true, m.prepErr
}

func (m *fakeMount) Unmount(root string) error {
	*m.journal = append(*m.journal, "umount "+m.dst)
	return m.umErr
}

func TestSetupAndTeardownMounts(t *testing.T) {
	clog := log.WithField("test", t.Name())

	t.Run("teardown reverses setup order", func(t *testing.T) {
		var journal []string
		mounts := []mounter{
			&fakeMount{dst: "/etc/resolv.conf", journal: &journal},
			&fakeMount{dst: "/proc", journal: &journal},
			&fakeMount{dst: "/dev", journal: &journal},
		}

		prepared, err := setupMounts("/root", mounts)
		require.NoError(t, err)
		require.Len(t, prepared, 3)

		teardownMounts("/root", prepared, clog)
		require.Equal(t, []string{
			"mount /etc/resolv.conf",
			"mount /proc",
			"mount /dev",
			"umount /dev",
			"umount /proc",
			"umount /etc/resolv.conf",
		}, journal)
	})

	t.Run("skipped mounts are not torn down", func(t *testing.T) {
		var journal []string
		mounts := []mounter{
			&fakeMount{dst: "/etc/resolv.conf", skip: true, journal: &journal},
			&fakeMount{dst: "/proc", journal: &journal},
		}

		prepared, err := setupMounts("/root", mounts)
		require.NoError(t, err)
		require.Len(t, prepared, 1)

		teardownMounts("/root", prepared, clog)
		require.Equal(t, []string{"mount /proc", "umount /proc"}, journal)
	})

	t.Run("setup error returns everything mounted so far", func(t *testing.T) {
		var journal []string
		mounts := []mounter{
			&fakeMount{dst: "/proc", journal: &journal},
			&fakeMount{dst: "/sys", prepErr: xerrors.Errorf("no such device"), journal: &journal},
			&fakeMount{dst: "/dev", journal: &journal},
		}

		prepared, err := setupMounts("/root", mounts)
		require.ErrorContains(t, err, "no such device")
		require.Len(t, prepared, 1)

		teardownMounts("/root", prepared, clog)
		require.Equal(t, []string{"mount /proc", "umount /proc"}, journal)
	})

	t.Run("a mount performed before its preparation failed is torn down", func(t *testing.T) {
		var journal []string
		mounts := []mounter{
			&fakeMount{dst: "/proc", journal: &journal},
			&fakeMount{dst: "/etc/apt", prepErr: xerrors.Errorf("cannot clone /etc/apt"), mountFirst: true, journal: &journal},
			&fakeMount{dst: "/dev", journal: &journal},
		}

		prepared, err := setupMounts("/root", mounts)
		require.ErrorContains(t, err, "cannot clone /etc/apt")
		require.Len(t, prepared, 2)

		teardownMounts("/root", prepared, clog)
		require.Equal(t, []string{
			"mount /proc",
			"mount /etc/apt",
			"umount /etc/apt",
			"umount /proc",
		}, journal)
	})

	t.Run("an unmount failure does not stop the teardown", func(t *testing.T) {
		var journal []string
		mounts := []mounter{
			&fakeMount{dst: "/proc", journal: &journal},
			&fakeMount{dst: "/dev", umErr: xerrors.Errorf("device busy"), journal: &journal},
		}

		prepared, err := setupMounts("/root", mounts)
		require.NoError(t, err)

		teardownMounts("/root", prepared, clog)
		require.Equal(t, []string{
			"mount /proc",
			"mount /dev",
			"umount /dev",
			"umount /proc",
		}, journal)
	})
}
