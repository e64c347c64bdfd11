package overlay

import (
	"os"

	"golang.org/x/sys/unix"
)

func mountOverlayfs(mountpoint, options string) error {
	return unix.Mount("overlay", mountpoint, "overlay", 0, options)
}

func unmountPath(mountpoint string) error {
	return unix.Unmount(mountpoint, 0)
}

// IsWhiteoutFile verifies if the given path is an overlayfs whiteout, i.e.
// a character device with device number 0/0.
func IsWhiteoutFile(path string) bool {
	stat, err := os.Lstat(path)
	if err != nil {
		return false
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Mode()&os.ModeSymlink != 0 {
		return false
	}

	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return false
	}
	return unix.Major(uint64(st.Rdev)) == 0 && unix.Minor(uint64(st.Rdev)) == 0
}

// IsOpaqueDir verifies if the given path is an overlayfs opaque directory,
// marked by the trusted.overlay.opaque extended attribute.
func IsOpaqueDir(path string) bool {
	stat, err := os.Lstat(path)
	if err != nil || !stat.IsDir() {
		return false
	}

	buf := make([]byte, 1)
	n, err := unix.Getxattr(path, "trusted.overlay.opaque", buf)
	if err != nil || n != 1 {
		return false
	}
	return buf[0] == 'y'
}
