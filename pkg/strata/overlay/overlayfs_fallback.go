//go:build !linux

package overlay

import "golang.org/x/xerrors"

func mountOverlayfs(mountpoint, options string) error {
	return xerrors.Errorf("overlayfs requires linux")
}

func unmountPath(mountpoint string) error {
	return xerrors.Errorf("overlayfs requires linux")
}

// IsWhiteoutFile verifies if the given path is an overlayfs whiteout.
// Overlayfs is only available on linux.
func IsWhiteoutFile(path string) bool {
	return false
}

// IsOpaqueDir verifies if the given path is an overlayfs opaque directory.
// Overlayfs is only available on linux.
func IsOpaqueDir(path string) bool {
	return false
}
