//go:build !linux

package chroot

import "golang.org/x/xerrors"

func chrootTo(root string) error {
	return xerrors.Errorf("isolated execution requires linux")
}

func platformMounts(root string, opts Opts) ([]mounter, error) {
	return nil, nil
}
