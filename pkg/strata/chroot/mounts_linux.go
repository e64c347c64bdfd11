package chroot

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

func chrootTo(root string) error {
	return unix.Chroot(root)
}

// platformMounts lists the virtual filesystems to re-home under the new
// root. The baseline gives the isolated process working name resolution,
// proc, sysfs and device nodes. With UseHostSources the host's package
// manager trust configuration is cloned in as well, which requires host and
// target to be the same distribution and release.
func platformMounts(root string, opts Opts) ([]mounter, error) {
	// some images symlink /etc/resolv.conf into /run; bind-mounting the host
	// file on top gives the isolated process a regular resolver config
	mounts := []mounter{
		&bindMount{src: "/etc/resolv.conf", dst: "/etc/resolv.conf", optional: true},
		&fsMount{src: "proc", dst: "/proc", fstype: "proc", optional: true},
		&fsMount{src: "sysfs", dst: "/sys", fstype: "sysfs", optional: true},
		// device nodes must be bound recursively inside a container
		&bindMount{src: "/dev", dst: "/dev", recursive: true, optional: true},
	}

	if opts.UseHostSources {
		if err := hostCompatible(root); err != nil {
			return nil, err
		}
		mounts = append(mounts,
			&tmpfsClone{src: "/etc/apt", dst: "/etc/apt"},
			&bindMount{src: "/usr/share/ca-certificates/", dst: "/usr/share/ca-certificates/"},
			&bindMount{src: "/usr/share/keyrings/", dst: "/usr/share/keyrings/", optional: true},
			&bindMount{src: "/etc/ssl/certs/", dst: "/etc/ssl/certs/"},
			&bindMount{src: "/etc/ca-certificates.conf", dst: "/etc/ca-certificates.conf"},
		)
	}

	return mounts, nil
}

func absDst(root, dst string) string {
	return filepath.Join(root, strings.TrimPrefix(dst, "/"))
}

func lexists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// fsMount mounts a virtual filesystem type such as proc or sysfs
type fsMount struct {
	src      string
	dst      string
	fstype   string
	optional bool
}

func (m *fsMount) Dst() string { return m.dst }

func (m *fsMount) Prepare(root string) (bool, error) {
	dst := absDst(root, m.dst)
	if !lexists(dst) {
		if m.optional {
			log.WithField("dst", dst).Warn("mount destination not found, skipping")
			return false, nil
		}
		if err := os.MkdirAll(dst, 0755); err != nil {
			return false, err
		}
	}

	if err := unix.Mount(m.src, dst, m.fstype, 0, ""); err != nil {
		return false, xerrors.Errorf("cannot mount %s on %s: %w", m.fstype, dst, err)
	}
	return true, nil
}

func (m *fsMount) Unmount(root string) error {
	return unix.Unmount(absDst(root, m.dst), 0)
}

// bindMount binds a host file or directory into the new root. Recursive
// binds carry their submounts along and are detached lazily on unmount.
type bindMount struct {
	src       string
	dst       string
	recursive bool
	optional  bool
}

func (m *bindMount) Dst() string { return m.dst }

func (m *bindMount) Prepare(root string) (bool, error) {
	src, err := os.Stat(m.src)
	if err != nil {
		if m.optional && os.IsNotExist(err) {
			log.WithField("src", m.src).Warn("bind mount source not found, skipping")
			return false, nil
		}
		return false, xerrors.Errorf("bind mount source: %w", err)
	}

	dst := absDst(root, m.dst)
	if m.dstExists(dst, src.IsDir()) {
		// replace a stale symlink or file so we can bind a regular file on top
		if stat, err := os.Lstat(dst); err == nil && !stat.IsDir() {
			if err := os.Remove(dst); err != nil {
				return false, err
			}
		}
	} else if m.optional {
		log.WithField("dst", dst).Warn("bind mount destination not found, skipping")
		return false, nil
	}

	if src.IsDir() {
		if err := os.MkdirAll(dst, 0755); err != nil {
			return false, err
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return false, err
		}
		if !lexists(dst) {
			if err := touch(dst); err != nil {
				return false, err
			}
		}
	}

	flags := uintptr(unix.MS_BIND)
	if m.recursive {
		flags |= unix.MS_REC
	}
	if err := unix.Mount(m.src, dst, "", flags, ""); err != nil {
		return false, xerrors.Errorf("cannot bind %s on %s: %w", m.src, dst, err)
	}
	if m.recursive {
		if err := unix.Mount("", dst, "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
			return false, xerrors.Errorf("cannot make %s rprivate: %w", dst, err)
		}
	}
	return true, nil
}

// dstExists considers a missing file destination satisfiable when its parent
// directory exists - we can create the mount point file ourselves.
func (m *bindMount) dstExists(dst string, srcIsDir bool) bool {
	if lexists(dst) {
		return true
	}
	if !srcIsDir {
		stat, err := os.Stat(filepath.Dir(dst))
		return err == nil && stat.IsDir()
	}
	return false
}

func (m *bindMount) Unmount(root string) error {
	dst := absDst(root, m.dst)
	if m.recursive {
		return unix.Unmount(dst, unix.MNT_DETACH)
	}
	return unix.Unmount(dst, 0)
}

// tmpfsClone mounts a fresh tmpfs at dst and copies the source tree into it,
// giving the isolated process a scratch copy it may modify freely.
type tmpfsClone struct {
	src string
	dst string
}

func (m *tmpfsClone) Dst() string { return m.dst }

func (m *tmpfsClone) Prepare(root string) (bool, error) {
	src, err := os.Stat(m.src)
	if err != nil {
		return false, xerrors.Errorf("tmpfs clone source: %w", err)
	}
	if !src.IsDir() {
		return false, xerrors.Errorf("tmpfs clone source %s is not a directory", m.src)
	}

	dst := absDst(root, m.dst)
	if err := os.MkdirAll(dst, 0755); err != nil {
		return false, err
	}
	if err := unix.Mount("tmpfs", dst, "tmpfs", 0, ""); err != nil {
		return false, xerrors.Errorf("cannot mount tmpfs on %s: %w", dst, err)
	}
	if err := copyTree(m.src, dst); err != nil {
		// the tmpfs is mounted already - leave cleanup to the caller
		return true, xerrors.Errorf("cannot clone %s: %w", m.src, err)
	}
	return true, nil
}

func (m *tmpfsClone) Unmount(root string) error {
	return unix.Unmount(absDst(root, m.dst), 0)
}

func touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			// sockets and device nodes have no place in the clone
			return nil
		}
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
