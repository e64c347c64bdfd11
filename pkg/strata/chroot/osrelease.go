package chroot

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"
)

// osReleasePath is symlinked to /usr/lib/os-release on most distributions;
// reading through the symlink is fine for our purpose.
const osReleasePath = "/etc/os-release"

// IncompatibleTargetError is returned when host package sources are
// requested but the target root runs a different OS distribution or release.
type IncompatibleTargetError struct {
	Field  string
	Host   string
	Target string
}

func (e IncompatibleTargetError) Error() string {
	return fmt.Sprintf("host and target root differ in os-release %s: \"%s\" vs \"%s\"", e.Field, e.Host, e.Target)
}

// osRelease holds the identity fields of an os-release file
type osRelease struct {
	ID        string
	VersionID string
}

func readOSRelease(path string) (*osRelease, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("cannot read os-release: %w", err)
	}
	defer f.Close()

	res := &osRelease{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"'`)
		switch key {
		case "ID":
			res.ID = value
		case "VERSION_ID":
			res.VersionID = value
		}
	}
	return res, scanner.Err()
}

// hostCompatible verifies that the target root runs the same distribution
// and release as the host before host package sources are shared with it.
func hostCompatible(root string) error {
	host, err := readOSRelease(osReleasePath)
	if err != nil {
		return err
	}
	target, err := readOSRelease(filepath.Join(root, osReleasePath))
	if err != nil {
		return err
	}

	if host.ID != target.ID {
		return IncompatibleTargetError{Field: "ID", Host: host.ID, Target: target.ID}
	}
	if host.VersionID != target.VersionID {
		return IncompatibleTargetError{Field: "VERSION_ID", Host: host.VersionID, Target: target.VersionID}
	}
	return nil
}
