package overlay

import (
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// OCI layer archives mark deleted files with ".wh."-prefixed marker files
// and fully replaced directories with a ".wh..wh..opq" entry. See
// https://github.com/opencontainers/image-spec/blob/main/layer.md
const (
	ociWhiteoutPrefix  = ".wh."
	ociOpaqueDirMarker = ".wh..wh..opq"
)

// OCIWhiteout returns the whiteout marker path for the given path
func OCIWhiteout(path string) string {
	return filepath.Join(filepath.Dir(path), ociWhiteoutPrefix+filepath.Base(path))
}

// OCIWhitedOutFile returns the path a whiteout marker file hides
func OCIWhitedOutFile(whiteout string) (string, bool) {
	base := filepath.Base(whiteout)
	if !strings.HasPrefix(base, ociWhiteoutPrefix) || base == ociOpaqueDirMarker {
		return "", false
	}
	return filepath.Join(filepath.Dir(whiteout), strings.TrimPrefix(base, ociWhiteoutPrefix)), true
}

// IsOCIWhiteoutFile checks if the path name marks a whited-out file
func IsOCIWhiteoutFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ociWhiteoutPrefix) && base != ociOpaqueDirMarker
}

// IsOCIOpaqueDir checks if the given directory is marked opaque
func IsOCIOpaqueDir(path string) bool {
	stat, err := os.Lstat(path)
	if err != nil || !stat.IsDir() {
		return false
	}
	_, err = os.Lstat(filepath.Join(path, ociOpaqueDirMarker))
	return err == nil
}

// VisibleInLayer lists the files and directories of a lower layer directory
// that remain directly visible when upper is stacked on top of it, honoring
// whiteout markers and opaque directories in upper. Symlinked directories
// count as files.
func VisibleInLayer(lowerDir, upperDir string) (files, dirs map[string]struct{}, err error) {
	files = make(map[string]struct{})
	dirs = make(map[string]struct{})

	err = filepath.WalkDir(lowerDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == lowerDir {
				return filepath.SkipAll
			}
			return err
		}
		if path == lowerDir {
			return nil
		}

		rel, err := filepath.Rel(lowerDir, path)
		if err != nil {
			return err
		}
		if !pathVisible(upperDir, rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		upperPath := filepath.Join(upperDir, rel)
		upperStat, upperErr := os.Lstat(upperPath)

		if d.IsDir() {
			if upperErr == nil {
				if IsOCIOpaqueDir(upperPath) {
					// fully replaced by the upper layer
					return filepath.SkipDir
				}
				return nil
			}
			dirs[rel] = struct{}{}
			return nil
		}

		if upperErr == nil && upperStat != nil {
			return nil
		}
		if _, err := os.Lstat(OCIWhiteout(upperPath)); err == nil {
			return nil
		}
		// whiteout material in the lower layer deletes paths further down,
		// it is not content of this layer
		if IsOCIWhiteoutFile(rel) || filepath.Base(rel) == ociOpaqueDirMarker || IsWhiteoutFile(path) {
			return nil
		}
		files[rel] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	log.WithField("lower", lowerDir).WithField("files", len(files)).WithField("dirs", len(dirs)).Debug("computed layer visibility")
	return files, dirs, nil
}

// pathVisible checks that no element of rel is whited out or hidden below an
// opaque directory in root.
func pathVisible(root, rel string) bool {
	elems := strings.Split(filepath.ToSlash(rel), "/")
	for i := range elems {
		path := filepath.Join(append([]string{root}, elems[:i+1]...)...)
		if _, err := os.Lstat(OCIWhiteout(path)); err == nil {
			return false
		}
		if IsOCIOpaqueDir(path) {
			return false
		}
	}
	return true
}
