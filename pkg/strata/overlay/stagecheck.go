package overlay

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/stratabuild/strata/pkg/strata"
)

// CheckStageCollisions verifies that the files each part stages from its own
// build output do not disagree with what the overlay layer stack makes
// visible at the same paths. A conflict names the regular part on one side
// and the overlay of the topmost contributing part on the other.
func CheckStageCollisions(parts []*strata.Part, cfg *strata.Config) error {
	for _, part := range parts {
		candidate, err := strata.NewStageCandidate(part, "")
		if err != nil {
			return err
		}

		conflicts := make(map[string][]string)
		for rel := range candidate.Contents {
			layerPath, topPart, err := topmostLayerEntry(parts, rel)
			if err != nil {
				return err
			}
			if topPart == nil {
				continue
			}

			collide, err := strata.PathsCollide(
				filepath.Join(candidate.SourceDir, rel),
				layerPath,
				strata.FilterPermissions(rel, part.Spec.Permissions),
				nil,
			)
			if err != nil {
				return err
			}
			if collide {
				conflicts[topPart.Name] = append(conflicts[topPart.Name], rel)
			}
		}

		if len(conflicts) > 0 {
			names := make([]string, 0, len(conflicts))
			for name := range conflicts {
				names = append(names, name)
			}
			sort.Strings(names)

			paths := conflicts[names[0]]
			sort.Strings(paths)
			return strata.FilesConflictError{
				Part:      part.Name,
				OtherPart: fmt.Sprintf("overlay of %s", names[0]),
				Paths:     paths,
			}
		}
	}
	return nil
}

// topmostLayerEntry finds the highest part layer contributing content at the
// given relative path, honoring whiteouts and opaque directories in higher
// layers. Returns a nil part when no layer makes the path visible.
func topmostLayerEntry(parts []*strata.Part, rel string) (string, *strata.Part, error) {
	for i := len(parts) - 1; i >= 0; i-- {
		layerDir := parts[i].LayerDir()
		layerPath := filepath.Join(layerDir, rel)

		if _, err := os.Lstat(layerPath); err == nil {
			// an overlayfs whiteout device at rel deletes the path, it
			// does not contribute content
			if IsWhiteoutFile(layerPath) {
				return "", nil, nil
			}
			return layerPath, parts[i], nil
		} else if !os.IsNotExist(err) {
			return "", nil, err
		}

		if layerHidesPath(layerDir, rel) {
			return "", nil, nil
		}
	}
	return "", nil, nil
}

// layerHidesPath checks if a layer blocks lower layers from contributing
// content at rel, either through a whiteout of rel itself or an opaque
// ancestor directory.
func layerHidesPath(layerDir, rel string) bool {
	path := filepath.Join(layerDir, rel)
	if _, err := os.Lstat(OCIWhiteout(path)); err == nil {
		return true
	}
	if IsWhiteoutFile(path) {
		return true
	}

	for dir := filepath.Dir(rel); dir != "."; dir = filepath.Dir(dir) {
		abs := filepath.Join(layerDir, dir)
		if IsOCIOpaqueDir(abs) || IsOpaqueDir(abs) {
			return true
		}
	}
	return false
}
