package strata

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minio/highwayhash"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// contentHashKey is the key we use to hash staged file content when checking
// for collisions. Changing it only affects in-memory comparisons.
const contentHashKey = "61f2afba33d18971f5efe1b0ca491e4a509fe8bcd28cf0d9d4bcf9e2a2f18d73"

// StageCandidate is the set of relative paths a part would contribute to a
// staging tree, together with the install directory they come from. Computed
// on demand, never persisted.
type StageCandidate struct {
	Part      *Part
	SourceDir string
	Contents  map[string]struct{}
}

// NewStageCandidate computes the stage candidate of a part for one partition.
// A part whose install directory does not exist yet has an empty candidate.
func NewStageCandidate(part *Part, partition string) (*StageCandidate, error) {
	srcdir := part.InstallDir(partition)
	res := &StageCandidate{
		Part:      part,
		SourceDir: srcdir,
		Contents:  make(map[string]struct{}),
	}

	if _, err := os.Lstat(srcdir); os.IsNotExist(err) {
		return res, nil
	}

	fileset := NewFileset("stage", part.Spec.StageFiles)
	files, dirs, err := MigratableFilesets(fileset, srcdir)
	if err != nil {
		return nil, err
	}
	for f := range files {
		res.Contents[f] = struct{}{}
	}
	for d := range dirs {
		res.Contents[d] = struct{}{}
	}
	return res, nil
}

// CheckStageCollisions verifies that no two parts would stage conflicting
// files. Under partitioning the check runs once per partition; contributions
// to different partitions are never compared. Returns a FilesConflictError
// on the first conflicting part pair.
func CheckStageCollisions(parts []*Part, cfg *Config) error {
	for _, partition := range cfg.EffectivePartitions() {
		if err := checkPartitionCollisions(parts, partition); err != nil {
			return err
		}
	}
	return nil
}

func checkPartitionCollisions(parts []*Part, partition string) error {
	// candidate computation walks every part's install tree - do that
	// concurrently, the comparison below stays in processing order
	candidates := make([]*StageCandidate, len(parts))
	var eg errgroup.Group
	for i, part := range parts {
		i, part := i, part
		eg.Go(func() error {
			c, err := NewStageCandidate(part, partition)
			if err != nil {
				return err
			}
			candidates[i] = c
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	var accepted []*StageCandidate
	for _, candidate := range candidates {
		for _, other := range accepted {
			conflicts, err := candidatesCollide(candidate, other)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return FilesConflictError{
					Part:      candidate.Part.Name,
					OtherPart: other.Part.Name,
					Paths:     conflicts,
					Partition: partition,
				}
			}
		}
		accepted = append(accepted, candidate)
	}
	return nil
}

func candidatesCollide(a, b *StageCandidate) ([]string, error) {
	var conflicts []string
	for rel := range a.Contents {
		if _, ok := b.Contents[rel]; !ok {
			continue
		}

		collide, err := PathsCollide(
			filepath.Join(a.SourceDir, rel),
			filepath.Join(b.SourceDir, rel),
			FilterPermissions(rel, a.Part.Spec.Permissions),
			FilterPermissions(rel, b.Part.Spec.Permissions),
		)
		if err != nil {
			return nil, err
		}
		if collide {
			conflicts = append(conflicts, rel)
		}
	}

	sort.Strings(conflicts)
	return conflicts, nil
}

// PathsCollide checks whether the files at two absolute paths could not both
// be staged at the same relative location. Permission rules enter the
// decision only when both sides declare any.
func PathsCollide(path1, path2 string, perms1, perms2 []*PermissionRule) (bool, error) {
	stat1, err1 := os.Lstat(path1)
	stat2, err2 := os.Lstat(path2)
	if os.IsNotExist(err1) || os.IsNotExist(err2) {
		return false, nil
	}
	if err1 != nil {
		return false, err1
	}
	if err2 != nil {
		return false, err2
	}

	link1 := stat1.Mode()&os.ModeSymlink != 0
	link2 := stat2.Mode()&os.ModeSymlink != 0

	// two symlinks collide iff they point to different targets
	if link1 && link2 {
		t1, err := os.Readlink(path1)
		if err != nil {
			return false, err
		}
		t2, err := os.Readlink(path2)
		if err != nil {
			return false, err
		}
		return t1 != t2, nil
	}
	if link1 || link2 {
		return true, nil
	}

	if stat1.IsDir() != stat2.IsDir() {
		return true, nil
	}

	if !stat1.IsDir() {
		collide, err := fileCollides(path1, path2, stat1.Size(), stat2.Size())
		if err != nil {
			return false, err
		}
		if collide {
			return true, nil
		}
	}

	return !PermissionsAreCompatible(perms1, perms2), nil
}

func fileCollides(path1, path2 string, size1, size2 int64) (bool, error) {
	if strings.HasSuffix(path1, ".pc") {
		return pkgConfigCollides(path1, path2)
	}

	if size1 != size2 {
		return true, nil
	}

	h1, err := hashFileContent(path1)
	if err != nil {
		return false, err
	}
	h2, err := hashFileContent(path2)
	if err != nil {
		return false, err
	}
	return !bytes.Equal(h1, h2), nil
}

func hashFileContent(path string) ([]byte, error) {
	key, err := hex.DecodeString(contentHashKey)
	if err != nil {
		return nil, err
	}
	hash, err := highwayhash.New(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := io.Copy(hash, f); err != nil {
		return nil, err
	}
	return hash.Sum(nil), nil
}

// pkgConfigCollides compares two pkg-config files. Only a leading "prefix="
// line may differ between parts.
func pkgConfigCollides(path1, path2 string) (bool, error) {
	lines1, err := readLines(path1)
	if err != nil {
		return false, err
	}
	lines2, err := readLines(path2)
	if err != nil {
		return false, err
	}
	if len(lines1) != len(lines2) {
		return true, nil
	}

	for i := range lines1 {
		if strings.HasPrefix(lines1[i], "prefix=") && strings.HasPrefix(lines2[i], "prefix=") {
			continue
		}
		if lines1[i] != lines2[i] {
			return true, nil
		}
	}
	return false, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var res []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		res = append(res, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, xerrors.Errorf("cannot read %s: %w", path, err)
	}
	return res, nil
}
