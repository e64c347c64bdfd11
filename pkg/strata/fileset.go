package strata

import (
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
)

// Fileset is an ordered list of file filter entries. Entries prefixed with
// "-" exclude files, everything else includes them. A leading backslash
// escapes a literal dash.
type Fileset struct {
	name    string
	entries []string
}

// NewFileset produces a named fileset from raw filter entries
func NewFileset(name string, entries []string) *Fileset {
	res := make([]string, len(entries))
	copy(res, entries)
	return &Fileset{name: name, entries: res}
}

// Name returns the fileset name
func (f *Fileset) Name() string {
	return f.name
}

// Entries returns a copy of the raw filter entries
func (f *Fileset) Entries() []string {
	res := make([]string, len(f.entries))
	copy(res, f.entries)
	return res
}

// Includes returns the include patterns of this fileset. An empty include
// list defaults to matching everything.
func (f *Fileset) Includes() []string {
	var res []string
	for _, e := range f.entries {
		if strings.HasPrefix(e, "-") {
			continue
		}
		res = append(res, strings.TrimPrefix(e, "\\"))
	}
	if len(res) == 0 {
		res = []string{"*"}
	}
	return res
}

// Excludes returns the exclude patterns of this fileset
func (f *Fileset) Excludes() []string {
	var res []string
	for _, e := range f.entries {
		if strings.HasPrefix(e, "-") {
			res = append(res, e[1:])
		}
	}
	return res
}

func (f *Fileset) validate() error {
	for _, e := range append(f.Includes(), f.Excludes()...) {
		if e == "" {
			return FilesetErr{Fileset: f.name, Message: "filter entries must not be empty"}
		}
		if filepath.IsAbs(e) {
			return FilesetErr{Fileset: f.name, Message: "path \"" + e + "\" must be relative"}
		}
	}
	return nil
}

// MigratableFilesets computes the relative files and directories below srcdir
// which the fileset selects for migration into a shared tree. Directories are
// reported separately and include the parents of every selected file.
// Symlinks count as files and are never descended into.
func MigratableFilesets(f *Fileset, srcdir string) (files, dirs map[string]struct{}, err error) {
	if err := f.validate(); err != nil {
		return nil, nil, err
	}

	includes, excludes := f.Includes(), f.Excludes()

	files = make(map[string]struct{})
	dirs = make(map[string]struct{})

	err = godirwalk.Walk(srcdir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if osPathname == srcdir {
				return nil
			}

			rel, err := filepath.Rel(srcdir, osPathname)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)

			selected, err := pathSelected(rel, includes, excludes)
			if err != nil {
				return err
			}
			if !selected {
				return nil
			}

			if de.IsDir() && !de.IsSymlink() {
				dirs[rel] = struct{}{}
			} else {
				files[rel] = struct{}{}
			}
			return nil
		},
	})
	if err != nil {
		return nil, nil, FilesetErr{Fileset: f.name, Message: err.Error()}
	}

	// a selected file pulls its parent chain into the directory set
	for fn := range files {
		for dir := filepath.Dir(fn); dir != "."; dir = filepath.Dir(dir) {
			dirs[dir] = struct{}{}
		}
	}

	return files, dirs, nil
}

// pathSelected decides whether rel is picked up by the include patterns and
// not struck by the exclude patterns. A pattern matching any ancestor of rel
// selects (or excludes) rel as well.
func pathSelected(rel string, includes, excludes []string) (bool, error) {
	included, err := matchesAnyAncestor(rel, includes)
	if err != nil {
		return false, err
	}
	if !included {
		return false, nil
	}

	excluded, err := matchesAnyAncestor(rel, excludes)
	if err != nil {
		return false, err
	}
	return !excluded, nil
}

func matchesAnyAncestor(rel string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		for path := rel; path != "."; path = filepath.Dir(path) {
			m, err := matchPattern(pattern, filepath.ToSlash(path))
			if err != nil {
				return false, err
			}
			if m {
				return true, nil
			}
		}
	}
	return false, nil
}

// matchPattern matches the same patterns as filepath.Match, with the addition
// that "**" matches any number of path segments.
func matchPattern(pattern, path string) (bool, error) {
	if pattern == path {
		return true, nil
	}
	return matchSegments(
		strings.Split(filepath.ToSlash(pattern), "/"),
		strings.Split(filepath.ToSlash(path), "/"),
	)
}

func matchSegments(patterns, paths []string) (bool, error) {
	for i, pattern := range patterns {
		if pattern == "**" {
			if i == len(patterns)-1 {
				// a trailing ** swallows the remainder of the path
				return true, nil
			}
			for j := range paths {
				m, err := matchSegments(patterns[i+1:], paths[j:])
				if err != nil || m {
					return m, err
				}
			}
			return false, nil
		}

		if len(paths) == 0 {
			return false, nil
		}

		m, err := filepath.Match(pattern, paths[0])
		if err != nil {
			return false, err
		}
		if !m {
			return false, nil
		}
		paths = paths[1:]
	}

	return len(paths) == 0, nil
}
