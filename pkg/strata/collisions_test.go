package strata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// installTree writes the install directory of a part for the given partition
func installTree(t *testing.T, part *Part, partition string, files map[string]string, symlinks map[string]string) {
	t.Helper()
	writeTree(t, part.InstallDir(partition), files, symlinks)
}

func TestPathsCollide(t *testing.T) {
	type side struct {
		content string
		symlink string
		dir     bool
		missing bool
		perms   []*PermissionRule
	}
	tests := []struct {
		name        string
		a           side
		b           side
		expectation bool
	}{
		{
			name:        "identical content",
			a:           side{content: "hello"},
			b:           side{content: "hello"},
			expectation: false,
		},
		{
			name:        "different content",
			a:           side{content: "hello"},
			b:           side{content: "world!"},
			expectation: true,
		},
		{
			name:        "same size different content",
			a:           side{content: "hello"},
			b:           side{content: "olleh"},
			expectation: true,
		},
		{
			name:        "one side missing",
			a:           side{content: "hello"},
			b:           side{missing: true},
			expectation: false,
		},
		{
			name:        "symlinks to the same target",
			a:           side{symlink: "target"},
			b:           side{symlink: "target"},
			expectation: false,
		},
		{
			name:        "symlinks to different targets",
			a:           side{symlink: "target"},
			b:           side{symlink: "other"},
			expectation: true,
		},
		{
			name:        "symlink versus file",
			a:           side{symlink: "target"},
			b:           side{content: "target"},
			expectation: true,
		},
		{
			name:        "directory versus file",
			a:           side{dir: true},
			b:           side{content: "hello"},
			expectation: true,
		},
		{
			name:        "two directories",
			a:           side{dir: true},
			b:           side{dir: true},
			expectation: false,
		},
		{
			name:        "same content incompatible permissions",
			a:           side{content: "hello", perms: []*PermissionRule{{Mode: "755"}}},
			b:           side{content: "hello", perms: []*PermissionRule{{Mode: "644"}}},
			expectation: true,
		},
		{
			name:        "same content one side with permissions",
			a:           side{content: "hello", perms: []*PermissionRule{{Mode: "755"}}},
			b:           side{content: "hello"},
			expectation: false,
		},
		{
			name:        "directories with incompatible permissions",
			a:           side{dir: true, perms: []*PermissionRule{{Owner: intp(0), Group: intp(0)}}},
			b:           side{dir: true, perms: []*PermissionRule{{Owner: intp(1000), Group: intp(1000)}}},
			expectation: true,
		},
	}

	mkside := func(t *testing.T, s side) string {
		path := filepath.Join(t.TempDir(), "candidate")
		switch {
		case s.missing:
		case s.dir:
			require.NoError(t, os.Mkdir(path, 0755))
		case s.symlink != "":
			require.NoError(t, os.Symlink(s.symlink, path))
		default:
			require.NoError(t, os.WriteFile(path, []byte(s.content), 0644))
		}
		return path
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p1 := mkside(t, test.a)
			p2 := mkside(t, test.b)

			collide, err := PathsCollide(p1, p2, test.a.perms, test.b.perms)
			require.NoError(t, err)
			require.Equal(t, test.expectation, collide)
		})
	}
}

func TestPkgConfigCollides(t *testing.T) {
	tests := []struct {
		name        string
		a           string
		b           string
		expectation bool
	}{
		{
			name:        "identical files",
			a:           "prefix=/usr\nName: app\nVersion: 1.0\n",
			b:           "prefix=/usr\nName: app\nVersion: 1.0\n",
			expectation: false,
		},
		{
			name:        "only the prefix differs",
			a:           "prefix=/usr\nName: app\nVersion: 1.0\n",
			b:           "prefix=/opt/stage\nName: app\nVersion: 1.0\n",
			expectation: false,
		},
		{
			name:        "a payload line differs",
			a:           "prefix=/usr\nName: app\nVersion: 1.0\n",
			b:           "prefix=/usr\nName: app\nVersion: 2.0\n",
			expectation: true,
		},
		{
			name:        "different line counts",
			a:           "prefix=/usr\nName: app\n",
			b:           "prefix=/usr\nName: app\nVersion: 1.0\n",
			expectation: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dir := t.TempDir()
			p1 := filepath.Join(dir, "a.pc")
			p2 := filepath.Join(dir, "b.pc")
			require.NoError(t, os.WriteFile(p1, []byte(test.a), 0644))
			require.NoError(t, os.WriteFile(p2, []byte(test.b), 0644))

			collide, err := PathsCollide(p1, p2, nil, nil)
			require.NoError(t, err)
			require.Equal(t, test.expectation, collide)
		})
	}
}

func TestCheckStageCollisions(t *testing.T) {
	cfg, err := NewConfig(t.TempDir(), Features{}, nil)
	require.NoError(t, err)

	mkpart := func(name string, spec PartSpec) *Part {
		part, err := NewPart(name, spec, cfg.Dirs)
		require.NoError(t, err)
		return part
	}

	alpha := mkpart("alpha", PartSpec{})
	beta := mkpart("beta", PartSpec{})
	gamma := mkpart("gamma", PartSpec{StageFiles: []string{"*", "-shared/clash"}})

	installTree(t, alpha, "", map[string]string{
		"bin/alpha":    "alpha tool",
		"shared/clash": "from alpha",
	}, nil)
	installTree(t, beta, "", map[string]string{
		"bin/beta":     "beta tool",
		"shared/clash": "from beta!",
	}, nil)
	installTree(t, gamma, "", map[string]string{
		"bin/gamma":    "gamma tool",
		"shared/clash": "never staged",
	}, nil)

	t.Run("conflicting parts", func(t *testing.T) {
		err := CheckStageCollisions([]*Part{alpha, beta}, cfg)
		require.Error(t, err)

		var conflict FilesConflictError
		require.ErrorAs(t, err, &conflict)
		require.Equal(t, []string{"shared/clash"}, conflict.Paths)
		require.ElementsMatch(t, []string{"alpha", "beta"}, []string{conflict.Part, conflict.OtherPart})
	})

	t.Run("stage filter excludes the clash", func(t *testing.T) {
		require.NoError(t, CheckStageCollisions([]*Part{alpha, gamma}, cfg))
	})

	t.Run("part without an install dir", func(t *testing.T) {
		empty := mkpart("empty", PartSpec{})
		require.NoError(t, CheckStageCollisions([]*Part{alpha, empty}, cfg))
	})
}

func TestCheckStageCollisionsPartitioned(t *testing.T) {
	cfg, err := NewConfig(t.TempDir(), Features{EnablePartitions: true}, []string{"default", "kernel"})
	require.NoError(t, err)

	alpha, err := NewPart("alpha", PartSpec{}, cfg.Dirs)
	require.NoError(t, err)
	beta, err := NewPart("beta", PartSpec{}, cfg.Dirs)
	require.NoError(t, err)

	// the same path with different content, but in different partitions
	installTree(t, alpha, "default", map[string]string{"etc/conf": "alpha"}, nil)
	installTree(t, beta, "kernel", map[string]string{"etc/conf": "beta!"}, nil)
	require.NoError(t, CheckStageCollisions([]*Part{alpha, beta}, cfg))

	// moving the clash into the same partition surfaces it
	installTree(t, beta, "default", map[string]string{"etc/conf": "beta!"}, nil)
	err = CheckStageCollisions([]*Part{alpha, beta}, cfg)
	var conflict FilesConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "default", conflict.Partition)
	require.Equal(t, []string{"etc/conf"}, conflict.Paths)
}
