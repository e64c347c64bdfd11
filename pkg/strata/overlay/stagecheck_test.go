package overlay_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratabuild/strata/pkg/strata"
	"github.com/stratabuild/strata/pkg/strata/overlay"
)

func stagecheckFixture(t *testing.T, names ...string) (*strata.Config, []*strata.Part) {
	t.Helper()

	cfg, err := strata.NewConfig(t.TempDir(), strata.Features{EnableOverlay: true}, nil)
	require.NoError(t, err)

	parts := make([]*strata.Part, 0, len(names))
	for _, name := range names {
		part, err := strata.NewPart(name, strata.PartSpec{OverlayScript: "true"}, cfg.Dirs)
		require.NoError(t, err)
		parts = append(parts, part)
	}
	return cfg, parts
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for fn, content := range files {
		path := filepath.Join(root, fn)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func TestCheckStageCollisions(t *testing.T) {
	t.Run("no overlay content", func(t *testing.T) {
		cfg, parts := stagecheckFixture(t, "base", "app")
		writeFiles(t, parts[1].InstallDir(""), map[string]string{"usr/bin/app": "app"})

		require.NoError(t, overlay.CheckStageCollisions(parts, cfg))
	})

	t.Run("matching content does not conflict", func(t *testing.T) {
		cfg, parts := stagecheckFixture(t, "base", "app")
		writeFiles(t, parts[0].LayerDir(), map[string]string{"etc/shared.conf": "same"})
		writeFiles(t, parts[1].InstallDir(""), map[string]string{"etc/shared.conf": "same"})

		require.NoError(t, overlay.CheckStageCollisions(parts, cfg))
	})

	t.Run("conflicting content names the overlay side", func(t *testing.T) {
		cfg, parts := stagecheckFixture(t, "base", "app")
		writeFiles(t, parts[0].LayerDir(), map[string]string{"etc/shared.conf": "from the overlay"})
		writeFiles(t, parts[1].InstallDir(""), map[string]string{"etc/shared.conf": "from the app part"})

		err := overlay.CheckStageCollisions(parts, cfg)
		var conflict strata.FilesConflictError
		require.ErrorAs(t, err, &conflict)
		require.Equal(t, "app", conflict.Part)
		require.Equal(t, "overlay of base", conflict.OtherPart)
		require.Equal(t, []string{"etc/shared.conf"}, conflict.Paths)
	})

	t.Run("topmost contributing layer wins", func(t *testing.T) {
		cfg, parts := stagecheckFixture(t, "base", "extras", "app")
		writeFiles(t, parts[0].LayerDir(), map[string]string{"etc/shared.conf": "old content!"})
		writeFiles(t, parts[1].LayerDir(), map[string]string{"etc/shared.conf": "new content"})
		writeFiles(t, parts[2].InstallDir(""), map[string]string{"etc/shared.conf": "new content"})

		require.NoError(t, overlay.CheckStageCollisions(parts, cfg))
	})

	t.Run("whiteout in a higher layer hides the conflict", func(t *testing.T) {
		cfg, parts := stagecheckFixture(t, "base", "extras", "app")
		writeFiles(t, parts[0].LayerDir(), map[string]string{"etc/shared.conf": "from the overlay"})
		writeFiles(t, parts[1].LayerDir(), map[string]string{"etc/.wh.shared.conf": ""})
		writeFiles(t, parts[2].InstallDir(""), map[string]string{"etc/shared.conf": "from the app part"})

		require.NoError(t, overlay.CheckStageCollisions(parts, cfg))
	})

	t.Run("opaque ancestor in a higher layer hides the conflict", func(t *testing.T) {
		cfg, parts := stagecheckFixture(t, "base", "extras", "app")
		writeFiles(t, parts[0].LayerDir(), map[string]string{"etc/shared.conf": "from the overlay"})
		writeFiles(t, parts[1].LayerDir(), map[string]string{"etc/.wh..wh..opq": ""})
		writeFiles(t, parts[2].InstallDir(""), map[string]string{"etc/shared.conf": "from the app part"})

		require.NoError(t, overlay.CheckStageCollisions(parts, cfg))
	})
}
