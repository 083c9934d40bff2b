package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveproject/weaveio/internal/ingester/filetypes"
)

func TestFindNightFiles(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "raw/20200101/r1002214.fit")
	touch(t, root, "raw/20200101/r1002213.fit")
	touch(t, root, "L1/20200101/single_1002213.fit")
	touch(t, root, "L1/20200101/stacked_1002213.fit")
	touch(t, root, "L2/20200101/stacked_1002213_aps.fit")
	// other nights and non-product files are skipped
	touch(t, root, "raw/20200102/r1002299.fit")
	touch(t, root, "raw/20200101/observing.log")

	files, err := FindNightFiles(root, "20200101")
	require.NoError(t, err)

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	// raw files first, sorted by name, then L1 products, then L2
	assert.Equal(t, []string{
		"r1002213.fit",
		"r1002214.fit",
		"single_1002213.fit",
		"stacked_1002213.fit",
		"stacked_1002213_aps.fit",
	}, names)
	assert.Equal(t, filetypes.FileTypeL2, files[4].FileType)
}

func TestFindNightFiles_NightSuffixDirectories(t *testing.T) {
	root := t.TempDir()
	// observatory trees often prefix the date directory
	touch(t, root, "opr3/night_20200101/r1002213.fit")

	files, err := FindNightFiles(root, "20200101")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "r1002213.fit", files[0].Name)
}

func TestFindNightFiles_Empty(t *testing.T) {
	files, err := FindNightFiles(t.TempDir(), "20200101")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func touch(t *testing.T, root string, relative string) {
	path := filepath.Join(root, relative)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte{}, 0o644))
}
