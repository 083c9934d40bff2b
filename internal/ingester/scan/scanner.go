package scan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/weaveproject/weaveio/internal/ingester/filetypes"
)

// FoundFile is a pipeline product discovered on disk.
type FoundFile struct {
	Path     string
	Name     string
	FileType filetypes.FileType
}

// Types in the order files must be ingested: products referencing runs can
// only be resolved once the raw files that define them are in.
var ingestOrder = []filetypes.FileType{
	filetypes.FileTypeRaw,
	filetypes.FileTypeL1Single,
	filetypes.FileTypeL1Stack,
	filetypes.FileTypeL1SuperStack,
	filetypes.FileTypeL1SuperTarget,
	filetypes.FileTypeL2,
}

// FindNightFiles walks root for FITS files belonging to the given night.
// A file belongs to a night when any directory on its path ends in the
// night's YYYYMMDD date.  Results come back in ingest order.
func FindNightFiles(root string, night string) ([]FoundFile, error) {
	byType := map[filetypes.FileType][]FoundFile{}
	count := 0
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		relative, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if !pathHasNight(relative, night) {
			return nil
		}
		fileType, ok := filetypes.Match(entry.Name())
		if !ok {
			return nil
		}
		byType[fileType] = append(byType[fileType], FoundFile{
			Path:     path,
			Name:     entry.Name(),
			FileType: fileType,
		})
		count++
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scanning %s for night %s", root, night)
	}

	files := make([]FoundFile, 0, count)
	for _, fileType := range ingestOrder {
		matched := byType[fileType]
		sort.Slice(matched, func(i, j int) bool {
			return matched[i].Name < matched[j].Name
		})
		files = append(files, matched...)
	}
	log.Infof("Found %d pipeline files for night %s under %s", len(files), night, root)
	return files, nil
}

func pathHasNight(relative string, night string) bool {
	directory := filepath.Dir(relative)
	if directory == "." {
		return false
	}
	for _, part := range strings.Split(directory, string(filepath.Separator)) {
		if strings.HasSuffix(part, night) {
			return true
		}
	}
	return false
}
