package utils

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// FindFilesWithSuffix recursively finds every file under dir whose name ends
// in suffix. Paths are returned sorted.
func FindFilesWithSuffix(dir, suffix string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Skip directories
		if d.IsDir() {
			return nil
		}

		if strings.HasSuffix(d.Name(), suffix) {
			files = append(files, path)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
