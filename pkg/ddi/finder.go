package ddi

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/ritzau/module-graph/pkg/logging"
)

// Extension of dependency description files written by the compiler
const Extension = ".ddi"

// FindFiles walks root and returns all .ddi files in lexical order.
// Unreadable subdirectories are skipped with a warning.
func FindFiles(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logging.Warn("skipping unreadable path", "path", path, "error", err)
			return nil
		}

		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		if filepath.Ext(path) == Extension {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	return files, nil
}
