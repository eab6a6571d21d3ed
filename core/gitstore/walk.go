package gitstore

import (
	"io/fs"
	"os"
	"path/filepath"
)

// WalkFiles visits every regular file under rel, calling fn with each file's
// slash-separated path relative to rel. Directory names in skipDirs are not
// descended into at any depth. A missing root is not an error.
func (s *Store) WalkFiles(rel string, skipDirs []string, fn func(rel string) error) error {
	root, err := s.abs(rel)
	if err != nil {
		return err
	}
	skip := make(map[string]struct{}, len(skipDirs))
	for _, d := range skipDirs {
		skip[d] = struct{}{}
	}
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if _, ok := skip[d.Name()]; ok && p != root {
				return filepath.SkipDir
			}
			return nil
		}
		sub, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(sub))
	})
}
