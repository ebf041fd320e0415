// Package workspace materializes a recipe's source tree into a build
// work directory, honoring an optional ignore-rules file the same way the
// teacher's build pipeline filters what gets copied into a build
// environment before running the script.
package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zealic/xignore"
)

// IgnoreFileName is the recipe-relative file, if present, that lists
// gitignore-style patterns of paths to exclude when staging a source
// directory into the work directory.
const IgnoreFileName = ".buildignore"

// Stage copies every file under srcDir into destDir, skipping paths
// matched by IgnoreFileName's patterns (if that file exists at the root
// of srcDir). Symlinks are recreated as symlinks rather than followed.
func Stage(srcDir, destDir string) error {
	matcher, err := loadIgnoreRules(srcDir)
	if err != nil {
		return fmt.Errorf("workspace: loading ignore rules: %w", err)
	}

	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if matcher.match(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(destDir, rel)
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		default:
			return copyFile(path, target, info.Mode())
		}
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// ignoreMatcher wraps xignore's pattern list with a permissive default: a
// workspace with no .buildignore file excludes nothing. Grounded on the
// teacher's Build.loadIgnoreRules/populateWorkspace in pkg/build/build.go.
type ignoreMatcher struct {
	patterns []*xignore.Pattern
}

func loadIgnoreRules(srcDir string) (*ignoreMatcher, error) {
	path := filepath.Join(srcDir, IgnoreFileName)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return &ignoreMatcher{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ignF := xignore.Ignorefile{}
	if err := ignF.FromReader(f); err != nil {
		return nil, err
	}

	var patterns []*xignore.Pattern
	for _, rule := range ignF.Patterns {
		pattern := xignore.NewPattern(rule)
		if err := pattern.Prepare(); err != nil {
			return nil, err
		}
		patterns = append(patterns, pattern)
	}
	return &ignoreMatcher{patterns: patterns}, nil
}

func (m *ignoreMatcher) match(rel string) bool {
	if m == nil {
		return false
	}
	for _, pat := range m.patterns {
		if pat.Match(rel) {
			return true
		}
	}
	return false
}
