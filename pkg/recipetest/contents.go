package recipetest

import (
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/condaforge/rbcore/pkg/archive"
	"github.com/condaforge/rbcore/pkg/recipe"
)

// pathsJSON is the subset of a built archive's info/paths.json this
// package reads: the flat list of paths it installs, relative to the
// environment prefix.
type pathsJSON struct {
	Paths []struct {
		Path string `json:"_path"`
	} `json:"paths"`
}

// archivePaths locates the built archive for pkg under channelDir (an
// ephemeral local channel's root, as produced by an external.ChannelIndexer)
// and returns the relative install paths recorded in its info/paths.json.
func archivePaths(channelDir, platform string, pkg PackageUnderTest) ([]string, error) {
	pattern := filepath.Join(channelDir, platform, pkg.Name+"-"+pkg.Version+"-"+pkg.BuildString+".*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("recipetest: globbing %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("recipetest: no built archive found matching %s", pattern)
	}

	info, err := archive.ExtractInfo(matches[0])
	if err != nil {
		return nil, fmt.Errorf("recipetest: reading %s: %w", matches[0], err)
	}
	raw, ok := info["info/paths.json"]
	if !ok {
		return nil, fmt.Errorf("recipetest: %s has no info/paths.json", matches[0])
	}
	var pj pathsJSON
	if err := json.Unmarshal(raw, &pj); err != nil {
		return nil, fmt.Errorf("recipetest: decoding paths.json from %s: %w", matches[0], err)
	}
	out := make([]string, len(pj.Paths))
	for i, p := range pj.Paths {
		out[i] = p.Path
	}
	return out, nil
}

// contentsResult is the outcome of matching a PackageContentsTest's
// patterns against an archive's recorded install paths.
type contentsResult struct {
	// Missing holds every include pattern (across all categories) that
	// matched no surviving, non-excluded path.
	Missing []string
	// Unmatched holds every installed path not covered by any category's
	// patterns; populated only when the test sets strict: true.
	Unmatched []string
}

func (r contentsResult) ok() bool { return len(r.Missing) == 0 && len(r.Unmatched) == 0 }

// checkPackageContents evaluates every category (files, site_packages, lib,
// bin, include) of spec against paths. A pattern with no match (after
// excludes) is reported as missing; in strict mode, any installed path not
// covered by at least one pattern across any category is reported as
// unmatched.
func checkPackageContents(spec recipe.PackageContentsTest, paths []string) contentsResult {
	categories := []recipe.IncludeExclude[string]{
		spec.Files, spec.SiteFiles, spec.Libs, spec.Bin, spec.Include,
	}
	// Bin and Include patterns are relative to bin/ and include/; a pattern
	// that already starts with that directory is used as written.
	roots := []string{"", "", "", "bin/", "include/"}

	var missing []string
	covered := make(map[string]bool, len(paths))
	for ci, cat := range categories {
		includes := concretePatterns(cat.Include)
		var excludes []string
		for _, ex := range concretePatterns(cat.Exclude) {
			excludes = append(excludes, underRoot(ex, roots[ci]))
		}
		for _, pattern := range includes {
			matches := withoutExcluded(matchGlob(underRoot(pattern, roots[ci]), paths), excludes)
			if len(matches) == 0 {
				missing = append(missing, pattern)
				continue
			}
			for _, m := range matches {
				covered[m] = true
			}
		}
	}

	var unmatched []string
	if spec.Strict.Concrete {
		for _, p := range paths {
			if !covered[p] {
				unmatched = append(unmatched, p)
			}
		}
	}
	return contentsResult{Missing: missing, Unmatched: unmatched}
}

func underRoot(pattern, root string) string {
	if root == "" || strings.HasPrefix(pattern, root) {
		return pattern
	}
	return root + pattern
}

func matchGlob(pattern string, paths []string) []string {
	var out []string
	for _, p := range paths {
		if ok, _ := path.Match(pattern, p); ok {
			out = append(out, p)
		}
	}
	return out
}

func withoutExcluded(matches, excludes []string) []string {
	var out []string
	for _, m := range matches {
		excluded := false
		for _, ex := range excludes {
			if ok, _ := path.Match(ex, m); ok {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, m)
		}
	}
	return out
}

func concretePatterns(list recipe.ConditionalList[string]) []string {
	var out []string
	for _, item := range list {
		if item.Kind == recipe.ItemPlain && !item.Value.IsTemplate() {
			out = append(out, item.Value.Concrete)
		}
	}
	return out
}
