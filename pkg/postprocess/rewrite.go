package postprocess

import (
	"fmt"
	"os"
	"regexp"
)

// RewriteRule is one text substitution applied to every file whose path
// matches Glob (e.g. replacing a build-time absolute path with a
// relocatable placeholder in installed scripts/pc files).
type RewriteRule struct {
	Glob        string
	Pattern     *regexp.Regexp
	Replacement string
}

// ApplyRewrites runs every rule against every file it matches, in rule
// order, and returns the files that were actually modified.
func ApplyRewrites(files []string, rules []RewriteRule) ([]string, error) {
	var touched []string
	for _, f := range files {
		modified := false
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("postprocess: reading %s: %w", f, err)
		}
		for _, rule := range rules {
			if rule.Pattern == nil {
				continue
			}
			if ok, _ := matchGlob(rule.Glob, f); !ok {
				continue
			}
			rewritten := rule.Pattern.ReplaceAll(data, []byte(rule.Replacement))
			if string(rewritten) != string(data) {
				data = rewritten
				modified = true
			}
		}
		if modified {
			if err := os.WriteFile(f, data, 0o644); err != nil {
				return nil, fmt.Errorf("postprocess: writing %s: %w", f, err)
			}
			touched = append(touched, f)
		}
	}
	return touched, nil
}

func matchGlob(pattern, path string) (bool, error) {
	if pattern == "" {
		return true, nil
	}
	return filepathMatch(pattern, path)
}
