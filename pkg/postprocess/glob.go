package postprocess

import "path/filepath"

// filepathMatch is a thin wrapper over filepath.Match kept as its own
// function so rewrite rules can later grow `**`-style recursive glob
// support without changing ApplyRewrites' call site.
func filepathMatch(pattern, path string) (bool, error) {
	return filepath.Match(pattern, path)
}
