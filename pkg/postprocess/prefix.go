package postprocess

import (
	"bytes"
	"fmt"
	"os"
)

// PrefixFinding records an occurrence of the build prefix found baked
// into a signed binary's bytes, which would corrupt the binary's
// signature if later rewritten during install-time prefix relocation.
type PrefixFinding struct {
	Path   string
	Offset int
}

// CheckPrefixSafety scans signed files for the literal build prefix
// bytes. Per the spec's Open Question resolution, this check runs only
// against binaries that were actually signed in this run: an unsigned
// binary's embedded prefix is safe to rewrite later, but rewriting bytes
// inside a signed binary invalidates its signature, so those are the
// ones worth flagging here.
func CheckPrefixSafety(signedFiles []string, buildPrefix string) ([]PrefixFinding, error) {
	if buildPrefix == "" {
		return nil, nil
	}
	needle := []byte(buildPrefix)
	var findings []PrefixFinding
	for _, f := range signedFiles {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("postprocess: reading %s: %w", f, err)
		}
		idx := 0
		for {
			rel := bytes.Index(data[idx:], needle)
			if rel < 0 {
				break
			}
			findings = append(findings, PrefixFinding{Path: f, Offset: idx + rel})
			idx += rel + len(needle)
		}
	}
	return findings, nil
}
