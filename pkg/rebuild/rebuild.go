// Package rebuild re-drives the pipeline from an archive's embedded
// recipe and compares the resulting archive's hash against the
// original, to catch non-determinism in the build. Grounded on
// py-rattler-build/rust/src/package.rs, which reports exactly this pair
// of hashes plus a boolean match rather than a richer diff.
package rebuild

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/chainguard-dev/clog"
	"github.com/condaforge/rbcore/pkg/external"
)

// Rebuilder re-drives a build from an archive's embedded recipe. The
// actual rebuild (parse -> evaluate -> script -> postprocess -> pack) is
// injected as a callback so this package doesn't need to depend on every
// other package in the module just to orchestrate one verification pass.
type Rebuilder struct {
	Extract func(ctx context.Context, archivePath string) (external.PackageMeta, error)
	Rebuild func(ctx context.Context, meta external.PackageMeta) (io.Reader, error)
}

// Result is the outcome of one rebuild-and-compare pass.
type Result struct {
	OriginalSHA256 string
	RebuiltSHA256  string
	Match          bool
}

// Verify extracts archivePath's embedded recipe, rebuilds it, and
// compares the SHA-256 of the original archive bytes against the
// rebuilt one.
func (r *Rebuilder) Verify(ctx context.Context, archivePath string, originalBytes io.Reader) (*Result, error) {
	log := clog.FromContext(ctx)

	meta, err := r.Extract(ctx, archivePath)
	if err != nil {
		return nil, fmt.Errorf("rebuild: extracting recipe from %s: %w", archivePath, err)
	}

	originalHash, err := hashReader(originalBytes)
	if err != nil {
		return nil, fmt.Errorf("rebuild: hashing original archive: %w", err)
	}

	rebuilt, err := r.Rebuild(ctx, meta)
	if err != nil {
		return nil, fmt.Errorf("rebuild: rebuilding %s %s: %w", meta.Name, meta.Version, err)
	}
	rebuiltHash, err := hashReader(rebuilt)
	if err != nil {
		return nil, fmt.Errorf("rebuild: hashing rebuilt archive: %w", err)
	}

	match := originalHash == rebuiltHash
	log.Info("rebuild verification finished", "name", meta.Name, "version", meta.Version, "match", match)

	return &Result{OriginalSHA256: originalHash, RebuiltSHA256: rebuiltHash, Match: match}, nil
}

func hashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
