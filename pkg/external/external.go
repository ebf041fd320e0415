// Package external declares the Go interfaces for the collaborators this
// core depends on but does not implement: source fetching, dependency
// solving, channel indexing, and archive packing. Every concrete package
// in this module accepts these as injected dependencies rather than
// reaching for a default implementation, matching the spec's "external
// interfaces" contract.
package external

import (
	"context"
	"io"

	purl "github.com/package-url/packageurl-go"
)

// SourceFetcher materializes one recipe.Source entry (a URL download, a
// git checkout, or a local path copy) into a destination directory.
type SourceFetcher interface {
	Fetch(ctx context.Context, source SourceSpec, destDir string) error
}

// SourceSpec is the evaluated (stage-1) shape of a recipe.Source: plain
// strings, no more templates or variant ambiguity.
type SourceSpec struct {
	URL       string
	Git       string
	Path      string
	SHA256    string
	TargetDir string
}

// Solver resolves a list of match specs against one or more channels into
// a concrete, installable set of package records.
type Solver interface {
	Solve(ctx context.Context, specs []string, channels []string, platform string) ([]PackageRecord, error)
}

// PackageRecord is the minimal shape a Solver result needs to expose for
// this core to build a test prefix or a compiler/stdlib lookup.
type PackageRecord struct {
	Name    string
	Version string
	Build   string
	Channel string
}

// ChannelIndexer creates an ephemeral local channel (a directory of
// built/staged packages plus repodata) that a Solver can resolve against,
// used by the test harness to install a just-built package without
// publishing it anywhere.
type ChannelIndexer interface {
	Index(ctx context.Context, packageDir string) (channelURL string, cleanup func() error, err error)
}

// Installer materializes a Solver's resolved records into an isolated
// prefix directory, so the test harness can exec interpreters out of a
// real, just-built environment instead of whatever happens to be on the
// ambient PATH.
type Installer interface {
	Install(ctx context.Context, records []PackageRecord, prefixDir string) error
}

// DownstreamBuildTester builds a named downstream package against the
// channel under test and reports whether it built and passed its own
// tests. It lives behind an interface, not a direct call into pkg/build,
// because pkg/build already imports pkg/recipetest to run a package's own
// tests; a recursive "build this downstream package and test it too" call
// has to come back in from outside this package to avoid an import cycle.
type DownstreamBuildTester interface {
	BuildAndTest(ctx context.Context, name string, channels []string, platform string) (passed bool, output string, err error)
}

// Packer builds the final archive (.conda/.tar.bz2) from a populated
// output directory plus package metadata. The core stops at "here is a
// directory that should become a package"; Packer does the actual
// archive construction.
type Packer interface {
	Pack(ctx context.Context, outputDir string, meta PackageMeta, w io.Writer) error
}

// PackageMeta is the metadata a Packer embeds into the archive (and that
// pkg/rebuild later extracts back out to re-drive the pipeline).
type PackageMeta struct {
	Name        string
	Version     string
	BuildString string
	BuildNumber int
	Subdir      string
	Recipe      []byte
	// AlwaysCopyFiles are globs the installer must copy rather than
	// hardlink out of the package cache.
	AlwaysCopyFiles []string
	// PrefixIgnore / PrefixIgnoreBinaryFiles control which files the
	// Packer records prefix placeholders for (build.prefix_detection).
	PrefixIgnore            []string
	PrefixIgnoreBinaryFiles bool
}

// Purl renders the package as a conda package URL, matching the shape the
// teacher's Build.getBuildConfigPURL builds for melange's own artifacts
// (a *purl.PackageURL populated field-by-field, then Normalize'd).
func (m PackageMeta) Purl(channel string) (*purl.PackageURL, error) {
	qualifiers := purl.QualifiersFromMap(map[string]string{
		"build":   m.BuildString,
		"channel": channel,
		"subdir":  m.Subdir,
	})
	u := &purl.PackageURL{
		Type:       purl.TypeConda,
		Name:       m.Name,
		Version:    m.Version,
		Qualifiers: qualifiers,
	}
	if err := u.Normalize(); err != nil {
		return nil, err
	}
	return u, nil
}
