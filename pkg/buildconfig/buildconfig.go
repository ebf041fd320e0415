// Package buildconfig holds the BuildConfiguration type: the flat,
// fully-resolved settings for one build-group's invocation of the script
// executor, post-processor, and test harness. It is grounded on the
// teacher's pkg/build/buildconfig.go (a similarly flat BuildConfig struct
// built via functional options with a Validate/Clone pair), generalized
// from an apk-build configuration to a conda-recipe build configuration.
package buildconfig

import (
	"fmt"
	"os"
	"path/filepath"
)

// SandboxConfig describes how (if at all) the script executor should wrap
// the build script in a restricted execution environment. The sandbox
// implementation itself is out of this core's scope (spec Non-goals); this
// is the contract a concrete sandboxing backend is configured through.
type SandboxConfig struct {
	Enabled     bool
	AllowNetwork bool
	ExtraMounts  []string
}

// Directories are the filesystem locations a build uses. They are
// produced once per BuildConfiguration and passed down to the script
// executor, post-processor, and test harness unchanged.
type Directories struct {
	WorkDir   string
	SourceDir string
	OutputDir string
	BuildDir  string
	PrefixDir string
	// PackageDir is where the Packer writes the finished archive; the
	// test harness indexes this directory as its ephemeral channel input.
	PackageDir string
	// RecipeDir is the directory the recipe.yaml itself lives in; unlike
	// the others it is not created/owned by this BuildConfiguration (it's
	// the caller's input), so EnsureDirectories never touches it. Used to
	// resolve patch files and pipeline `uses:` references relative to the
	// recipe.
	RecipeDir string
}

// BuildConfiguration is the output of the variant engine plus everything
// needed to actually run a build: the package identity and used variant,
// the platforms, the directories to build in, and the sandbox settings.
type BuildConfiguration struct {
	Name            string
	Version         string
	BuildString     string
	BuildNumber     int
	// Hash is the variant hash embedded in BuildString, exported to the
	// build script as PKG_HASH.
	Hash            string
	UsedVariant     map[string]string
	TargetPlatform  string
	HostPlatform    string
	BuildPlatform   string
	Directories     Directories
	Sandbox         SandboxConfig
	NoArch          string
}

// Option configures a BuildConfiguration at construction time, matching
// the teacher's ConfigurationParsingOption pattern.
type Option func(*BuildConfiguration) error

// New builds a BuildConfiguration rooted at rootDir, deriving its
// Directories from name+buildString so concurrent builds of different
// outputs never collide on disk, then applies opts in order.
func New(name, version, buildString string, buildNumber int, usedVariant map[string]string, rootDir string, opts ...Option) (*BuildConfiguration, error) {
	slug := name + "-" + version + "-" + buildString
	bc := &BuildConfiguration{
		Name:        name,
		Version:     version,
		BuildString: buildString,
		BuildNumber: buildNumber,
		UsedVariant: usedVariant,
		Directories: Directories{
			WorkDir:   filepath.Join(rootDir, slug, "work"),
			SourceDir: filepath.Join(rootDir, slug, "work", "src"),
			OutputDir: filepath.Join(rootDir, slug, "output"),
			BuildDir:  filepath.Join(rootDir, slug, "build"),
			PrefixDir: filepath.Join(rootDir, slug, "host_env"),
			PackageDir: filepath.Join(rootDir, slug, "pkgs"),
		},
	}
	for _, opt := range opts {
		if err := opt(bc); err != nil {
			return nil, fmt.Errorf("buildconfig: %w", err)
		}
	}
	if err := bc.Validate(); err != nil {
		return nil, err
	}
	return bc, nil
}

// WithPlatforms sets the target/host/build platform triple.
func WithPlatforms(target, host, build string) Option {
	return func(bc *BuildConfiguration) error {
		bc.TargetPlatform, bc.HostPlatform, bc.BuildPlatform = target, host, build
		return nil
	}
}

// WithSandbox enables sandboxed script execution.
func WithSandbox(cfg SandboxConfig) Option {
	return func(bc *BuildConfiguration) error {
		bc.Sandbox = cfg
		return nil
	}
}

// WithRecipeDir records where the source recipe.yaml lives on disk.
func WithRecipeDir(dir string) Option {
	return func(bc *BuildConfiguration) error {
		bc.Directories.RecipeDir = dir
		return nil
	}
}

// WithHash records the variant hash that went into the build string.
func WithHash(hash string) Option {
	return func(bc *BuildConfiguration) error {
		bc.Hash = hash
		return nil
	}
}

// WithNoArch records the recipe's noarch kind ("python", "generic", or "").
func WithNoArch(kind string) Option {
	return func(bc *BuildConfiguration) error {
		bc.NoArch = kind
		return nil
	}
}

// Validate rejects a BuildConfiguration that is missing fields the rest of
// the pipeline assumes are present.
func (bc *BuildConfiguration) Validate() error {
	if bc.Name == "" {
		return fmt.Errorf("buildconfig: name is required")
	}
	if bc.BuildString == "" {
		return fmt.Errorf("buildconfig: build string is required")
	}
	if bc.TargetPlatform == "" {
		return fmt.Errorf("buildconfig: target platform is required")
	}
	return nil
}

// Clone returns a deep-enough copy of bc so that mutating the clone's
// UsedVariant or Directories doesn't affect the original, matching the
// teacher's BuildConfig.Clone used when re-running a build for a remote
// worker.
func (bc *BuildConfiguration) Clone() *BuildConfiguration {
	clone := *bc
	clone.UsedVariant = make(map[string]string, len(bc.UsedVariant))
	for k, v := range bc.UsedVariant {
		clone.UsedVariant[k] = v
	}
	return &clone
}

// EnsureDirectories creates every directory in bc.Directories.
func (bc *BuildConfiguration) EnsureDirectories() error {
	for _, dir := range []string{
		bc.Directories.WorkDir,
		bc.Directories.SourceDir,
		bc.Directories.OutputDir,
		bc.Directories.BuildDir,
		bc.Directories.PrefixDir,
		bc.Directories.PackageDir,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("buildconfig: creating %s: %w", dir, err)
		}
	}
	return nil
}
