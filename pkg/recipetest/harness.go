// Package recipetest runs a built package's `tests:` entries against an
// ephemeral test prefix. It depends on external.Solver, external.Installer,
// and external.ChannelIndexer to actually install anything; this package
// only decides what to install and how to interpret each test type's
// result.
package recipetest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/condaforge/rbcore/pkg/external"
	"github.com/condaforge/rbcore/pkg/recipe"
	"github.com/google/uuid"
)

// Harness runs one package's test entries.
type Harness struct {
	Solver     external.Solver
	Indexer    external.ChannelIndexer
	Installer  external.Installer
	Downstream external.DownstreamBuildTester
	Channels   []string
	Platform   string
}

// PackageUnderTest identifies the package a Harness.Run call is testing, so
// every test entry solves and installs the exact build just produced
// (`name=version=build_string`) instead of whatever matching build a bare
// name happens to resolve to.
type PackageUnderTest struct {
	Name        string
	Version     string
	BuildString string
}

func (p PackageUnderTest) matchSpec() string {
	return fmt.Sprintf("%s=%s=%s", p.Name, p.Version, p.BuildString)
}

// Outcome is the result of running one test entry.
type Outcome struct {
	Kind   recipe.TestKind
	Passed bool
	Output string
	Err    error
}

// Run builds an ephemeral channel over packageDir (the just-built
// package, not yet published anywhere), solves and installs a fresh
// prefix pinned to pkg per test entry, and executes each one, returning
// one Outcome per entry in order. A failing test does not stop the
// remaining ones from running.
func (h *Harness) Run(ctx context.Context, packageDir string, pkg PackageUnderTest, tests []recipe.TestType) ([]Outcome, error) {
	log := clog.FromContext(ctx)
	channelURL, cleanup, err := h.Indexer.Index(ctx, packageDir)
	if err != nil {
		return nil, fmt.Errorf("recipetest: indexing %s: %w", packageDir, err)
	}
	defer cleanup()

	channels := append([]string{channelURL}, h.Channels...)

	var outcomes []Outcome
	for _, test := range tests {
		outcome := h.runOne(ctx, channels, channelURL, pkg, test)
		log.Info("test finished", "kind", outcome.Kind, "passed", outcome.Passed)
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (h *Harness) runOne(ctx context.Context, channels []string, channelURL string, pkg PackageUnderTest, test recipe.TestType) Outcome {
	switch test.Kind {
	case recipe.TestPython:
		return h.runPython(ctx, channels, pkg, test.Python)
	case recipe.TestPerl, recipe.TestR, recipe.TestRuby:
		return h.runInterpreter(ctx, channels, pkg, test)
	case recipe.TestCommands:
		return h.runCommands(ctx, channels, pkg, test.Commands)
	case recipe.TestPackageContents:
		return h.runPackageContents(channelURL, pkg, test.PackageContents)
	case recipe.TestDownstream:
		return h.runDownstream(ctx, channels, test.Downstream)
	}
	return Outcome{Kind: test.Kind, Err: fmt.Errorf("recipetest: unknown test kind %d", test.Kind)}
}

// newPrefix creates an empty, uniquely named directory for a Solver's
// resolved records to be installed into.
func (h *Harness) newPrefix() (string, func(), error) {
	dir, err := os.MkdirTemp("", "rbcore-test-"+uuid.NewString())
	if err != nil {
		return "", nil, fmt.Errorf("recipetest: creating test prefix: %w", err)
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

// solveAndInstall resolves specs against channels and materializes the
// result into a fresh, isolated prefix directory via h.Installer, so test
// entries execute real, just-installed binaries instead of whatever
// happens to be on the ambient PATH.
func (h *Harness) solveAndInstall(ctx context.Context, channels []string, specs []string) (string, func(), error) {
	if h.Installer == nil {
		return "", nil, fmt.Errorf("recipetest: no installer configured to materialize a test prefix")
	}
	records, err := h.Solver.Solve(ctx, specs, channels, h.Platform)
	if err != nil {
		return "", nil, fmt.Errorf("recipetest: solving %v: %w", specs, err)
	}
	prefix, cleanup, err := h.newPrefix()
	if err != nil {
		return "", nil, err
	}
	if err := h.Installer.Install(ctx, records, prefix); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("recipetest: installing %v into %s: %w", specs, prefix, err)
	}
	return prefix, cleanup, nil
}

func (h *Harness) runPython(ctx context.Context, channels []string, pkg PackageUnderTest, t recipe.PythonTest) Outcome {
	var outputs []string
	for _, version := range t.PythonVersion.Versions() {
		specs := []string{pkg.matchSpec()}
		if version != "" {
			specs = append(specs, "python="+version)
		} else {
			specs = append(specs, "python")
		}
		prefix, cleanup, err := h.solveAndInstall(ctx, channels, specs)
		if err != nil {
			return Outcome{Kind: recipe.TestPython, Output: strings.Join(outputs, "\n"), Err: err}
		}

		script := "import " + joinImports(concretePatterns(t.Imports))
		out, err := runInPrefix(ctx, prefix, h.Platform, "python", []string{"-c", script})
		outputs = append(outputs, out)
		if err != nil {
			cleanup()
			return Outcome{Kind: recipe.TestPython, Output: strings.Join(outputs, "\n"), Err: err}
		}

		if t.PipCheck.Concrete {
			out, err := runInPrefix(ctx, prefix, h.Platform, "pip", []string{"check"})
			outputs = append(outputs, out)
			if err != nil {
				cleanup()
				return Outcome{Kind: recipe.TestPython, Output: strings.Join(outputs, "\n"), Err: fmt.Errorf("pip check: %w", err)}
			}
		}
		cleanup()
	}
	return Outcome{Kind: recipe.TestPython, Passed: true, Output: strings.Join(outputs, "\n")}
}

func joinImports(imports []string) string {
	out := ""
	for i, imp := range imports {
		if i > 0 {
			out += ", "
		}
		out += imp
	}
	return out
}

func (h *Harness) runInterpreter(ctx context.Context, channels []string, pkg PackageUnderTest, test recipe.TestType) Outcome {
	var t recipe.InterpreterTest
	var interp string
	switch test.Kind {
	case recipe.TestPerl:
		t, interp = test.Perl, "perl"
	case recipe.TestR:
		t, interp = test.R, "Rscript"
	case recipe.TestRuby:
		t, interp = test.Ruby, "ruby"
	}
	specs := append([]string{pkg.matchSpec(), interp}, concretePatterns(t.Extra)...)
	prefix, cleanup, err := h.solveAndInstall(ctx, channels, specs)
	if err != nil {
		return Outcome{Kind: test.Kind, Err: err}
	}
	defer cleanup()

	out, err := runInPrefix(ctx, prefix, h.Platform, interp, []string{"-e", joinLines(concretePatterns(t.Script))})
	return Outcome{Kind: test.Kind, Passed: err == nil, Output: out, Err: err}
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func (h *Harness) runCommands(ctx context.Context, channels []string, pkg PackageUnderTest, t recipe.CommandsTest) Outcome {
	specs := []string{pkg.matchSpec()}
	specs = append(specs, concretePatterns(t.Requirements.Build)...)
	specs = append(specs, concretePatterns(t.Requirements.Run)...)
	prefix, cleanup, err := h.solveAndInstall(ctx, channels, specs)
	if err != nil {
		return Outcome{Kind: recipe.TestCommands, Err: err}
	}
	defer cleanup()

	out, err := runInPrefix(ctx, prefix, h.Platform, "bash", []string{"-c", joinLines(concretePatterns(t.Script))})
	return Outcome{Kind: recipe.TestCommands, Passed: err == nil, Output: out, Err: err}
}

func (h *Harness) runPackageContents(channelURL string, pkg PackageUnderTest, t recipe.PackageContentsTest) Outcome {
	paths, err := archivePaths(channelDir(channelURL), h.Platform, pkg)
	if err != nil {
		return Outcome{Kind: recipe.TestPackageContents, Err: err}
	}
	result := checkPackageContents(t, paths)
	return Outcome{
		Kind:   recipe.TestPackageContents,
		Passed: result.ok(),
		Output: fmt.Sprintf("missing: %v, unmatched: %v", result.Missing, result.Unmatched),
	}
}

func (h *Harness) runDownstream(ctx context.Context, channels []string, d recipe.DownstreamTest) Outcome {
	if _, err := h.Solver.Solve(ctx, []string{d.Downstream.Concrete}, channels, h.Platform); err != nil {
		return Outcome{Kind: recipe.TestDownstream, Err: fmt.Errorf("solving downstream package %s: %w", d.Downstream.Concrete, err)}
	}
	if h.Downstream == nil {
		return Outcome{Kind: recipe.TestDownstream, Err: fmt.Errorf("recipetest: no downstream build tester configured for %s", d.Downstream.Concrete)}
	}
	passed, out, err := h.Downstream.BuildAndTest(ctx, d.Downstream.Concrete, channels, h.Platform)
	if err != nil {
		return Outcome{Kind: recipe.TestDownstream, Output: out, Err: err}
	}
	return Outcome{Kind: recipe.TestDownstream, Passed: passed, Output: out}
}

// channelDir strips a file:// scheme off a ChannelIndexer's channelURL.
// pkg/recipetest's own Indexer contract only promises a local channel, so
// this is always a filesystem path in practice.
func channelDir(channelURL string) string {
	return strings.TrimPrefix(channelURL, "file://")
}

// interpPath resolves interp against prefixDir's own layout instead of the
// ambient PATH: bin/<interp> on unix, <interp>.exe at the prefix root on
// Windows, using the same "win" platform-prefix check pkg/script's
// platformDefaultInterpreter makes for the build script's interpreter.
func interpPath(prefixDir, interp, platform string) string {
	if strings.HasPrefix(platform, "win") {
		return filepath.Join(prefixDir, interp+".exe")
	}
	return filepath.Join(prefixDir, "bin", interp)
}

// runInPrefix execs interp out of prefixDir, with prefixDir's bin/
// directory prepended to PATH so the interpreter can in turn resolve
// companion tools (pip finding python, a shebang script finding its
// interpreter) from the same installed environment.
func runInPrefix(ctx context.Context, prefixDir, platform, interp string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, interpPath(prefixDir, interp, platform), args...)
	cmd.Env = append(os.Environ(), "PATH="+filepath.Join(prefixDir, "bin")+string(os.PathListSeparator)+os.Getenv("PATH"))
	out, err := cmd.CombinedOutput()
	return string(out), err
}
