// Package build wires the rest of this module into one end-to-end
// pipeline: parse a recipe, expand it across the variant matrix, build
// each resulting group, post-process its outputs, and run its tests. It
// is grounded on the teacher's pkg/build/build.go Build type, which plays
// the same orchestrating role for melange's apk pipeline (BuildPackage
// opens a span, delegates each phase, and leaves the underlying fetch/
// solve/pack work to injected collaborators).
package build

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"

	"github.com/condaforge/rbcore/pkg/buildconfig"
	"github.com/condaforge/rbcore/pkg/external"
	"github.com/condaforge/rbcore/pkg/patch"
	"github.com/condaforge/rbcore/pkg/postprocess"
	"github.com/condaforge/rbcore/pkg/recipe"
	"github.com/condaforge/rbcore/pkg/recipe/stage1"
	"github.com/condaforge/rbcore/pkg/recipetest"
	"github.com/condaforge/rbcore/pkg/script"
	"github.com/condaforge/rbcore/pkg/span"
	"github.com/condaforge/rbcore/pkg/variant"
	"github.com/condaforge/rbcore/pkg/workspace"
)

var tracer = otel.Tracer("github.com/condaforge/rbcore/pkg/build")

// Pipeline owns every external collaborator this core needs and the
// knobs that don't come from the recipe itself (platform triple, root
// directory, post-processing policy).
type Pipeline struct {
	Fetcher    external.SourceFetcher
	Solver     external.Solver
	Indexer    external.ChannelIndexer
	Installer  external.Installer
	Downstream external.DownstreamBuildTester
	Packer     external.Packer
	Sandbox    script.Sandbox
	Redactor   script.Redactor
	RootDir    string
	TargetPlat string
	HostPlat   string
	BuildPlat  string
	Postprocess postprocess.Options
	Channels   []string
	// RecipeDir is where the recipe.yaml being built lives; patch files
	// named in source.patches are resolved relative to it.
	RecipeDir string
}

// GroupResult is the outcome of building and testing one BuildGroup.
type GroupResult struct {
	Config      *buildconfig.BuildConfiguration
	PostProcess *postprocess.Result
	Tests       []recipetest.Outcome
	// ArchivePath is the packed archive's location, empty when no Packer
	// is configured.
	ArchivePath string
}

// Run parses recipeBytes, expands it across cfg's variant matrix, and
// builds+tests+post-processes every resulting group in turn. A failure
// in one group's script does not stop the remaining groups from
// attempting to build, matching the test harness's own
// no-stop-on-failure contract.
func (p *Pipeline) Run(ctx context.Context, recipeBytes []byte, fileID string, variantCfg variant.Config) ([]GroupResult, error) {
	ctx, span := tracer.Start(ctx, "build.Run")
	defer span.End()
	log := clog.FromContext(ctx)

	r, errs := recipe.ParseRecipe(recipeBytes, fileID)
	if len(errs) > 0 {
		return nil, fmt.Errorf("build: parsing recipe: %w", errs[0])
	}

	var results []GroupResult
	if r.Package != nil {
		groups, err := variant.Run(variantCfg, *r.Package, r.Build, r.Requirements, r.Tests, nil)
		if err != nil {
			return nil, fmt.Errorf("build: expanding variant matrix: %w", err)
		}
		log.Info("variant matrix expanded", "groups", len(groups))
		results = append(results, p.runGroups(ctx, groups, r, recipeBytes)...)
		return results, nil
	}

	// MultiOutput: every non-staging output is expanded and built
	// independently against the same variant matrix; a StagingOutput
	// never produces an archive (spec.md §3) so it's skipped here, per
	// the "independent used_variant" Open Question resolution recorded
	// in DESIGN.md.
	for oi, output := range r.Outputs {
		if output.Staging {
			log.Info("skipping staging output", "index", oi)
			continue
		}
		pkg, build, reqs, tests := r.MergeOutput(output)
		groups, err := variant.Run(variantCfg, pkg, build, reqs, tests, nil)
		if err != nil {
			return nil, fmt.Errorf("build: output %d: expanding variant matrix: %w", oi, err)
		}
		log.Info("variant matrix expanded", "output", oi, "groups", len(groups))
		results = append(results, p.runGroups(ctx, groups, r, recipeBytes)...)
	}
	return results, nil
}

func (p *Pipeline) runGroups(ctx context.Context, groups []variant.BuildGroup, r *recipe.Recipe, recipeBytes []byte) []GroupResult {
	log := clog.FromContext(ctx)
	results := make([]GroupResult, 0, len(groups))
	for i, group := range groups {
		res, err := p.runGroup(ctx, i, group, r, recipeBytes)
		if err != nil {
			log.Error("build group failed", "index", i, "error", err)
			results = append(results, GroupResult{})
			continue
		}
		results = append(results, *res)
	}
	return results
}

func (p *Pipeline) runGroup(ctx context.Context, index int, group variant.BuildGroup, r *recipe.Recipe, recipeBytes []byte) (*GroupResult, error) {
	ctx, span := tracer.Start(ctx, "build.runGroup")
	defer span.End()
	log := clog.FromContext(ctx)

	bc, err := buildconfig.New(
		group.Output.Name, group.Output.Version, group.BuildString, group.Output.BuildNumber,
		group.UsedVariant, p.RootDir,
		buildconfig.WithPlatforms(p.TargetPlat, p.HostPlat, p.BuildPlat),
		buildconfig.WithNoArch(group.Output.NoArch),
		buildconfig.WithRecipeDir(p.RecipeDir),
		buildconfig.WithHash(group.Hash),
	)
	if err != nil {
		return nil, fmt.Errorf("build: group %d: %w", index, err)
	}
	if err := bc.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("build: group %d: %w", index, err)
	}

	if err := p.fetchSources(ctx, r, group, bc); err != nil {
		return nil, fmt.Errorf("build: group %d: fetching sources: %w", index, err)
	}
	if err := workspace.Stage(bc.Directories.SourceDir, bc.Directories.WorkDir); err != nil {
		return nil, fmt.Errorf("build: group %d: staging workspace: %w", index, err)
	}

	secrets := script.HostSecrets(group.Output.Script.Secrets)
	env := script.BuildEnv(bc, group.Output.Script.Env, secrets)
	if group.Output.MergeBuildAndHostEnvs {
		env["BUILD_PREFIX"] = env["PREFIX"]
	}
	redactor := script.ChainRedactor{
		script.NewPrefixRedactor(bc.Directories.PrefixDir, bc.Directories.BuildDir, bc.Directories.WorkDir),
		script.NewSecretRedactor(secrets),
		p.Redactor,
	}
	exec := &script.Executor{
		BuildConfig: bc,
		Sandbox:     p.Sandbox,
		Redactor:    redactor,
		Interpreter: group.Output.Script.Interpreter,
		Cwd:         group.Output.Script.Cwd,
	}
	content := script.ResolveContent(group.Output.Script.Content, group.Output.Script.Commands, bc.TargetPlatform)
	if err := exec.Run(ctx, content, env, func(line string) { log.Info(line) }); err != nil {
		return nil, fmt.Errorf("build: group %d: running script: %w", index, err)
	}

	files, err := outputFiles(bc.Directories.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("build: group %d: listing outputs: %w", index, err)
	}
	// build.files decides what ships; files it drops are removed from the
	// staging tree so neither post-processing nor the Packer sees them.
	files, dropped := selectOutputFiles(files, bc.Directories.OutputDir, group.Output.Files, group.Output.AlwaysIncludeFiles)
	for _, f := range dropped {
		if err := os.Remove(f); err != nil {
			return nil, fmt.Errorf("build: group %d: excluding %s: %w", index, f, err)
		}
	}
	if len(dropped) > 0 {
		log.Info("excluded staged files from package", "count", len(dropped))
	}

	opts := p.Postprocess
	opts.BuildPrefix = bc.Directories.PrefixDir
	opts.Relink.PrefixDir = bc.Directories.PrefixDir
	if len(group.Output.Dynamic.RPaths) > 0 {
		opts.Relink.RPaths = group.Output.Dynamic.RPaths
	}
	if len(group.Output.Dynamic.MissingDSOAllowlist) > 0 {
		opts.Relink.MissingDSOAllowlist = group.Output.Dynamic.MissingDSOAllowlist
	}
	rules, err := rewriteRules(group.Output.PostProcess)
	if err != nil {
		return nil, fmt.Errorf("build: group %d: %w", index, err)
	}
	opts.Rewrites = append(opts.Rewrites, rules...)
	if cfg, ok := signingConfig(group.Output.Signing); ok {
		opts.Signing = cfg
		opts.CheckPrefix = true
	}
	pp, err := postprocess.Process(ctx, files, opts)
	if err != nil {
		return nil, fmt.Errorf("build: group %d: post-processing: %w", index, err)
	}

	archivePath, err := p.pack(ctx, bc, group.Output, recipeBytes)
	if err != nil {
		return nil, fmt.Errorf("build: group %d: packing: %w", index, err)
	}

	var outcomes []recipetest.Outcome
	if p.Solver != nil && p.Indexer != nil {
		h := &recipetest.Harness{
			Solver:     p.Solver,
			Indexer:    p.Indexer,
			Installer:  p.Installer,
			Downstream: p.Downstream,
			Channels:   p.Channels,
			Platform:   bc.TargetPlatform,
		}
		testTypes := make([]recipe.TestType, 0, len(group.Output.Tests))
		for _, t := range group.Output.Tests {
			testTypes = append(testTypes, evaluatedTestToStage0(t))
		}
		pkg := recipetest.PackageUnderTest{Name: bc.Name, Version: bc.Version, BuildString: bc.BuildString}
		// The harness indexes the packed archive when a Packer produced
		// one; without a Packer it falls back to the raw output tree.
		testDir := bc.Directories.OutputDir
		if archivePath != "" {
			testDir = bc.Directories.PackageDir
		}
		outcomes, err = h.Run(ctx, testDir, pkg, testTypes)
		if err != nil {
			return nil, fmt.Errorf("build: group %d: running tests: %w", index, err)
		}
	}

	return &GroupResult{Config: bc, PostProcess: pp, Tests: outcomes, ArchivePath: archivePath}, nil
}

// pack hands the populated output directory to the injected Packer and
// writes the resulting archive into the build's package directory, with
// the original recipe text embedded so pkg/rebuild can re-drive the
// pipeline from the archive alone. With no Packer configured the build
// stops at the populated output directory.
func (p *Pipeline) pack(ctx context.Context, bc *buildconfig.BuildConfiguration, out *stage1.EvaluatedOutput, recipeBytes []byte) (string, error) {
	if p.Packer == nil {
		return "", nil
	}
	meta := external.PackageMeta{
		Name:            bc.Name,
		Version:         bc.Version,
		BuildString:     bc.BuildString,
		BuildNumber:     bc.BuildNumber,
		Subdir:          bc.TargetPlatform,
		Recipe:          recipeBytes,
		AlwaysCopyFiles: out.AlwaysCopyFiles,
		PrefixIgnore:    out.PrefixDetection.Ignore,
		PrefixIgnoreBinaryFiles: out.PrefixDetection.IgnoreBinaryFiles,
	}
	name := fmt.Sprintf("%s-%s-%s.conda", bc.Name, bc.Version, bc.BuildString)
	archivePath := filepath.Join(bc.Directories.PackageDir, name)
	f, err := os.Create(archivePath)
	if err != nil {
		return "", err
	}
	if err := p.Packer.Pack(ctx, bc.Directories.OutputDir, meta, f); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return archivePath, nil
}

// fetchSources evaluates r.Source against this group's full variant
// (selecting whichever branch of any if:/then:/else: entry applies),
// fetches each surviving entry via the injected SourceFetcher, and
// applies its declared patches (pkg/patch) against the fetched tree.
func (p *Pipeline) fetchSources(ctx context.Context, r *recipe.Recipe, group variant.BuildGroup, bc *buildconfig.BuildConfiguration) error {
	ec := stage1.NewEvaluationContext(group.FullVariant, nil)
	sources, err := stage1.EvaluateSources(ec, r.Source)
	if err != nil {
		return fmt.Errorf("evaluating source list: %w", err)
	}
	if p.Fetcher == nil {
		return nil
	}
	for _, src := range sources {
		spec := external.SourceSpec{
			URL:       src.URL,
			Git:       src.Git,
			Path:      src.Path,
			SHA256:    src.SHA256,
			TargetDir: src.TargetDir,
		}
		if err := p.Fetcher.Fetch(ctx, spec, bc.Directories.SourceDir); err != nil {
			return err
		}
		for _, patchPath := range src.Patches {
			if err := applyPatchFile(bc.Directories.RecipeDir, bc.Directories.SourceDir, patchPath); err != nil {
				return fmt.Errorf("applying patch %s: %w", patchPath, err)
			}
		}
	}
	return nil
}

// applyPatchFile reads patchRelPath (relative to recipeDir), parses it as
// a unified diff, and applies it in place against the corresponding file
// under sourceDir (named by the diff's `+++` header, `a/`/`b/` prefix
// stripped).
func applyPatchFile(recipeDir, sourceDir, patchRelPath string) error {
	diffBytes, err := os.ReadFile(filepath.Join(recipeDir, patchRelPath))
	if err != nil {
		return err
	}
	p, err := patch.ParseUnifiedDiff(string(diffBytes))
	if err != nil {
		return err
	}
	target := stripDiffPrefix(p.NewFile)
	targetPath := filepath.Join(sourceDir, target)
	srcBytes, err := os.ReadFile(targetPath)
	if err != nil {
		return err
	}
	patched, _, err := patch.Apply(string(srcBytes), p, patch.ApplyConfig{
		LineEndHandling: patch.LineEndPreserve,
		Fuzzy:           patch.DefaultFuzzyConfig(),
	})
	if err != nil {
		return err
	}
	info, err := os.Stat(targetPath)
	if err != nil {
		return err
	}
	return os.WriteFile(targetPath, []byte(patched), info.Mode())
}

// selectOutputFiles partitions the staged output tree into the files that
// ship in the package (per build.files include/exclude, with
// always_include_files overriding an exclusion) and the ones that don't.
// With no include/exclude configured every file ships.
func selectOutputFiles(files []string, root string, ie stage1.EvaluatedIncludeExclude, alwaysInclude []string) (keep, drop []string) {
	if len(ie.Include) == 0 && len(ie.Exclude) == 0 {
		return files, nil
	}
	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		if err != nil {
			keep = append(keep, f)
			continue
		}
		rel = filepath.ToSlash(rel)
		switch {
		case matchAnyGlob(alwaysInclude, rel):
			keep = append(keep, f)
		case matchAnyGlob(ie.Exclude, rel):
			drop = append(drop, f)
		case len(ie.Include) == 0 || matchAnyGlob(ie.Include, rel):
			keep = append(keep, f)
		default:
			drop = append(drop, f)
		}
	}
	return keep, drop
}

func matchAnyGlob(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// rewriteRules compiles a recipe's build.post_process entries into the
// post-processor's rule shape, one rule per (glob, regex) pair.
func rewriteRules(entries []stage1.EvaluatedRegexRewrite) ([]postprocess.RewriteRule, error) {
	var rules []postprocess.RewriteRule
	for _, e := range entries {
		if e.Regex == "" {
			continue
		}
		re, err := regexp.Compile(e.Regex)
		if err != nil {
			return nil, fmt.Errorf("compiling post_process regex %q: %w", e.Regex, err)
		}
		if len(e.Files) == 0 {
			rules = append(rules, postprocess.RewriteRule{Pattern: re, Replacement: e.Replacement})
			continue
		}
		for _, glob := range e.Files {
			rules = append(rules, postprocess.RewriteRule{Glob: glob, Pattern: re, Replacement: e.Replacement})
		}
	}
	return rules, nil
}

// signingConfig maps a recipe's build.signing block onto the
// post-processor's backend enum; an empty or unknown backend leaves the
// caller's static signing configuration in place.
func signingConfig(s stage1.EvaluatedSigning) (postprocess.SigningConfig, bool) {
	switch s.Backend {
	case "codesign":
		return postprocess.SigningConfig{Backend: postprocess.SigningMacOSCodesign, Identity: s.Identity}, true
	case "signtool":
		return postprocess.SigningConfig{Backend: postprocess.SigningWindowsSigntool, Identity: s.Identity}, true
	case "azure":
		return postprocess.SigningConfig{Backend: postprocess.SigningAzureTrustedSigning, Identity: s.Identity, Endpoint: s.Endpoint}, true
	}
	return postprocess.SigningConfig{}, false
}

func stripDiffPrefix(name string) string {
	if len(name) > 2 && (name[:2] == "a/" || name[:2] == "b/") {
		return name[2:]
	}
	return name
}

// evaluatedTestToStage0 re-wraps a stage-1-evaluated test back into the
// stage-0 recipe.TestType shape pkg/recipetest consumes, so that already-
// rendered imports/script lines survive the boundary instead of being
// dropped. Every wrapped value is Concrete: it has already been through
// stage-1, so it must not be rendered again.
func evaluatedTestToStage0(t stage1.EvaluatedTest) recipe.TestType {
	tt := recipe.TestType{Kind: t.Kind}
	switch t.Kind {
	case recipe.TestPython:
		tt.Python.Imports = concreteStrings(t.Imports)
		tt.Python.PipCheck = recipe.NewConcrete(t.PipCheck, span.Span{})
		tt.Python.PythonVersion = concretePythonVersion(t.PythonVersions)
	case recipe.TestCommands:
		tt.Commands.Script = concreteStrings(t.Script)
		tt.Commands.Requirements.Run = concreteStrings(t.RequirementsRun)
		tt.Commands.Requirements.Build = concreteStrings(t.RequirementsBuild)
	case recipe.TestPackageContents:
		tt.PackageContents.Files = concreteIncludeExclude(t.PackageContents.Files)
		tt.PackageContents.SiteFiles = concreteIncludeExclude(t.PackageContents.SiteFiles)
		tt.PackageContents.Libs = concreteIncludeExclude(t.PackageContents.Libs)
		tt.PackageContents.Bin = concreteIncludeExclude(t.PackageContents.Bin)
		tt.PackageContents.Include = concreteIncludeExclude(t.PackageContents.Include)
		tt.PackageContents.Strict = recipe.NewConcrete(t.PackageContents.Strict, span.Span{})
	case recipe.TestDownstream:
		tt.Downstream.Downstream = recipe.NewConcrete(t.Downstream, span.Span{})
	}
	return tt
}

// concretePythonVersion re-wraps an already-expanded version list: a
// single element becomes a pinned Single, one empty element stays None,
// and anything else is wrapped as Multiple. Stage-1 has already picked
// the versions to test against, so this never needs to distinguish the
// original recipe's scalar-vs-sequence shape.
func concretePythonVersion(versions []string) recipe.PythonVersion {
	switch {
	case len(versions) == 1 && versions[0] == "":
		return recipe.PythonVersion{Kind: recipe.PythonVersionNone}
	case len(versions) == 1:
		return recipe.PythonVersion{Kind: recipe.PythonVersionSingle, Single: versions[0]}
	default:
		return recipe.PythonVersion{Kind: recipe.PythonVersionMultiple, Multiple: versions}
	}
}

func concreteStrings(ss []string) recipe.ConditionalList[string] {
	out := make(recipe.ConditionalList[string], 0, len(ss))
	for _, s := range ss {
		out = append(out, recipe.PlainItem(recipe.NewConcrete(s, span.Span{})))
	}
	return out
}

func concreteIncludeExclude(ie stage1.EvaluatedIncludeExclude) recipe.IncludeExclude[string] {
	return recipe.IncludeExclude[string]{
		Include: concreteStrings(ie.Include),
		Exclude: concreteStrings(ie.Exclude),
	}
}

func outputFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	return files, err
}
