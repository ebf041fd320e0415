package stage1

import (
	"strings"

	"github.com/condaforge/rbcore/pkg/recipe"
	"github.com/condaforge/rbcore/pkg/tmpl"
)

// EvaluatedOutput is the result of evaluating a stage-0 recipe.Output (or
// single-output recipe.Recipe) against one variant, minus build.string:
// the variant engine computes the build-string hash from UsedVariant and
// then calls EvaluateBuildString for the remaining field.
type EvaluatedOutput struct {
	Name        string
	Version     string
	BuildNumber int
	NoArch      string
	Requirements EvaluatedRequirements
	Script       EvaluatedScript
	Tests        []EvaluatedTest
	Dynamic      EvaluatedDynamicLinking
	// Skip is true when any build.skip expression evaluated truthy for
	// this variant; the variant engine drops the combination.
	Skip bool
	AlwaysCopyFiles    []string
	AlwaysIncludeFiles []string
	Files              EvaluatedIncludeExclude
	PrefixDetection    EvaluatedPrefixDetection
	PostProcess        []EvaluatedRegexRewrite
	Signing            EvaluatedSigning
	MergeBuildAndHostEnvs bool
}

// EvaluatedPrefixDetection is the rendered form of recipe.PrefixDetection.
type EvaluatedPrefixDetection struct {
	Ignore            []string
	IgnoreBinaryFiles bool
}

// EvaluatedRegexRewrite is the rendered form of one recipe.RegexRewrite.
type EvaluatedRegexRewrite struct {
	Files       []string
	Regex       string
	Replacement string
}

// EvaluatedSigning is the rendered form of recipe.Signing.
type EvaluatedSigning struct {
	Backend  string
	Identity string
	Endpoint string
}

// EvaluatedDynamicLinking is the rendered form of recipe.DynamicLinking,
// consumed by pkg/postprocess's relink stage.
type EvaluatedDynamicLinking struct {
	RPaths              []string
	MissingDSOAllowlist []string
}

type EvaluatedRequirements struct {
	Build []string
	Host  []string
	Run   []string
}

type EvaluatedScript struct {
	Content     string
	Commands    []string
	Interpreter string
	Env         map[string]string
	Secrets     []string
	Cwd         string
}

// EvaluatedTest is a rendered, variant-bound test; pkg/recipetest runs
// these, not the stage-0 recipe.TestType.
type EvaluatedTest struct {
	Kind              recipe.TestKind
	Imports           []string
	PipCheck          bool
	PythonVersions    []string
	Script            []string
	RequirementsRun   []string
	RequirementsBuild []string
	PackageContents   EvaluatedPackageContents
	Downstream        string
}

// EvaluatedIncludeExclude is the rendered form of recipe.IncludeExclude[string].
type EvaluatedIncludeExclude struct {
	Include []string
	Exclude []string
}

// EvaluatedPackageContents is the rendered form of recipe.PackageContentsTest.
type EvaluatedPackageContents struct {
	Files     EvaluatedIncludeExclude
	SiteFiles EvaluatedIncludeExclude
	Libs      EvaluatedIncludeExclude
	Bin       EvaluatedIncludeExclude
	Include   EvaluatedIncludeExclude
	Strict    bool
}

// EvaluateOutputExceptBuildString evaluates every field of a recipe
// output except build.string, returning the populated EvaluatedOutput
// and the EvaluationContext (still accumulating used_variant) so the
// caller can compute the build-string hash and finish with
// EvaluateBuildString.
func EvaluateOutputExceptBuildString(ec *EvaluationContext, pkg recipe.PackageSection, build recipe.Build, reqs recipe.Requirements, tests recipe.ConditionalList[recipe.TestType]) (*EvaluatedOutput, error) {
	name, err := EvaluateValue(ec, pkg.Name)
	if err != nil {
		return nil, err
	}
	version, err := EvaluateValue(ec, pkg.Version)
	if err != nil {
		return nil, err
	}
	buildNumber, err := EvaluateValue(ec, build.Number)
	if err != nil {
		return nil, err
	}
	ec.SetBuildNumber(buildNumber)

	noarch, err := EvaluateValue(ec, build.NoArch)
	if err != nil {
		return nil, err
	}

	buildDeps, err := EvaluateConditionalList(ec, reqs.Build)
	if err != nil {
		return nil, err
	}
	hostDeps, err := EvaluateConditionalList(ec, reqs.Host)
	if err != nil {
		return nil, err
	}
	runDeps, err := EvaluateConditionalList(ec, reqs.Run)
	if err != nil {
		return nil, err
	}
	recordFreeSpecs(ec, runDeps)

	script, err := evaluateScript(ec, build.Script)
	if err != nil {
		return nil, err
	}

	evaledTests, err := evaluateTests(ec, tests)
	if err != nil {
		return nil, err
	}

	rpaths, err := EvaluateConditionalList(ec, build.Dynamic.RPaths)
	if err != nil {
		return nil, err
	}
	allowlist, err := EvaluateConditionalList(ec, build.Dynamic.MissingDSOAllowlist)
	if err != nil {
		return nil, err
	}

	skip, err := evaluateSkip(ec, build.Skip)
	if err != nil {
		return nil, err
	}

	alwaysCopy, err := EvaluateConditionalList(ec, build.AlwaysCopyFiles)
	if err != nil {
		return nil, err
	}
	alwaysInclude, err := EvaluateConditionalList(ec, build.AlwaysIncludeFiles)
	if err != nil {
		return nil, err
	}
	files, err := evaluateIncludeExclude(ec, build.Files)
	if err != nil {
		return nil, err
	}

	prefixIgnore, err := EvaluateConditionalList(ec, build.PrefixDetection.Ignore)
	if err != nil {
		return nil, err
	}
	prefixIgnoreBinary, err := EvaluateValue(ec, build.PrefixDetection.IgnoreBinaryFiles)
	if err != nil {
		return nil, err
	}

	postProcess := make([]EvaluatedRegexRewrite, 0, len(build.PostProcess))
	for _, rw := range build.PostProcess {
		globs, err := EvaluateConditionalList(ec, rw.Files)
		if err != nil {
			return nil, err
		}
		regex, err := EvaluateValue(ec, rw.Regex)
		if err != nil {
			return nil, err
		}
		replacement, err := EvaluateValue(ec, rw.Replacement)
		if err != nil {
			return nil, err
		}
		postProcess = append(postProcess, EvaluatedRegexRewrite{Files: globs, Regex: regex, Replacement: replacement})
	}

	signingBackend, err := EvaluateValue(ec, build.Signing.Backend)
	if err != nil {
		return nil, err
	}
	signingIdentity, err := EvaluateValue(ec, build.Signing.Identity)
	if err != nil {
		return nil, err
	}
	signingEndpoint, err := EvaluateValue(ec, build.Signing.Endpoint)
	if err != nil {
		return nil, err
	}

	mergeEnvs, err := EvaluateValue(ec, build.MergeBuildAndHostEnvs)
	if err != nil {
		return nil, err
	}

	if err := applyVariantKeyUsage(ec, build.Variant); err != nil {
		return nil, err
	}

	return &EvaluatedOutput{
		Name:        name,
		Version:     version,
		BuildNumber: buildNumber,
		NoArch:      noarch,
		Requirements: EvaluatedRequirements{Build: buildDeps, Host: hostDeps, Run: runDeps},
		Script:       script,
		Tests:        evaledTests,
		Dynamic:      EvaluatedDynamicLinking{RPaths: rpaths, MissingDSOAllowlist: allowlist},
		Skip:         skip,
		AlwaysCopyFiles:    alwaysCopy,
		AlwaysIncludeFiles: alwaysInclude,
		Files:              files,
		PrefixDetection:    EvaluatedPrefixDetection{Ignore: prefixIgnore, IgnoreBinaryFiles: prefixIgnoreBinary},
		PostProcess:        postProcess,
		Signing:            EvaluatedSigning{Backend: signingBackend, Identity: signingIdentity, Endpoint: signingEndpoint},
		MergeBuildAndHostEnvs: mergeEnvs,
	}, nil
}

// recordFreeSpecs records the variant key of every "free spec" run
// dependency: a spec whose whole text is a bare package name matching a
// variant key, with no version constraint. Its pinned version comes from
// the variant, so the key counts as read.
func recordFreeSpecs(ec *EvaluationContext, runDeps []string) {
	for _, spec := range runDeps {
		name := strings.TrimSpace(spec)
		if name == "" || strings.ContainsAny(name, " =<>!~^*") {
			continue
		}
		// Variant keys are normalized (lower-case, "-" unified to "_"), so
		// a dep name like r-base matches the r_base key.
		ec.record(strings.ToLower(strings.ReplaceAll(name, "-", "_")))
	}
}

// evaluateSkip renders build.skip and reports whether any entry's
// expression is truthy under this variant. Variables the expressions read
// are recorded the same way `if:` conditions are.
func evaluateSkip(ec *EvaluationContext, list recipe.ConditionalList[string]) (bool, error) {
	exprs, err := EvaluateConditionalList(ec, list)
	if err != nil {
		return false, err
	}
	skip := false
	for _, e := range exprs {
		if e == "" {
			continue
		}
		uv, err := tmpl.UsedVarsExpr(e)
		if err != nil {
			return false, err
		}
		ec.recordAll(uv.Exclusive())
		ok, err := tmpl.EvalBool(e, ec.Context)
		if err != nil {
			return false, err
		}
		if ok {
			skip = true
		}
	}
	return skip, nil
}

// applyVariantKeyUsage forces build.variant.use_keys into used_variant and
// strips ignore_keys back out, after the body's own reads have been
// recorded.
func applyVariantKeyUsage(ec *EvaluationContext, usage recipe.VariantKeyUsage) error {
	useKeys, err := EvaluateConditionalList(ec, usage.UseKeys)
	if err != nil {
		return err
	}
	ignoreKeys, err := EvaluateConditionalList(ec, usage.IgnoreKeys)
	if err != nil {
		return err
	}
	for _, k := range useKeys {
		ec.record(k)
	}
	for _, k := range ignoreKeys {
		delete(ec.Recorded, k)
	}
	return nil
}

// EvaluateBuildString performs the second evaluation pass: with `hash`
// and `build_number` now bound in ec (see EvaluationContext.SetHash), it
// renders build.string and records any additional variables it
// references into used_variant, per spec's two-pass requirement.
func EvaluateBuildString(ec *EvaluationContext, build recipe.Build, hash string) (string, error) {
	ec.SetHash(hash)
	if !build.String.IsTemplate() && build.String.Concrete == "" {
		// No user-supplied build.string; the caller formats the
		// conventional "{prefix}h{hash}_{build_number}" default.
		return "", nil
	}
	return EvaluateValue(ec, build.String)
}

func evaluateScript(ec *EvaluationContext, s recipe.Script) (EvaluatedScript, error) {
	content, err := EvaluateValue(ec, s.Content)
	if err != nil {
		return EvaluatedScript{}, err
	}
	commands, err := EvaluateConditionalList(ec, s.Commands)
	if err != nil {
		return EvaluatedScript{}, err
	}
	interpreter, err := EvaluateValue(ec, s.Interpreter)
	if err != nil {
		return EvaluatedScript{}, err
	}
	env := map[string]string{}
	for k, v := range s.Env {
		rendered, err := EvaluateValue(ec, v)
		if err != nil {
			return EvaluatedScript{}, err
		}
		env[k] = rendered
	}
	secrets, err := EvaluateConditionalList(ec, s.Secrets)
	if err != nil {
		return EvaluatedScript{}, err
	}
	cwd, err := EvaluateValue(ec, s.Cwd)
	if err != nil {
		return EvaluatedScript{}, err
	}
	return EvaluatedScript{Content: content, Commands: commands, Interpreter: interpreter, Env: env, Secrets: secrets, Cwd: cwd}, nil
}

func evaluateTests(ec *EvaluationContext, tests recipe.ConditionalList[recipe.TestType]) ([]EvaluatedTest, error) {
	raw, err := EvaluateConditionalList(ec, tests)
	if err != nil {
		return nil, err
	}
	out := make([]EvaluatedTest, 0, len(raw))
	for _, t := range raw {
		switch t.Kind {
		case recipe.TestPython:
			imports, err := EvaluateConditionalList(ec, t.Python.Imports)
			if err != nil {
				return nil, err
			}
			pipCheck, err := EvaluateValue(ec, t.Python.PipCheck)
			if err != nil {
				return nil, err
			}
			out = append(out, EvaluatedTest{
				Kind:           t.Kind,
				Imports:        imports,
				PipCheck:       pipCheck,
				PythonVersions: t.Python.PythonVersion.Versions(),
			})
		case recipe.TestCommands:
			script, err := EvaluateConditionalList(ec, t.Commands.Script)
			if err != nil {
				return nil, err
			}
			runDeps, err := EvaluateConditionalList(ec, t.Commands.Requirements.Run)
			if err != nil {
				return nil, err
			}
			buildDeps, err := EvaluateConditionalList(ec, t.Commands.Requirements.Build)
			if err != nil {
				return nil, err
			}
			out = append(out, EvaluatedTest{
				Kind:              t.Kind,
				Script:            script,
				RequirementsRun:   runDeps,
				RequirementsBuild: buildDeps,
			})
		case recipe.TestPackageContents:
			contents, err := evaluatePackageContents(ec, t.PackageContents)
			if err != nil {
				return nil, err
			}
			out = append(out, EvaluatedTest{Kind: t.Kind, PackageContents: contents})
		case recipe.TestDownstream:
			downstream, err := EvaluateValue(ec, t.Downstream.Downstream)
			if err != nil {
				return nil, err
			}
			out = append(out, EvaluatedTest{Kind: t.Kind, Downstream: downstream})
		default:
			out = append(out, EvaluatedTest{Kind: t.Kind})
		}
	}
	return out, nil
}

func evaluatePackageContents(ec *EvaluationContext, t recipe.PackageContentsTest) (EvaluatedPackageContents, error) {
	files, err := evaluateIncludeExclude(ec, t.Files)
	if err != nil {
		return EvaluatedPackageContents{}, err
	}
	siteFiles, err := evaluateIncludeExclude(ec, t.SiteFiles)
	if err != nil {
		return EvaluatedPackageContents{}, err
	}
	libs, err := evaluateIncludeExclude(ec, t.Libs)
	if err != nil {
		return EvaluatedPackageContents{}, err
	}
	bin, err := evaluateIncludeExclude(ec, t.Bin)
	if err != nil {
		return EvaluatedPackageContents{}, err
	}
	include, err := evaluateIncludeExclude(ec, t.Include)
	if err != nil {
		return EvaluatedPackageContents{}, err
	}
	strict, err := EvaluateValue(ec, t.Strict)
	if err != nil {
		return EvaluatedPackageContents{}, err
	}
	return EvaluatedPackageContents{
		Files:     files,
		SiteFiles: siteFiles,
		Libs:      libs,
		Bin:       bin,
		Include:   include,
		Strict:    strict,
	}, nil
}

func evaluateIncludeExclude(ec *EvaluationContext, ie recipe.IncludeExclude[string]) (EvaluatedIncludeExclude, error) {
	include, err := EvaluateConditionalList(ec, ie.Include)
	if err != nil {
		return EvaluatedIncludeExclude{}, err
	}
	exclude, err := EvaluateConditionalList(ec, ie.Exclude)
	if err != nil {
		return EvaluatedIncludeExclude{}, err
	}
	return EvaluatedIncludeExclude{Include: include, Exclude: exclude}, nil
}
