package recipe

import (
	"errors"
	"fmt"

	"github.com/condaforge/rbcore/pkg/span"
	"gopkg.in/yaml.v3"
)

// Recipe is the stage-0 AST for a single recipe.yaml document: everything
// decoded, nothing rendered. A variant has not been selected yet, so any
// field that can vary by variant is a Value[T] or ConditionalList[T].
type Recipe struct {
	FileID  string
	Context map[string]Value[string]
	Package *PackageSection
	// RecipeName/RecipeVersion hold the MultiOutput `recipe:` block's
	// name/version, which every PackageOutput missing its own version
	// inherits from (a missing name is always an error, per spec.md
	// §3's stage-0 invariant).
	RecipeName    Value[string]
	RecipeVersion Value[string]
	Source  ConditionalList[Source]
	Build   Build
	Requirements
	Tests   ConditionalList[TestType]
	About   *About
	Outputs []Output
}

// PackageSection is the top-level `package:` block of a single-output
// recipe.
type PackageSection struct {
	Name    Value[string]
	Version Value[string]
}

// Output is one entry of a multi-output recipe's `outputs:` list; it
// reuses the single-output shape since stage-1 treats each output as an
// independent recipe sharing the parent's context/source.
//
// Staging contributes files/env to sibling outputs but, per spec.md
// §3's MultiOutput Output shape, never produces an archive of its own;
// Pipeline.Run (pkg/build) skips it when emitting build groups.
type Output struct {
	Package      PackageSection
	Build        Build
	Requirements Requirements
	Tests        ConditionalList[TestType]
	About        *About
	Staging      bool
}

// Source is one entry of the `source:` list: a URL/git/local-path fetch
// description plus an optional list of patches to apply after fetch. The
// fetch itself is performed by the external SourceFetcher collaborator;
// the patch list is this core's responsibility (pkg/patch).
type Source struct {
	URL       Value[string]
	Git       Value[string]
	Path      Value[string]
	SHA256    Value[string] `yaml:"sha256"`
	Patches   ConditionalList[string]
	TargetDir Value[string] `yaml:"target_dir"`
}

// Build is the `build:` block.
type Build struct {
	Number   Value[int]
	String   Value[string]
	Script   Script
	NoArch   Value[string] // "python", "generic", or empty
	Python   PythonBuildOptions
	Dynamic  DynamicLinking
	// Skip holds boolean expressions; a variant combination for which any
	// entry evaluates truthy is dropped before grouping.
	Skip ConditionalList[string]
	// AlwaysCopyFiles/AlwaysIncludeFiles are globs the packer copies
	// rather than links / includes even when files: would exclude them.
	AlwaysCopyFiles    ConditionalList[string]
	AlwaysIncludeFiles ConditionalList[string]
	// Files restricts which staged files ship in the package.
	Files IncludeExclude[string]
	// Variant forces keys into or out of used_variant regardless of
	// whether the recipe body reads them.
	Variant VariantKeyUsage
	// PrefixDetection configures how the packer records prefix
	// placeholders in the built archive.
	PrefixDetection PrefixDetection
	// PostProcess lists regex substitutions applied to the globbed
	// output files after relinking.
	PostProcess []RegexRewrite
	// Signing selects and configures the code-signing backend.
	Signing Signing
	// MergeBuildAndHostEnvs installs build requirements into the host
	// prefix, so BUILD_PREFIX and PREFIX point at the same environment.
	MergeBuildAndHostEnvs Value[bool]
}

// VariantKeyUsage is `build.variant`: use_keys/ignore_keys adjust
// used_variant after evaluation.
type VariantKeyUsage struct {
	UseKeys    ConditionalList[string]
	IgnoreKeys ConditionalList[string]
}

// PrefixDetection is `build.prefix_detection`.
type PrefixDetection struct {
	Ignore            ConditionalList[string]
	IgnoreBinaryFiles Value[bool]
}

// RegexRewrite is one `build.post_process` entry.
type RegexRewrite struct {
	Files       ConditionalList[string]
	Regex       Value[string]
	Replacement Value[string]
}

// Signing is `build.signing`: which signer runs over the produced
// binaries and how it is invoked.
type Signing struct {
	Backend  Value[string] // "codesign", "signtool", or "azure"
	Identity Value[string]
	Endpoint Value[string]
}

// PythonBuildOptions holds python-specific build knobs that affect
// packaging but not the variant/hash pipeline; entry points are the only
// one modelled.
type PythonBuildOptions struct {
	EntryPoints ConditionalList[string]
}

// DynamicLinking configures the post-build relink stage (pkg/postprocess).
type DynamicLinking struct {
	RPaths               ConditionalList[string]
	Binaries             ConditionalList[string]
	MissingDSOAllowlist  ConditionalList[string]
}

// Script is the stage-0 shape of `build.script`: either bare command(s) or
// a structured block naming an interpreter/env/secrets, mirroring
// ScriptContent's resolution order in pkg/script.
type Script struct {
	Content     Value[string]   // single inline command/path
	Commands    ConditionalList[string]
	Interpreter Value[string]
	Env         map[string]Value[string]
	Secrets     ConditionalList[string]
	Cwd         Value[string]
}

// Requirements is the `requirements:` block.
type Requirements struct {
	Build          ConditionalList[string]
	Host           ConditionalList[string]
	Run            ConditionalList[string]
	RunConstraints ConditionalList[string] `yaml:"run_constraints"`
}

// About is the `about:` block; purely descriptive metadata with no effect
// on variant/hash computation.
type About struct {
	Homepage Value[string]
	License  Value[string]
	Summary  Value[string]
}

// ParseRecipe decodes a recipe.yaml document into a stage-0 Recipe,
// accumulating every error it finds (unknown keys, malformed scalars)
// rather than stopping at the first one.
func ParseRecipe(data []byte, fileID string) (*Recipe, []error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, []error{fmt.Errorf("%s: %w", fileID, err)}
	}
	if len(doc.Content) == 0 {
		return nil, []error{fmt.Errorf("%s: empty document", fileID)}
	}
	root := doc.Content[0]

	r := &Recipe{FileID: fileID}
	var errs []error

	if ctxNode := mapGet(root, "context"); ctxNode != nil {
		r.Context = map[string]Value[string]{}
		for i := 0; i+1 < len(ctxNode.Content); i += 2 {
			key := ctxNode.Content[i].Value
			val, err := decodeValueNode[string](ctxNode.Content[i+1], fileID)
			if err != nil {
				errs = append(errs, fmt.Errorf("context.%s: %w", key, err))
				continue
			}
			r.Context[key] = val
		}
	}

	if pkgNode := mapGet(root, "package"); pkgNode != nil {
		pkg, perrs := decodePackageSection(pkgNode, fileID)
		errs = append(errs, perrs...)
		r.Package = pkg
	}

	if srcNode := mapGet(root, "source"); srcNode != nil {
		sources, serrs := decodeConditionalList[Source](srcNode, fileID)
		errs = append(errs, serrs...)
		r.Source = sources
	}

	if buildNode := mapGet(root, "build"); buildNode != nil {
		build, berrs := decodeBuild(buildNode, fileID)
		errs = append(errs, berrs...)
		r.Build = build
	}

	if reqNode := mapGet(root, "requirements"); reqNode != nil {
		reqs, rerrs := decodeRequirements(reqNode, fileID)
		errs = append(errs, rerrs...)
		r.Requirements = reqs
	}

	if testsNode := mapGet(root, "tests"); testsNode != nil {
		tests, terrs := decodeConditionalList[TestType](testsNode, fileID)
		errs = append(errs, terrs...)
		r.Tests = tests
	}

	if aboutNode := mapGet(root, "about"); aboutNode != nil {
		about, aerrs := decodeAbout(aboutNode, fileID)
		errs = append(errs, aerrs...)
		r.About = about
	}

	if recipeNode := mapGet(root, "recipe"); recipeNode != nil {
		if n := mapGet(recipeNode, "name"); n != nil {
			v, err := decodeValueNode[string](n, fileID)
			if err != nil {
				errs = append(errs, err)
			}
			r.RecipeName = v
		}
		if n := mapGet(recipeNode, "version"); n != nil {
			v, err := decodeValueNode[string](n, fileID)
			if err != nil {
				errs = append(errs, err)
			}
			r.RecipeVersion = v
		}
	}

	if outputsNode := mapGet(root, "outputs"); outputsNode != nil {
		outputs, oerrs := decodeOutputs(outputsNode, fileID)
		errs = append(errs, oerrs...)
		r.Outputs = outputs
	}

	for _, key := range mapKeys(root) {
		switch key {
		case "context", "package", "source", "build", "requirements", "tests",
			"about", "outputs", "recipe", "schema_version":
		default:
			errs = append(errs, fmt.Errorf("%s: unknown top-level key %q", fileID, key))
		}
	}

	if r.Package == nil && mapGet(root, "outputs") == nil {
		errs = append(errs, errors.New(fileID+": recipe must declare either package: or outputs:"))
	}

	return r, errs
}

func decodePackageSection(node *yaml.Node, fileID string) (*PackageSection, []error) {
	var errs []error
	p := &PackageSection{}
	if n := mapGet(node, "name"); n != nil {
		v, err := decodeValueNode[string](n, fileID)
		if err != nil {
			errs = append(errs, err)
		}
		p.Name = v
	}
	if n := mapGet(node, "version"); n != nil {
		v, err := decodeValueNode[string](n, fileID)
		if err != nil {
			errs = append(errs, err)
		}
		p.Version = v
	}
	return p, errs
}

func decodeBuild(node *yaml.Node, fileID string) (Build, []error) {
	var errs []error
	b := Build{}
	if n := mapGet(node, "number"); n != nil {
		v, err := decodeValueNode[int](n, fileID)
		if err != nil {
			errs = append(errs, err)
		}
		b.Number = v
	}
	if n := mapGet(node, "string"); n != nil {
		v, err := decodeValueNode[string](n, fileID)
		if err != nil {
			errs = append(errs, err)
		}
		b.String = v
	}
	if n := mapGet(node, "noarch"); n != nil {
		v, err := decodeValueNode[string](n, fileID)
		if err != nil {
			errs = append(errs, err)
		}
		b.NoArch = v
	}
	if n := mapGet(node, "script"); n != nil {
		script, serrs := decodeScript(n, fileID)
		errs = append(errs, serrs...)
		b.Script = script
	}
	if n := mapGet(node, "dynamic_linking"); n != nil {
		if rp := mapGet(n, "rpaths"); rp != nil {
			list, lerrs := decodeConditionalList[string](rp, fileID)
			errs = append(errs, lerrs...)
			b.Dynamic.RPaths = list
		}
		if bins := mapGet(n, "binary_relocation"); bins != nil {
			list, lerrs := decodeConditionalList[string](bins, fileID)
			errs = append(errs, lerrs...)
			b.Dynamic.Binaries = list
		}
		if allow := mapGet(n, "missing_dso_allowlist"); allow != nil {
			list, lerrs := decodeConditionalList[string](allow, fileID)
			errs = append(errs, lerrs...)
			b.Dynamic.MissingDSOAllowlist = list
		}
	}
	if n := mapGet(node, "skip"); n != nil {
		list, lerrs := decodeConditionalList[string](n, fileID)
		errs = append(errs, lerrs...)
		b.Skip = list
	}
	if n := mapGet(node, "always_copy_files"); n != nil {
		list, lerrs := decodeConditionalList[string](n, fileID)
		errs = append(errs, lerrs...)
		b.AlwaysCopyFiles = list
	}
	if n := mapGet(node, "always_include_files"); n != nil {
		list, lerrs := decodeConditionalList[string](n, fileID)
		errs = append(errs, lerrs...)
		b.AlwaysIncludeFiles = list
	}
	if n := mapGet(node, "files"); n != nil {
		ie, ierrs := decodeIncludeExclude(n, fileID)
		errs = append(errs, ierrs...)
		b.Files = ie
	}
	if n := mapGet(node, "variant"); n != nil {
		if uk := mapGet(n, "use_keys"); uk != nil {
			list, lerrs := decodeConditionalList[string](uk, fileID)
			errs = append(errs, lerrs...)
			b.Variant.UseKeys = list
		}
		if ik := mapGet(n, "ignore_keys"); ik != nil {
			list, lerrs := decodeConditionalList[string](ik, fileID)
			errs = append(errs, lerrs...)
			b.Variant.IgnoreKeys = list
		}
	}
	if n := mapGet(node, "prefix_detection"); n != nil {
		if ig := mapGet(n, "ignore"); ig != nil {
			list, lerrs := decodeConditionalList[string](ig, fileID)
			errs = append(errs, lerrs...)
			b.PrefixDetection.Ignore = list
		}
		if ib := mapGet(n, "ignore_binary_files"); ib != nil {
			v, err := decodeValueNode[bool](ib, fileID)
			if err != nil {
				errs = append(errs, err)
			}
			b.PrefixDetection.IgnoreBinaryFiles = v
		}
	}
	if n := mapGet(node, "post_process"); n != nil && n.Kind == yaml.SequenceNode {
		for _, entry := range n.Content {
			rw := RegexRewrite{}
			if fn := mapGet(entry, "files"); fn != nil {
				list, lerrs := decodeConditionalList[string](fn, fileID)
				errs = append(errs, lerrs...)
				rw.Files = list
			}
			if rn := mapGet(entry, "regex"); rn != nil {
				v, err := decodeValueNode[string](rn, fileID)
				if err != nil {
					errs = append(errs, err)
				}
				rw.Regex = v
			}
			if rpn := mapGet(entry, "replacement"); rpn != nil {
				v, err := decodeValueNode[string](rpn, fileID)
				if err != nil {
					errs = append(errs, err)
				}
				rw.Replacement = v
			}
			b.PostProcess = append(b.PostProcess, rw)
		}
	}
	if n := mapGet(node, "signing"); n != nil {
		if bn := mapGet(n, "backend"); bn != nil {
			v, err := decodeValueNode[string](bn, fileID)
			if err != nil {
				errs = append(errs, err)
			}
			b.Signing.Backend = v
		}
		if in := mapGet(n, "identity"); in != nil {
			v, err := decodeValueNode[string](in, fileID)
			if err != nil {
				errs = append(errs, err)
			}
			b.Signing.Identity = v
		}
		if en := mapGet(n, "endpoint"); en != nil {
			v, err := decodeValueNode[string](en, fileID)
			if err != nil {
				errs = append(errs, err)
			}
			b.Signing.Endpoint = v
		}
	}
	if n := mapGet(node, "merge_build_and_host_envs"); n != nil {
		v, err := decodeValueNode[bool](n, fileID)
		if err != nil {
			errs = append(errs, err)
		}
		b.MergeBuildAndHostEnvs = v
	}
	return b, errs
}

// decodeIncludeExclude accepts either a bare sequence (shorthand for "all
// of these are includes") or a mapping with include:/exclude: lists.
func decodeIncludeExclude(node *yaml.Node, fileID string) (IncludeExclude[string], []error) {
	var errs []error
	ie := IncludeExclude[string]{}
	if node.Kind == yaml.SequenceNode || node.Kind == yaml.ScalarNode {
		list, lerrs := decodeConditionalList[string](node, fileID)
		errs = append(errs, lerrs...)
		ie.Include = list
		return ie, errs
	}
	if n := mapGet(node, "include"); n != nil {
		list, lerrs := decodeConditionalList[string](n, fileID)
		errs = append(errs, lerrs...)
		ie.Include = list
	}
	if n := mapGet(node, "exclude"); n != nil {
		list, lerrs := decodeConditionalList[string](n, fileID)
		errs = append(errs, lerrs...)
		ie.Exclude = list
	}
	return ie, errs
}

func decodeScript(node *yaml.Node, fileID string) (Script, []error) {
	var errs []error
	s := Script{}
	if node.Kind == yaml.ScalarNode || node.Kind == yaml.SequenceNode {
		if node.Kind == yaml.ScalarNode {
			v, err := decodeValueNode[string](node, fileID)
			if err != nil {
				errs = append(errs, err)
			}
			s.Content = v
			return s, errs
		}
		cmds, cerrs := decodeConditionalList[string](node, fileID)
		errs = append(errs, cerrs...)
		s.Commands = cmds
		return s, errs
	}
	if n := mapGet(node, "content"); n != nil {
		v, err := decodeValueNode[string](n, fileID)
		if err != nil {
			errs = append(errs, err)
		}
		s.Content = v
	}
	if n := mapGet(node, "interpreter"); n != nil {
		v, err := decodeValueNode[string](n, fileID)
		if err != nil {
			errs = append(errs, err)
		}
		s.Interpreter = v
	}
	if n := mapGet(node, "env"); n != nil {
		s.Env = map[string]Value[string]{}
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			v, err := decodeValueNode[string](n.Content[i+1], fileID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			s.Env[key] = v
		}
	}
	if n := mapGet(node, "secrets"); n != nil {
		secrets, serrs := decodeConditionalList[string](n, fileID)
		errs = append(errs, serrs...)
		s.Secrets = secrets
	}
	if n := mapGet(node, "cwd"); n != nil {
		v, err := decodeValueNode[string](n, fileID)
		if err != nil {
			errs = append(errs, err)
		}
		s.Cwd = v
	}
	return s, errs
}

func decodeRequirements(node *yaml.Node, fileID string) (Requirements, []error) {
	var errs []error
	r := Requirements{}
	fields := map[string]*ConditionalList[string]{
		"build":           &r.Build,
		"host":            &r.Host,
		"run":             &r.Run,
		"run_constraints": &r.RunConstraints,
	}
	for key, dst := range fields {
		if n := mapGet(node, key); n != nil {
			list, lerrs := decodeConditionalList[string](n, fileID)
			errs = append(errs, lerrs...)
			*dst = list
		}
	}
	return r, errs
}

func decodeAbout(node *yaml.Node, fileID string) (*About, []error) {
	var errs []error
	a := &About{}
	fields := map[string]*Value[string]{
		"homepage": &a.Homepage,
		"license":  &a.License,
		"summary":  &a.Summary,
	}
	for key, dst := range fields {
		if n := mapGet(node, key); n != nil {
			v, err := decodeValueNode[string](n, fileID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			*dst = v
		}
	}
	return a, errs
}

func decodeOutputs(node *yaml.Node, fileID string) ([]Output, []error) {
	var errs []error
	if node.Kind != yaml.SequenceNode {
		return nil, []error{fmt.Errorf("%s: outputs: must be a sequence", fileID)}
	}
	outputs := make([]Output, 0, len(node.Content))
	for _, child := range node.Content {
		out, oerrs := decodeOutput(child, fileID)
		errs = append(errs, oerrs...)
		outputs = append(outputs, out)
	}
	return outputs, errs
}

// decodeOutput decodes one `outputs:` entry. An entry with a `package:`
// block (or a bare `name:`/`version:` at its top level, the common
// shorthand) is a PackageOutput; one that sets `staging: true` and omits
// a name never produces an archive (spec.md §3's StagingOutput).
func decodeOutput(node *yaml.Node, fileID string) (Output, []error) {
	var errs []error
	out := Output{}

	pkgNode := mapGet(node, "package")
	if pkgNode == nil {
		pkgNode = node // shorthand: name:/version: inline at the output's top level
	}
	if n := mapGet(pkgNode, "name"); n != nil {
		v, err := decodeValueNode[string](n, fileID)
		if err != nil {
			errs = append(errs, err)
		}
		out.Package.Name = v
	}
	if n := mapGet(pkgNode, "version"); n != nil {
		v, err := decodeValueNode[string](n, fileID)
		if err != nil {
			errs = append(errs, err)
		}
		out.Package.Version = v
	}

	if n := mapGet(node, "staging"); n != nil {
		v, err := decodeValueNode[bool](n, fileID)
		if err != nil {
			errs = append(errs, err)
		}
		out.Staging = v.Concrete
	}
	if out.Package.Name.Concrete == "" && !out.Package.Name.IsTemplate() && !out.Staging {
		errs = append(errs, fmt.Errorf("%s: output missing name: PackageOutput requires a name", fileID))
	}

	if n := mapGet(node, "build"); n != nil {
		build, berrs := decodeBuild(n, fileID)
		errs = append(errs, berrs...)
		out.Build = build
	}
	if n := mapGet(node, "requirements"); n != nil {
		reqs, rerrs := decodeRequirements(n, fileID)
		errs = append(errs, rerrs...)
		out.Requirements = reqs
	}
	if n := mapGet(node, "tests"); n != nil {
		tests, terrs := decodeConditionalList[TestType](n, fileID)
		errs = append(errs, terrs...)
		out.Tests = tests
	}
	if n := mapGet(node, "about"); n != nil {
		about, aerrs := decodeAbout(n, fileID)
		errs = append(errs, aerrs...)
		out.About = about
	}
	return out, errs
}

// MergeOutput resolves one PackageOutput against its parent MultiOutput
// recipe's shared fields: a missing version is inherited from
// recipe.version (a missing name is always an error, enforced at parse
// time in decodeOutput); build/requirements/tests are taken from the
// output when set, else fall back to the parent's. about: is neither
// merged nor returned.
func (r *Recipe) MergeOutput(out Output) (PackageSection, Build, Requirements, ConditionalList[TestType]) {
	pkg := out.Package
	if pkg.Version.Concrete == "" && !pkg.Version.IsTemplate() {
		pkg.Version = r.RecipeVersion
	}

	build := out.Build
	if build.Script.Content.Concrete == "" && !build.Script.Content.IsTemplate() && len(build.Script.Commands) == 0 {
		build.Script = r.Build.Script
	}
	if build.NoArch.Concrete == "" && !build.NoArch.IsTemplate() {
		build.NoArch = r.Build.NoArch
	}
	if build.Number.Concrete == 0 {
		build.Number = r.Build.Number
	}
	if build.String.Concrete == "" && !build.String.IsTemplate() {
		build.String = r.Build.String
	}
	if len(build.Skip) == 0 {
		build.Skip = r.Build.Skip
	}
	if len(build.AlwaysCopyFiles) == 0 {
		build.AlwaysCopyFiles = r.Build.AlwaysCopyFiles
	}
	if len(build.AlwaysIncludeFiles) == 0 {
		build.AlwaysIncludeFiles = r.Build.AlwaysIncludeFiles
	}
	if len(build.Files.Include) == 0 && len(build.Files.Exclude) == 0 {
		build.Files = r.Build.Files
	}
	if len(build.Variant.UseKeys) == 0 && len(build.Variant.IgnoreKeys) == 0 {
		build.Variant = r.Build.Variant
	}
	if len(build.PrefixDetection.Ignore) == 0 && !build.PrefixDetection.IgnoreBinaryFiles.Concrete {
		build.PrefixDetection = r.Build.PrefixDetection
	}
	if len(build.PostProcess) == 0 {
		build.PostProcess = r.Build.PostProcess
	}
	if build.Signing.Backend.Concrete == "" && !build.Signing.Backend.IsTemplate() {
		build.Signing = r.Build.Signing
	}
	if !build.MergeBuildAndHostEnvs.Concrete && !build.MergeBuildAndHostEnvs.IsTemplate() {
		build.MergeBuildAndHostEnvs = r.Build.MergeBuildAndHostEnvs
	}

	reqs := out.Requirements
	if len(reqs.Build) == 0 {
		reqs.Build = r.Requirements.Build
	}
	if len(reqs.Host) == 0 {
		reqs.Host = r.Requirements.Host
	}
	if len(reqs.Run) == 0 {
		reqs.Run = r.Requirements.Run
	}
	if len(reqs.RunConstraints) == 0 {
		reqs.RunConstraints = r.Requirements.RunConstraints
	}

	tests := out.Tests
	if len(tests) == 0 {
		tests = r.Tests
	}

	return pkg, build, reqs, tests
}

// Spans returns the spans of the recipe's package name and version.
// Spans of other fields (build, requirements, outputs, ...) are not
// collected.
func (r *Recipe) Spans() []span.Span {
	var out []span.Span
	if r.Package != nil {
		out = append(out, r.Package.Name.Span, r.Package.Version.Span)
	}
	return out
}
