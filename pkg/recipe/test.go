package recipe

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// TestKind discriminates the test-type union in the `tests:` list.
type TestKind int

const (
	TestPython TestKind = iota
	TestPerl
	TestR
	TestRuby
	TestCommands
	TestPackageContents
	TestDownstream
)

// TestType is the stage-0 shape of one entry under `tests:`. Exactly one
// of the per-kind fields is populated, selected by Kind; pkg/recipetest
// evaluates the selected one at test-run time.
type TestType struct {
	Kind TestKind

	Python           PythonTest
	Perl             InterpreterTest
	R                InterpreterTest
	Ruby             InterpreterTest
	Commands         CommandsTest
	PackageContents  PackageContentsTest
	Downstream       DownstreamTest
}

// PythonTest imports a list of modules and optionally runs `pip check`.
type PythonTest struct {
	Imports       ConditionalList[string]
	PipCheck      Value[bool] `yaml:"pip_check"`
	PythonVersion PythonVersion `yaml:"python_version"`
}

// PythonVersionKind discriminates PythonVersion's three YAML shapes: a
// bare scalar, a sequence, or the field being absent entirely.
type PythonVersionKind int

const (
	// PythonVersionNone is the default (field absent): the test runs once
	// without pinning python to any particular version.
	PythonVersionNone PythonVersionKind = iota
	// PythonVersionSingle pins one explicit python version.
	PythonVersionSingle
	// PythonVersionMultiple repeats the test once per listed version.
	PythonVersionMultiple
)

// PythonVersion is `tests[].python.python_version`: `3.11`, `["3.10",
// "3.11"]`, or omitted.
type PythonVersion struct {
	Kind     PythonVersionKind
	Single   string
	Multiple []string
}

// UnmarshalYAML decodes a scalar into Single or a sequence into Multiple.
func (v *PythonVersion) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		v.Kind = PythonVersionSingle
		return node.Decode(&v.Single)
	case yaml.SequenceNode:
		v.Kind = PythonVersionMultiple
		return node.Decode(&v.Multiple)
	default:
		return fmt.Errorf("recipe: python_version must be a scalar or a sequence, got %v", node.Kind)
	}
}

// Versions returns the python version strings a test harness should
// iterate: one empty string for PythonVersionNone (run unpinned once),
// the single pinned version for PythonVersionSingle, or each listed
// version in turn for PythonVersionMultiple.
func (v PythonVersion) Versions() []string {
	switch v.Kind {
	case PythonVersionSingle:
		return []string{v.Single}
	case PythonVersionMultiple:
		return append([]string(nil), v.Multiple...)
	default:
		return []string{""}
	}
}

// InterpreterTest runs a script through perl/R/ruby after installing any
// extra-dependency list.
type InterpreterTest struct {
	Script ConditionalList[string]
	Extra  ConditionalList[string]
}

// CommandsTest runs arbitrary shell commands in a freshly solved prefix.
type CommandsTest struct {
	Script       ConditionalList[string]
	Requirements Requirements
	Files        IncludeExclude[string]
}

// PackageContentsTest asserts the built package contains (or excludes)
// certain files or libraries, matched by path, without installing it.
// All checks are matched against the built archive's info/paths.json, not
// a live filesystem.
type PackageContentsTest struct {
	Files     IncludeExclude[string]
	SiteFiles IncludeExclude[string] `yaml:"site_packages"`
	Libs      IncludeExclude[string] `yaml:"lib"`
	// Bin matches patterns against paths under bin/ (a pattern already
	// starting with bin/ is used as written). The root is the same on every
	// platform; Windows directories such as Library/bin are not searched.
	Bin IncludeExclude[string] `yaml:"bin"`
	// Include matches patterns against paths under include/ (a pattern
	// already starting with include/ is used as written).
	Include IncludeExclude[string] `yaml:"include"`
	// Strict additionally fails the test if the package contains any path
	// that no include pattern (across Files/SiteFiles/Libs/Bin/Include)
	// matched, catching accidental extra files as well as missing ones.
	Strict Value[bool] `yaml:"strict"`
}

// DownstreamTest builds a named downstream package against this one to
// catch ABI breaks before publishing.
type DownstreamTest struct {
	Downstream Value[string]
}

// UnmarshalYAML lets decodeValueNode[TestType] (via node.Decode) dispatch
// on the mapping's single top-level key, matching the recipe schema's
// `- python: {...}` / `- script: [...]` shape for each tests: entry.
func (t *TestType) UnmarshalYAML(node *yaml.Node) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		switch key {
		case "python":
			t.Kind = TestPython
			return decodeInto(val, &t.Python)
		case "perl":
			t.Kind = TestPerl
			return decodeInto(val, &t.Perl)
		case "r":
			t.Kind = TestR
			return decodeInto(val, &t.R)
		case "ruby":
			t.Kind = TestRuby
			return decodeInto(val, &t.Ruby)
		case "script":
			t.Kind = TestCommands
			return decodeInto(node, &t.Commands)
		case "package_contents":
			t.Kind = TestPackageContents
			return decodeInto(val, &t.PackageContents)
		case "downstream":
			t.Kind = TestDownstream
			return val.Decode(&t.Downstream.Downstream.Concrete)
		}
	}
	return nil
}

func decodeInto(node *yaml.Node, dst any) error {
	return node.Decode(dst)
}
