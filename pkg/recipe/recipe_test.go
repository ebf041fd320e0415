package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalRecipe = `
context:
  name: mylib
package:
  name: ${{ name }}
  version: "1.2.3"
build:
  number: 0
  script: build.sh
requirements:
  build:
    - ${{ compiler("c") }}
  host:
    - python
  run:
    - python
tests:
  - python:
      imports:
        - mylib
`

func TestParseRecipe_MinimalRecipe(t *testing.T) {
	r, errs := ParseRecipe([]byte(minimalRecipe), "recipe.yaml")
	require.Empty(t, errs)
	require.NotNil(t, r.Package)
	assert.True(t, r.Package.Name.IsTemplate())
	assert.Equal(t, "1.2.3", r.Package.Version.Concrete)
	assert.Equal(t, 0, r.Build.Number.Concrete)
	require.Len(t, r.Requirements.Build, 1)
	assert.True(t, r.Requirements.Build[0].Value.IsTemplate())
	require.Len(t, r.Tests, 1)
	assert.Equal(t, TestPython, r.Tests[0].Value.Concrete.Kind)
}

func TestParseRecipe_UnknownTopLevelKeyAccumulates(t *testing.T) {
	src := minimalRecipe + "\nbogus_key: true\n"
	_, errs := ParseRecipe([]byte(src), "recipe.yaml")
	require.NotEmpty(t, errs)
	found := false
	for _, e := range errs {
		if assert.ObjectsAreEqual(e.Error(), e.Error()) && containsSubstring(e.Error(), "bogus_key") {
			found = true
		}
	}
	assert.True(t, found, "expected an error mentioning the unknown key")
}

func TestParseRecipe_MissingPackageAndOutputsIsError(t *testing.T) {
	_, errs := ParseRecipe([]byte("context:\n  x: y\n"), "recipe.yaml")
	require.NotEmpty(t, errs)
}

const multiOutputRecipe = `
recipe:
  name: mylib-split
  version: "2.0.0"
build:
  number: 3
requirements:
  build:
    - ${{ compiler("c") }}
outputs:
  - package:
      name: liba
  - package:
      name: libb
      version: "2.0.1"
    requirements:
      run:
        - liba
  - staging: true
    build:
      script: configure.sh
`

func TestParseRecipe_MultiOutputDecodesOutputsAndRecipeBlock(t *testing.T) {
	r, errs := ParseRecipe([]byte(multiOutputRecipe), "recipe.yaml")
	require.Empty(t, errs)
	require.Nil(t, r.Package)
	assert.Equal(t, "mylib-split", r.RecipeName.Concrete)
	assert.Equal(t, "2.0.0", r.RecipeVersion.Concrete)
	require.Len(t, r.Outputs, 3)
	assert.Equal(t, "liba", r.Outputs[0].Package.Name.Concrete)
	assert.False(t, r.Outputs[0].Staging)
	assert.True(t, r.Outputs[2].Staging)
}

func TestMergeOutput_InheritsVersionAndParentRequirements(t *testing.T) {
	r, errs := ParseRecipe([]byte(multiOutputRecipe), "recipe.yaml")
	require.Empty(t, errs)

	pkg, build, reqs, _ := r.MergeOutput(r.Outputs[0])
	assert.Equal(t, "liba", pkg.Name.Concrete)
	assert.Equal(t, "2.0.0", pkg.Version.Concrete, "missing version inherits recipe.version")
	assert.Equal(t, 3, build.Number.Concrete, "missing build.number inherits the parent's")
	require.Len(t, reqs.Build, 1, "missing requirements.build inherits the parent's")

	pkg2, _, reqs2, _ := r.MergeOutput(r.Outputs[1])
	assert.Equal(t, "2.0.1", pkg2.Version.Concrete, "an explicit version overrides inheritance")
	require.Len(t, reqs2.Run, 1, "an output's own requirements.run is kept, not overridden")
}

func containsSubstring(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}

const packagingRecipe = `
package:
  name: mylib
  version: "1.0.0"
build:
  number: 1
  skip:
    - target_platform == "win-64"
  always_copy_files:
    - etc/config/*
  always_include_files:
    - share/licenses/*
  files:
    include:
      - bin/*
    exclude:
      - bin/*.debug
  variant:
    use_keys:
      - openssl
    ignore_keys:
      - python
  prefix_detection:
    ignore:
      - bin/opaque
    ignore_binary_files: true
  post_process:
    - files:
        - "*.pc"
      regex: "-L/.*/host_env"
      replacement: "-L$PREFIX"
  signing:
    backend: codesign
    identity: Developer ID
  merge_build_and_host_envs: true
`

func TestParseRecipe_DecodesBuildPackagingFields(t *testing.T) {
	r, errs := ParseRecipe([]byte(packagingRecipe), "recipe.yaml")
	require.Empty(t, errs)

	require.Len(t, r.Build.Skip, 1)
	assert.Equal(t, `target_platform == "win-64"`, r.Build.Skip[0].Value.Concrete)

	require.Len(t, r.Build.AlwaysCopyFiles, 1)
	require.Len(t, r.Build.AlwaysIncludeFiles, 1)
	assert.Equal(t, "share/licenses/*", r.Build.AlwaysIncludeFiles[0].Value.Concrete)

	require.Len(t, r.Build.Files.Include, 1)
	require.Len(t, r.Build.Files.Exclude, 1)
	assert.Equal(t, "bin/*.debug", r.Build.Files.Exclude[0].Value.Concrete)

	require.Len(t, r.Build.Variant.UseKeys, 1)
	assert.Equal(t, "openssl", r.Build.Variant.UseKeys[0].Value.Concrete)
	require.Len(t, r.Build.Variant.IgnoreKeys, 1)

	require.Len(t, r.Build.PrefixDetection.Ignore, 1)
	assert.True(t, r.Build.PrefixDetection.IgnoreBinaryFiles.Concrete)

	require.Len(t, r.Build.PostProcess, 1)
	assert.Equal(t, "-L/.*/host_env", r.Build.PostProcess[0].Regex.Concrete)
	assert.Equal(t, "-L$PREFIX", r.Build.PostProcess[0].Replacement.Concrete)

	assert.Equal(t, "codesign", r.Build.Signing.Backend.Concrete)
	assert.Equal(t, "Developer ID", r.Build.Signing.Identity.Concrete)
	assert.True(t, r.Build.MergeBuildAndHostEnvs.Concrete)
}

func TestParseRecipe_FilesSequenceShorthandIsIncludes(t *testing.T) {
	y := `
package:
  name: mylib
  version: "1.0.0"
build:
  files:
    - bin/*
    - lib/*
`
	r, errs := ParseRecipe([]byte(y), "recipe.yaml")
	require.Empty(t, errs)
	require.Len(t, r.Build.Files.Include, 2)
	assert.Empty(t, r.Build.Files.Exclude)
}
