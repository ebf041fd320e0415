package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func decodePythonVersion(t *testing.T, doc string) PythonVersion {
	t.Helper()
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(doc), &node))
	var v PythonVersion
	require.NoError(t, node.Content[0].Decode(&v))
	return v
}

func TestPythonVersion_ScalarDecodesToSingle(t *testing.T) {
	v := decodePythonVersion(t, `"3.11"`)
	assert.Equal(t, PythonVersionSingle, v.Kind)
	assert.Equal(t, []string{"3.11"}, v.Versions())
}

func TestPythonVersion_SequenceDecodesToMultiple(t *testing.T) {
	v := decodePythonVersion(t, `["3.10", "3.11"]`)
	assert.Equal(t, PythonVersionMultiple, v.Kind)
	assert.Equal(t, []string{"3.10", "3.11"}, v.Versions())
}

func TestPythonVersion_AbsentFieldRunsOnceUnpinned(t *testing.T) {
	var v PythonVersion
	assert.Equal(t, PythonVersionNone, v.Kind)
	assert.Equal(t, []string{""}, v.Versions())
}

func TestParseRecipe_PackageContentsTestDecodesAllCategories(t *testing.T) {
	doc := `
package:
  name: mylib
  version: "1.0.0"
build:
  number: 0
  script: build.sh
tests:
  - package_contents:
      files:
        - share/mylib/*
      bin:
        - mylib
      include:
        include:
          - mylib.h
        exclude:
          - mylib_internal.h
      strict: true
`
	r, errs := ParseRecipe([]byte(doc), "recipe.yaml")
	require.Empty(t, errs)
	require.Len(t, r.Tests, 1)
	pc := r.Tests[0].Value.Concrete.PackageContents
	require.Len(t, pc.Files.Include, 1)
	require.Len(t, pc.Bin.Include, 1)
	assert.Equal(t, "mylib", pc.Bin.Include[0].Value.Concrete)
	require.Len(t, pc.Include.Include, 1)
	require.Len(t, pc.Include.Exclude, 1)
	assert.Equal(t, "mylib_internal.h", pc.Include.Exclude[0].Value.Concrete)
	assert.True(t, pc.Strict.Concrete)
}

func TestParseRecipe_PythonTestDecodesPipCheckAndVersions(t *testing.T) {
	doc := `
package:
  name: mylib
  version: "1.0.0"
build:
  number: 0
  script: build.sh
tests:
  - python:
      imports:
        - mylib
      pip_check: true
      python_version: ["3.10", "3.11"]
`
	r, errs := ParseRecipe([]byte(doc), "recipe.yaml")
	require.Empty(t, errs)
	require.Len(t, r.Tests, 1)
	py := r.Tests[0].Value.Concrete.Python
	assert.True(t, py.PipCheck.Concrete)
	assert.Equal(t, PythonVersionMultiple, py.PythonVersion.Kind)
	assert.Equal(t, []string{"3.10", "3.11"}, py.PythonVersion.Versions())
}
