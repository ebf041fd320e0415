package tmpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsedVarsExpr_DefaultGuardsUnreferencedVariable(t *testing.T) {
	uv, err := UsedVarsExpr(`foo | default("fallback")`)
	require.NoError(t, err)
	assert.Empty(t, uv.Exclusive(), "guarded-only variable must not contribute to used_variant")
	assert.True(t, uv.Guarded["foo"])
}

func TestUsedVarsExpr_DefaultGuardsRootOfMultiFilterChain(t *testing.T) {
	uv, err := UsedVarsExpr(`foo | upper | lower | default("fallback")`)
	require.NoError(t, err)
	assert.Empty(t, uv.Exclusive(), "the chain's root variable must stay guarded through every filter")
	assert.True(t, uv.Guarded["foo"])
	assert.False(t, uv.Unguarded["foo"])
}

func TestUsedVarsExpr_DefaultDoesNotGuardVariableUsedElsewhere(t *testing.T) {
	uv, err := UsedVarsExpr(`bar | default("x") + bar`)
	require.NoError(t, err)
	assert.Contains(t, uv.Exclusive(), "bar")
}

func TestUsedVarsExpr_ConditionalBranches(t *testing.T) {
	uv, err := UsedVarsExpr(`"Python " ~ python if unix else "NumPy " ~ numpy`)
	require.NoError(t, err)
	exclusive := uv.Exclusive()
	assert.Contains(t, exclusive, "unix")
	assert.Contains(t, exclusive, "python")
	assert.Contains(t, exclusive, "numpy")
}

func TestUsedVarsExpr_CompilerExpandsToCompilerFamily(t *testing.T) {
	uv, err := UsedVarsExpr(`compiler("c")`)
	require.NoError(t, err)
	exclusive := uv.Exclusive()
	assert.Contains(t, exclusive, "c_compiler")
	assert.Contains(t, exclusive, "c_compiler_version")
	assert.Contains(t, exclusive, "CONDA_BUILD_SYSROOT")
}

func TestUsedVarsExpr_StdlibExpandsToStdlibFamily(t *testing.T) {
	uv, err := UsedVarsExpr(`stdlib("c")`)
	require.NoError(t, err)
	exclusive := uv.Exclusive()
	assert.Contains(t, exclusive, "c_stdlib")
	assert.Contains(t, exclusive, "c_stdlib_version")
}

func TestUsedVarsExpr_PinSubpackageLiteralContributesNothing(t *testing.T) {
	uv, err := UsedVarsExpr(`pin_subpackage("mylib")`)
	require.NoError(t, err)
	assert.Empty(t, uv.Exclusive())
}

func TestUsedVarsExpr_PinSubpackageVariableContributesItself(t *testing.T) {
	uv, err := UsedVarsExpr(`pin_subpackage(subpkg_name)`)
	require.NoError(t, err)
	assert.Contains(t, uv.Exclusive(), "subpkg_name")
}

func TestUsedVarsExpr_MatchContributesBothArguments(t *testing.T) {
	uv, err := UsedVarsExpr(`match(python, py_spec)`)
	require.NoError(t, err)
	exclusive := uv.Exclusive()
	assert.Contains(t, exclusive, "python")
	assert.Contains(t, exclusive, "py_spec")
}

func TestUsedVarsExpr_CdtAlwaysContributesCdtName(t *testing.T) {
	uv, err := UsedVarsExpr(`cdt("cos7-x86_64")`)
	require.NoError(t, err)
	assert.Contains(t, uv.Exclusive(), "cdt_name")
}

func TestUsedVarsTemplate_UnionsAcrossSegments(t *testing.T) {
	uv, err := UsedVarsTemplate("build ${{ a }} and ${{ b | default('x') }} text")
	require.NoError(t, err)
	exclusive := uv.Exclusive()
	assert.Contains(t, exclusive, "a")
	assert.NotContains(t, exclusive, "b")
}
