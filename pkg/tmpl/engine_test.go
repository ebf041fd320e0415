package tmpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Literal(t *testing.T) {
	ctx := NewContext()
	out, err := Render("no substitutions here", ctx)
	require.NoError(t, err)
	assert.Equal(t, "no substitutions here", out)
}

func TestRender_SimpleSubstitution(t *testing.T) {
	ctx := NewContext().Set("python", "3.11")
	out, err := Render("py${{ python }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "py3.11", out)
}

func TestRender_UndefinedVariableIsHardError(t *testing.T) {
	ctx := NewContext()
	_, err := Render("${{ missing }}", ctx)
	require.Error(t, err)
	assert.ErrorAs(t, err, new(*ErrUndefinedVariable))
}

func TestRender_DefaultFallbackForMissingVariable(t *testing.T) {
	ctx := NewContext()
	out, err := Render(`${{ name | default("fallback") }}`, ctx)
	require.NoError(t, err)
	assert.Equal(t, "fallback", out)
}

func TestRender_DefaultWithPresentVariable(t *testing.T) {
	ctx := NewContext().Set("name", "actual")
	out, err := Render(`${{ name | default("fallback") }}`, ctx)
	require.NoError(t, err)
	assert.Equal(t, "actual", out)
}

func TestRender_ConditionalExpression(t *testing.T) {
	ctx := NewContext().Set("unix", true).Set("python", "3.11").Set("numpy", "1.26")
	out, err := Render(`${{ "Python " ~ python if unix else "NumPy " ~ numpy }}`, ctx)
	require.NoError(t, err)
	assert.Equal(t, "Python 3.11", out)
}

func TestRender_Compiler(t *testing.T) {
	ctx := NewContext().Set("c_compiler", "gcc").Set("c_compiler_version", "12")
	out, err := Render(`${{ compiler("c") }}`, ctx)
	require.NoError(t, err)
	assert.Equal(t, "gcc 12", out)
}

func TestEvalBool_SimpleCondition(t *testing.T) {
	ctx := NewContext().Set("target_platform", "linux-64")
	ok, err := EvalBool(`target_platform == "linux-64"`, ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvalBool_NonBooleanResultIsError(t *testing.T) {
	ctx := NewContext().Set("x", 1)
	_, err := EvalBool(`x`, ctx)
	require.Error(t, err)
}

func TestHasTemplate(t *testing.T) {
	assert.True(t, HasTemplate("${{ foo }}"))
	assert.False(t, HasTemplate("plain string"))
}
