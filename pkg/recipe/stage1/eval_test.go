package stage1

import (
	"testing"

	"github.com/condaforge/rbcore/pkg/recipe"
	"github.com/condaforge/rbcore/pkg/span"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateValue_ConcreteValuePassesThroughWithoutRecording(t *testing.T) {
	ec := NewEvaluationContext(map[string]string{"python": "3.11"}, nil)
	v := recipe.NewConcrete("3.11", span.Span{})
	out, err := EvaluateValue(ec, v)
	require.NoError(t, err)
	assert.Equal(t, "3.11", out)
	assert.Empty(t, ec.UsedVariant())
}

func TestEvaluateValue_TemplateRecordsUsedVariant(t *testing.T) {
	ec := NewEvaluationContext(map[string]string{"python": "3.11"}, nil)
	v := recipe.NewTemplate[string]("py${{ python }}", span.Span{})
	out, err := EvaluateValue(ec, v)
	require.NoError(t, err)
	assert.Equal(t, "py3.11", out)
	assert.Equal(t, map[string]string{"python": "3.11"}, ec.UsedVariant())
}

func TestEvaluateConditionalList_SelectsThenBranch(t *testing.T) {
	ec := NewEvaluationContext(map[string]string{"target_platform": "linux-64"}, nil)
	list := recipe.ConditionalList[string]{
		recipe.ConditionalItem(&recipe.Conditional[string]{
			If:   `target_platform == "linux-64"`,
			Then: recipe.ConditionalList[string]{recipe.PlainItem(recipe.NewConcrete("libgcc", span.Span{}))},
			Else: recipe.ConditionalList[string]{recipe.PlainItem(recipe.NewConcrete("other", span.Span{}))},
		}),
	}
	out, err := EvaluateConditionalList(ec, list)
	require.NoError(t, err)
	assert.Equal(t, []string{"libgcc"}, out)
	assert.Equal(t, "linux-64", ec.UsedVariant()["target_platform"])
}

func TestEvaluateBuildString_TwoPassUsesHashAndBuildNumber(t *testing.T) {
	ec := NewEvaluationContext(nil, nil)
	ec.SetBuildNumber(5)
	build := recipe.Build{String: recipe.NewTemplate[string]("custom_${{ hash }}_${{ build_number }}", span.Span{})}
	out, err := EvaluateBuildString(ec, build, "abc1234")
	require.NoError(t, err)
	assert.Equal(t, "custom_abc1234_5", out)
}

func TestRecordFreeSpecs_BareVariantKeyNamesOnly(t *testing.T) {
	ec := NewEvaluationContext(map[string]string{"r_base": "4.3", "python": "3.11"}, nil)
	recordFreeSpecs(ec, []string{"r-base", "python >=3.9", "numpy", "libfoo"})
	// r-base normalizes onto the r_base key; python carries a version
	// constraint so it is not a free spec; numpy/libfoo aren't variant keys.
	assert.Equal(t, map[string]string{"r_base": "4.3"}, ec.UsedVariant())
}

func TestEvaluateSkip_TruthyExpressionSetsSkipAndRecordsReads(t *testing.T) {
	ec := NewEvaluationContext(map[string]string{"target_platform": "win-64"}, nil)
	list := recipe.ConditionalList[string]{
		recipe.PlainItem(recipe.NewConcrete(`target_platform == "win-64"`, span.Span{})),
	}
	skip, err := evaluateSkip(ec, list)
	require.NoError(t, err)
	assert.True(t, skip)
	assert.Equal(t, "win-64", ec.UsedVariant()["target_platform"])
}
