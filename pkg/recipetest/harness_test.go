package recipetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condaforge/rbcore/pkg/external"
	"github.com/condaforge/rbcore/pkg/recipe"
	"github.com/condaforge/rbcore/pkg/span"
)

func TestPackageUnderTest_MatchSpec(t *testing.T) {
	pkg := PackageUnderTest{Name: "mylib", Version: "1.2.3", BuildString: "h1234_0"}
	assert.Equal(t, "mylib=1.2.3=h1234_0", pkg.matchSpec())
}

func TestInterpPath_UnixUsesBinSubdir(t *testing.T) {
	assert.Equal(t, filepath.Join("/prefix", "bin", "python"), interpPath("/prefix", "python", "linux-64"))
}

func TestInterpPath_WindowsUsesExeSuffixAtRoot(t *testing.T) {
	assert.Equal(t, filepath.Join("prefix", "python.exe"), interpPath("prefix", "python", "win-64"))
}

func TestChannelDir_StripsFileScheme(t *testing.T) {
	assert.Equal(t, "/tmp/channel", channelDir("file:///tmp/channel"))
	assert.Equal(t, "/already/bare", channelDir("/already/bare"))
}

func TestJoinImports(t *testing.T) {
	assert.Equal(t, "numpy, scipy", joinImports([]string{"numpy", "scipy"}))
	assert.Equal(t, "", joinImports(nil))
}

func TestJoinLines(t *testing.T) {
	assert.Equal(t, "a\nb", joinLines([]string{"a", "b"}))
}

func TestConcretePatterns_SkipsTemplatesAndConditionals(t *testing.T) {
	list := recipe.ConditionalList[string]{
		recipe.PlainItem(recipe.NewConcrete("mylib", span.Span{})),
		recipe.PlainItem(recipe.NewTemplate[string]("${{ name }}", span.Span{})),
		recipe.ConditionalItem(&recipe.Conditional[string]{If: "unix"}),
	}
	assert.Equal(t, []string{"mylib"}, concretePatterns(list))
}

type fakeSolver struct {
	lastSpecs []string
	err       error
}

func (f *fakeSolver) Solve(ctx context.Context, specs, channels []string, platform string) ([]external.PackageRecord, error) {
	f.lastSpecs = specs
	if f.err != nil {
		return nil, f.err
	}
	return []external.PackageRecord{{Name: specs[0]}}, nil
}

func TestSolveAndInstall_ErrorsWithoutAnInstaller(t *testing.T) {
	h := &Harness{Solver: &fakeSolver{}, Platform: "linux-64"}
	_, _, err := h.solveAndInstall(context.Background(), []string{"file:///chan"}, []string{"mylib=1.0=h0_0"})
	require.Error(t, err)
}

func TestRunDownstream_RequiresATesterEvenWhenSolverSucceeds(t *testing.T) {
	h := &Harness{Solver: &fakeSolver{}, Platform: "linux-64"}
	outcome := h.runDownstream(context.Background(), []string{"file:///chan"}, recipe.DownstreamTest{
		Downstream: recipe.NewConcrete("downstream-pkg", span.Span{}),
	})
	require.Error(t, outcome.Err)
	assert.False(t, outcome.Passed)
}

func TestRunDownstream_FailsFastWhenTheDownstreamSpecDoesNotSolve(t *testing.T) {
	h := &Harness{Solver: &fakeSolver{err: assert.AnError}, Platform: "linux-64"}
	outcome := h.runDownstream(context.Background(), []string{"file:///chan"}, recipe.DownstreamTest{
		Downstream: recipe.NewConcrete("downstream-pkg", span.Span{}),
	})
	require.Error(t, outcome.Err)
}

type fakeDownstreamTester struct {
	name     string
	channels []string
	passed   bool
	output   string
}

func (f *fakeDownstreamTester) BuildAndTest(ctx context.Context, name string, channels []string, platform string) (bool, string, error) {
	f.name = name
	f.channels = channels
	return f.passed, f.output, nil
}

func TestRunDownstream_DelegatesToConfiguredTester(t *testing.T) {
	tester := &fakeDownstreamTester{passed: true, output: "ok"}
	h := &Harness{Solver: &fakeSolver{}, Downstream: tester, Platform: "linux-64"}
	outcome := h.runDownstream(context.Background(), []string{"file:///chan"}, recipe.DownstreamTest{
		Downstream: recipe.NewConcrete("downstream-pkg", span.Span{}),
	})
	require.NoError(t, outcome.Err)
	assert.True(t, outcome.Passed)
	assert.Equal(t, "downstream-pkg", tester.name)
}
