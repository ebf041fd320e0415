package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condaforge/rbcore/pkg/buildconfig"
)

func testBuildConfig(t *testing.T) *buildconfig.BuildConfiguration {
	t.Helper()
	bc, err := buildconfig.New(
		"mylib", "1.2.3", "py311h48b7412_5", 5,
		map[string]string{"target_platform": "linux-64", "python": "3.11", "openssl": "3.1"},
		t.TempDir(),
		buildconfig.WithPlatforms("linux-64", "linux-64", "linux-64"),
		buildconfig.WithHash("48b7412"),
	)
	require.NoError(t, err)
	return bc
}

func TestBuildEnv_SetsFixedPackageVariables(t *testing.T) {
	bc := testBuildConfig(t)
	env := BuildEnv(bc, nil, nil)

	assert.Equal(t, bc.Directories.PrefixDir, env["PREFIX"])
	assert.Equal(t, bc.Directories.BuildDir, env["BUILD_PREFIX"])
	assert.Equal(t, bc.Directories.WorkDir, env["SRC_DIR"])
	assert.Equal(t, "mylib", env["PKG_NAME"])
	assert.Equal(t, "1.2.3", env["PKG_VERSION"])
	assert.Equal(t, "5", env["PKG_BUILD_NUMBER"])
	assert.Equal(t, "py311h48b7412_5", env["PKG_BUILD_STRING"])
	assert.Equal(t, "48b7412", env["PKG_HASH"])
	assert.Equal(t, "linux-64", env["TARGET_PLATFORM"])
}

func TestBuildEnv_ExportsNonLanguageVariantKeysUppercased(t *testing.T) {
	bc := testBuildConfig(t)
	env := BuildEnv(bc, nil, nil)

	assert.Equal(t, "3.1", env["OPENSSL"])
	_, hasPython := env["PYTHON"]
	assert.False(t, hasPython, "language variant keys must not become env vars")
}

func TestBuildEnv_ScriptEnvOverridesVariantDerived(t *testing.T) {
	bc := testBuildConfig(t)
	env := BuildEnv(bc, map[string]string{"OPENSSL": "pinned", "EXTRA": "1"}, nil)

	assert.Equal(t, "pinned", env["OPENSSL"])
	assert.Equal(t, "1", env["EXTRA"])
}

func TestBuildEnv_IncludesOSEnvironmentAndSecrets(t *testing.T) {
	t.Setenv("SOME_HOST_VAR", "host-value")
	bc := testBuildConfig(t)
	env := BuildEnv(bc, nil, map[string]string{"API_TOKEN": "hunter2"})

	assert.Equal(t, "host-value", env["SOME_HOST_VAR"])
	assert.Equal(t, "hunter2", env["API_TOKEN"])
}

func TestHostSecrets_ResolvesNamesAgainstHostEnvironment(t *testing.T) {
	t.Setenv("LEAKED_TOKEN", "tok-123")
	secrets := HostSecrets([]string{"LEAKED_TOKEN", "NOT_SET_ANYWHERE"})

	assert.Equal(t, "tok-123", secrets["LEAKED_TOKEN"])
	assert.Equal(t, "", secrets["NOT_SET_ANYWHERE"])
}
