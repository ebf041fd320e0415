package script

import (
	"os"
	"strconv"
	"strings"

	"github.com/condaforge/rbcore/pkg/buildconfig"
)

// languageVariantKeys are variant keys whose value is carried by the
// solved environment itself (the installed python/perl/r/... package),
// not by an environment variable handed to the build script.
var languageVariantKeys = map[string]bool{
	"perl":   true,
	"lua":    true,
	"r":      true,
	"numpy":  true,
	"python": true,
	"ruby":   true,
	"nodejs": true,
}

// BuildEnv assembles the full child environment for a build script: the
// OS environment, the fixed per-build variables every script can rely on
// (PREFIX, SRC_DIR, PKG_NAME, ...), one upper-cased variable per
// non-language variant key, the recipe's own script.env entries, and the
// host-leaked secret values. Later layers override earlier ones, so a
// recipe's script.env can shadow a variant-derived variable but not the
// other way around.
func BuildEnv(bc *buildconfig.BuildConfiguration, scriptEnv map[string]string, secrets map[string]string) map[string]string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	env["PREFIX"] = bc.Directories.PrefixDir
	env["BUILD_PREFIX"] = bc.Directories.BuildDir
	env["SRC_DIR"] = bc.Directories.WorkDir
	env["RECIPE_DIR"] = bc.Directories.RecipeDir
	env["PKG_NAME"] = bc.Name
	env["PKG_VERSION"] = bc.Version
	env["PKG_BUILD_NUMBER"] = strconv.Itoa(bc.BuildNumber)
	env["PKG_BUILD_STRING"] = bc.BuildString
	env["PKG_HASH"] = bc.Hash
	env["TARGET_PLATFORM"] = bc.TargetPlatform
	env["HOST_PLATFORM"] = bc.HostPlatform
	env["BUILD_PLATFORM"] = bc.BuildPlatform

	for k, v := range bc.UsedVariant {
		if languageVariantKeys[strings.ToLower(k)] {
			continue
		}
		env[strings.ToUpper(k)] = v
	}

	for k, v := range scriptEnv {
		env[k] = v
	}
	for k, v := range secrets {
		env[k] = v
	}
	return env
}

// HostSecrets resolves a recipe's build.script.secrets list (names of
// host environment variables to leak into the child) against the current
// process environment. A named secret missing from the host environment
// is leaked as empty rather than failing the build; the redactor skips
// empty values anyway.
func HostSecrets(names []string) map[string]string {
	out := make(map[string]string, len(names))
	for _, name := range names {
		out[name] = os.Getenv(name)
	}
	return out
}
