package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecretRedactor_ReplacesEveryOccurrence(t *testing.T) {
	r := NewSecretRedactor(map[string]string{"TOKEN": "s3cret"})
	assert.Equal(t, "auth ******** retry ********", r.Redact("auth s3cret retry s3cret"))
}

func TestSecretRedactor_SkipsEmptyValues(t *testing.T) {
	r := NewSecretRedactor(map[string]string{"EMPTY": ""})
	assert.Equal(t, "untouched", r.Redact("untouched"))
}

func TestPrefixRedactor_ReplacesPrefixPathsWithTokens(t *testing.T) {
	r := NewPrefixRedactor("/tmp/b/host_env", "/tmp/b/build", "/tmp/b/work")

	assert.Equal(t, "-I$PREFIX/include", r.Redact("-I/tmp/b/host_env/include"))
	assert.Equal(t, "ar: $BUILD_PREFIX/bin/ar", r.Redact("ar: /tmp/b/build/bin/ar"))
	assert.Equal(t, "compiling $SRC_DIR/main.c", r.Redact("compiling /tmp/b/work/main.c"))
}

func TestPrefixRedactor_HandlesForwardSlashSpellingOfWindowsPaths(t *testing.T) {
	r := NewPrefixRedactor(`C:\b\host_env`, `C:\b\build`, `C:\b\work`)

	assert.Equal(t, "cl $PREFIX\\include", r.Redact(`cl C:\b\host_env\include`))
	assert.Equal(t, "cl $PREFIX/include", r.Redact("cl C:/b/host_env/include"))
}

func TestChainRedactor_AppliesInOrderAndSkipsNil(t *testing.T) {
	chain := ChainRedactor{
		NewPrefixRedactor("/p/host", "", ""),
		nil,
		NewSecretRedactor(map[string]string{"T": "sekrit"}),
	}
	assert.Equal(t, "$PREFIX/bin ********", chain.Redact("/p/host/bin sekrit"))
}
