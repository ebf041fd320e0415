package postprocess

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat_RecognizesMagicBytes(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name   string
		header []byte
		want   BinaryFormat
	}{
		{"elf", []byte{0x7f, 'E', 'L', 'F', 0, 0}, FormatELF},
		{"macho64", []byte{0xcf, 0xfa, 0xed, 0xfe, 0, 0}, FormatMachO},
		{"pe", []byte{'M', 'Z', 0x90, 0x00, 0, 0}, FormatPE},
		{"text", []byte("#!/bin/sh\n"), FormatUnknown},
	}
	for _, tc := range cases {
		path := filepath.Join(dir, tc.name)
		require.NoError(t, os.WriteFile(path, tc.header, 0o644))
		got, err := DetectFormat(path)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.name)
	}
}

func TestRelink_SkipsNonBinaryFiles(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "activate.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho hi\n"), 0o755))

	relinked, err := Relink(context.Background(), []string{script}, RelinkConfig{})
	require.NoError(t, err)
	assert.Empty(t, relinked)
}

func TestDSOAllowed_MatchesRecipeAndDefaultAllowlists(t *testing.T) {
	cfg := RelinkConfig{MissingDSOAllowlist: []string{"libcuda.so*"}}

	assert.True(t, dsoAllowed("libcuda.so.1", cfg), "recipe allowlist glob")
	assert.True(t, dsoAllowed("libc.so.6", cfg), "default system allowlist")
	assert.True(t, dsoAllowed("KERNEL32.DLL", cfg), "case-insensitive DLL match")
	assert.True(t, dsoAllowed("/usr/lib/libSystem.B.dylib", cfg), "absolute macOS system path")
	assert.False(t, dsoAllowed("libssl.so.3", cfg))
}

func TestDSOInPrefix_FindsLibraryUnderPrefixLibDirs(t *testing.T) {
	prefix := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(prefix, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(prefix, "lib", "libssl.so.3"), []byte{0}, 0o644))

	cfg := RelinkConfig{PrefixDir: prefix}
	assert.True(t, dsoInPrefix("libssl.so.3", cfg))
	assert.True(t, dsoInPrefix("/some/other/root/libssl.so.3", cfg), "resolved by basename")
	assert.False(t, dsoInPrefix("libcrypto.so.3", cfg))
}

func TestCheckNeeded_ReportsOnlyUnresolvedLibraries(t *testing.T) {
	prefix := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(prefix, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(prefix, "lib", "libfoo.so.1"), []byte{0}, 0o644))

	cfg := RelinkConfig{PrefixDir: prefix, MissingDSOAllowlist: []string{"libbar.so*"}}
	err := checkNeeded("/out/bin/tool", []string{"libfoo.so.1", "libbar.so.2", "libc.so.6", "libmissing.so.9"}, cfg)

	var missingErr *MissingDSOError
	require.ErrorAs(t, err, &missingErr)
	assert.Equal(t, "/out/bin/tool", missingErr.Binary)
	assert.Equal(t, []string{"libmissing.so.9"}, missingErr.Missing)
}

func TestCheckNeeded_NoErrorWhenEverythingResolves(t *testing.T) {
	err := checkNeeded("/out/bin/tool", []string{"libc.so.6", "libm.so.6"}, RelinkConfig{})
	assert.NoError(t, err)
}
