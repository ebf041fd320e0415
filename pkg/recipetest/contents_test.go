package recipetest

import (
	"archive/tar"
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/condaforge/rbcore/pkg/recipe"
	"github.com/condaforge/rbcore/pkg/span"
)

// writeFakeCondaArchive builds a minimal real .conda archive (a zip
// containing one zstd-compressed info-*.tar.zst member holding
// info/paths.json) under dir, named to match archivePaths' own glob.
func writeFakeCondaArchive(t *testing.T, dir, name, version, buildString, pathsJSON string) {
	t.Helper()

	var tarBuf []byte
	{
		f, err := os.CreateTemp(t.TempDir(), "info-*.tar")
		require.NoError(t, err)
		tw := tar.NewWriter(f)
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: "info/paths.json",
			Mode: 0o644,
			Size: int64(len(pathsJSON)),
		}))
		_, err = tw.Write([]byte(pathsJSON))
		require.NoError(t, err)
		require.NoError(t, tw.Close())
		require.NoError(t, f.Close())
		tarBuf, err = os.ReadFile(f.Name())
		require.NoError(t, err)
	}

	archivePath := filepath.Join(dir, name+"-"+version+"-"+buildString+".conda")
	zf, err := os.Create(archivePath)
	require.NoError(t, err)
	defer zf.Close()

	zw := zip.NewWriter(zf)
	w, err := zw.Create("info-x.tar.zst")
	require.NoError(t, err)
	enc, err := zstd.NewWriter(w)
	require.NoError(t, err)
	_, err = enc.Write(tarBuf)
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, zw.Close())
}

func TestArchivePaths_ReadsPathsFromBuiltArchive(t *testing.T) {
	channelDir := t.TempDir()
	subdir := filepath.Join(channelDir, "linux-64")
	require.NoError(t, os.MkdirAll(subdir, 0o755))

	writeFakeCondaArchive(t, subdir, "mylib", "1.2.3", "h1234_0", `{
		"paths": [
			{"_path": "bin/mylib"},
			{"_path": "lib/libmylib.so"},
			{"_path": "share/mylib/data.txt"}
		]
	}`)

	pkg := PackageUnderTest{Name: "mylib", Version: "1.2.3", BuildString: "h1234_0"}
	paths, err := archivePaths(channelDir, "linux-64", pkg)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"bin/mylib", "lib/libmylib.so", "share/mylib/data.txt"}, paths)
}

func TestArchivePaths_NoMatchingArchiveIsAnError(t *testing.T) {
	channelDir := t.TempDir()
	pkg := PackageUnderTest{Name: "mylib", Version: "1.2.3", BuildString: "h1234_0"}
	_, err := archivePaths(channelDir, "linux-64", pkg)
	require.Error(t, err)
}

func includeExclude(include, exclude []string) recipe.IncludeExclude[string] {
	return recipe.IncludeExclude[string]{
		Include: plainItems(include),
		Exclude: plainItems(exclude),
	}
}

func plainItems(ss []string) recipe.ConditionalList[string] {
	out := make(recipe.ConditionalList[string], 0, len(ss))
	for _, s := range ss {
		out = append(out, recipe.PlainItem(recipe.NewConcrete(s, span.Span{})))
	}
	return out
}

func TestCheckPackageContents_MissingPatternIsReported(t *testing.T) {
	spec := recipe.PackageContentsTest{
		Bin: includeExclude([]string{"mylib", "missing-tool"}, nil),
	}
	result := checkPackageContents(spec, []string{"bin/mylib"})
	require.Equal(t, []string{"missing-tool"}, result.Missing)
	require.False(t, result.ok())
}

func TestCheckPackageContents_ExcludePatternWinsOverInclude(t *testing.T) {
	spec := recipe.PackageContentsTest{
		Include: includeExclude([]string{"include/*.h"}, []string{"include/internal.h"}),
	}
	result := checkPackageContents(spec, []string{"include/public.h", "include/internal.h"})
	require.True(t, result.ok())
}

func TestCheckPackageContents_StrictFlagsUncoveredPaths(t *testing.T) {
	spec := recipe.PackageContentsTest{
		Bin:    includeExclude([]string{"mylib"}, nil),
		Strict: recipe.NewConcrete(true, span.Span{}),
	}
	result := checkPackageContents(spec, []string{"bin/mylib", "share/mylib/extra.dat"})
	require.Equal(t, []string{"share/mylib/extra.dat"}, result.Unmatched)
	require.False(t, result.ok())
}

func TestCheckPackageContents_NonStrictIgnoresUncoveredPaths(t *testing.T) {
	spec := recipe.PackageContentsTest{
		Bin: includeExclude([]string{"mylib"}, nil),
	}
	result := checkPackageContents(spec, []string{"bin/mylib", "share/mylib/extra.dat"})
	require.True(t, result.ok())
}
