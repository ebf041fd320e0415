// Package archive extracts the package and source archive formats this
// core has to read: the .conda format (a zip of zstd-compressed tarballs),
// legacy .tar.bz2 packages, and .tar.xz/.tar.gz source tarballs. It never
// writes archives — pkg/external.Packer owns that — it only unpacks them
// far enough for pkg/rebuild to read an embedded recipe or for a
// SourceFetcher to materialize a tarball source into a work directory.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Kind identifies which container format an archive path uses.
type Kind int

const (
	KindUnknown Kind = iota
	KindConda        // .conda: zip of zstd-compressed "pkg-*.tar.zst"/"info-*.tar.zst" members
	KindCondaBz2     // .tar.bz2: legacy plain bzip2-compressed tar
	KindTarXZ
	KindTarGZ
)

// DetectKind classifies an archive by its file extension. The .conda
// format has no reliable magic-byte signature of its own (it is a
// standard zip file), so extension is the only signal rattler-build
// itself uses too.
func DetectKind(path string) Kind {
	switch {
	case strings.HasSuffix(path, ".conda"):
		return KindConda
	case strings.HasSuffix(path, ".tar.bz2"):
		return KindCondaBz2
	case strings.HasSuffix(path, ".tar.xz"):
		return KindTarXZ
	case strings.HasSuffix(path, ".tar.gz"), strings.HasSuffix(path, ".tgz"):
		return KindTarGZ
	default:
		return KindUnknown
	}
}

// ExtractInfo returns every regular file under info/ in a .conda or
// .tar.bz2 package, keyed by its archive path (e.g. "info/paths.json"),
// without extracting the rest of the archive. pkg/rebuild uses it to
// recover the recipe that produced a built package.
func ExtractInfo(path string) (map[string][]byte, error) {
	switch DetectKind(path) {
	case KindConda:
		return extractCondaInfo(path)
	case KindCondaBz2:
		return extractTarInfo(bzip2NewReaderFile, path)
	default:
		return nil, fmt.Errorf("archive: %s is not a recognized package format", path)
	}
}

func bzip2NewReaderFile(f *os.File) (io.Reader, error) {
	return bzip2.NewReader(f), nil
}

// extractCondaInfo opens the outer zip and streams every "info-*.tar.zst"
// member through zstd, collecting files under info/.
func extractCondaInfo(path string) (map[string][]byte, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("archive: opening %s: %w", path, err)
	}
	defer zr.Close()

	out := map[string][]byte{}
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "info-") || !strings.HasSuffix(f.Name, ".tar.zst") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("archive: opening member %s: %w", f.Name, err)
		}
		dec, err := zstd.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("archive: zstd-decoding %s: %w", f.Name, err)
		}
		if err := collectTar(dec.IOReadCloser(), out); err != nil {
			dec.Close()
			rc.Close()
			return nil, err
		}
		dec.Close()
		rc.Close()
	}
	return out, nil
}

func extractTarInfo(wrap func(*os.File) (io.Reader, error), path string) (map[string][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: opening %s: %w", path, err)
	}
	defer f.Close()

	r, err := wrap(f)
	if err != nil {
		return nil, err
	}
	out := map[string][]byte{}
	if err := collectTar(io.NopCloser(r), out); err != nil {
		return nil, err
	}
	return out, nil
}

func collectTar(r io.ReadCloser, out map[string][]byte) error {
	defer r.Close()
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("archive: reading tar entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || !strings.HasPrefix(hdr.Name, "info/") {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return fmt.Errorf("archive: reading %s: %w", hdr.Name, err)
		}
		out[hdr.Name] = data
	}
}

// ExtractSource unpacks a source tarball (.tar.xz/.tar.gz) into destDir,
// used by a SourceFetcher implementation when a recipe.Source resolves to
// a local or downloaded tarball rather than a git checkout.
func ExtractSource(path, destDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archive: opening %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader
	switch DetectKind(path) {
	case KindTarXZ:
		xr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("archive: xz-decoding %s: %w", path, err)
		}
		r = xr
	case KindTarGZ:
		gr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("archive: gzip-decoding %s: %w", path, err)
		}
		defer gr.Close()
		r = gr
	default:
		return fmt.Errorf("archive: %s is not a recognized source archive", path)
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("archive: reading tar entry: %w", err)
		}
		target := filepath.Join(destDir, filepath.Clean(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive: tar entry %s escapes destination", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}
