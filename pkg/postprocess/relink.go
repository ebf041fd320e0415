package postprocess

import (
	"bytes"
	"context"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// RelinkConfig carries the rpaths, allowlists, and prefix that govern how
// a binary's dynamic-library dependencies are checked after a build.
// No relinker reads RPaths, and no binary is rewritten.
type RelinkConfig struct {
	RPaths              []string
	MissingDSOAllowlist []string
	// PrefixDir is the host prefix the built binaries link against; a
	// needed DSO found under it counts as resolved.
	PrefixDir string
}

var (
	elfMagic   = []byte{0x7f, 'E', 'L', 'F'}
	machoMagic = [][]byte{
		{0xfe, 0xed, 0xfa, 0xce}, {0xce, 0xfa, 0xed, 0xfe},
		{0xfe, 0xed, 0xfa, 0xcf}, {0xcf, 0xfa, 0xed, 0xfe},
		{0xca, 0xfe, 0xba, 0xbe},
	}
	peMagic = []byte{'M', 'Z'}
)

// DetectFormat sniffs the first bytes of a file to identify its binary
// format, rather than trusting its extension.
func DetectFormat(path string) (BinaryFormat, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("postprocess: opening %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, 4)
	n, err := f.Read(header)
	if err != nil || n < 4 {
		return FormatUnknown, nil
	}
	if bytes.Equal(header, elfMagic) {
		return FormatELF, nil
	}
	for _, magic := range machoMagic {
		if bytes.Equal(header, magic) {
			return FormatMachO, nil
		}
	}
	if bytes.Equal(header[:2], peMagic) {
		return FormatPE, nil
	}
	return FormatUnknown, nil
}

// MissingDSOError reports the dynamic libraries a relinked binary needs
// that were neither found in the build prefix nor covered by the
// missing_dso_allowlist.
type MissingDSOError struct {
	Binary  string
	Missing []string
}

func (e *MissingDSOError) Error() string {
	return fmt.Sprintf("postprocess: %s needs libraries not in the prefix or allowlist: %s",
		e.Binary, strings.Join(e.Missing, ", "))
}

// Relinker reads and checks one binary's library dependency list; it does
// not rewrite RPATHs, install names or import tables.
// The format-specific logic is behind a strategy so new formats can be
// added without touching Relink's orchestration.
type Relinker interface {
	Relink(path string, cfg RelinkConfig) error
}

// Relink walks files, detects each one's binary format, and checks the
// dependencies of the ones this core recognizes (ELF, Mach-O, PE) without
// modifying them; non-binary files and
// unrecognized formats are skipped silently, matching the teacher's
// "best effort over a tree of arbitrary output files" posture.
func Relink(ctx context.Context, files []string, cfg RelinkConfig) ([]string, error) {
	var relinked []string
	for _, f := range files {
		format, err := DetectFormat(f)
		if err != nil {
			return nil, err
		}
		strategy := strategyFor(format)
		if strategy == nil {
			continue
		}
		if err := strategy.Relink(f, cfg); err != nil {
			return nil, fmt.Errorf("postprocess: relinking %s: %w", f, err)
		}
		relinked = append(relinked, f)
	}
	return relinked, nil
}

func strategyFor(format BinaryFormat) Relinker {
	switch format {
	case FormatELF:
		return elfRelinker{}
	case FormatMachO:
		return machoRelinker{}
	case FormatPE:
		return peRelinker{}
	}
	return nil
}

// defaultMissingDSOAllowlist covers the libraries every supported
// platform provides outside any conda prefix: the ELF loader and libc
// family on Linux, the system frameworks on macOS, and the Win32 runtime
// DLLs on Windows. Recipes extend it via dynamic_linking.missing_dso_allowlist.
var defaultMissingDSOAllowlist = []string{
	"ld-linux*",
	"ld64.so*",
	"libc.so*",
	"libm.so*",
	"libdl.so*",
	"libpthread.so*",
	"librt.so*",
	"libutil.so*",
	"libgcc_s.so*",
	"/usr/lib/libSystem.B.dylib",
	"/usr/lib/libc++*",
	"/usr/lib/libobjc*",
	"/System/Library/Frameworks/*",
	"kernel32.dll",
	"user32.dll",
	"gdi32.dll",
	"advapi32.dll",
	"ws2_32.dll",
	"msvcrt.dll",
	"shell32.dll",
	"ole32.dll",
	"oleaut32.dll",
	"ntdll.dll",
	"shlwapi.dll",
	"ucrtbase.dll",
	"vcruntime140*.dll",
	"api-ms-win-*.dll",
}

// dsoAllowed reports whether name matches the recipe's allowlist or the
// built-in system allowlist. Patterns are shell globs matched against
// both the full install name and its basename, case-insensitively, since
// Windows import tables don't preserve case.
func dsoAllowed(name string, cfg RelinkConfig) bool {
	lower := strings.ToLower(name)
	base := path.Base(strings.ReplaceAll(lower, "\\", "/"))
	for _, list := range [][]string{cfg.MissingDSOAllowlist, defaultMissingDSOAllowlist} {
		for _, pattern := range list {
			p := strings.ToLower(pattern)
			if ok, _ := path.Match(p, lower); ok {
				return true
			}
			if ok, _ := path.Match(p, base); ok {
				return true
			}
		}
	}
	return false
}

// dsoInPrefix reports whether a library named name exists under the
// prefix's library directories.
func dsoInPrefix(name string, cfg RelinkConfig) bool {
	if cfg.PrefixDir == "" {
		return false
	}
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	for _, dir := range []string{"lib", "lib64", "bin", filepath.Join("Library", "bin")} {
		if _, err := os.Stat(filepath.Join(cfg.PrefixDir, dir, base)); err == nil {
			return true
		}
	}
	return false
}

func checkNeeded(binary string, needed []string, cfg RelinkConfig) error {
	var missing []string
	for _, lib := range needed {
		if dsoInPrefix(lib, cfg) || dsoAllowed(lib, cfg) {
			continue
		}
		missing = append(missing, lib)
	}
	if len(missing) > 0 {
		return &MissingDSOError{Binary: binary, Missing: missing}
	}
	return nil
}

type elfRelinker struct{}

func (elfRelinker) Relink(path string, cfg RelinkConfig) error {
	f, err := elf.Open(path)
	if err != nil {
		return fmt.Errorf("parsing ELF: %w", err)
	}
	defer f.Close()

	needed, err := f.ImportedLibraries()
	if err != nil {
		return fmt.Errorf("reading DT_NEEDED: %w", err)
	}
	return checkNeeded(path, needed, cfg)
}

type machoRelinker struct{}

func (machoRelinker) Relink(binPath string, cfg RelinkConfig) error {
	libs, err := machoImportedLibraries(binPath)
	if err != nil {
		return err
	}
	var needed []string
	for _, lib := range libs {
		// @rpath/@loader_path install names resolve relative to the
		// binary after relinking; only absolute names can dangle.
		if strings.HasPrefix(lib, "@") {
			continue
		}
		if strings.HasPrefix(lib, cfg.PrefixDir) && cfg.PrefixDir != "" {
			if _, err := os.Stat(lib); err == nil {
				continue
			}
		}
		needed = append(needed, lib)
	}
	return checkNeeded(binPath, needed, cfg)
}

// machoImportedLibraries reads the LC_LOAD_DYLIB install names from a
// thin Mach-O, falling back to the first architecture of a universal
// (fat) binary.
func machoImportedLibraries(path string) ([]string, error) {
	if f, err := macho.Open(path); err == nil {
		defer f.Close()
		libs, err := f.ImportedLibraries()
		if err != nil {
			return nil, fmt.Errorf("reading load commands: %w", err)
		}
		return libs, nil
	}
	fat, err := macho.OpenFat(path)
	if err != nil {
		return nil, fmt.Errorf("parsing Mach-O: %w", err)
	}
	defer fat.Close()
	if len(fat.Arches) == 0 {
		return nil, fmt.Errorf("fat binary with no architectures")
	}
	libs, err := fat.Arches[0].ImportedLibraries()
	if err != nil {
		return nil, fmt.Errorf("reading load commands: %w", err)
	}
	return libs, nil
}

type peRelinker struct{}

func (peRelinker) Relink(path string, cfg RelinkConfig) error {
	f, err := pe.Open(path)
	if err != nil {
		return fmt.Errorf("parsing PE: %w", err)
	}
	defer f.Close()

	symbols, err := f.ImportedSymbols()
	if err != nil {
		return fmt.Errorf("reading import table: %w", err)
	}
	seen := map[string]bool{}
	var needed []string
	for _, sym := range symbols {
		// ImportedSymbols yields "symbol:dll" pairs; only the DLL name
		// matters here.
		_, dll, ok := strings.Cut(sym, ":")
		if !ok || dll == "" {
			continue
		}
		key := strings.ToLower(dll)
		if seen[key] {
			continue
		}
		seen[key] = true
		needed = append(needed, dll)
	}
	return checkNeeded(path, needed, cfg)
}
