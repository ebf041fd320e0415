package postprocess

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// SigningBackend identifies which external signer Sign should invoke.
type SigningBackend int

const (
	SigningNone SigningBackend = iota
	SigningMacOSCodesign
	SigningWindowsSigntool
	SigningAzureTrustedSigning
)

// SigningConfig selects a signing backend and its invocation settings.
// Grounded on original_source/src/post_process/signing.rs, which
// dispatches on platform the same way: codesign on macOS, signtool (or
// Azure Trusted Signing) on Windows.
type SigningConfig struct {
	Backend  SigningBackend
	Identity string // codesign identity, or signtool certificate thumbprint
	Endpoint string // Azure Trusted Signing endpoint, when Backend is SigningAzureTrustedSigning
}

// Sign invokes the configured backend on every binary file, returning
// the ones actually signed. Files with FormatUnknown are skipped: only
// recognized binary formats are signing candidates.
func Sign(ctx context.Context, files []string, cfg SigningConfig) ([]string, error) {
	if cfg.Backend == SigningNone {
		return nil, nil
	}
	var signed []string
	for _, f := range files {
		format, err := DetectFormat(f)
		if err != nil {
			return nil, err
		}
		if format == FormatUnknown {
			continue
		}
		ok, err := signOne(ctx, f, format, cfg)
		if err != nil {
			return nil, fmt.Errorf("postprocess: signing %s: %w", f, err)
		}
		if ok {
			signed = append(signed, f)
		}
	}
	return signed, nil
}

// signOne signs path with cfg's backend, reporting false without running
// anything when the backend does not sign files of this format.
func signOne(ctx context.Context, path string, format BinaryFormat, cfg SigningConfig) (bool, error) {
	var argv []string
	switch cfg.Backend {
	case SigningMacOSCodesign:
		if format != FormatMachO {
			return false, nil
		}
		argv = []string{"codesign", "--force", "--sign", cfg.Identity, path}
	case SigningWindowsSigntool:
		if format != FormatPE {
			return false, nil
		}
		argv = []string{"signtool", "sign", "/sha1", cfg.Identity, path}
	case SigningAzureTrustedSigning:
		if format != FormatPE {
			return false, nil
		}
		argv = []string{"AzureSignTool", "sign", "--endpoint", cfg.Endpoint, path}
	default:
		return false, nil
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return false, fmt.Errorf("%s: %w: %s", strings.Join(argv, " "), err, string(out))
	}
	return true, nil
}
