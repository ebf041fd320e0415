// Package script executes a recipe's build.script against a
// BuildConfiguration: resolving which interpreter runs it, building its
// environment, streaming its combined stdout/stderr, and optionally
// wrapping it in a sandbox. Grounded on the teacher's pkg/build/build.go
// (BuildPackage's script invocation) and pkg/build/pipeline.go's
// MutateWith/shouldRun pattern for templated script steps.
package script

import (
	"path/filepath"
	"strings"
)

// ContentKind discriminates the five ways a build.script can be
// specified, ordered by resolution precedence: a script can be literal
// command(s) (Commands/Command), a Path to a file to execute, a
// CommandOrPath scalar whose shape is detected from the string itself, or
// Default (run build.sh, or build.bat on Windows).
type ContentKind int

const (
	ContentDefault ContentKind = iota
	ContentPath
	ContentCommandOrPath
	ContentCommand
	ContentCommands
)

// Content is the resolved shape of build.script, independent of which
// recipe YAML spelling produced it.
type Content struct {
	Kind     ContentKind
	Path     string
	Command  string
	Commands []string
}

// ResolveContent turns the evaluated recipe.Script fields into a Content,
// applying the same precedence GNU recipe tooling does: an explicit
// Commands list wins, then a single Content string (detected as a path vs
// an inline command), then the platform default.
func ResolveContent(content string, commands []string, platform string) Content {
	if len(commands) > 0 {
		return Content{Kind: ContentCommands, Commands: commands}
	}
	if content != "" {
		if looksLikePath(content) {
			return Content{Kind: ContentPath, Path: content}
		}
		return Content{Kind: ContentCommandOrPath, Command: content}
	}
	return Content{Kind: ContentDefault, Path: defaultScriptName(platform)}
}

func looksLikePath(s string) bool {
	if strings.ContainsAny(s, " \t\n") {
		return false
	}
	ext := filepath.Ext(s)
	switch ext {
	case ".sh", ".bat", ".ps1", ".py":
		return true
	}
	return false
}

func defaultScriptName(platform string) string {
	if strings.HasPrefix(platform, "win") {
		return "build.bat"
	}
	return "build.sh"
}
