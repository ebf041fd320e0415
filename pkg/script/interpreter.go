package script

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveInterpreter picks the interpreter to run a Content with, in the
// precedence order confirmed against the original implementation's
// src/script.rs: an explicit interpreter: field always wins; otherwise
// the script's file extension is consulted; otherwise the platform's
// default shell is used.
func ResolveInterpreter(explicit string, c Content, platform string) (string, []string, error) {
	if explicit != "" {
		return explicit, interpreterArgsFor(explicit, c), nil
	}
	if c.Kind == ContentPath || c.Kind == ContentCommandOrPath && looksLikePath(c.Command) {
		path := c.Path
		if path == "" {
			path = c.Command
		}
		if interp, ok := interpreterForExtension(filepath.Ext(path)); ok {
			return interp, interpreterArgsFor(interp, c), nil
		}
	}
	return platformDefaultInterpreter(platform), nil, nil
}

func interpreterForExtension(ext string) (string, bool) {
	switch ext {
	case ".sh":
		return "bash", true
	case ".bat":
		return "cmd.exe", true
	case ".ps1":
		return "powershell", true
	case ".py":
		return "python", true
	case ".pl":
		return "perl", true
	case ".rb":
		return "ruby", true
	case ".R", ".r":
		return "Rscript", true
	case ".js":
		return "node", true
	case ".nu":
		return "nu", true
	}
	return "", false
}

func interpreterArgsFor(interp string, c Content) []string {
	if c.Path == "" {
		return nil
	}
	if interp == "cmd.exe" {
		return []string{"/c", c.Path}
	}
	return []string{c.Path}
}

func platformDefaultInterpreter(platform string) string {
	if strings.HasPrefix(platform, "win") {
		return "cmd.exe"
	}
	return "bash"
}

// BuildCommandLine assembles the final argv for executing c under
// interp/args, used by Executor.Run.
func BuildCommandLine(interp string, args []string, c Content) ([]string, error) {
	switch c.Kind {
	case ContentCommands:
		if len(c.Commands) == 0 {
			return nil, fmt.Errorf("script: empty commands list")
		}
		if interp == "cmd.exe" {
			// cmd continues past a failing command, so every command gets
			// an errorlevel check appended; the chain runs as one /c line.
			checked := make([]string, 0, len(c.Commands)*2)
			for _, cmd := range c.Commands {
				checked = append(checked, cmd, "if %errorlevel% neq 0 exit /b %errorlevel%")
			}
			return []string{interp, "/c", strings.Join(checked, " & ")}, nil
		}
		return []string{interp, "-c", strings.Join(c.Commands, "\n")}, nil
	case ContentCommand, ContentCommandOrPath:
		if c.Command == "" {
			return nil, fmt.Errorf("script: empty command")
		}
		if looksLikePath(c.Command) {
			return append([]string{interp}, args...), nil
		}
		if interp == "cmd.exe" {
			return []string{interp, "/c", c.Command}, nil
		}
		return []string{interp, "-c", c.Command}, nil
	case ContentPath, ContentDefault:
		return append([]string{interp}, args...), nil
	}
	return nil, fmt.Errorf("script: unknown content kind %d", c.Kind)
}
