package script

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/condaforge/rbcore/pkg/buildconfig"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/condaforge/rbcore/pkg/script")

// LineSink receives one combined, normalized line of build output at a
// time, in the order it was produced (stdout and stderr interleaved by
// arrival time, not segregated).
type LineSink func(line string)

// Executor runs a resolved Content against a BuildConfiguration.
type Executor struct {
	BuildConfig *buildconfig.BuildConfiguration
	Sandbox     Sandbox
	Redactor    Redactor
	// Interpreter is the recipe's explicit script.interpreter, if any; it
	// wins over extension inference and the platform default.
	Interpreter string
	// Cwd is the recipe's script.cwd; resolved relative to the run prefix
	// when not absolute. Empty means run in the work dir.
	Cwd string
}

// logFileName is the per-build log every redacted output line is
// appended to, inside the work dir.
const logFileName = "conda_build.log"

// Sandbox wraps a command line in a restricted execution environment.
// The concrete sandboxing backend lives outside this core; NoSandbox is
// the identity implementation used when BuildConfiguration.Sandbox is
// disabled.
type Sandbox interface {
	Wrap(argv []string, cfg buildconfig.SandboxConfig) []string
}

// NoSandbox passes argv through unchanged.
type NoSandbox struct{}

func (NoSandbox) Wrap(argv []string, _ buildconfig.SandboxConfig) []string { return argv }

// Redactor scrubs secret values out of a line of output before it's
// logged or handed to a LineSink.
type Redactor interface {
	Redact(line string) string
}

// NoRedaction passes lines through unchanged.
type NoRedaction struct{}

func (NoRedaction) Redact(line string) string { return line }

// Run executes c's resolved command line with the given environment,
// streaming combined, CR/CRLF-normalized output to sink as it arrives.
// stdout and stderr are multiplexed by an errgroup the way the teacher's
// build output collector does, so a script that writes heavily to stderr
// doesn't starve stdout's line delivery.
func (e *Executor) Run(ctx context.Context, c Content, env map[string]string, sink LineSink) error {
	ctx, span := tracer.Start(ctx, "script.Run")
	defer span.End()
	log := clog.FromContext(ctx)

	interp, interpArgs, err := ResolveInterpreter(e.Interpreter, c, e.BuildConfig.TargetPlatform)
	if err != nil {
		return err
	}
	argv, err := BuildCommandLine(interp, interpArgs, c)
	if err != nil {
		return err
	}
	if e.BuildConfig.Sandbox.Enabled && e.Sandbox == nil {
		return fmt.Errorf("script: sandbox requested but no sandbox helper is configured")
	}
	if e.Sandbox != nil {
		argv = e.Sandbox.Wrap(argv, e.BuildConfig.Sandbox)
	}

	workDir := e.BuildConfig.Directories.WorkDir
	cwd := workDir
	if e.Cwd != "" {
		cwd = e.Cwd
		if !filepath.IsAbs(cwd) {
			cwd = filepath.Join(e.BuildConfig.Directories.PrefixDir, cwd)
		}
	}

	log.Info("running build script", "argv", argv, "cwd", cwd)

	logFile, err := os.OpenFile(filepath.Join(workDir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("script: opening build log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = cwd
	cmd.Env = flattenEnv(env)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("script: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("script: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("script: starting %v: %w", argv, err)
	}

	redactor := e.Redactor
	if redactor == nil {
		redactor = NoRedaction{}
	}

	// Each redacted line is appended to the build log and forwarded to
	// sink. The mutex keeps lines from the two streams atomic in the log;
	// their relative order is arrival order, per the concurrency contract.
	var mu sync.Mutex
	emit := func(line string) {
		mu.Lock()
		fmt.Fprintln(logFile, line)
		mu.Unlock()
		if sink != nil {
			sink(line)
		}
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { return streamLines(stdout, redactor, emit) })
	g.Go(func() error { return streamLines(stderr, redactor, emit) })

	if err := g.Wait(); err != nil {
		return fmt.Errorf("script: reading output: %w", err)
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("script: %v exited: %w", argv, err)
	}
	return nil
}

// streamLines reads r line by line, redacting and forwarding each to sink
// in the order it arrives. Lines are split on \n, \r\n, or a lone \r, so a
// bare-CR progress update (the kind pip/cmake/ninja use to overwrite a
// terminal line) is forwarded as its own line rather than folding into
// whatever follows it on the next \n.
func streamLines(r io.Reader, redactor Redactor, sink LineSink) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanAnyLineEnding)
	for scanner.Scan() {
		sink(redactor.Redact(scanner.Text()))
	}
	return scanner.Err()
}

// scanAnyLineEnding is a bufio.SplitFunc like bufio.ScanLines, except it
// also terminates a line on a lone \r, not just \r\n or \n. This is the
// pre-split normalization step: CR/CRLF/LF are all collapsed to a line
// boundary before a token is ever handed back, so no raw \r survives
// inside a token to later get rewritten into an embedded \n.
func scanAnyLineEnding(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case '\n':
			return i + 1, data[:i], nil
		case '\r':
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if atEOF {
				return i + 1, data[:i], nil
			}
			// \r is the last byte read so far; need more data to know
			// whether it's followed by \n.
			return 0, nil, nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func flattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
