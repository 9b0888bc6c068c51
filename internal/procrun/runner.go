package procrun

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"fmristage/internal/logging"
	"fmristage/internal/services"
)

// DefaultGracePeriod is how long a cancelled child gets between SIGTERM and
// SIGKILL.
const DefaultGracePeriod = 30 * time.Second

var commandContext = exec.CommandContext

var killGroup = func(cmd *exec.Cmd) error {
	return signalGroup(cmd, unix.SIGKILL)
}

// Invocation describes one external program launch. It is consumed once.
type Invocation struct {
	Stage   string
	Program string
	Args    []string
	// Env overrides entries of the ambient environment for this child only.
	Env map[string]string
	Dir string
}

// Command returns the program followed by its arguments.
func (i Invocation) Command() []string {
	return append([]string{i.Program}, i.Args...)
}

// Result is the outcome of a successful run.
type Result struct {
	ExitCode int
	Output   string
	Duration time.Duration
}

// ExitError reports a child that could not start, exited non-zero, or was
// killed. It matches services.ErrExternalProcess under errors.Is.
type ExitError struct {
	Stage    string
	Command  string
	ExitCode int
	Output   string
	Err      error
}

func (e *ExitError) Error() string {
	var b strings.Builder
	if e.Stage != "" {
		b.WriteString(e.Stage)
		b.WriteString(": ")
	}
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, "command exited with code %d: %s", e.ExitCode, e.Command)
	} else {
		fmt.Fprintf(&b, "command failed: %s", e.Command)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ExitError) Is(target error) bool {
	return target == services.ErrExternalProcess
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// LineSink receives each decoded output line as soon as it is read.
type LineSink func(stage, line string)

// Option configures a Runner.
type Option func(*Runner)

// WithSink replaces the default logger sink.
func WithSink(sink LineSink) Option {
	return func(r *Runner) {
		if sink != nil {
			r.sink = sink
		}
	}
}

// WithLogger sets the logger used for lifecycle messages and the default sink.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTimeout bounds every invocation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithGracePeriod sets the delay between SIGTERM and SIGKILL on cancellation.
func WithGracePeriod(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.grace = d
		}
	}
}

// Runner executes invocations one at a time.
type Runner struct {
	logger  *slog.Logger
	sink    LineSink
	timeout time.Duration
	grace   time.Duration
}

// NewRunner constructs a Runner. Without WithSink, output lines are logged at
// info level on the runner logger.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		logger: logging.NewNop(),
		grace:  DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "procrun")
	if r.sink == nil {
		logger := r.logger
		r.sink = func(stage, line string) {
			logger.Info(line, logging.String(logging.FieldStage, stage))
		}
	}
	return r
}

// Run starts the invocation and blocks until its output is drained and it
// has exited.
func (r *Runner) Run(ctx context.Context, inv Invocation) (Result, error) {
	command := FormatCommand(inv.Command())
	if strings.TrimSpace(inv.Program) == "" {
		return Result{}, &ExitError{Stage: inv.Stage, Command: command, ExitCode: -1, Err: errors.New("program required")}
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := commandContext(ctx, inv.Program, inv.Args...) //nolint:gosec
	base := cmd.Env
	if base == nil {
		base = os.Environ()
	}
	cmd.Env = mergeEnv(base, inv.Env)
	if inv.Dir != "" {
		cmd.Dir = inv.Dir
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return signalGroup(cmd, unix.SIGTERM)
	}
	cmd.WaitDelay = r.grace

	reader, writer, err := os.Pipe()
	if err != nil {
		return Result{}, &ExitError{Stage: inv.Stage, Command: command, ExitCode: -1, Err: fmt.Errorf("output pipe: %w", err)}
	}
	defer reader.Close()
	cmd.Stdout = writer
	cmd.Stderr = writer

	logger := r.logger.With(logging.String(logging.FieldStage, inv.Stage))
	logger.Info("starting external command",
		logging.String(logging.FieldEventType, "command_start"),
		logging.String("command", command),
	)

	started := time.Now()
	if err := cmd.Start(); err != nil {
		_ = writer.Close()
		return Result{}, &ExitError{Stage: inv.Stage, Command: command, ExitCode: -1, Err: fmt.Errorf("start: %w", err)}
	}
	// The child holds its own copy; closing ours lets the reader see EOF.
	_ = writer.Close()

	escalation := &graceKill{}
	stopKill := context.AfterFunc(ctx, func() {
		escalation.arm(r.grace, func() {
			_ = killGroup(cmd)
		})
	})
	defer func() {
		stopKill()
		escalation.disarm()
	}()

	output, readErr := r.drain(reader, inv.Stage)
	waitErr := cmd.Wait()
	duration := time.Since(started)

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	if waitErr != nil || readErr != nil {
		cause := waitErr
		if ctxErr := ctx.Err(); ctxErr != nil {
			cause = ctxErr
		} else if cause == nil {
			cause = fmt.Errorf("read output: %w", readErr)
		} else {
			var exitErr *exec.ExitError
			if errors.As(cause, &exitErr) {
				cause = nil
			}
		}
		logger.Error("external command failed",
			logging.String(logging.FieldEventType, "command_failed"),
			logging.String(logging.FieldErrorHint, "inspect the command output above"),
			logging.Int("exit_code", exitCode),
			logging.Duration("duration", duration),
		)
		return Result{}, &ExitError{
			Stage:    inv.Stage,
			Command:  command,
			ExitCode: exitCode,
			Output:   output,
			Err:      cause,
		}
	}

	logger.Info("external command finished",
		logging.String(logging.FieldEventType, "command_complete"),
		logging.Duration("duration", duration),
	)
	return Result{ExitCode: exitCode, Output: output, Duration: duration}, nil
}

// drain reads decoded lines until EOF, forwarding each to the sink.
func (r *Runner) drain(src io.Reader, stage string) (string, error) {
	reader := bufio.NewReader(transform.NewReader(src, unicode.UTF8.NewDecoder()))
	var output strings.Builder
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			output.WriteString(line)
			r.sink(stage, strings.TrimRight(line, "\r\n"))
		}
		if err == io.EOF {
			return output.String(), nil
		}
		if err != nil {
			return output.String(), err
		}
	}
}

func signalGroup(cmd *exec.Cmd, sig unix.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	if err := unix.Kill(-cmd.Process.Pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

// mergeEnv returns base with overrides applied. Override keys win; the result
// is deterministic for a given input.
func mergeEnv(base []string, overrides map[string]string) []string {
	merged := make([]string, 0, len(base)+len(overrides))
	for _, entry := range base {
		key, _, _ := strings.Cut(entry, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		merged = append(merged, entry)
	}
	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		merged = append(merged, key+"="+overrides[key])
	}
	return merged
}

// FormatCommand renders args as a shell-quoted string for logs and error
// messages. It is never executed.
func FormatCommand(args []string) string {
	quoted := make([]string, 0, len(args))
	for _, arg := range args {
		quoted = append(quoted, shellQuote(arg))
	}
	return strings.Join(quoted, " ")
}

func shellQuote(arg string) string {
	if arg == "" {
		return "''"
	}
	safe := true
	for _, r := range arg {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:=@+,%", r)) {
			safe = false
			break
		}
	}
	if safe {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

// graceKill schedules the SIGKILL that follows SIGTERM. Once disarmed, after
// the child has been reaped, it never fires, so a recycled process group id
// is never signalled.
type graceKill struct {
	mu       sync.Mutex
	timer    *time.Timer
	disarmed bool
}

func (g *graceKill) arm(delay time.Duration, kill func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.disarmed {
		return
	}
	g.timer = time.AfterFunc(delay, kill)
}

func (g *graceKill) disarm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disarmed = true
	if g.timer != nil {
		g.timer.Stop()
	}
}
