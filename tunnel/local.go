package tunnel

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"switchboard/config"
	sberr "switchboard/internal/errors"
	"switchboard/internal/metrics"
	"switchboard/util"
)

// LocalConnector establishes sessions backed by the local shell.  Each
// command runs as its own child process in the configured working
// directory, so a hung command never wedges the session.
type LocalConnector struct {
	Shell          string
	WorkingDir     string
	CommandTimeout time.Duration

	Logger  *util.Logger
	Metrics *metrics.Collector
}

// Establish verifies the shell and working directory exist and returns
// a handle.  The profile argument is ignored; local sessions have no
// remote endpoint.
func (c *LocalConnector) Establish(ctx context.Context, _ config.Profile) (Handle, error) {
	shell := c.Shell
	if shell == "" {
		shell = config.DefaultShell()
	}
	if _, err := exec.LookPath(shell); err != nil {
		return nil, &sberr.ConfigError{
			Field:   "session.shell",
			Value:   shell,
			Message: "not found in PATH",
		}
	}

	dir := c.WorkingDir
	if dir != "" {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return nil, &sberr.ConfigError{
				Field:   "session.working_dir",
				Value:   dir,
				Message: "not a directory",
			}
		}
	}

	cmdTimeout := c.CommandTimeout
	if cmdTimeout == 0 {
		cmdTimeout = config.DefaultCommandTimeout
	}

	return &localHandle{
		shell:          shell,
		workingDir:     dir,
		commandTimeout: cmdTimeout,
		logger:         c.Logger,
		metrics:        c.Metrics,
		alive:          true,
	}, nil
}

// localHandle runs commands through the local shell.
type localHandle struct {
	shell          string
	workingDir     string
	commandTimeout time.Duration
	logger         *util.Logger
	metrics        *metrics.Collector

	mu      sync.Mutex
	alive   bool
	onClose func()
}

// Execute runs one command via the shell and returns its combined
// output.  A non-zero exit is not a failure; the output carries the
// diagnostics.  Every command starts in the handle's working
// directory: directory changes do not persist between commands.
func (h *localHandle) Execute(ctx context.Context, command string) (string, error) {
	if !h.Alive() {
		return "", sberr.ErrHandleClosed
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.commandTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, h.shell, shellArg(h.shell), command)
	cmd.Dir = h.workingDir

	h.logger.Debug("local: exec %s", cmd.String())
	h.metrics.BytesSent(int64(len(command)))

	out, err := cmd.CombinedOutput()
	h.metrics.BytesReceived(int64(len(out)))
	if ctx.Err() != nil {
		// The process was killed by the deadline; its exit status is
		// meaningless.
		return string(out), ctx.Err()
	}
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return string(out), nil
		}
		return string(out), sberr.Wrap("exec", h.shell, err)
	}
	return string(out), nil
}

// Alive reports whether the handle accepts commands.
func (h *localHandle) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alive
}

// Addr returns the shell path driving this handle.
func (h *localHandle) Addr() string { return h.shell }

// OnClose registers fn; local handles only die on a deliberate Close,
// so it never fires.
func (h *localHandle) OnClose(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.alive {
		// Only Close clears alive on a local handle, and a deliberate
		// Close must not fire the callback.
		return
	}
	h.onClose = fn
}

// Close stops accepting commands.
func (h *localHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alive = false
	h.onClose = nil
	return nil
}

// shellArg returns the flag that makes the shell run one command.
func shellArg(shell string) string {
	if runtime.GOOS == "windows" || shell == "cmd.exe" {
		return "/C"
	}
	return "-c"
}
