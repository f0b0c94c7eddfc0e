// Package launcher spawns placed artifacts as detached child processes.
//
// The child must outlive anything that goes wrong in this process, so it runs in its own
// process group and the launcher never kills it.
package launcher

import (
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dsqprocess/dsqprocess/internal/logging"
	"github.com/dsqprocess/dsqprocess/internal/procerr"
)

// Exit describes how a launched child ended
type Exit struct {
	PID      int
	Path     string
	Code     int
	Duration time.Duration
	Err      error
}

// Options configures a Launcher
type Options struct {
	Logger *logging.Logger
	Stdout io.Writer
	Stderr io.Writer
	// OnExit is called from the reaping goroutine once the child has been waited on
	OnExit func(Exit)
}

// Launcher starts artifacts
type Launcher struct {
	logger *logging.Logger
	stdout io.Writer
	stderr io.Writer
	onExit func(Exit)
}

// New creates a Launcher
func New(opts Options) *Launcher {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Launcher{
		logger: logger.Component("launcher"),
		stdout: opts.Stdout,
		stderr: opts.Stderr,
		onExit: opts.OnExit,
	}
}

// Launch spawns artifactPath with the auto-close duration as its only argument and returns the
// child's pid without waiting for it.
func (l *Launcher) Launch(artifactPath string, minutes int) (int, error) {
	if minutes < 0 {
		return 0, procerr.InvalidInput("launch", "duration must not be negative, got %d", minutes)
	}

	cmd := exec.Command(artifactPath, strconv.Itoa(minutes))
	cmd.Dir = filepath.Dir(artifactPath)
	cmd.Stdout = l.stdout
	cmd.Stderr = l.stderr
	cmd.SysProcAttr = detachedAttr()

	if err := cmd.Start(); err != nil {
		return 0, procerr.New(procerr.KindIO, "launch", fmt.Errorf("failed to start: %w", err)).
			WithPath(artifactPath)
	}

	pid := cmd.Process.Pid
	l.logger.Debug("child started", logging.Fields{"pid": pid, "path": artifactPath, "minutes": minutes})

	go l.reap(cmd, pid, artifactPath, time.Now())
	return pid, nil
}

// reap waits on the child so it does not linger as a zombie in the process table
func (l *Launcher) reap(cmd *exec.Cmd, pid int, path string, started time.Time) {
	err := cmd.Wait()

	exit := Exit{PID: pid, Path: path, Duration: time.Since(started)}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exit.Code = exitErr.ExitCode()
		} else {
			exit.Code = -1
			exit.Err = err
		}
	}

	l.logger.Debug("child exited", logging.Fields{
		"pid":      pid,
		"code":     exit.Code,
		"duration": exit.Duration.Round(time.Millisecond).String(),
	})

	if l.onExit != nil {
		l.onExit(exit)
	}
}
