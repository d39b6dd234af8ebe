package scheduler

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

const pidFileName = "scheduler.pid"

// PIDFile guards against a second scheduler instance on the same data
// directory. A stale file left by a crashed process is detected by probing
// the recorded PID and replaced.
type PIDFile struct {
	path string
}

// NewPIDFile returns the pid file for the given data directory.
func NewPIDFile(dataDir string) *PIDFile {
	return &PIDFile{path: filepath.Join(dataDir, pidFileName)}
}

// RunningPID returns the live scheduler's PID, or 0 when none is running.
func (p *PIDFile) RunningPID() (int, error) {
	raw, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		zap.L().Warn("malformed pid file, treating as stale", zap.String("path", p.path))
		return 0, nil
	}
	if !processAlive(pid) {
		return 0, nil
	}
	return pid, nil
}

// Acquire writes the current process PID, failing if another live instance
// holds the file.
func (p *PIDFile) Acquire() error {
	pid, err := p.RunningPID()
	if err != nil {
		return err
	}
	if pid != 0 {
		return fmt.Errorf("scheduler already running with pid %d", pid)
	}
	return os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// Release removes the pid file. Safe to call when the file is already gone.
func (p *PIDFile) Release() {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		zap.L().Warn("failed to remove pid file", zap.String("path", p.path), zap.Error(err))
	}
}

// processAlive probes a PID with signal 0.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// SpawnDetached starts a new scheduler process in the background and
// returns its PID. The child re-executes the current binary with
// --scheduler and detaches from the parent's session.
func SpawnDetached() (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve executable: %w", err)
	}
	cmd := exec.Command(exe, "--scheduler")
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start detached scheduler: %w", err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("release child process: %w", err)
	}
	return pid, nil
}
