package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"yt2pod/internal/config"
	"yt2pod/internal/daemonrun"
)

// ErrDaemonNotRunning indicates no process holds the daemon lock.
var ErrDaemonNotRunning = errors.New("daemon not running")

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Paths locates the daemon's lock and pid files.
type Paths struct {
	LockPath string
	PIDPath  string
}

// PathsFromConfig derives the lock and pid locations from the state dir.
func PathsFromConfig(cfg *config.Config) Paths {
	return Paths{LockPath: cfg.DaemonLockPath(), PIDPath: daemonrun.PIDPath(cfg)}
}

// ProcessInfo reports whether a daemon holds the lock and, when known, its
// pid from the pid file.
func ProcessInfo(paths Paths) (bool, int, error) {
	running, err := lockHeld(paths.LockPath)
	if err != nil || !running {
		return false, 0, err
	}
	pid, err := readPID(paths.PIDPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return true, 0, err
	}
	return true, pid, nil
}

// Stop sends SIGTERM to the daemon and waits up to gracePeriod for it to
// release the lock, then sends SIGKILL.
func Stop(paths Paths, gracePeriod time.Duration) (StopResult, error) {
	running, pid, err := ProcessInfo(paths)
	if err != nil {
		return StopResult{}, err
	}
	if !running {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid <= 0 {
		return StopResult{}, fmt.Errorf("unable to determine daemon pid (pid file: %s)", paths.PIDPath)
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return StopResult{}, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	result := StopResult{PID: pid}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return result, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	if WaitForShutdown(paths.LockPath, gracePeriod) == nil {
		return result, nil
	}
	if err := proc.Kill(); err != nil {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	result.ForcedKill = true
	if err := os.Remove(paths.PIDPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, fmt.Errorf("remove pid file %q: %w", paths.PIDPath, err)
	}
	return result, nil
}

// WaitForShutdown polls until the daemon lock is free or timeout passes.
func WaitForShutdown(lockPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		held, err := lockHeld(lockPath)
		if err == nil && !held {
			return nil
		}
		if time.Now().After(deadline) {
			if err == nil {
				err = errors.New("daemon still running")
			}
			return fmt.Errorf("daemon did not stop: %w", err)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func lockHeld(path string) (bool, error) {
	if strings.TrimSpace(path) == "" {
		return false, errors.New("daemon lock path not configured")
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	lock := flock.New(path)
	acquired, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe daemon lock: %w", err)
	}
	if acquired {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %q", path)
	}
	return pid, nil
}
