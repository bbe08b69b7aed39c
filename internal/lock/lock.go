package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// BusyError reports that another sweep holds the lock. HolderPID is 0
// when the holder could not be determined.
type BusyError struct {
	HolderPID int
}

func (e *BusyError) Error() string {
	if e.HolderPID > 0 {
		return fmt.Sprintf("another sweep is running (pid %d)", e.HolderPID)
	}
	return "another sweep is running"
}

// Lock is an exclusive, process-wide lock guarding a whole sweep run.
// Acquire is non-blocking: contention fails immediately with *BusyError.
// Release is idempotent and must run on every exit path.
type Lock interface {
	Acquire() error
	Release() error
}

// New selects the locking mechanism for dir. flock(2) is the primary
// mechanism; where the filesystem does not support it the atomic-mkdir
// fallback is used instead.
func New(dir string) Lock {
	if dir == "" {
		dir = os.TempDir()
	}
	if flockSupported(dir) {
		return &flockLock{path: filepath.Join(dir, "hostsweep.lock")}
	}
	return &dirLock{path: filepath.Join(dir, "hostsweep.lock.d")}
}

func flockSupported(dir string) bool {
	probe, err := os.CreateTemp(dir, ".hostsweep-flock-probe-*")
	if err != nil {
		return false
	}
	defer func() {
		probe.Close()
		os.Remove(probe.Name())
	}()
	if err := unix.Flock(int(probe.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return false
	}
	_ = unix.Flock(int(probe.Fd()), unix.LOCK_UN)
	return true
}

// flockLock holds an advisory exclusive flock on a well-known file and
// records the holder pid in the file body. The kernel drops the flock
// when the owning process dies, so a crash cannot wedge later runs.
type flockLock struct {
	path string
	file *os.File
}

func (l *flockLock) Acquire() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		pid := readPID(l.path)
		f.Close()
		if err == unix.EWOULDBLOCK {
			return &BusyError{HolderPID: pid}
		}
		return fmt.Errorf("flock: %w", err)
	}
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
		_ = f.Sync()
	}
	l.file = f
	return nil
}

func (l *flockLock) Release() error {
	if l.file == nil {
		return nil
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	// The file itself stays behind: removing it would let a third
	// process lock a fresh inode while a second still holds the old one.
	return err
}

// dirLock relies on mkdir(2) atomicity: exactly one concurrent attempt
// creates the directory. Unlike flock, a crashed holder leaves the
// directory behind; that stale lock must be cleared by an operator, the
// lock never guesses at staleness.
type dirLock struct {
	path string
	held bool
}

func (l *dirLock) Acquire() error {
	if err := os.Mkdir(l.path, 0o700); err != nil {
		if os.IsExist(err) {
			return &BusyError{HolderPID: readPID(filepath.Join(l.path, "pid"))}
		}
		return fmt.Errorf("create lock dir: %w", err)
	}
	pidPath := filepath.Join(l.path, "pid")
	_ = os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600)
	l.held = true
	return nil
}

func (l *dirLock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	return os.RemoveAll(l.path)
}

func readPID(path string) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}
