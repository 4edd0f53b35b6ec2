package executor

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// ErrLockUnavailable is returned when another process already holds
// the host-wide action lock.
var ErrLockUnavailable = errors.New("executor: action lock unavailable")

// actionLock is an exclusive, non-blocking advisory file lock held for
// the duration of one Plan's execution.
type actionLock struct {
	file *os.File
}

// acquireLock opens (creating if absent, never truncating up front)
// and flocks the lock file. On success it truncates the file and
// writes the current PID, matching the teacher's own lock-file
// bookkeeping convention.
func acquireLock(path string) (*actionLock, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %q: %w", path, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLockUnavailable
		}
		return nil, fmt.Errorf("flock %q: %w", path, err)
	}

	if err := file.Truncate(0); err != nil {
		unix.Flock(int(file.Fd()), unix.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("truncate lock file %q: %w", path, err)
	}
	if _, err := file.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		unix.Flock(int(file.Fd()), unix.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("write pid to lock file %q: %w", path, err)
	}

	return &actionLock{file: file}, nil
}

// release drops the flock and closes the file descriptor. It does NOT
// unlink the lock file: removing it would let a waiting process
// acquire a lock on a file descriptor pointing at a deleted inode
// while a concurrent process creates a fresh file at the same path —
// the lock file persists between runs, still holding the last
// holder's PID.
func (l *actionLock) release() {
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	_ = l.file.Close()
}
