package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"
)

// ErrLocked is returned when a lock is held elsewhere.
var ErrLocked = errors.New("lock is held by another process")

// pollInterval is how often a waiting DeviceLock retries flock.
const pollInterval = 25 * time.Millisecond

// DeviceLock serializes access to the printer. flock(2) locks belong to the
// open file description, so two DeviceLocks in one process exclude each other
// just like two processes do.
type DeviceLock struct {
	path string
}

// NewDeviceLock returns a lock backed by the file at path.
func NewDeviceLock(path string) (*DeviceLock, error) {
	if path == "" {
		return nil, fmt.Errorf("lock path is empty")
	}
	return &DeviceLock{path: path}, nil
}

func (d *DeviceLock) Path() string { return d.path }

// Acquire blocks until the lock is taken or ctx is done. The returned release
// func is safe to call more than once.
func (d *DeviceLock) Acquire(ctx context.Context) (release func(), err error) {
	f, err := openLockFile(d.path)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) && !errors.Is(err, syscall.EINTR) {
			_ = f.Close()
			return nil, fmt.Errorf("acquire device lock: %w", err)
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, fmt.Errorf("%w: %s: %w", ErrLocked, d.path, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() { once.Do(func() { unlock(f) }) }, nil
}

func unlock(f *os.File) {
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	_ = f.Close()
}
