// Package lockfile provides cross-platform advisory file locking used to
// guarantee exclusive single-writer ownership of the local persistent store.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrBusy is returned when a non-blocking lock attempt finds the file
// already held by another process.
var ErrBusy = errors.New("lockfile: held by another process")

// IsBusy reports whether err indicates lock contention rather than a
// structural failure (missing directory, permission, etc).
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

// Handle represents an acquired exclusive lock. Close releases it.
type Handle struct {
	file *os.File
	path string
}

// Path returns the filesystem path backing the lock.
func (h *Handle) Path() string { return h.path }

// Close releases the lock and closes the underlying file descriptor.
func (h *Handle) Close() error {
	if h == nil || h.file == nil {
		return nil
	}
	unlockErr := flockUnlock(h.file)
	closeErr := h.file.Close()
	h.file = nil
	return errors.Join(unlockErr, closeErr)
}

// AcquireExclusive opens (creating if necessary) the file at path and
// acquires an exclusive advisory lock on it, retrying with bounded
// exponential backoff while the lock is held by another process. maxWait
// caps the total time spent retrying; a maxWait of 0 uses a 5s default,
// matching the store's documented contention behavior.
func AcquireExclusive(ctx context.Context, path string, maxWait time.Duration) (*Handle, error) {
	if maxWait <= 0 {
		maxWait = 5 * time.Second
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("lockfile: open %s: %w", path, err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = maxWait

	err = backoff.Retry(func() error {
		lockErr := flockExclusiveNonBlock(f)
		if lockErr == nil {
			return nil
		}
		if IsBusy(lockErr) {
			return lockErr // retryable
		}
		return backoff.Permanent(lockErr)
	}, backoff.WithContext(bo, ctx))

	if err != nil {
		_ = f.Close()
		if IsBusy(err) {
			return nil, fmt.Errorf("lockfile: %s: %w after %s", path, ErrBusy, maxWait)
		}
		return nil, fmt.Errorf("lockfile: acquire %s: %w", path, err)
	}

	return &Handle{file: f, path: path}, nil
}
