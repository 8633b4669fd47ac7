package sqlite

import (
	"context"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// sentinelLock holds an exclusive cross-process lock on a dedicated
// zero-byte file. The sentinel is separate from the data file so that
// holding it never contends with normal reads, and the kernel releases the
// flock automatically if the holding process dies.
type sentinelLock struct {
	f *os.File
}

// acquireSentinel opens (creating if needed) the sentinel file and takes an
// exclusive flock on it. Acquisition polls with LOCK_NB so the wait stays
// bounded by ctx and maxWait rather than blocking indefinitely.
func acquireSentinel(ctx context.Context, path string, maxWait time.Duration) (*sentinelLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(maxWait)
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &sentinelLock{f: f}, nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EAGAIN && err != unix.EINTR {
			_ = f.Close()
			return nil, err
		}
		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, unix.ETIMEDOUT
		}
		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// release drops the flock and closes the sentinel file.
func (l *sentinelLock) release() {
	if l == nil || l.f == nil {
		return
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	_ = l.f.Close()
	l.f = nil
}
