package flock

import (
	"context"
	"syscall"
)

type acquireFailedError string

// ErrLocked indicates TryAcquire failed because the lock is held by someone else.
var ErrLocked error = acquireFailedError("already locked")

func (t acquireFailedError) Error() string {
	return string(t)
}

// Lock implements flock syscall based cross-process locking.
// The state file provider locks its document with AcquireContext, dataset
// runs are guarded with TryAcquire.
type Lock interface {
	AcquireContext(context.Context) error
	TryAcquire() error
	Release() error
	Path() string
}

type fileLock struct {
	filename string
	fd       int
}

// New returns a new lock around the given file. The file is created on first acquire.
func New(filename string) Lock {
	return &fileLock{filename: filename, fd: -1}
}

func (l *fileLock) Path() string {
	return l.filename
}

// AcquireContext attempts to acquire the lock until the context is done.
func (l *fileLock) AcquireContext(ctx context.Context) error {
	if err := l.open(); err != nil {
		return err
	}
	fd := l.fd
	result := make(chan error)
	cancel := make(chan struct{})
	go func() {
		err := syscall.Flock(fd, syscall.LOCK_EX)
		select {
		case <-cancel: // gave up waiting, release whatever we got
			syscall.Flock(fd, syscall.LOCK_UN)
			syscall.Close(fd)
		case result <- err:
		}
	}()
	select {
	case err := <-result:
		if err != nil {
			l.close()
		}
		return err
	case <-ctx.Done():
		close(cancel)
		l.fd = -1
		return ctx.Err()
	}
}

// TryAcquire returns ErrLocked immediately if the lock cannot be acquired.
func (l *fileLock) TryAcquire() error {
	if err := l.open(); err != nil {
		return err
	}
	err := syscall.Flock(l.fd, syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		l.close()
	}
	if err == syscall.EWOULDBLOCK {
		return ErrLocked
	}
	return err
}

// Release releases the lock by closing the descriptor.
func (l *fileLock) Release() error {
	return l.close()
}

func (l *fileLock) open() error {
	fd, err := syscall.Open(l.filename, syscall.O_CREAT|syscall.O_RDONLY, 0600)
	if err != nil {
		return err
	}
	l.fd = fd
	return nil
}

func (l *fileLock) close() error {
	if l.fd < 0 {
		return nil
	}
	err := syscall.Close(l.fd)
	l.fd = -1
	return err
}
