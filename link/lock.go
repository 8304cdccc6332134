//go:build unix

package link

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// FileLock is an advisory exclusive lock on the serial device node. Other
// processes writing to the same port (the power-off command) take it too, so
// their bytes never land in the middle of a frame.
type FileLock struct {
	path string
	mx   sync.Mutex
	f    *os.File
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

func (l *FileLock) Lock() error {
	return l.flock(unix.LOCK_EX)
}

// TryLock takes the lock only if nobody holds it.
func (l *FileLock) TryLock() (bool, error) {
	err := l.flock(unix.LOCK_EX | unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return false, nil
	}
	return err == nil, err
}

func (l *FileLock) Unlock() error {
	return l.flock(unix.LOCK_UN)
}

func (l *FileLock) Close() error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

func (l *FileLock) flock(how int) error {
	l.mx.Lock()
	f, err := l.file()
	l.mx.Unlock()
	if err != nil {
		return err
	}
	for {
		err = unix.Flock(int(f.Fd()), how)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("flock %s: %w", l.path, err)
	}
	return nil
}

func (l *FileLock) file() (*os.File, error) {
	if l.f != nil {
		return l.f, nil
	}
	f, err := os.OpenFile(l.path, os.O_RDONLY|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("could not open %s for locking: %w", l.path, err)
	}
	l.f = f
	return f, nil
}
