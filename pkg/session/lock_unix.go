//go:build unix

package session

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func lockStoreFile(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return ErrStoreLocked
	}
	return err
}

func unlockStoreFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
