//go:build !unix

package session

import "os"

// File locking is only enforced on Unix.
func lockStoreFile(_ *os.File) error { return nil }

func unlockStoreFile(_ *os.File) error { return nil }
