//go:build !unix

package output

import "os"

// File locking is only enforced on Unix. Elsewhere the lock is a no-op and
// concurrent appends from separate processes are the operator's problem.
func lockFile(_ *os.File) error { return nil }

func unlockFile(_ *os.File) error { return nil }
