package shared

import (
	"fmt"

	"github.com/gofrs/flock"
)

// AcquireLock takes an exclusive advisory lock on path+".lock".
//
// The ledger is owned by one process at a time: crash recovery resets every
// "downloading" row, which is only safe when no other process is transferring.
// Returns [ErrLedgerLocked] when another process holds the lock.
func AcquireLock(path string) (*flock.Flock, error) {
	lock := flock.New(path + ".lock")

	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLedgerLocked, lock.Path())
	}

	return lock, nil
}
