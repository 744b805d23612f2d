package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

const (
	lockRetries    = 50
	lockRetryDelay = 100 * time.Millisecond

	// A lock older than this is assumed to belong to a process that died
	// while holding it.
	lockStaleAfter = 30 * time.Second
)

// storeLock is an exclusive, cross-process lock on a store file, held by
// creating a "<file>.lock" sidecar.
type storeLock struct {
	file *os.File
	path string
}

func lockStoreFile(storePath string) (*storeLock, error) {
	lockPath := storePath + ".lock"

	for range lockRetries {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			fmt.Fprintf(f, "%d", os.Getpid())
			return &storeLock{file: f, path: lockPath}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("failed to create lock file %s: %w", lockPath, err)
		}

		info, statErr := os.Stat(lockPath)
		if statErr == nil && time.Since(info.ModTime()) > lockStaleAfter {
			if rmErr := os.Remove(lockPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to remove stale lock file %s: %w", lockPath, rmErr)
			}
			continue
		}
		time.Sleep(lockRetryDelay)
	}

	return nil, fmt.Errorf("timeout waiting for lock on %s after %v",
		storePath, time.Duration(lockRetries)*lockRetryDelay)
}

func (l *storeLock) unlock() error {
	if l.file != nil {
		_ = l.file.Close()
	}
	return os.Remove(l.path)
}
