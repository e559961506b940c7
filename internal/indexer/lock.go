package indexer

import (
	"errors"
	"sync/atomic"
)

// ErrIndexingInProgress is returned when a run is already holding the tracker
var ErrIndexingInProgress = errors.New("indexing already in progress")

// IndexLock is a non-blocking lock guarding the tracker for one pipeline run.
// A second caller is rejected instead of queued.
type IndexLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// Held reports whether a run currently holds the lock
func (l *IndexLock) Held() bool {
	return l.state.Load() == 1
}
