package store

import "sync"

// rwLock is a thin Lock/Unlock/RLock/RUnlock wrapper guarding MemStore's
// secondary indexes, whose critical sections are short enough that a
// plain sync.RWMutex needs no further tuning.
type rwLock struct {
	mu sync.RWMutex
}

func (l *rwLock) Lock()    { l.mu.Lock() }
func (l *rwLock) Unlock()  { l.mu.Unlock() }
func (l *rwLock) RLock()   { l.mu.RLock() }
func (l *rwLock) RUnlock() { l.mu.RUnlock() }
