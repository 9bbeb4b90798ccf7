package model

import "sync/atomic"

// idCounter mints process-wide unique identifiers via an atomic counter.
var idCounter uint64

// NextID returns a fresh process-unique identifier. Never reused within a
// process lifetime, which keeps store/allocator index keys stable across
// retest/skip/delete.
func NextID() uint64 {
	return atomic.AddUint64(&idCounter, 1)
}
