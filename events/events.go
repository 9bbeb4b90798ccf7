// Package events is the FAT engine's typed event bus: the orchestrator is
// the sole publisher, and any number of UI/CLI listeners subscribe to
// receive BatchStatusChanged/TestProgressUpdate/TestStatusChanged/
// TestCompleted notifications.
package events

import (
	"sync"
	"time"

	"github.com/dj1530954213/fatengine/model"
)

// Kind identifies one of the four event shapes.
type Kind string

const (
	KindBatchStatusChanged Kind = "batch_status_changed"
	KindTestProgressUpdate Kind = "test_progress_update"
	KindTestStatusChanged  Kind = "test_status_changed"
	KindTestCompleted      Kind = "test_completed"
)

// BatchStatusChanged is published by the orchestrator after allocation, a
// batch run, a retest or a skip.
type BatchStatusChanged struct {
	BatchID   uint64
	Name      string
	Total     int
	Passed    int
	Failed    int
	Skipped   int
	Timestamp time.Time
}

// TestProgressUpdate describes one sample step of a running hard-point
// task. The bus can carry it, but no component in this module publishes
// it: tasks report only their final outcome.
type TestProgressUpdate struct {
	InstanceID uint64
	Step       string
	Detail     string
	Timestamp  time.Time
}

// TestStatusChanged carries an instance's current hard_point_status and
// overall_status. The orchestrator publishes it once per instance after a
// batch run, and for the instance concerned after a retest or a skip;
// intermediate transitions are not published.
type TestStatusChanged struct {
	InstanceID      uint64
	HardPointStatus model.HardPointStatus
	OverallStatus   model.OverallStatus
	Timestamp       time.Time
}

// TestCompleted fires once per instance when its hard-point task finishes
// (pass or fail), independent of whether manual sub-items are still open.
type TestCompleted struct {
	InstanceID uint64
	Success    bool
	Detail     string
	Timestamp  time.Time
}

// Event wraps one of the four payload types above with its Kind so a
// subscriber can switch on Kind without a type assertion on Payload.
type Event struct {
	Kind      Kind
	Payload   interface{}
	Timestamp time.Time
}

// Bus fans out published events to every current subscriber. Publish never
// blocks on a slow subscriber beyond the subscriber's own buffer filling;
// a full subscriber channel drops the event rather than stalling the
// publisher, since the orchestrator must never block on UI consumption.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new listener with the given buffer depth and
// returns the channel plus an unsubscribe function.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

func (b *Bus) publish(kind Kind, payload interface{}, ts time.Time) {
	evt := Event{Kind: kind, Payload: payload, Timestamp: ts}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// PublishBatchStatusChanged emits a BatchStatusChanged event.
func (b *Bus) PublishBatchStatusChanged(e BatchStatusChanged) {
	b.publish(KindBatchStatusChanged, e, e.Timestamp)
}

// PublishTestProgressUpdate emits a TestProgressUpdate event.
func (b *Bus) PublishTestProgressUpdate(e TestProgressUpdate) {
	b.publish(KindTestProgressUpdate, e, e.Timestamp)
}

// PublishTestStatusChanged emits a TestStatusChanged event.
func (b *Bus) PublishTestStatusChanged(e TestStatusChanged) {
	b.publish(KindTestStatusChanged, e, e.Timestamp)
}

// PublishTestCompleted emits a TestCompleted event.
func (b *Bus) PublishTestCompleted(e TestCompleted) {
	b.publish(KindTestCompleted, e, e.Timestamp)
}
