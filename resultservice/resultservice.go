// Package resultservice is a durable coalescing write queue: a background
// worker collects up to N instance snapshots (or whatever arrives within
// a wait window) and flushes them in one Store call.
package resultservice

import (
	"context"
	"sync"
	"time"

	"github.com/dj1530954213/fatengine/configs"
	"github.com/dj1530954213/fatengine/model"
	"github.com/dj1530954213/fatengine/store"
)

// Service owns one background flush loop per store it is given.
type Service struct {
	st store.Store

	mu      sync.Mutex
	pending []*model.ChannelInstance

	notify chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// New starts the background worker immediately.
func New(st store.Store) *Service {
	s := &Service{
		st:     st,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Enqueue appends instances to the pending batch; a full apply-outcomes
// run enqueues every instance of the batch in one call.
func (s *Service) Enqueue(instances ...*model.ChannelInstance) {
	if len(instances) == 0 {
		return
	}
	s.mu.Lock()
	s.pending = append(s.pending, instances...)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// EnqueueRetest is Enqueue for the single-row retest path; kept as a
// distinct name so call sites read clearly even though both funnel into
// the same coalescing queue.
func (s *Service) EnqueueRetest(inst *model.ChannelInstance) {
	s.Enqueue(inst)
}

func (s *Service) takeBatch(max int) []*model.ChannelInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	n := max
	if n > len(s.pending) {
		n = len(s.pending)
	}
	batch := s.pending[:n]
	s.pending = s.pending[n:]
	return batch
}

func (s *Service) hasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

func (s *Service) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.notify:
			for s.hasPending() {
				s.drainOnce()
			}
		case <-s.done:
			s.drainRemaining()
			return
		}
	}
}

// drainOnce collects up to CoalesceBatchSize items immediately available,
// or waits up to CoalesceWaitWindow for more to arrive, then flushes.
func (s *Service) drainOnce() {
	batch := s.takeBatch(configs.CoalesceBatchSize)
	if batch == nil {
		return
	}
	if len(batch) < configs.CoalesceBatchSize {
		select {
		case <-time.After(configs.CoalesceWaitWindow):
		case <-s.notify:
		}
		if more := s.takeBatch(configs.CoalesceBatchSize - len(batch)); more != nil {
			batch = append(batch, more...)
		}
	}
	s.flush(batch)
}

func (s *Service) flush(batch []*model.ChannelInstance) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), configs.LinkOpTimeout)
	defer cancel()
	if err := s.st.UpsertInstances(ctx, batch); err != nil {
		configs.TPrintf("resultservice: flush of %d instances failed: %v", len(batch), err)
	}
}

// drainRemaining flushes whatever is still pending, bounded by
// DrainTimeout, run once on shutdown.
func (s *Service) drainRemaining() {
	deadline := time.Now().Add(configs.DrainTimeout)
	for s.hasPending() && time.Now().Before(deadline) {
		batch := s.takeBatch(configs.CoalesceBatchSize)
		s.flush(batch)
	}
}

// Stop signals the worker to drain and exit, blocking until it does.
func (s *Service) Stop() {
	close(s.done)
	s.wg.Wait()
}
