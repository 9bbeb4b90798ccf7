package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dj1530954213/fatengine/configs"
	"github.com/dj1530954213/fatengine/model"
	"github.com/goccy/go-json"
	"github.com/tidwall/wal"
)

// MemStore is the single-host Store backend: a pair of sync.Maps hold the
// live rows, small maps guarded by rwLock answer the by-batch and
// by-name lookups, and a write-ahead log records every write.
// NewMemStore does not read existing log records back, so a reopened
// store starts with no rows.
type MemStore struct {
	instances sync.Map // uint64 -> *model.ChannelInstance
	batches   sync.Map // uint64 -> *model.TestBatch
	globals   sync.Map // model.GlobalCheckKey -> *model.GlobalCheck

	idx        rwLock
	byBatch    map[uint64]map[uint64]struct{} // batchID -> set of instanceID
	byBatchName map[string]uint64             // batch name -> batchID

	log    *wal.Log
	logMu  sync.Mutex
	lsn    uint64
	buffer *wal.Batch

	done chan struct{}
	wg   sync.WaitGroup
}

type walRecord struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// NewMemStore opens (or creates) a write-ahead log under dir and starts
// its background coalescing flush loop, grounded on
// LogManager.localBatchSyncLogger.
func NewMemStore(dir string) (*MemStore, error) {
	l, err := wal.Open(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("store: opening wal at %s: %w", dir, err)
	}
	last, err := l.LastIndex()
	if err != nil {
		return nil, fmt.Errorf("store: reading wal index: %w", err)
	}
	m := &MemStore{
		byBatch:     make(map[uint64]map[uint64]struct{}),
		byBatchName: make(map[string]uint64),
		log:         l,
		lsn:         last,
		buffer:      &wal.Batch{},
		done:        make(chan struct{}),
	}
	m.wg.Add(1)
	go m.flushLoop()
	return m, nil
}

func (m *MemStore) appendRecord(kind string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		configs.TPrintf("store: failed to marshal %s record: %v", kind, err)
		return
	}
	rec, err := json.Marshal(walRecord{Kind: kind, Payload: data})
	if err != nil {
		configs.TPrintf("store: failed to marshal envelope: %v", err)
		return
	}
	m.logMu.Lock()
	m.lsn++
	m.buffer.Write(m.lsn, rec)
	m.logMu.Unlock()
}

func (m *MemStore) flushLoop() {
	defer m.wg.Done()
	lastFlushed := uint64(0)
	for {
		select {
		case <-time.After(configs.CoalesceWaitWindow):
			m.logMu.Lock()
			if m.lsn == lastFlushed {
				m.logMu.Unlock()
				continue
			}
			err := m.log.WriteBatch(m.buffer)
			lastFlushed = m.lsn
			m.buffer = &wal.Batch{}
			m.logMu.Unlock()
			if err != nil {
				configs.TPrintf("store: wal batch write failed: %v", err)
			}
		case <-m.done:
			return
		}
	}
}

func (m *MemStore) UpsertBatch(ctx context.Context, batch *model.TestBatch) error {
	m.idx.Lock()
	m.byBatchName[batch.BatchName] = batch.BatchID
	if _, ok := m.byBatch[batch.BatchID]; !ok {
		m.byBatch[batch.BatchID] = make(map[uint64]struct{})
	}
	m.idx.Unlock()
	m.batches.Store(batch.BatchID, batch)
	m.appendRecord("batch", batch)
	return nil
}

func (m *MemStore) GetBatch(ctx context.Context, batchID uint64) (*model.TestBatch, error) {
	v, ok := m.batches.Load(batchID)
	if !ok {
		return nil, ErrNotFound
	}
	return v.(*model.TestBatch), nil
}

func (m *MemStore) GetBatchByName(ctx context.Context, name string) (*model.TestBatch, error) {
	m.idx.RLock()
	id, ok := m.byBatchName[name]
	m.idx.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.GetBatch(ctx, id)
}

func (m *MemStore) ListBatches(ctx context.Context) ([]*model.TestBatch, error) {
	out := make([]*model.TestBatch, 0)
	m.batches.Range(func(_, v interface{}) bool {
		out = append(out, v.(*model.TestBatch))
		return true
	})
	return out, nil
}

func (m *MemStore) DeleteBatch(ctx context.Context, batchID uint64) error {
	batch, err := m.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	m.idx.Lock()
	ids := m.byBatch[batchID]
	delete(m.byBatch, batchID)
	delete(m.byBatchName, batch.BatchName)
	m.idx.Unlock()
	for id := range ids {
		m.instances.Delete(id)
	}
	m.batches.Delete(batchID)
	m.appendRecord("delete_batch", batchID)
	return nil
}

func (m *MemStore) UpsertInstances(ctx context.Context, instances []*model.ChannelInstance) error {
	for _, inst := range instances {
		m.instances.Store(inst.InstanceID, inst)
		m.idx.Lock()
		set, ok := m.byBatch[inst.BatchID]
		if !ok {
			set = make(map[uint64]struct{})
			m.byBatch[inst.BatchID] = set
		}
		set[inst.InstanceID] = struct{}{}
		m.idx.Unlock()
	}
	m.appendRecord("instances", instances)
	return nil
}

func (m *MemStore) GetInstance(ctx context.Context, instanceID uint64) (*model.ChannelInstance, error) {
	v, ok := m.instances.Load(instanceID)
	if !ok {
		return nil, ErrNotFound
	}
	return v.(*model.ChannelInstance), nil
}

func (m *MemStore) GetInstancesByBatch(ctx context.Context, batchID uint64) ([]*model.ChannelInstance, error) {
	m.idx.RLock()
	ids := make([]uint64, 0, len(m.byBatch[batchID]))
	for id := range m.byBatch[batchID] {
		ids = append(ids, id)
	}
	m.idx.RUnlock()
	out := make([]*model.ChannelInstance, 0, len(ids))
	for _, id := range ids {
		if v, ok := m.instances.Load(id); ok {
			out = append(out, v.(*model.ChannelInstance))
		}
	}
	return out, nil
}

func (m *MemStore) UpsertGlobalCheck(ctx context.Context, check *model.GlobalCheck) error {
	m.globals.Store(check.Key(), check)
	m.appendRecord("global_check", check)
	return nil
}

func (m *MemStore) GetGlobalChecks(ctx context.Context, station string, importTime time.Time) ([]*model.GlobalCheck, error) {
	out := make([]*model.GlobalCheck, 0)
	m.globals.Range(func(k, v interface{}) bool {
		key := k.(model.GlobalCheckKey)
		if key.StationName == station && key.ImportTime.Equal(importTime) {
			out = append(out, v.(*model.GlobalCheck))
		}
		return true
	})
	return out, nil
}

func (m *MemStore) Close() error {
	close(m.done)
	m.wg.Wait()
	m.logMu.Lock()
	_ = m.log.WriteBatch(m.buffer)
	m.logMu.Unlock()
	return m.log.Close()
}
