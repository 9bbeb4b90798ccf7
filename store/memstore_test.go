package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dj1530954213/fatengine/model"
	"github.com/stretchr/testify/assert"
)

func newTestMemStore(t *testing.T) *MemStore {
	dir, err := os.MkdirTemp("", "fatengine-store-*")
	assert.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	m, err := NewMemStore(dir)
	assert.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestMemStoreBatchRoundTrip(t *testing.T) {
	m := newTestMemStore(t)
	ctx := context.Background()
	batch := model.NewTestBatch("STATION-1", time.Now())

	assert.NoError(t, m.UpsertBatch(ctx, batch))

	got, err := m.GetBatch(ctx, batch.BatchID)
	assert.NoError(t, err)
	assert.Equal(t, batch.BatchName, got.BatchName)

	byName, err := m.GetBatchByName(ctx, batch.BatchName)
	assert.NoError(t, err)
	assert.Equal(t, batch.BatchID, byName.BatchID)
}

func TestMemStoreInstanceCascadeDelete(t *testing.T) {
	m := newTestMemStore(t)
	ctx := context.Background()
	batch := model.NewTestBatch("STATION-2", time.Now())
	assert.NoError(t, m.UpsertBatch(ctx, batch))

	inst := model.NewChannelInstance(1, batch.BatchID)
	assert.NoError(t, m.UpsertInstances(ctx, []*model.ChannelInstance{inst}))

	list, err := m.GetInstancesByBatch(ctx, batch.BatchID)
	assert.NoError(t, err)
	assert.Len(t, list, 1)

	assert.NoError(t, m.DeleteBatch(ctx, batch.BatchID))
	_, err = m.GetInstance(ctx, inst.InstanceID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStoreUnknownBatchNotFound(t *testing.T) {
	m := newTestMemStore(t)
	_, err := m.GetBatch(context.Background(), 99999)
	assert.ErrorIs(t, err, ErrNotFound)
}
