package resultservice

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dj1530954213/fatengine/model"
	"github.com/dj1530954213/fatengine/store"
	"github.com/stretchr/testify/assert"
)

func newTestStore(t *testing.T) *store.MemStore {
	dir, err := os.MkdirTemp("", "fatengine-result-*")
	assert.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	m, err := store.NewMemStore(dir)
	assert.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestServiceFlushesOnBatchThreshold(t *testing.T) {
	st := newTestStore(t)
	svc := New(st)
	defer svc.Stop()

	batch := model.NewTestBatch("S1", time.Now())
	assert.NoError(t, st.UpsertBatch(context.Background(), batch))

	instances := make([]*model.ChannelInstance, 0, 10)
	for i := 0; i < 10; i++ {
		instances = append(instances, model.NewChannelInstance(uint64(i), batch.BatchID))
	}
	svc.Enqueue(instances...)

	assert.Eventually(t, func() bool {
		got, err := st.GetInstancesByBatch(context.Background(), batch.BatchID)
		return err == nil && len(got) == 10
	}, time.Second, 10*time.Millisecond)
}

func TestServiceFlushesAfterWaitWindow(t *testing.T) {
	st := newTestStore(t)
	svc := New(st)
	defer svc.Stop()

	batch := model.NewTestBatch("S2", time.Now())
	assert.NoError(t, st.UpsertBatch(context.Background(), batch))
	inst := model.NewChannelInstance(1, batch.BatchID)
	svc.Enqueue(inst)

	assert.Eventually(t, func() bool {
		_, err := st.GetInstance(context.Background(), inst.InstanceID)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestServiceDrainsOnStop(t *testing.T) {
	st := newTestStore(t)
	svc := New(st)

	batch := model.NewTestBatch("S3", time.Now())
	assert.NoError(t, st.UpsertBatch(context.Background(), batch))
	inst := model.NewChannelInstance(1, batch.BatchID)
	svc.Enqueue(inst)
	svc.Stop()

	_, err := st.GetInstance(context.Background(), inst.InstanceID)
	assert.NoError(t, err)
}
