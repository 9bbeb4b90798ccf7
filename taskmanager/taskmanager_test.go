package taskmanager

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dj1530954213/fatengine/model"
	"github.com/dj1530954213/fatengine/plclink"
	"github.com/dj1530954213/fatengine/resultservice"
	"github.com/dj1530954213/fatengine/store"
	"github.com/stretchr/testify/assert"
)

func newHarness(t *testing.T) (*TaskManager, *plclink.StubLink, *plclink.StubLink, *store.MemStore) {
	dir, err := os.MkdirTemp("", "fatengine-taskmanager-*")
	assert.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	st, err := store.NewMemStore(dir)
	assert.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	result := resultservice.New(st)
	t.Cleanup(result.Stop)

	testLink := plclink.NewStubLink()
	targetLink := plclink.NewStubLink()
	tm := New(Links{TestPlc: testLink, TargetPlc: targetLink}, result)
	return tm, testLink, targetLink, st
}

func diDef(id uint64) *model.PointDefinition {
	d := model.NewPointDefinition()
	d.ID = id
	d.ModuleType = model.ModuleDI
	d.PlcAddress = "Y5001"
	return d
}

func TestTaskManagerEnsurePlcConnections(t *testing.T) {
	tm, _, _, _ := newHarness(t)
	assert.NoError(t, tm.EnsurePlcConnections(context.Background()))
	assert.Equal(t, plclink.HealthHealthy, tm.HealthOf("test-plc"))
}

func TestTaskManagerStartAllAppliesOutcomesAndPersists(t *testing.T) {
	tm, _, targetLink, st := newHarness(t)
	ctx := context.Background()
	assert.NoError(t, tm.EnsurePlcConnections(ctx))

	for _, v := range []bool{false, true, false} {
		targetLink.SeedBool("Y5001", v)
	}

	def := diDef(1)
	batch := model.NewTestBatch("S1", time.Now())
	inst := model.NewChannelInstance(def.ID, batch.BatchID)
	inst.ModuleType = model.ModuleDI
	inst.TestPlcAddress = "X6001"
	assert.NoError(t, st.UpsertBatch(ctx, batch))

	defs := map[uint64]*model.PointDefinition{def.ID: def}
	assert.NoError(t, tm.ConfirmWiring(batch, []*model.ChannelInstance{inst}, defs))
	assert.NoError(t, tm.StartAll(ctx))

	assert.NotEqual(t, model.HPNotTested, inst.HardPointStatus)
	assert.NotEqual(t, model.OverallNotTested, inst.OverallStatus)

	assert.Eventually(t, func() bool {
		_, err := st.GetInstance(ctx, inst.InstanceID)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestTaskManagerRejectsStartBeforeWiringConfirmed(t *testing.T) {
	tm, _, _, _ := newHarness(t)
	err := tm.StartAll(context.Background())
	assert.Error(t, err)
}

func TestTaskManagerStartAllWithCancelledContextFailsTask(t *testing.T) {
	tm, _, _, st := newHarness(t)
	ctx := context.Background()
	assert.NoError(t, tm.EnsurePlcConnections(ctx))

	def := diDef(2)
	batch := model.NewTestBatch("S2", time.Now())
	inst := model.NewChannelInstance(def.ID, batch.BatchID)
	inst.ModuleType = model.ModuleDI
	inst.TestPlcAddress = "X7001"
	assert.NoError(t, st.UpsertBatch(ctx, batch))

	defs := map[uint64]*model.PointDefinition{def.ID: def}
	assert.NoError(t, tm.ConfirmWiring(batch, []*model.ChannelInstance{inst}, defs))

	runCtx, cancel := context.WithCancel(ctx)
	cancel()
	assert.NoError(t, tm.StartAll(runCtx))
	assert.Equal(t, model.HPFailed, inst.HardPointStatus)
}
