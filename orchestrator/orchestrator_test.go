package orchestrator

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dj1530954213/fatengine/allocator"
	"github.com/dj1530954213/fatengine/events"
	"github.com/dj1530954213/fatengine/manualio"
	"github.com/dj1530954213/fatengine/model"
	"github.com/dj1530954213/fatengine/plclink"
	"github.com/dj1530954213/fatengine/resultservice"
	"github.com/dj1530954213/fatengine/store"
	"github.com/dj1530954213/fatengine/taskmanager"
	"github.com/stretchr/testify/assert"
)

func newHarness(t *testing.T) (*Orchestrator, *plclink.StubLink, *plclink.StubLink, *store.MemStore) {
	dir, err := os.MkdirTemp("", "fatengine-orchestrator-*")
	assert.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	st, err := store.NewMemStore(dir)
	assert.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	result := resultservice.New(st)
	t.Cleanup(result.Stop)

	testLink := plclink.NewStubLink()
	targetLink := plclink.NewStubLink()
	tm := taskmanager.New(taskmanager.Links{TestPlc: testLink, TargetPlc: targetLink}, result)
	manual := manualio.New(testLink, targetLink)
	bus := events.NewBus()

	pools := []*allocator.ChannelPool{
		{ModuleType: model.ModuleDI, Channels: []allocator.Channel{{Tag: "T1", Address: "X1001"}, {Tag: "T2", Address: "X1002"}}},
	}
	o := New(st, tm, result, manual, bus, pools)
	return o, testLink, targetLink, st
}

func diDef(id uint64, station, tag string) *model.PointDefinition {
	d := model.NewPointDefinition()
	d.ID = id
	d.StationName = station
	d.Tag = tag
	d.ModuleType = model.ModuleDI
	d.PlcAddress = "Y5001"
	return d
}

func TestImportAllocateConfirmAndStart(t *testing.T) {
	o, _, targetLink, _ := newHarness(t)
	ctx := context.Background()
	importTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, o.tm.EnsurePlcConnections(ctx))
	for _, v := range []bool{false, true, false} {
		targetLink.SeedBool("Y5001", v)
	}

	o.Import("S1", importTime, []*model.PointDefinition{diDef(1, "S1", "A")})
	batch, err := o.Allocate(ctx, "S1", importTime)
	assert.NoError(t, err)
	assert.Equal(t, 1, batch.TotalPoints)

	assert.NoError(t, o.ConfirmWiring(batch.BatchID))
	assert.NoError(t, o.StartBatchAutoTest(ctx, batch.BatchID))

	details, err := o.GetBatchDetails(ctx, batch.BatchID)
	assert.NoError(t, err)
	assert.Len(t, details.Instances, 1)
	assert.NotEqual(t, model.OverallNotTested, details.Instances[0].OverallStatus)
}

func TestAllocateWithoutImportIsConfigError(t *testing.T) {
	o, _, _, _ := newHarness(t)
	_, err := o.Allocate(context.Background(), "Unknown", time.Now())
	assert.Error(t, err)
}

func TestSkipChannelMarksSkippedAndPersists(t *testing.T) {
	o, _, _, st := newHarness(t)
	ctx := context.Background()
	importTime := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	o.Import("S2", importTime, []*model.PointDefinition{diDef(2, "S2", "A")})
	batch, err := o.Allocate(ctx, "S2", importTime)
	assert.NoError(t, err)

	instanceID := o.batchInstance[batch.BatchID][0]
	assert.NoError(t, o.SkipChannel(instanceID, "no wire"))

	assert.Eventually(t, func() bool {
		got, err := st.GetInstance(ctx, instanceID)
		return err == nil && got.OverallStatus == model.OverallSkipped
	}, time.Second, 10*time.Millisecond)
}

func TestEventsPublishedOnAllocateAndStart(t *testing.T) {
	o, _, targetLink, _ := newHarness(t)
	ctx := context.Background()
	importTime := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, o.tm.EnsurePlcConnections(ctx))
	targetLink.SeedBool("Y5001", false)

	ch, unsubscribe := o.Events().Subscribe(16)
	defer unsubscribe()

	o.Import("S3", importTime, []*model.PointDefinition{diDef(3, "S3", "A")})
	batch, err := o.Allocate(ctx, "S3", importTime)
	assert.NoError(t, err)

	select {
	case evt := <-ch:
		assert.Equal(t, events.KindBatchStatusChanged, evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for BatchStatusChanged on allocate")
	}

	assert.NoError(t, o.ConfirmWiring(batch.BatchID))
	assert.NoError(t, o.StartBatchAutoTest(ctx, batch.BatchID))

	sawCompleted := false
	for i := 0; i < 8; i++ {
		select {
		case evt := <-ch:
			if evt.Kind == events.KindTestCompleted {
				sawCompleted = true
			}
		case <-time.After(time.Second):
			i = 8
		}
	}
	assert.True(t, sawCompleted)
}
