// Package orchestrator is the engine's composition root and command
// surface: every UI/CLI verb funnels through one of its methods, which
// delegates to Allocator/TaskManager/ManualTestIo/Store and is the sole
// publisher on the event bus.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dj1530954213/fatengine/allocator"
	"github.com/dj1530954213/fatengine/channelstate"
	"github.com/dj1530954213/fatengine/errs"
	"github.com/dj1530954213/fatengine/events"
	"github.com/dj1530954213/fatengine/manualio"
	"github.com/dj1530954213/fatengine/model"
	"github.com/dj1530954213/fatengine/resultservice"
	"github.com/dj1530954213/fatengine/store"
	"github.com/dj1530954213/fatengine/taskmanager"
)

// BatchDetails bundles what get_batch_details returns.
type BatchDetails struct {
	Batch             *model.TestBatch
	Instances         []*model.ChannelInstance
	Definitions       []*model.PointDefinition
	AllocationSummary []string
}

// ConnectResult is the {success, message} pair connect_plc returns.
type ConnectResult struct {
	Success bool
	Message string
}

// Orchestrator wires every component into a single command surface.
type Orchestrator struct {
	st     store.Store
	tm     *taskmanager.TaskManager
	result *resultservice.Service
	manual *manualio.ManualTestIo
	bus    *events.Bus
	pools  []*allocator.ChannelPool

	mu            sync.Mutex
	pendingDefs   map[string][]*model.PointDefinition // keyed by model.BatchName(station, importTime)
	defsByID      map[uint64]*model.PointDefinition
	instancesByID map[uint64]*model.ChannelInstance
	batchInstance map[uint64][]uint64 // batch_id -> instance_ids, insertion order
	batches       map[uint64]*model.TestBatch
}

// New wires an Orchestrator over st, with tasks run by tm, durability
// coalesced by result, manual I/O driven by manual, events published on
// bus, and channels assignable from pools.
func New(st store.Store, tm *taskmanager.TaskManager, result *resultservice.Service, manual *manualio.ManualTestIo, bus *events.Bus, pools []*allocator.ChannelPool) *Orchestrator {
	return &Orchestrator{
		st:            st,
		tm:            tm,
		result:        result,
		manual:        manual,
		bus:           bus,
		pools:         pools,
		pendingDefs:   make(map[string][]*model.PointDefinition),
		defsByID:      make(map[uint64]*model.PointDefinition),
		instancesByID: make(map[uint64]*model.ChannelInstance),
		batchInstance: make(map[uint64][]uint64),
		batches:       make(map[uint64]*model.TestBatch),
	}
}

// Import stages definitions for one (station, import_time) import, ready
// for a subsequent Allocate call. The spreadsheet parser itself is out of
// scope; this method is the engine's side of the contract.
func (o *Orchestrator) Import(station string, importTime time.Time, defs []*model.PointDefinition) {
	key := model.BatchName(station, importTime)
	o.mu.Lock()
	o.pendingDefs[key] = defs
	for _, d := range defs {
		o.defsByID[d.ID] = d
	}
	o.mu.Unlock()
}

// Allocate assigns test-PLC channels to every definition imported for
// (station, import_time), persists the resulting batch and instances, and
// tracks them for later commands.
func (o *Orchestrator) Allocate(ctx context.Context, station string, importTime time.Time) (*model.TestBatch, error) {
	key := model.BatchName(station, importTime)
	o.mu.Lock()
	defs := o.pendingDefs[key]
	o.mu.Unlock()
	if len(defs) == 0 {
		return nil, errs.New(errs.KindConfig, "no definitions imported for station %q at %s", station, importTime)
	}

	batch, instances := allocator.Allocate(station, importTime, defs, o.pools)

	if err := o.st.UpsertBatch(ctx, batch); err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "persisting allocated batch %d", batch.BatchID)
	}
	if err := o.st.UpsertInstances(ctx, instances); err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "persisting allocated instances for batch %d", batch.BatchID)
	}

	o.mu.Lock()
	o.batches[batch.BatchID] = batch
	ids := make([]uint64, 0, len(instances))
	for _, inst := range instances {
		o.instancesByID[inst.InstanceID] = inst
		ids = append(ids, inst.InstanceID)
	}
	o.batchInstance[batch.BatchID] = ids
	o.mu.Unlock()

	o.publishBatchStatus(batch)
	return batch, nil
}

// ConfirmWiring gates a batch for execution, building one task per
// non-skipped instance.
func (o *Orchestrator) ConfirmWiring(batchID uint64) error {
	batch, instances, err := o.snapshotBatch(batchID)
	if err != nil {
		return err
	}
	defs := o.defsFor(instances)
	return o.tm.ConfirmWiring(batch, instances, defs)
}

// StartBatchAutoTest runs every confirmed task in the batch and publishes
// the resulting status/completion events.
func (o *Orchestrator) StartBatchAutoTest(ctx context.Context, batchID uint64) error {
	if err := o.tm.StartAll(ctx); err != nil {
		return err
	}

	o.mu.Lock()
	batch := o.batches[batchID]
	ids := append([]uint64(nil), o.batchInstance[batchID]...)
	o.mu.Unlock()

	for _, id := range ids {
		o.mu.Lock()
		inst := o.instancesByID[id]
		o.mu.Unlock()
		if inst == nil {
			continue
		}
		o.publishTestStatus(inst)
		o.publishTestCompleted(inst)
	}
	if batch != nil {
		o.publishBatchStatus(batch)
	}
	return nil
}

// Pause/Resume/Stop delegate straight to the TaskManager.
func (o *Orchestrator) Pause()  { o.tm.PauseAll() }
func (o *Orchestrator) Resume() { o.tm.ResumeAll() }
func (o *Orchestrator) Stop()   { o.tm.StopAll() }

// RetestChannel reruns a single instance's hard point and publishes its
// new status.
func (o *Orchestrator) RetestChannel(ctx context.Context, instanceID uint64) error {
	inst, def, err := o.lookupInstanceAndDef(instanceID)
	if err != nil {
		return err
	}
	if err := o.tm.Retest(ctx, instanceID, def); err != nil {
		return err
	}
	o.publishTestStatus(inst)
	o.publishTestCompleted(inst)
	if batch := o.batchOf(inst); batch != nil {
		o.recomputeAndPublish(batch)
	}
	return nil
}

// SkipChannel marks instanceID Skipped with every sub-item NotApplicable
// and queues it for persistence through the result service.
func (o *Orchestrator) SkipChannel(instanceID uint64, reason string) error {
	o.mu.Lock()
	inst, ok := o.instancesByID[instanceID]
	o.mu.Unlock()
	if !ok {
		return errs.New(errs.KindState, "instance %d is not tracked", instanceID)
	}
	channelstate.Skip(inst, reason)
	o.result.EnqueueRetest(inst)
	o.publishTestStatus(inst)
	if batch := o.batchOf(inst); batch != nil {
		o.recomputeAndPublish(batch)
	}
	return nil
}

// SaveErrorNotes persists the three optional note classes for instanceID;
// a nil pointer leaves that note unchanged.
func (o *Orchestrator) SaveErrorNotes(instanceID uint64, integration, plcProgramming, hmiConfiguration *string) error {
	o.mu.Lock()
	inst, ok := o.instancesByID[instanceID]
	o.mu.Unlock()
	if !ok {
		return errs.New(errs.KindState, "instance %d is not tracked", instanceID)
	}
	if integration != nil {
		inst.IntegrationNote = *integration
	}
	if plcProgramming != nil {
		inst.PLCProgrammingNote = *plcProgramming
	}
	if hmiConfiguration != nil {
		inst.HMIConfigurationNote = *hmiConfiguration
	}
	o.result.EnqueueRetest(inst)
	return nil
}

// UpdateGlobalCheck persists check.
func (o *Orchestrator) UpdateGlobalCheck(ctx context.Context, check *model.GlobalCheck) error {
	if err := o.st.UpsertGlobalCheck(ctx, check); err != nil {
		return errs.Wrap(errs.KindStorage, err, "persisting global check %+v", check.Key())
	}
	return nil
}

// GetGlobalChecks returns every global check row for (station, import_time).
func (o *Orchestrator) GetGlobalChecks(ctx context.Context, station string, importTime time.Time) ([]*model.GlobalCheck, error) {
	checks, err := o.st.GetGlobalChecks(ctx, station, importTime)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "loading global checks for %q", station)
	}
	return checks, nil
}

// ResetGlobalCheck returns check's status to NotTested and re-persists it.
func (o *Orchestrator) ResetGlobalCheck(ctx context.Context, check *model.GlobalCheck) error {
	check.Status = model.SubNotTested
	check.StartTime, check.EndTime = time.Time{}, time.Time{}
	return o.UpdateGlobalCheck(ctx, check)
}

// ListBatches returns every known batch.
func (o *Orchestrator) ListBatches(ctx context.Context) ([]*model.TestBatch, error) {
	batches, err := o.st.ListBatches(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "listing batches")
	}
	return batches, nil
}

// GetBatchDetails returns the batch, its instances, their definitions, and
// the allocation-error summary.
func (o *Orchestrator) GetBatchDetails(ctx context.Context, batchID uint64) (*BatchDetails, error) {
	batch, err := o.st.GetBatch(ctx, batchID)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "loading batch %d", batchID)
	}
	instances, err := o.st.GetInstancesByBatch(ctx, batchID)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, err, "loading instances for batch %d", batchID)
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].InstanceID < instances[j].InstanceID })

	defs := o.defsFor(instances)
	defList := make([]*model.PointDefinition, 0, len(defs))
	for _, inst := range instances {
		if d := defs[inst.DefinitionID]; d != nil {
			defList = append(defList, d)
		}
	}
	return &BatchDetails{
		Batch:             batch,
		Instances:         instances,
		Definitions:       defList,
		AllocationSummary: batch.AllocationErrors,
	}, nil
}

// ConnectPlc connects both PLC links and reports the outcome.
func (o *Orchestrator) ConnectPlc(ctx context.Context) ConnectResult {
	if err := o.tm.EnsurePlcConnections(ctx); err != nil {
		return ConnectResult{Success: false, Message: err.Error()}
	}
	return ConnectResult{Success: true, Message: "connected"}
}

// Manual exposes the ManualTestIo used for the operator-driven manual test
// phase, so callers can start/stop its loops directly.
func (o *Orchestrator) Manual() *manualio.ManualTestIo { return o.manual }

// Events returns the bus every verb above publishes to.
func (o *Orchestrator) Events() *events.Bus { return o.bus }

func (o *Orchestrator) snapshotBatch(batchID uint64) (*model.TestBatch, []*model.ChannelInstance, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	batch, ok := o.batches[batchID]
	if !ok {
		return nil, nil, errs.New(errs.KindState, "batch %d is not tracked", batchID)
	}
	ids := o.batchInstance[batchID]
	instances := make([]*model.ChannelInstance, 0, len(ids))
	for _, id := range ids {
		if inst := o.instancesByID[id]; inst != nil {
			instances = append(instances, inst)
		}
	}
	return batch, instances, nil
}

func (o *Orchestrator) defsFor(instances []*model.ChannelInstance) map[uint64]*model.PointDefinition {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[uint64]*model.PointDefinition, len(instances))
	for _, inst := range instances {
		if d := o.defsByID[inst.DefinitionID]; d != nil {
			out[inst.DefinitionID] = d
		}
	}
	return out
}

func (o *Orchestrator) lookupInstanceAndDef(instanceID uint64) (*model.ChannelInstance, *model.PointDefinition, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	inst, ok := o.instancesByID[instanceID]
	if !ok {
		return nil, nil, errs.New(errs.KindState, "instance %d is not tracked", instanceID)
	}
	def, ok := o.defsByID[inst.DefinitionID]
	if !ok {
		return nil, nil, errs.New(errs.KindConfig, "no point definition for instance %d", instanceID)
	}
	return inst, def, nil
}

func (o *Orchestrator) batchOf(inst *model.ChannelInstance) *model.TestBatch {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.batches[inst.BatchID]
}

func (o *Orchestrator) recomputeAndPublish(batch *model.TestBatch) {
	o.mu.Lock()
	ids := o.batchInstance[batch.BatchID]
	instances := make([]*model.ChannelInstance, 0, len(ids))
	for _, id := range ids {
		if inst := o.instancesByID[id]; inst != nil {
			instances = append(instances, inst)
		}
	}
	o.mu.Unlock()
	batch.Recompute(instances)
	o.publishBatchStatus(batch)
}

func (o *Orchestrator) publishBatchStatus(batch *model.TestBatch) {
	if o.bus == nil {
		return
	}
	o.bus.PublishBatchStatusChanged(events.BatchStatusChanged{
		BatchID:   batch.BatchID,
		Name:      batch.BatchName,
		Total:     batch.TotalPoints,
		Passed:    batch.Passed,
		Failed:    batch.Failed,
		Skipped:   batch.Skipped,
		Timestamp: time.Now(),
	})
}

func (o *Orchestrator) publishTestStatus(inst *model.ChannelInstance) {
	if o.bus == nil {
		return
	}
	o.bus.PublishTestStatusChanged(events.TestStatusChanged{
		InstanceID:      inst.InstanceID,
		HardPointStatus: inst.HardPointStatus,
		OverallStatus:   inst.OverallStatus,
		Timestamp:       time.Now(),
	})
}

func (o *Orchestrator) publishTestCompleted(inst *model.ChannelInstance) {
	if o.bus == nil {
		return
	}
	success := inst.HardPointStatus == model.HPPassed
	detail := inst.ErrorMessage
	if detail == "" && !success {
		detail = fmt.Sprintf("hard point %s", inst.HardPointStatus)
	}
	o.bus.PublishTestCompleted(events.TestCompleted{
		InstanceID: inst.InstanceID,
		Success:    success,
		Detail:     detail,
		Timestamp:  time.Now(),
	})
}
