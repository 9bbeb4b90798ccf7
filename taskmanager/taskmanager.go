// Package taskmanager owns the bounded-concurrency execution of a batch's
// HardPointTasks, tracking live tasks in a sync.Map and bounding
// concurrent PLC access with a weighted semaphore.
package taskmanager

import (
	"context"
	"sort"
	"sync"

	"github.com/dj1530954213/fatengine/channelstate"
	"github.com/dj1530954213/fatengine/configs"
	"github.com/dj1530954213/fatengine/errs"
	"github.com/dj1530954213/fatengine/model"
	"github.com/dj1530954213/fatengine/plclink"
	"github.com/dj1530954213/fatengine/resultservice"
	"github.com/dj1530954213/fatengine/tasks"
	"golang.org/x/sync/semaphore"
)

// Links groups the two PLC connections every task variant shares.
type Links struct {
	TestPlc   plclink.PlcLink
	TargetPlc plclink.PlcLink
}

// TaskManager runs one batch's tasks at a time, owning a single master
// cancellation source for whichever batch is currently running.
type TaskManager struct {
	links  Links
	health *plclink.HealthTracker
	result *resultservice.Service

	mu              sync.Mutex
	semBound        int64
	sem             *semaphore.Weighted
	running         bool
	wiringConfirmed bool
	pauseGate       *tasks.PauseGate
	cancel          context.CancelFunc

	batch     *model.TestBatch
	instances map[uint64]*model.ChannelInstance
	liveTasks sync.Map // instance_id -> tasks.Task
}

// New returns a TaskManager bound to links and a default semaphore bound,
// flushing completed batches through result.
func New(links Links, result *resultservice.Service) *TaskManager {
	return &TaskManager{
		links:    links,
		health:   plclink.NewHealthTracker("test-plc", "target-plc"),
		result:   result,
		semBound: configs.DefaultSemaphoreBound,
		sem:      semaphore.NewWeighted(configs.DefaultSemaphoreBound),
	}
}

// SetSemaphoreBound changes the concurrency cap; refused while a batch is
// running.
func (m *TaskManager) SetSemaphoreBound(n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errs.New(errs.KindState, "cannot change semaphore bound while a batch is running")
	}
	m.semBound = n
	m.sem = semaphore.NewWeighted(n)
	return nil
}

// EnsurePlcConnections connects both links, short-circuiting start on
// failure.
func (m *TaskManager) EnsurePlcConnections(ctx context.Context) error {
	if err := m.links.TestPlc.Connect(ctx); err != nil {
		m.health.RecordFailure("test-plc")
		return errs.Wrap(errs.KindLink, err, "connecting test PLC")
	}
	m.health.RecordSuccess("test-plc")
	if err := m.links.TargetPlc.Connect(ctx); err != nil {
		m.health.RecordFailure("target-plc")
		return errs.Wrap(errs.KindLink, err, "connecting target PLC")
	}
	m.health.RecordSuccess("target-plc")
	return nil
}

// ConfirmWiring runs prepare_for_wiring over every non-skipped instance of
// batch and builds a fresh task set from defs.
func (m *TaskManager) ConfirmWiring(batch *model.TestBatch, instances []*model.ChannelInstance, defs map[uint64]*model.PointDefinition) error {
	if batch == nil {
		return errs.ErrBatchNil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errs.New(errs.KindState, "cannot confirm wiring while a batch is running")
	}

	m.liveTasks.Range(func(k, _ interface{}) bool { m.liveTasks.Delete(k); return true })
	m.instances = make(map[uint64]*model.ChannelInstance, len(instances))

	for _, inst := range instances {
		m.instances[inst.InstanceID] = inst
		if inst.OverallStatus == model.OverallSkipped {
			continue
		}
		channelstate.PrepareForWiring(inst)
		def := defs[inst.DefinitionID]
		if def == nil {
			return errs.New(errs.KindConfig, "no point definition for instance %d", inst.InstanceID)
		}
		task, err := m.buildTask(inst, def)
		if err != nil {
			return err
		}
		m.liveTasks.Store(inst.InstanceID, task)
	}
	m.batch = batch
	m.wiringConfirmed = true
	return nil
}

func (m *TaskManager) buildTask(inst *model.ChannelInstance, def *model.PointDefinition) (tasks.Task, error) {
	switch inst.ModuleType {
	case model.ModuleAI:
		return &tasks.AITask{Instance: inst, TargetAddr: def.PlcAddress, TestLink: m.links.TestPlc, TargetLink: m.links.TargetPlc}, nil
	case model.ModuleAO:
		return &tasks.AOTask{Instance: inst, TargetAddr: def.PlcAddress, TestLink: m.links.TestPlc, TargetLink: m.links.TargetPlc}, nil
	case model.ModuleDI:
		return &tasks.DITask{Instance: inst, TargetAddr: def.PlcAddress, TestLink: m.links.TestPlc, TargetLink: m.links.TargetPlc}, nil
	case model.ModuleDO:
		return &tasks.DOTask{Instance: inst, TargetAddr: def.PlcAddress, TestLink: m.links.TestPlc, TargetLink: m.links.TargetPlc}, nil
	default:
		return nil, errs.New(errs.KindConfig, "unknown module type %q for instance %d", inst.ModuleType, inst.InstanceID)
	}
}

// StartAll runs every confirmed task up to the semaphore bound, applies
// outcomes on a single thread, then durably snapshots the whole batch.
func (m *TaskManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errs.ErrBatchRunning
	}
	if !m.wiringConfirmed {
		m.mu.Unlock()
		return errs.ErrWiringUnconfirmed
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.pauseGate = tasks.NewPauseGate()
	m.running = true
	gate := m.pauseGate
	sem := m.sem
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.cancel = nil
		m.mu.Unlock()
	}()

	ordered := m.orderedInstanceIDs()
	outcomes := make(map[uint64]channelstate.HardPointOutcome, len(ordered))
	var outcomesMu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range ordered {
		v, ok := m.liveTasks.Load(id)
		if !ok {
			continue
		}
		task := v.(tasks.Task)
		if err := sem.Acquire(runCtx, 1); err != nil {
			outcomesMu.Lock()
			outcomes[id] = channelstate.HardPointOutcome{IsSuccess: false, Detail: "cancelled"}
			outcomesMu.Unlock()
			continue
		}
		wg.Add(1)
		go func(id uint64, task tasks.Task) {
			defer wg.Done()
			defer sem.Release(1)
			inst := m.instances[id]
			channelstate.BeginHardPoint(inst)
			outcome := task.Run(runCtx, gate)
			outcomesMu.Lock()
			outcomes[id] = outcome
			outcomesMu.Unlock()
		}(id, task)
	}
	wg.Wait()

	all := make([]*model.ChannelInstance, 0, len(m.instances))
	for id, inst := range m.instances {
		if outcome, ok := outcomes[id]; ok {
			channelstate.SetHardPointOutcome(inst, outcome)
		}
		all = append(all, inst)
	}
	if m.batch != nil {
		m.batch.Recompute(all)
	}
	if m.result != nil {
		m.result.Enqueue(all...)
	}
	return nil
}

func (m *TaskManager) orderedInstanceIDs() []uint64 {
	ids := make([]uint64, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Retest resets and reruns a single instance, then durably overwrites
// just that row. The instance must have been registered by a prior
// ConfirmWiring; StartAll need not have run.
func (m *TaskManager) Retest(ctx context.Context, instanceID uint64, def *model.PointDefinition) error {
	m.mu.Lock()
	inst, ok := m.instances[instanceID]
	m.mu.Unlock()
	if !ok {
		return errs.New(errs.KindState, "instance %d is not tracked by this task manager", instanceID)
	}
	if inst.OverallStatus == model.OverallSkipped {
		return errs.ErrInstanceTerminal
	}

	channelstate.ResetForRetest(inst)
	task, err := m.buildTask(inst, def)
	if err != nil {
		return err
	}
	channelstate.BeginHardPoint(inst)
	outcome := task.Run(ctx, tasks.NewPauseGate())
	channelstate.SetHardPointOutcome(inst, outcome)
	if m.result != nil {
		m.result.EnqueueRetest(inst)
	}
	return nil
}

// PauseAll/ResumeAll flip the shared paused flag every running task
// samples at its yield points.
func (m *TaskManager) PauseAll() {
	m.mu.Lock()
	gate := m.pauseGate
	m.mu.Unlock()
	if gate != nil {
		gate.Pause()
	}
}

func (m *TaskManager) ResumeAll() {
	m.mu.Lock()
	gate := m.pauseGate
	m.mu.Unlock()
	if gate != nil {
		gate.Resume()
	}
}

// StopAll cancels the master token for the currently running batch, if
// any.
func (m *TaskManager) StopAll() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *TaskManager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *TaskManager) HealthOf(link string) plclink.HealthLevel {
	return m.health.Level(link)
}
