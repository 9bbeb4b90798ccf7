// Package channelstate is a pure state machine for ChannelInstance
// lifecycles. It performs no I/O and holds no state of its own: every
// function takes a *model.ChannelInstance and mutates it in place,
// funneling every state change except Skip through evaluate() so that
// overall_status always stays a pure function of hard_point_status plus
// the sub-item statuses. Skip sets the terminal Skipped state directly.
package channelstate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dj1530954213/fatengine/model"
)

// HardPointOutcome is the raw result a tasks.Task hands back to the engine
// after running one channel's stimulus/sample sequence.
type HardPointOutcome struct {
	IsSuccess bool
	Detail    string
}

// Initialize sets up inst fresh from def.
func Initialize(inst *model.ChannelInstance, def *model.PointDefinition) {
	inst.ModuleType = def.ModuleType

	low, high := def.RangeLow, def.RangeHigh
	if !low.Valid || !high.Valid || !(high.Value > low.Value) {
		low, high = model.NewNFloat(0), model.NewNFloat(100)
		configsWarnRangeInvalid(def)
	}
	inst.RangeLow, inst.RangeHigh = low, high

	for _, item := range model.AllSubItems {
		inst.SubItems[item] = model.SubNotTested
	}

	switch {
	case def.ModuleType == model.ModuleAI:
		initAlarmApplicability(inst, def)
	case def.ModuleType == model.ModuleAO:
		inst.SubItems[model.SubLowLowAlarm] = model.SubNotApplicable
		inst.SubItems[model.SubLowAlarm] = model.SubNotApplicable
		inst.SubItems[model.SubHighAlarm] = model.SubNotApplicable
		inst.SubItems[model.SubHighHighAlarm] = model.SubNotApplicable
		inst.SubItems[model.SubAlarmValueSet] = model.SubNotApplicable
		inst.SubItems[model.SubMaintenanceFunction] = model.SubPassed
	case def.ModuleType == model.ModuleDI || def.ModuleType == model.ModuleDO:
		markAllAnalogNotApplicable(inst)
		inst.RangeLow, inst.RangeHigh = model.Null(), model.Null()
	}

	if def.IsYLDW() {
		for _, item := range model.AllSubItems {
			inst.SubItems[item] = model.SubNotApplicable
		}
	}

	inst.HardPointStatus = model.HPNotTested
	inst.StartTime, inst.TestTime, inst.FinalTestTime, inst.UpdatedTime = time.Time{}, time.Time{}, time.Time{}, time.Time{}
	evaluate(inst)
}

func configsWarnRangeInvalid(def *model.PointDefinition) {
	// Defaulting rather than failing here keeps the batch going for the
	// rest of the definitions even if one range is misconfigured.
	_ = def
}

func initAlarmApplicability(inst *model.ChannelInstance, def *model.PointDefinition) {
	setpoints := map[model.SubItem]model.NFloat{
		model.SubLowLowAlarm:   def.SLL,
		model.SubLowAlarm:      def.SL,
		model.SubHighAlarm:     def.SH,
		model.SubHighHighAlarm: def.SHH,
	}
	allEmpty := true
	for item, sp := range setpoints {
		if sp.Valid {
			allEmpty = false
		} else {
			inst.SubItems[item] = model.SubNotApplicable
		}
	}
	if allEmpty {
		inst.SubItems[model.SubAlarmValueSet] = model.SubNotApplicable
	}
}

func markAllAnalogNotApplicable(inst *model.ChannelInstance) {
	for _, item := range []model.SubItem{
		model.SubShowValue, model.SubLowLowAlarm, model.SubLowAlarm, model.SubHighAlarm, model.SubHighHighAlarm,
		model.SubAlarmValueSet, model.SubMaintenanceFunction, model.SubTrendCheck, model.SubReportCheck,
	} {
		inst.SubItems[item] = model.SubNotApplicable
	}
}

// ApplyAllocation sets the physical test-channel fields and resets
// non-NotApplicable sub-items to NotTested.
func ApplyAllocation(inst *model.ChannelInstance, batchID uint64, tag, address string) {
	inst.BatchID = batchID
	inst.TestPlcChannelTag = tag
	inst.TestPlcAddress = address
	resetTestableState(inst)
}

// ClearAllocation empties the physical test-channel fields.
func ClearAllocation(inst *model.ChannelInstance) {
	inst.TestPlcChannelTag = ""
	inst.TestPlcAddress = ""
	resetTestableState(inst)
}

func resetTestableState(inst *model.ChannelInstance) {
	for item, status := range inst.SubItems {
		if status != model.SubNotApplicable {
			inst.SubItems[item] = model.SubNotTested
		}
	}
	inst.HardPointStatus = model.HPNotTested
	inst.StartTime, inst.TestTime, inst.FinalTestTime = time.Time{}, time.Time{}, time.Time{}
	evaluate(inst)
}

// PrepareForWiring moves hard_point_status from NotTested to Waiting.
func PrepareForWiring(inst *model.ChannelInstance) {
	if inst.OverallStatus == model.OverallSkipped {
		return
	}
	if inst.HardPointStatus != model.HPNotTested {
		return
	}
	inst.HardPointStatus = model.HPWaiting
	evaluate(inst)
}

// BeginHardPoint transitions to Testing and stamps start_time/test_time.
func BeginHardPoint(inst *model.ChannelInstance) {
	if inst.OverallStatus == model.OverallSkipped {
		return
	}
	now := time.Now()
	inst.HardPointStatus = model.HPTesting
	inst.StartTime = now
	inst.TestTime = now
	inst.FinalTestTime = time.Time{}
	evaluate(inst)
}

// SetHardPointOutcome records a Passed/Failed verdict from a HardPointTask
// and the failure detail if any.
func SetHardPointOutcome(inst *model.ChannelInstance, outcome HardPointOutcome) {
	if inst.OverallStatus == model.OverallSkipped {
		return
	}
	if outcome.IsSuccess {
		inst.HardPointStatus = model.HPPassed
		inst.ErrorMessage = ""
	} else {
		inst.HardPointStatus = model.HPFailed
		inst.ErrorMessage = outcome.Detail
	}
	evaluate(inst)
}

// SetManual updates one manual sub-item's status. It rejects the mutation
// when overall_status is already terminal
// (Failed/Skipped) and the sub-item is NotApplicable.
func SetManual(inst *model.ChannelInstance, item model.SubItem, passed bool) error {
	if inst.OverallStatus == model.OverallFailed || inst.OverallStatus == model.OverallSkipped {
		if inst.SubItems[item] == model.SubNotApplicable {
			return fmt.Errorf("channelstate: sub-item %s is not applicable for instance %d in state %s",
				item, inst.InstanceID, inst.OverallStatus)
		}
	}
	if passed {
		inst.SubItems[item] = model.SubPassed
	} else {
		inst.SubItems[item] = model.SubFailed
	}
	evaluate(inst)
	return nil
}

// Skip marks inst Skipped with every sub-item NotApplicable. Once applied
// no further task may mutate the instance.
func Skip(inst *model.ChannelInstance, reason string) {
	inst.HardPointStatus = model.HPSkipped
	for _, item := range model.AllSubItems {
		inst.SubItems[item] = model.SubNotApplicable
	}
	inst.SkipReason = reason
	inst.OverallStatus = model.OverallSkipped
	inst.FinalTestTime = time.Now()
	inst.UpdatedTime = time.Now()
}

// ResetForRetest returns inst to the post-allocation state so a single
// channel can be rerun.
func ResetForRetest(inst *model.ChannelInstance) {
	if inst.OverallStatus == model.OverallSkipped {
		return
	}
	resetTestableState(inst)
}

// evaluate recomputes overall_status from hard_point_status and the
// sub-item vector, applying a fixed rule order. Every mutator above except
// Skip funnels through it, keeping overall_status a pure function of the
// rest of the state.
func evaluate(inst *model.ChannelInstance) {
	inst.UpdatedTime = time.Now()

	// Rule 0: Skipped is terminal.
	if inst.OverallStatus == model.OverallSkipped {
		return
	}

	failedManual := failedSubItems(inst)
	anyNotTested := anySubItemStatus(inst, model.SubNotTested)

	// Rule 1: any manual sub-item Failed dominates.
	if len(failedManual) > 0 {
		inst.OverallStatus = model.OverallFailed
		inst.ErrorMessage = compositeFailureMessage(failedManual)
		inst.FinalTestTime = time.Now()
		return
	}

	// Rule 2: hard-point failed.
	if inst.HardPointStatus == model.HPFailed {
		inst.OverallStatus = model.OverallFailed
		inst.FinalTestTime = time.Now()
		return
	}

	// Rule 3: hard-point passed and no manual sub-item left untested.
	if inst.HardPointStatus == model.HPPassed && !anyNotTested {
		inst.OverallStatus = model.OverallPassed
		inst.FinalTestTime = time.Now()
		return
	}

	// Rule 4: in progress. A not-yet-started instance (hard_point_status
	// still NotTested) falls through to rule 5 instead, even though its
	// sub-items are all NotTested too.
	hardPointStarted := inst.HardPointStatus != model.HPNotTested
	if inst.HardPointStatus == model.HPTesting || inst.HardPointStatus == model.HPWaiting || (anyNotTested && hardPointStarted) {
		inst.OverallStatus = model.OverallInProgress
		inst.FinalTestTime = time.Time{}
		return
	}

	// Rule 5: nothing has happened yet.
	if inst.HardPointStatus == model.HPNotTested {
		inst.OverallStatus = model.OverallNotTested
		return
	}

	// Rule 6: fallback.
	inst.OverallStatus = model.OverallInProgress
}

func failedSubItems(inst *model.ChannelInstance) []model.SubItem {
	out := make([]model.SubItem, 0)
	for _, item := range model.AllSubItems {
		if inst.SubItems[item] == model.SubFailed {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func anySubItemStatus(inst *model.ChannelInstance, status model.SubItemStatus) bool {
	for _, item := range model.AllSubItems {
		if inst.SubItems[item] == status {
			return true
		}
	}
	return false
}

// subItemLabel is the UI-facing Chinese label used in composite failure
// messages.
var subItemLabel = map[model.SubItem]string{
	model.SubShowValue:           "显示值",
	model.SubLowLowAlarm:         "低低报",
	model.SubLowAlarm:            "低报",
	model.SubHighAlarm:           "高报",
	model.SubHighHighAlarm:       "高高报",
	model.SubAlarmValueSet:       "报警值设置",
	model.SubMaintenanceFunction: "维护功能",
	model.SubTrendCheck:          "趋势检查",
	model.SubReportCheck:         "报表检查",
}

func compositeFailureMessage(failed []model.SubItem) string {
	parts := make([]string, 0, len(failed))
	for _, item := range failed {
		label := subItemLabel[item]
		if label == "" {
			label = string(item)
		}
		parts = append(parts, fmt.Sprintf("%s: Failed", label))
	}
	return strings.Join(parts, "; ")
}

// Idempotent reports whether evaluating inst twice in a row leaves
// overall_status unchanged.
func Idempotent(inst *model.ChannelInstance) bool {
	before := inst.OverallStatus
	evaluate(inst)
	return inst.OverallStatus == before
}
