package channelstate

import (
	"testing"

	"github.com/dj1530954213/fatengine/model"
	"github.com/stretchr/testify/assert"
)

func aiDef() *model.PointDefinition {
	d := model.NewPointDefinition()
	d.ModuleType = model.ModuleAI
	d.RangeLow = model.NewNFloat(0)
	d.RangeHigh = model.NewNFloat(100)
	d.SLL = model.NewNFloat(5)
	d.SL = model.NewNFloat(20)
	d.SH = model.NewNFloat(80)
	d.SHH = model.NewNFloat(95)
	return d
}

func newInst(def *model.PointDefinition) *model.ChannelInstance {
	inst := model.NewChannelInstance(def.ID, 1)
	Initialize(inst, def)
	return inst
}

func TestInitializeSetsNotTestedAndUntouchedSubItems(t *testing.T) {
	inst := newInst(aiDef())
	assert.Equal(t, model.HPNotTested, inst.HardPointStatus)
	assert.Equal(t, model.OverallNotTested, inst.OverallStatus)
	assert.Equal(t, model.SubNotTested, inst.SubItems[model.SubShowValue])
}

func TestInitializeDIMarksAnalogSubItemsNotApplicable(t *testing.T) {
	def := model.NewPointDefinition()
	def.ModuleType = model.ModuleDI
	inst := newInst(def)
	assert.Equal(t, model.SubNotApplicable, inst.SubItems[model.SubLowAlarm])
	assert.False(t, inst.RangeLow.Valid)
}

func TestIsYLDWMarksEverySubItemNotApplicable(t *testing.T) {
	def := aiDef()
	def.VariableName = "AI_YLDW_001"
	inst := newInst(def)
	for _, item := range model.AllSubItems {
		assert.Equal(t, model.SubNotApplicable, inst.SubItems[item])
	}
}

// hard-point passed, no manual sub-item left untested -> Passed.
func TestHardPointPassedAndAllManualDoneYieldsOverallPassed(t *testing.T) {
	inst := newInst(aiDef())
	for _, item := range model.AllSubItems {
		if inst.SubItems[item] == model.SubNotTested {
			assert.NoError(t, SetManual(inst, item, true))
		}
	}
	SetHardPointOutcome(inst, HardPointOutcome{IsSuccess: true})
	assert.Equal(t, model.OverallPassed, inst.OverallStatus)
}

// hard-point Passed plus one manual sub-item Failed -> overall Failed,
// composite message mentions the Chinese label for the failed sub-item.
func TestManualFailureDominatesHardPointPass(t *testing.T) {
	inst := newInst(aiDef())
	for _, item := range model.AllSubItems {
		if inst.SubItems[item] == model.SubNotTested {
			assert.NoError(t, SetManual(inst, item, true))
		}
	}
	SetHardPointOutcome(inst, HardPointOutcome{IsSuccess: true})
	assert.Equal(t, model.OverallPassed, inst.OverallStatus)

	assert.NoError(t, SetManual(inst, model.SubLowAlarm, false))
	assert.Equal(t, model.OverallFailed, inst.OverallStatus)
	assert.Contains(t, inst.ErrorMessage, "低报: Failed")
	assert.False(t, inst.FinalTestTime.IsZero())
}

func TestHardPointFailedYieldsOverallFailed(t *testing.T) {
	inst := newInst(aiDef())
	SetHardPointOutcome(inst, HardPointOutcome{IsSuccess: false, Detail: "deviation too large"})
	assert.Equal(t, model.OverallFailed, inst.OverallStatus)
	assert.Equal(t, "deviation too large", inst.ErrorMessage)
}

func TestInProgressWhileHardPointTestingOrAnySubItemNotTested(t *testing.T) {
	inst := newInst(aiDef())
	BeginHardPoint(inst)
	assert.Equal(t, model.OverallInProgress, inst.OverallStatus)

	SetHardPointOutcome(inst, HardPointOutcome{IsSuccess: true})
	// Sub-items are still NotTested, so the overall status must still read
	// InProgress, not Passed.
	assert.Equal(t, model.OverallInProgress, inst.OverallStatus)
}

// skip preserves every invariant of the state vector.
func TestSkipMarksEverySubItemNotApplicableAndIsTerminal(t *testing.T) {
	inst := newInst(aiDef())
	Skip(inst, "no wire")
	assert.Equal(t, model.OverallSkipped, inst.OverallStatus)
	assert.Equal(t, model.HPSkipped, inst.HardPointStatus)
	for _, item := range model.AllSubItems {
		assert.Equal(t, model.SubNotApplicable, inst.SubItems[item])
	}

	// Once skipped, further hard-point outcomes must not move it off Skipped.
	SetHardPointOutcome(inst, HardPointOutcome{IsSuccess: true})
	assert.Equal(t, model.OverallSkipped, inst.OverallStatus)
}

func TestApplyAllocationResetsTestableStateButNotNotApplicable(t *testing.T) {
	def := model.NewPointDefinition()
	def.ModuleType = model.ModuleDI
	inst := newInst(def)
	ApplyAllocation(inst, 7, "TAG1", "X1001")
	assert.Equal(t, uint64(7), inst.BatchID)
	assert.Equal(t, "TAG1", inst.TestPlcChannelTag)
	assert.Equal(t, model.SubNotApplicable, inst.SubItems[model.SubLowAlarm])
	assert.Equal(t, model.HPNotTested, inst.HardPointStatus)
}

func TestResetForRetestIsNoopOnSkippedInstance(t *testing.T) {
	inst := newInst(aiDef())
	Skip(inst, "no wire")
	ResetForRetest(inst)
	assert.Equal(t, model.OverallSkipped, inst.OverallStatus)
}

// overall_status is a pure, idempotent function of the state vector.
func TestEvaluateIsIdempotentAcrossArbitraryStates(t *testing.T) {
	cases := []func(*model.ChannelInstance){
		func(inst *model.ChannelInstance) {},
		func(inst *model.ChannelInstance) { BeginHardPoint(inst) },
		func(inst *model.ChannelInstance) { SetHardPointOutcome(inst, HardPointOutcome{IsSuccess: true}) },
		func(inst *model.ChannelInstance) { SetHardPointOutcome(inst, HardPointOutcome{IsSuccess: false, Detail: "x"}) },
		func(inst *model.ChannelInstance) { Skip(inst, "reason") },
	}
	for _, mutate := range cases {
		inst := newInst(aiDef())
		mutate(inst)
		assert.True(t, Idempotent(inst))
	}
}
