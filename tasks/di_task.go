package tasks

import (
	"context"
	"fmt"

	"github.com/dj1530954213/fatengine/configs"
	"github.com/dj1530954213/fatengine/model"
	"github.com/dj1530954213/fatengine/plclink"
)

// diSequence is the three commanded logic levels DITask drives, each with
// a settle delay before the target DI is sampled.
var diSequence = []bool{false, true, false}

// DITask drives a digital-input channel: the test PLC forces a DO
// sequence, the target PLC's DI must follow it.
type DITask struct {
	Instance   *model.ChannelInstance
	TargetAddr string
	TestLink   plclink.PlcLink
	TargetLink plclink.PlcLink
}

func (t *DITask) InstanceID() uint64 { return t.Instance.InstanceID }

func (t *DITask) Run(ctx context.Context, gate *PauseGate) RawOutcome {
	inst := t.Instance
	inst.DigitalSteps = inst.DigitalSteps[:0]

	defer func() {
		_ = t.TestLink.WriteBool(context.Background(), inst.TestPlcAddress, false)
	}()

	failed := false
	var failDetail string
	for i, set := range diSequence {
		step := model.DigitalStep{Step: i + 1, Description: fmt.Sprintf("force DO=%v", set), Set: set}
		if failed {
			inst.DigitalSteps = append(inst.DigitalSteps, step)
			continue
		}
		if err := yield(ctx, gate); err != nil {
			return cancelledOutcome()
		}
		if err := t.TestLink.WriteBool(ctx, inst.TestPlcAddress, set); err != nil {
			return linkErrorOutcome("write stimulus", err)
		}
		if err := sleepYield(ctx, configs.SettleDelay); err != nil {
			return cancelledOutcome()
		}
		actual, err := t.TargetLink.ReadBool(ctx, t.TargetAddr)
		if err != nil {
			return linkErrorOutcome("read sample", err)
		}
		step.Expected = set
		step.Actual = actual
		step.Passed = actual == set
		inst.DigitalSteps = append(inst.DigitalSteps, step)
		if !step.Passed {
			failed = true
			failDetail = fmt.Sprintf("step %d: expected %v, got %v", step.Step, set, actual)
			continue
		}
		if i < len(diSequence)-1 {
			if err := sleepYield(ctx, configs.InterStepDelay); err != nil {
				return cancelledOutcome()
			}
		}
	}
	if failed {
		return RawOutcome{IsSuccess: false, Detail: failDetail}
	}
	return RawOutcome{IsSuccess: true}
}

var _ Task = (*DITask)(nil)
