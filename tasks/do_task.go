package tasks

import (
	"context"
	"fmt"

	"github.com/dj1530954213/fatengine/configs"
	"github.com/dj1530954213/fatengine/model"
	"github.com/dj1530954213/fatengine/plclink"
)

// doSequence is the two commanded logic levels DOTask drives on the
// target PLC, inverted from diSequence: no return to the starting level
// mid-sequence is needed since exit always forces false.
var doSequence = []bool{true, false}

// DOTask drives a digital-output channel: the target PLC is commanded,
// the test PLC's DI must observe it, the mirror image of DITask.
type DOTask struct {
	Instance   *model.ChannelInstance
	TargetAddr string
	TestLink   plclink.PlcLink
	TargetLink plclink.PlcLink
}

func (t *DOTask) InstanceID() uint64 { return t.Instance.InstanceID }

func (t *DOTask) Run(ctx context.Context, gate *PauseGate) RawOutcome {
	inst := t.Instance
	inst.DigitalSteps = inst.DigitalSteps[:0]

	defer func() {
		_ = t.TargetLink.WriteBool(context.Background(), t.TargetAddr, false)
	}()

	failed := false
	var failDetail string
	for i, set := range doSequence {
		step := model.DigitalStep{Step: i + 1, Description: fmt.Sprintf("command DO=%v", set), Set: set}
		if failed {
			inst.DigitalSteps = append(inst.DigitalSteps, step)
			continue
		}
		if err := yield(ctx, gate); err != nil {
			return cancelledOutcome()
		}
		if err := t.TargetLink.WriteBool(ctx, t.TargetAddr, set); err != nil {
			return linkErrorOutcome("write stimulus", err)
		}
		if err := sleepYield(ctx, configs.SettleDelay); err != nil {
			return cancelledOutcome()
		}
		actual, err := t.TestLink.ReadBool(ctx, inst.TestPlcAddress)
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
		if i < len(doSequence)-1 {
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

var _ Task = (*DOTask)(nil)
