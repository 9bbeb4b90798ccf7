package tasks

import (
	"context"
	"fmt"

	"github.com/dj1530954213/fatengine/configs"
	"github.com/dj1530954213/fatengine/model"
	"github.com/dj1530954213/fatengine/plclink"
)

// AOTask drives an analog-output channel: the target PLC is commanded
// with a percentage, the test PLC's sampled reading is checked against
// it, the mirror image of AITask.
type AOTask struct {
	Instance   *model.ChannelInstance
	TargetAddr string
	TestLink   plclink.PlcLink
	TargetLink plclink.PlcLink
}

func (t *AOTask) InstanceID() uint64 { return t.Instance.InstanceID }

func (t *AOTask) Run(ctx context.Context, gate *PauseGate) RawOutcome {
	inst := t.Instance
	low, span := safeLow(inst), rangeSpan(inst)

	defer func() {
		_ = t.TargetLink.WriteF32(context.Background(), t.TargetAddr, low)
	}()

	for i, pct := range samplePoints {
		if err := yield(ctx, gate); err != nil {
			return cancelledOutcome()
		}
		if err := t.TargetLink.WriteF32(ctx, t.TargetAddr, pct); err != nil {
			return linkErrorOutcome("write stimulus", err)
		}
		if err := sleepYield(ctx, configs.SettleDelay); err != nil {
			return cancelledOutcome()
		}
		actual, err := t.TestLink.ReadF32(ctx, inst.TestPlcAddress)
		if err != nil {
			return linkErrorOutcome("read sample", err)
		}
		if slot := percentSlot(inst, pct); slot != nil {
			*slot = model.NewNFloat(actual)
		}
		expected := percentageToEngineering(low, span, pct)
		if deviationPct(actual, expected, span) > configs.DeviationThresholdPc {
			return RawOutcome{IsSuccess: false, Detail: fmt.Sprintf(
				"at %.0f%%: expected %.3f, got %.3f (deviation exceeds %.1f%%)",
				pct, expected, actual, configs.DeviationThresholdPc)}
		}
		if i < len(samplePoints)-1 {
			if err := sleepYield(ctx, configs.InterStepDelay); err != nil {
				return cancelledOutcome()
			}
		}
	}
	return RawOutcome{IsSuccess: true}
}

var _ Task = (*AOTask)(nil)
