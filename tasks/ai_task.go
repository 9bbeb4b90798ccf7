package tasks

import (
	"context"
	"fmt"

	"github.com/dj1530954213/fatengine/configs"
	"github.com/dj1530954213/fatengine/model"
	"github.com/dj1530954213/fatengine/plclink"
)

// AITask drives an analog-input channel: the test PLC sources a
// percentage, the target PLC's engineering-value read is checked against
// it.
type AITask struct {
	Instance     *model.ChannelInstance
	TargetAddr   string
	TestLink     plclink.PlcLink
	TargetLink   plclink.PlcLink
}

func (t *AITask) InstanceID() uint64 { return t.Instance.InstanceID }

func (t *AITask) Run(ctx context.Context, gate *PauseGate) RawOutcome {
	inst := t.Instance
	low, span := safeLow(inst), rangeSpan(inst)

	defer func() {
		_ = t.TestLink.WriteF32(context.Background(), inst.TestPlcAddress, low)
	}()

	for i, pct := range samplePoints {
		if err := yield(ctx, gate); err != nil {
			return cancelledOutcome()
		}
		if err := t.TestLink.WriteF32(ctx, inst.TestPlcAddress, pct); err != nil {
			return linkErrorOutcome("write stimulus", err)
		}
		if err := sleepYield(ctx, configs.SettleDelay); err != nil {
			return cancelledOutcome()
		}
		actual, err := t.TargetLink.ReadF32(ctx, t.TargetAddr)
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

var _ Task = (*AITask)(nil)
