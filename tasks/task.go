// Package tasks implements the four HardPointTask variants: AI, AO, DI,
// DO. Each runs a phased stimulus/settle/sample sequence with a
// defer-guarded cleanup and select{<-time.After(...); <-ctx.Done()}
// timeout/cancel waits at every step.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/dj1530954213/fatengine/channelstate"
	"github.com/dj1530954213/fatengine/model"
)

// RawOutcome is the verdict a Task hands the TaskManager once it has run
// to completion.
type RawOutcome = channelstate.HardPointOutcome

// Task is the shared contract for every HardPointTask variant.
type Task interface {
	// InstanceID identifies which ChannelInstance this task drives.
	InstanceID() uint64
	// Run executes the stimulus/settle/sample sequence, observing gate at
	// every yield point, and always restores a safe output state before
	// returning.
	Run(ctx context.Context, gate *PauseGate) RawOutcome
}

// yield checks cancellation and blocks on gate if paused; every task
// calls it between steps so pause/cancel take effect promptly.
func yield(ctx context.Context, gate *PauseGate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return gate.Wait(ctx)
}

// sleepYield sleeps for d or returns early on cancellation.
func sleepYield(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func cancelledOutcome() RawOutcome {
	return RawOutcome{IsSuccess: false, Detail: "cancelled"}
}

func linkErrorOutcome(step string, err error) RawOutcome {
	return RawOutcome{IsSuccess: false, Detail: fmt.Sprintf("%s: %v", step, err)}
}

// deviationPct computes |actual-expected|/rangeSpan*100.
func deviationPct(actual, expected, rangeSpan float32) float32 {
	if rangeSpan == 0 {
		return 0
	}
	d := actual - expected
	if d < 0 {
		d = -d
	}
	return d / rangeSpan * 100
}

// percentageToEngineering maps a 0-100 stimulus percentage to the
// engineering value minValue + range*p/100 read back from the target PLC.
func percentageToEngineering(low, rangeSpan, pct float32) float32 {
	return low + rangeSpan*pct/100
}

// samplePoints are the five stimulus percentages every AI/AO variant
// drives, in order.
var samplePoints = []float32{0, 25, 50, 75, 100}

func percentSlot(inst *model.ChannelInstance, pct float32) *model.NFloat {
	switch pct {
	case 0:
		return &inst.Value0Pct
	case 25:
		return &inst.Value25Pct
	case 50:
		return &inst.Value50Pct
	case 75:
		return &inst.Value75Pct
	case 100:
		return &inst.Value100Pct
	default:
		return nil
	}
}

func safeLow(inst *model.ChannelInstance) float32 {
	if inst.RangeLow.Valid {
		return inst.RangeLow.Value
	}
	return 0
}

func rangeSpan(inst *model.ChannelInstance) float32 {
	if inst.RangeLow.Valid && inst.RangeHigh.Valid {
		return inst.RangeHigh.Value - inst.RangeLow.Value
	}
	return 0
}
