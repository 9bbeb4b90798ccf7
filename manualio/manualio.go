// Package manualio drives the operator-facing manual test phase:
// periodic alarm/feedback polling loops plus one-shot stimulus commands.
package manualio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dj1530954213/fatengine/configs"
	"github.com/dj1530954213/fatengine/model"
	"github.com/dj1530954213/fatengine/plclink"
)

// AlarmReading is one AlarmMonitor sample.
type AlarmReading struct {
	Low      float32
	LowLow   float32
	High     float32
	HighHigh float32
}

// ManualTestIo owns at most one running loop per kind; starting a new one
// of the same kind implicitly stops the previous.
type ManualTestIo struct {
	testLink   plclink.PlcLink
	targetLink plclink.PlcLink

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New returns a ManualTestIo driving testLink/targetLink.
func New(testLink, targetLink plclink.PlcLink) *ManualTestIo {
	return &ManualTestIo{
		testLink:   testLink,
		targetLink: targetLink,
		cancels:    make(map[string]context.CancelFunc),
	}
}

func (m *ManualTestIo) replace(kind string, ctx context.Context) context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.cancels[kind]; ok {
		prev()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancels[kind] = cancel
	return loopCtx
}

func (m *ManualTestIo) runLoop(ctx context.Context, poll func(ctx context.Context) error, onError func(error)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if err := poll(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				onError(fmt.Errorf("monitor exception: %w", err))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(configs.ManualPollInterval):
			}
		}
	}()
}

// AlarmMonitor polls the target PLC's four alarm setpoints every 500ms,
// replacing any AlarmMonitor already running.
func (m *ManualTestIo) AlarmMonitor(ctx context.Context, def *model.PointDefinition, onReading func(AlarmReading), onError func(error)) {
	loopCtx := m.replace("alarm", ctx)
	m.runLoop(loopCtx, func(ctx context.Context) error {
		ll, err := m.targetLink.ReadF32(ctx, def.SLLAddress)
		if err != nil {
			return err
		}
		lo, err := m.targetLink.ReadF32(ctx, def.SLAddress)
		if err != nil {
			return err
		}
		hi, err := m.targetLink.ReadF32(ctx, def.SHAddress)
		if err != nil {
			return err
		}
		hh, err := m.targetLink.ReadF32(ctx, def.SHHAddress)
		if err != nil {
			return err
		}
		onReading(AlarmReading{Low: lo, LowLow: ll, High: hi, HighHigh: hh})
		return nil
	}, onError)
}

// AoFeedback polls the test PLC's sampled percentage and maps it to an
// engineering value via inst's range.
func (m *ManualTestIo) AoFeedback(ctx context.Context, inst *model.ChannelInstance, onValue func(string), onError func(error)) {
	loopCtx := m.replace("ao", ctx)
	m.runLoop(loopCtx, func(ctx context.Context) error {
		pct, err := m.testLink.ReadF32(ctx, inst.TestPlcAddress)
		if err != nil {
			return err
		}
		low, high := float32(0), float32(100)
		if inst.RangeLow.Valid {
			low = inst.RangeLow.Value
		}
		if inst.RangeHigh.Valid {
			high = inst.RangeHigh.Value
		}
		eng := low + (high-low)*pct/100
		onValue(fmt.Sprintf("%.3f", eng))
		return nil
	}, onError)
}

// DoFeedback polls the test PLC's digital feedback bit.
func (m *ManualTestIo) DoFeedback(ctx context.Context, inst *model.ChannelInstance, onValue func(string), onError func(error)) {
	loopCtx := m.replace("do", ctx)
	m.runLoop(loopCtx, func(ctx context.Context) error {
		on, err := m.testLink.ReadBool(ctx, inst.TestPlcAddress)
		if err != nil {
			return err
		}
		if on {
			onValue("ON")
		} else {
			onValue("OFF")
		}
		return nil
	}, onError)
}

// SendAiTestValue converts an engineering value to a percentage and
// writes it to the test PLC.
func (m *ManualTestIo) SendAiTestValue(ctx context.Context, inst *model.ChannelInstance, engineeringValue float32) error {
	low, high := float32(0), float32(100)
	if inst.RangeLow.Valid {
		low = inst.RangeLow.Value
	}
	if inst.RangeHigh.Valid {
		high = inst.RangeHigh.Value
	}
	span := high - low
	pct := float32(0)
	if span != 0 {
		pct = (engineeringValue - low) / span * 100
	}
	return m.testLink.WriteF32(ctx, inst.TestPlcAddress, pct)
}

// SendDiSignal writes a commanded logic level to the test PLC.
func (m *ManualTestIo) SendDiSignal(ctx context.Context, inst *model.ChannelInstance, on bool) error {
	return m.testLink.WriteBool(ctx, inst.TestPlcAddress, on)
}

// StopAll cancels every running loop.
func (m *ManualTestIo) StopAll() {
	m.mu.Lock()
	for kind, cancel := range m.cancels {
		cancel()
		delete(m.cancels, kind)
	}
	m.mu.Unlock()
	m.wg.Wait()
}
