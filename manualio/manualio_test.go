package manualio

import (
	"context"
	"testing"
	"time"

	"github.com/dj1530954213/fatengine/model"
	"github.com/dj1530954213/fatengine/plclink"
	"github.com/stretchr/testify/assert"
)

func TestAoFeedbackMapsPercentageToEngineeringValue(t *testing.T) {
	testLink := plclink.NewStubLink()
	targetLink := plclink.NewStubLink()
	testLink.SeedFloat("X1001", 50)

	inst := model.NewChannelInstance(1, 1)
	inst.TestPlcAddress = "X1001"
	inst.RangeLow = model.NewNFloat(0)
	inst.RangeHigh = model.NewNFloat(200)

	io := New(testLink, targetLink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	values := make(chan string, 4)
	io.AoFeedback(ctx, inst, func(v string) { values <- v }, func(error) {})

	select {
	case v := <-values:
		assert.Equal(t, "100.000", v)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feedback value")
	}
	io.StopAll()
}

func TestDoFeedbackReportsOnOff(t *testing.T) {
	testLink := plclink.NewStubLink()
	targetLink := plclink.NewStubLink()
	testLink.SeedBool("X2001", true)

	inst := model.NewChannelInstance(2, 1)
	inst.TestPlcAddress = "X2001"

	io := New(testLink, targetLink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	values := make(chan string, 4)
	io.DoFeedback(ctx, inst, func(v string) { values <- v }, func(error) {})

	select {
	case v := <-values:
		assert.Equal(t, "ON", v)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feedback value")
	}
	io.StopAll()
}

func TestAlarmMonitorReadsAllFourSetpoints(t *testing.T) {
	testLink := plclink.NewStubLink()
	targetLink := plclink.NewStubLink()
	targetLink.SeedFloat("X3001", 5)
	targetLink.SeedFloat("X3002", 10)
	targetLink.SeedFloat("X3003", 90)
	targetLink.SeedFloat("X3004", 95)

	def := model.NewPointDefinition()
	def.SLLAddress = "X3001"
	def.SLAddress = "X3002"
	def.SHAddress = "X3003"
	def.SHHAddress = "X3004"

	io := New(testLink, targetLink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readings := make(chan AlarmReading, 4)
	io.AlarmMonitor(ctx, def, func(r AlarmReading) { readings <- r }, func(error) {})

	select {
	case r := <-readings:
		assert.Equal(t, float32(5), r.LowLow)
		assert.Equal(t, float32(10), r.Low)
		assert.Equal(t, float32(90), r.High)
		assert.Equal(t, float32(95), r.HighHigh)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for alarm reading")
	}
	io.StopAll()
}

func TestStartingSecondMonitorOfSameKindStopsFirst(t *testing.T) {
	testLink := plclink.NewStubLink()
	targetLink := plclink.NewStubLink()
	testLink.SeedFloat("X4001", 10)
	testLink.SeedFloat("X4002", 20)

	first := model.NewChannelInstance(1, 1)
	first.TestPlcAddress = "X4001"
	first.RangeLow, first.RangeHigh = model.NewNFloat(0), model.NewNFloat(100)

	second := model.NewChannelInstance(2, 1)
	second.TestPlcAddress = "X4002"
	second.RangeLow, second.RangeHigh = model.NewNFloat(0), model.NewNFloat(100)

	io := New(testLink, targetLink)
	ctx := context.Background()

	firstValues := make(chan string, 8)
	io.AoFeedback(ctx, first, func(v string) { firstValues <- v }, func(error) {})
	time.Sleep(50 * time.Millisecond)

	secondValues := make(chan string, 8)
	io.AoFeedback(ctx, second, func(v string) { secondValues <- v }, func(error) {})

	select {
	case v := <-secondValues:
		assert.Equal(t, "20.000", v)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for second monitor's feedback")
	}

	drained := len(firstValues)
	time.Sleep(configsManualPollIntervalPlusSlack())
	assert.Equal(t, drained, len(firstValues), "first monitor must not still be running after replace")

	io.StopAll()
}

func TestSendAiTestValueConvertsToPercentage(t *testing.T) {
	testLink := plclink.NewStubLink()
	targetLink := plclink.NewStubLink()

	inst := model.NewChannelInstance(1, 1)
	inst.TestPlcAddress = "X5001"
	inst.RangeLow = model.NewNFloat(0)
	inst.RangeHigh = model.NewNFloat(50)

	io := New(testLink, targetLink)
	assert.NoError(t, io.SendAiTestValue(context.Background(), inst, 25))

	got, err := testLink.ReadF32(context.Background(), inst.TestPlcAddress)
	assert.NoError(t, err)
	assert.Equal(t, float32(50), got)
}

func TestSendDiSignalWritesBool(t *testing.T) {
	testLink := plclink.NewStubLink()
	targetLink := plclink.NewStubLink()

	inst := model.NewChannelInstance(1, 1)
	inst.TestPlcAddress = "X6001"

	io := New(testLink, targetLink)
	assert.NoError(t, io.SendDiSignal(context.Background(), inst, true))

	got, err := testLink.ReadBool(context.Background(), inst.TestPlcAddress)
	assert.NoError(t, err)
	assert.True(t, got)
}

func configsManualPollIntervalPlusSlack() time.Duration {
	return 700 * time.Millisecond
}
