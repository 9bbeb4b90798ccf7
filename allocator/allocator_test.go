package allocator

import (
	"testing"
	"time"

	"github.com/dj1530954213/fatengine/model"
	"github.com/stretchr/testify/assert"
)

func aiDef(station, tag string) *model.PointDefinition {
	d := model.NewPointDefinition()
	d.StationName = station
	d.Tag = tag
	d.VariableName = tag
	d.ModuleType = model.ModuleAI
	d.RangeLow = model.NewNFloat(0)
	d.RangeHigh = model.NewNFloat(100)
	return d
}

func TestAllocateAssignsInPoolOrder(t *testing.T) {
	defs := []*model.PointDefinition{aiDef("S1", "B-TAG"), aiDef("S1", "A-TAG")}
	pools := []*ChannelPool{{ModuleType: model.ModuleAI, Channels: []Channel{
		{Tag: "AI01", Address: "400001"},
		{Tag: "AI02", Address: "400002"},
	}}}

	batch, instances := Allocate("S1", time.Now(), defs, pools)

	assert.Empty(t, batch.AllocationErrors)
	assert.Len(t, instances, 2)
	// A-TAG sorts before B-TAG, so it claims the first pool channel.
	assert.Equal(t, "AI01", instances[0].TestPlcChannelTag)
	assert.Equal(t, "AI02", instances[1].TestPlcChannelTag)
}

func TestAllocatePoolExhaustionRecordsError(t *testing.T) {
	defs := []*model.PointDefinition{aiDef("S1", "A"), aiDef("S1", "B")}
	pools := []*ChannelPool{{ModuleType: model.ModuleAI, Channels: []Channel{{Tag: "AI01", Address: "400001"}}}}

	batch, instances := Allocate("S1", time.Now(), defs, pools)

	assert.Len(t, instances, 1)
	assert.Len(t, batch.AllocationErrors, 1)
	assert.Equal(t, 1, batch.TotalPoints)
}
