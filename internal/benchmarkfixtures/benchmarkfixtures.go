// Package benchmarkfixtures generates synthetic PointDefinitions for tests
// and smoke runs, spreading keys evenly and deterministically across the
// four module types so fixtures stay repeatable across runs.
package benchmarkfixtures

import (
	"fmt"

	"github.com/dj1530954213/fatengine/allocator"
	"github.com/dj1530954213/fatengine/model"
)

// moduleCycle is the deterministic module-type assignment order, round-
// robin by index.
var moduleCycle = []model.ModuleType{model.ModuleAI, model.ModuleAO, model.ModuleDI, model.ModuleDO}

// Definitions returns n synthetic PointDefinitions for station, with
// module types assigned round-robin and AI/AO definitions carrying a
// 0-100 engineering range and a full set of alarm setpoints.
func Definitions(station string, n int) []*model.PointDefinition {
	out := make([]*model.PointDefinition, 0, n)
	for i := 0; i < n; i++ {
		d := model.NewPointDefinition()
		d.StationName = station
		d.Tag = fmt.Sprintf("%s-TAG-%04d", station, i)
		d.VariableName = fmt.Sprintf("%s_VAR_%04d", station, i)
		d.Description = fmt.Sprintf("synthetic point %d", i)
		d.ModuleType = moduleCycle[i%len(moduleCycle)]
		d.PlcAddress = fmt.Sprintf("Y%04d", i)

		switch d.ModuleType {
		case model.ModuleAI, model.ModuleAO:
			d.RangeLow = model.NewNFloat(0)
			d.RangeHigh = model.NewNFloat(100)
			d.SLL = model.NewNFloat(5)
			d.SL = model.NewNFloat(20)
			d.SH = model.NewNFloat(80)
			d.SHH = model.NewNFloat(95)
			d.SLLAddress = fmt.Sprintf("ZSLL%04d", i)
			d.SLAddress = fmt.Sprintf("ZSL%04d", i)
			d.SHAddress = fmt.Sprintf("ZSH%04d", i)
			d.SHHAddress = fmt.Sprintf("ZSHH%04d", i)
		}
		out = append(out, d)
	}
	return out
}

// ChannelPool returns an allocator.ChannelPool of n sequential test-PLC
// tag/address pairs for moduleType.
func ChannelPool(moduleType model.ModuleType, n int) *allocator.ChannelPool {
	channels := make([]allocator.Channel, 0, n)
	for i := 0; i < n; i++ {
		channels = append(channels, allocator.Channel{
			Tag:     fmt.Sprintf("%s-CH-%04d", moduleType, i),
			Address: fmt.Sprintf("X%s%04d", moduleType, i),
		})
	}
	return &allocator.ChannelPool{ModuleType: moduleType, Channels: channels}
}
