// Package allocator turns a list of PointDefinitions into a TestBatch of
// ChannelInstances, assigning each definition an unused test-PLC channel
// from a configured pool, deterministically and in pool order.
package allocator

import (
	"fmt"
	"sort"
	"time"

	"github.com/dj1530954213/fatengine/channelstate"
	"github.com/dj1530954213/fatengine/model"
)

// ChannelPool lists the test-PLC channels available for one module type,
// consumed in the given order.
type ChannelPool struct {
	ModuleType model.ModuleType
	Channels   []Channel
}

// Channel is one assignable test-PLC tag/address pair.
type Channel struct {
	Tag     string
	Address string
}

// Allocate groups defs by (station, module_type, tag) ascending and
// assigns each an unused channel from pools, in pool order. Definitions
// whose pool is exhausted are recorded in the returned batch's
// AllocationErrors and produce no instance.
func Allocate(station string, importTime time.Time, defs []*model.PointDefinition, pools []*ChannelPool) (*model.TestBatch, []*model.ChannelInstance) {
	batch := model.NewTestBatch(station, importTime)

	ordered := make([]*model.PointDefinition, len(defs))
	copy(ordered, defs)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.StationName != b.StationName {
			return a.StationName < b.StationName
		}
		if a.ModuleType != b.ModuleType {
			return a.ModuleType < b.ModuleType
		}
		return a.Tag < b.Tag
	})

	cursors := make(map[model.ModuleType]int, len(pools))
	poolByType := make(map[model.ModuleType][]Channel, len(pools))
	for _, p := range pools {
		poolByType[p.ModuleType] = p.Channels
	}

	instances := make([]*model.ChannelInstance, 0, len(ordered))
	for _, def := range ordered {
		channels := poolByType[def.ModuleType]
		idx := cursors[def.ModuleType]
		if idx >= len(channels) {
			batch.AllocationErrors = append(batch.AllocationErrors, fmt.Sprintf(
				"%s: no free %s channel for %s", def.Tag, def.ModuleType, def.VariableName))
			continue
		}
		ch := channels[idx]
		cursors[def.ModuleType] = idx + 1

		inst := model.NewChannelInstance(def.ID, batch.BatchID)
		channelstate.Initialize(inst, def)
		channelstate.ApplyAllocation(inst, batch.BatchID, ch.Tag, ch.Address)
		instances = append(instances, inst)
	}

	batch.Recompute(instances)
	return batch, instances
}
