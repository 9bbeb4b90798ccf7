package model

import "time"

// TestBatch groups the instances allocated from one import. Its counters
// are derived from the member instances and must never drift from them;
// Recompute keeps that in one place.
type TestBatch struct {
	BatchID          uint64    `json:"batch_id"`
	BatchName        string    `json:"batch_name"`
	StationName      string    `json:"station_name"`
	ImportTime       time.Time `json:"import_time"`
	TotalPoints      int       `json:"total_points"`
	CreatedTime      time.Time `json:"created_time"`
	Tested           int       `json:"tested"`
	Passed           int       `json:"passed"`
	Failed           int       `json:"failed"`
	Skipped          int       `json:"skipped"`
	InProgress       int       `json:"in_progress"`
	AllocationErrors []string  `json:"allocation_errors"`
}

// BatchName builds the `{station}|{import_time as yyyyMMddHHmm}` name used
// to keep re-imports idempotent.
func BatchName(station string, importTime time.Time) string {
	return station + "|" + importTime.Format("200601021504")
}

// NewTestBatch mints a fresh batch for station at importTime.
func NewTestBatch(station string, importTime time.Time) *TestBatch {
	return &TestBatch{
		BatchID:          NextID(),
		BatchName:        BatchName(station, importTime),
		StationName:      station,
		ImportTime:       importTime,
		CreatedTime:      time.Now(),
		AllocationErrors: make([]string, 0),
	}
}

// Recompute derives the batch's aggregate counters from its member
// instances, keeping total_points equal to the member count.
func (b *TestBatch) Recompute(instances []*ChannelInstance) {
	b.TotalPoints = len(instances)
	b.Tested, b.Passed, b.Failed, b.Skipped, b.InProgress = 0, 0, 0, 0, 0
	for _, inst := range instances {
		switch inst.OverallStatus {
		case OverallPassed:
			b.Passed++
			b.Tested++
		case OverallFailed:
			b.Failed++
			b.Tested++
		case OverallSkipped:
			b.Skipped++
			b.Tested++
		case OverallInProgress:
			b.InProgress++
		}
	}
}

// GlobalCheck is a host-check row keyed by (station, import_time, function).
type GlobalCheck struct {
	StationName string        `json:"station_name"`
	ImportTime  time.Time     `json:"import_time"`
	FunctionKey string        `json:"function_key"`
	Status      SubItemStatus `json:"status"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
}

// GlobalCheckKey identifies a GlobalCheck row.
type GlobalCheckKey struct {
	StationName string
	ImportTime  time.Time
	FunctionKey string
}

func (g *GlobalCheck) Key() GlobalCheckKey {
	return GlobalCheckKey{StationName: g.StationName, ImportTime: g.ImportTime, FunctionKey: g.FunctionKey}
}
