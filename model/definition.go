package model

import (
	"strings"
	"time"
)

// PointDefinition is an imported, immutable point-list row. The Excel
// ingestion that produces these is out of scope; this struct is the only
// contract the rest of the engine has with it.
type PointDefinition struct {
	ID             uint64     `json:"id"`
	StationName    string     `json:"station_name"`
	VariableName   string     `json:"variable_name"`
	Tag            string     `json:"tag"`
	Description    string     `json:"description"`
	ModuleType     ModuleType `json:"module_type"`
	DataType       string     `json:"data_type"`
	PlcAddress     string     `json:"plc_address"`
	RangeLow       NFloat     `json:"range_low"`
	RangeHigh      NFloat     `json:"range_high"`
	SLL            NFloat     `json:"sll"`
	SL             NFloat     `json:"sl"`
	SH             NFloat     `json:"sh"`
	SHH            NFloat     `json:"shh"`
	SLLAddress     string     `json:"sll_address"`
	SLAddress      string     `json:"sl_address"`
	SHAddress      string     `json:"sh_address"`
	SHHAddress     string     `json:"shh_address"`
	ImportTime     time.Time  `json:"import_time"`
}

// NewPointDefinition mints a fresh definition with a process-unique id.
func NewPointDefinition() *PointDefinition {
	return &PointDefinition{ID: NextID()}
}

// IsYLDW reports whether the definition's variable name flags it as a
// YLDW-only point: only hard-point samples are testable, every manual
// sub-item is NotApplicable.
func (d *PointDefinition) IsYLDW() bool {
	return strings.Contains(strings.ToUpper(d.VariableName), "YLDW")
}
