package model

import "time"

// ChannelInstance is the execution-time record for one point in one batch.
// It is born at allocation, mutated only through channelstate, and
// destroyed only by batch deletion.
type ChannelInstance struct {
	InstanceID        uint64 `json:"instance_id"`
	DefinitionID      uint64 `json:"definition_id"`
	BatchID           uint64 `json:"batch_id"`
	TestPlcChannelTag string `json:"test_plc_channel_tag"`
	TestPlcAddress    string `json:"test_plc_address"`

	ModuleType  ModuleType `json:"module_type"`
	RangeLow    NFloat     `json:"range_low"`
	RangeHigh   NFloat     `json:"range_high"`

	HardPointStatus HardPointStatus          `json:"hard_point_status"`
	SubItems        map[SubItem]SubItemStatus `json:"sub_items"`
	OverallStatus   OverallStatus            `json:"overall_status"`

	Value0Pct   NFloat `json:"value_0pct"`
	Value25Pct  NFloat `json:"value_25pct"`
	Value50Pct  NFloat `json:"value_50pct"`
	Value75Pct  NFloat `json:"value_75pct"`
	Value100Pct NFloat `json:"value_100pct"`

	DigitalSteps []DigitalStep `json:"digital_steps"`

	IntegrationNote     string `json:"integration_note"`
	PLCProgrammingNote  string `json:"plc_programming_note"`
	HMIConfigurationNote string `json:"hmi_configuration_note"`

	ErrorMessage string `json:"error_message,omitempty"`
	SkipReason   string `json:"skip_reason,omitempty"`

	StartTime      time.Time `json:"start_time"`
	TestTime       time.Time `json:"test_time"`
	FinalTestTime  time.Time `json:"final_test_time"`
	UpdatedTime    time.Time `json:"updated_time"`
}

// NewChannelInstance mints an unallocated instance for definitionID in
// batchID. Callers must run it through channelstate.Initialize before use.
func NewChannelInstance(definitionID, batchID uint64) *ChannelInstance {
	return &ChannelInstance{
		InstanceID:   NextID(),
		DefinitionID: definitionID,
		BatchID:      batchID,
		SubItems:     make(map[SubItem]SubItemStatus, len(AllSubItems)),
	}
}

// Clone returns a deep-enough copy safe to mutate independently of inst,
// used when a task or the orchestrator needs a short-lived working copy.
func (inst *ChannelInstance) Clone() *ChannelInstance {
	cp := *inst
	cp.SubItems = make(map[SubItem]SubItemStatus, len(inst.SubItems))
	for k, v := range inst.SubItems {
		cp.SubItems[k] = v
	}
	cp.DigitalSteps = append([]DigitalStep(nil), inst.DigitalSteps...)
	return &cp
}

// ManualSubItemStatuses returns the statuses of every tracked sub-item, in
// the fixed order overall-status evaluation relies on.
func (inst *ChannelInstance) ManualSubItemStatuses() []SubItemStatus {
	out := make([]SubItemStatus, 0, len(AllSubItems))
	for _, item := range AllSubItems {
		out = append(out, inst.SubItems[item])
	}
	return out
}
