package events

// EventData is the interface that all event data types must implement.
// This allows for type-safe event data while maintaining flexibility.
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// EntityRegisteredData contains data for EntityRegistered events
type EntityRegisteredData struct {
	EntityID string  `json:"entity_id"`
	Handle   string  `json:"handle,omitempty"`
	Spin     string  `json:"spin"`
	Phase    float64 `json:"phase"`
}

// EventType returns the event type for EntityRegisteredData
func (d *EntityRegisteredData) EventType() EventType {
	return EntityRegistered
}

// EntityRemovedData contains data for EntityRemoved events
type EntityRemovedData struct {
	EntityID string `json:"entity_id"`
}

// EventType returns the event type for EntityRemovedData
func (d *EntityRemovedData) EventType() EventType {
	return EntityRemoved
}

// StateCollapsedData contains data for StateCollapsed events.
// Spin and Phase are the final resolved values consumed by the render bridge.
type StateCollapsedData struct {
	EntityID     string  `json:"entity_id"`
	Spin         string  `json:"spin"`
	Phase        float64 `json:"phase"`
	Observations int     `json:"observations"`
	Cause        string  `json:"cause"` // "measurement", "observation", "decoherence", "partner"
}

// EventType returns the event type for StateCollapsedData
func (d *StateCollapsedData) EventType() EventType {
	return StateCollapsed
}

// PhaseDampedData contains data for PhaseDamped events
type PhaseDampedData struct {
	EntityID  string  `json:"entity_id"`
	Phase     float64 `json:"phase"`
	Amplitude float64 `json:"amplitude"`
}

// EventType returns the event type for PhaseDampedData
func (d *PhaseDampedData) EventType() EventType {
	return PhaseDamped
}

// StateResetData contains data for StateReset events
type StateResetData struct {
	EntityID string `json:"entity_id"`
}

// EventType returns the event type for StateResetData
func (d *StateResetData) EventType() EventType {
	return StateReset
}

// EntanglementCreatedData contains data for EntanglementCreated events
type EntanglementCreatedData struct {
	EntityA   string `json:"entity_a"`
	EntityB   string `json:"entity_b"`
	BellState string `json:"bell_state"`
}

// EventType returns the event type for EntanglementCreatedData
func (d *EntanglementCreatedData) EventType() EventType {
	return EntanglementCreated
}

// EntanglementBrokenData contains data for EntanglementBroken events
type EntanglementBrokenData struct {
	EntityA string `json:"entity_a"`
	EntityB string `json:"entity_b"`
}

// EventType returns the event type for EntanglementBrokenData
func (d *EntanglementBrokenData) EventType() EventType {
	return EntanglementBroken
}

// NeuronFiredData contains data for NeuronFired events
type NeuronFiredData struct {
	EntityID  string  `json:"entity_id"`
	Potential float64 `json:"potential"`
	Tick      uint64  `json:"tick"`
}

// EventType returns the event type for NeuronFiredData
func (d *NeuronFiredData) EventType() EventType {
	return NeuronFired
}

// SynapseFormedData contains data for SynapseFormed events
type SynapseFormedData struct {
	Pre    string  `json:"pre"`
	Post   string  `json:"post"`
	Weight float64 `json:"weight"`
}

// EventType returns the event type for SynapseFormedData
func (d *SynapseFormedData) EventType() EventType {
	return SynapseFormed
}

// SynapsePrunedData contains data for SynapsePruned events
type SynapsePrunedData struct {
	Pre    string  `json:"pre"`
	Post   string  `json:"post"`
	Weight float64 `json:"weight"`
	Reason string  `json:"reason"` // "eviction", "removal"
}

// EventType returns the event type for SynapsePrunedData
func (d *SynapsePrunedData) EventType() EventType {
	return SynapsePruned
}

// WeightChangedData contains data for WeightChanged events, consumed by
// the render bridge for connection styling.
type WeightChangedData struct {
	Pre       string  `json:"pre"`
	Post      string  `json:"post"`
	OldWeight float64 `json:"old_weight"`
	NewWeight float64 `json:"new_weight"`
	Rule      string  `json:"rule,omitempty"`
}

// EventType returns the event type for WeightChangedData
func (d *WeightChangedData) EventType() EventType {
	return WeightChanged
}

// RewardAppliedData contains data for RewardApplied events
type RewardAppliedData struct {
	Signal   float64 `json:"signal"`
	Modified int     `json:"modified"` // tagged synapses touched
}

// EventType returns the event type for RewardAppliedData
func (d *RewardAppliedData) EventType() EventType {
	return RewardApplied
}

// FieldUpdatedData contains data for FieldUpdated events. The grids
// themselves travel over the field stream; this event only announces
// that a new frame is available.
type FieldUpdatedData struct {
	View string  `json:"view"`
	Step uint64  `json:"step"`
	Norm float64 `json:"norm"`
}

// EventType returns the event type for FieldUpdatedData
func (d *FieldUpdatedData) EventType() EventType {
	return FieldUpdated
}

// SolverReseededData contains data for SolverReseeded events, emitted
// when numeric divergence forced a re-seed with the default Gaussian.
type SolverReseededData struct {
	View   string `json:"view"`
	Step   uint64 `json:"step"`
	Reason string `json:"reason"` // "nan", "norm_underflow"
}

// EventType returns the event type for SolverReseededData
func (d *SolverReseededData) EventType() EventType {
	return SolverReseeded
}

// EnvironmentUpdatedData contains data for EnvironmentUpdated events
type EnvironmentUpdatedData struct {
	Temperature float64 `json:"temperature"`
	NoiseSample float64 `json:"noise_sample"`
	Backaction  float64 `json:"backaction"`
}

// EventType returns the event type for EnvironmentUpdatedData
func (d *EnvironmentUpdatedData) EventType() EventType {
	return EnvironmentUpdated
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
