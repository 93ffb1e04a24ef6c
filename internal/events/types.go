// Package events provides event management functionality.
package events

// EventType represents different event types
type EventType string

const (
	// Entity lifecycle
	EntityRegistered EventType = "ENTITY_REGISTERED"
	EntityRemoved    EventType = "ENTITY_REMOVED"

	// Quantum state transitions
	StateCollapsed EventType = "STATE_COLLAPSED"
	PhaseDamped    EventType = "PHASE_DAMPED"
	StateReset     EventType = "STATE_RESET"

	// Entanglement
	EntanglementCreated EventType = "ENTANGLEMENT_CREATED"
	EntanglementBroken  EventType = "ENTANGLEMENT_BROKEN"

	// Neural engine
	NeuronFired   EventType = "NEURON_FIRED"
	SynapseFormed EventType = "SYNAPSE_FORMED"
	SynapsePruned EventType = "SYNAPSE_PRUNED"
	WeightChanged EventType = "WEIGHT_CHANGED"
	RewardApplied EventType = "REWARD_APPLIED"

	// Wavefunction solver
	FieldUpdated   EventType = "FIELD_UPDATED"
	SolverReseeded EventType = "SOLVER_RESEEDED"

	// Environment / system
	EnvironmentUpdated EventType = "ENVIRONMENT_UPDATED"
	ErrorOccurred      EventType = "ERROR_OCCURRED"
)
