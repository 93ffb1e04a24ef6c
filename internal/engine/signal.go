package engine

import "github.com/astatos/coherence/internal/domain"

// SignalKind names an interaction signal delivered by the host.
type SignalKind string

const (
	// SignalHover weakly observes an entity and nudges its neuron.
	SignalHover SignalKind = "hover"
	// SignalClick measures an entity and strongly stimulates its neuron.
	SignalClick SignalKind = "click"
	// SignalMotion feeds device-motion magnitude into backaction.
	SignalMotion SignalKind = "motion"
	// SignalReward applies reward modulation to tagged synapses.
	SignalReward SignalKind = "reward"
)

// Valid reports whether k is a known signal kind.
func (k SignalKind) Valid() bool {
	switch k {
	case SignalHover, SignalClick, SignalMotion, SignalReward:
		return true
	}
	return false
}

// Signal is one discrete interaction input, consumed at the next tick
// boundary in arrival order.
type Signal struct {
	Kind   SignalKind      `json:"kind"`
	Entity domain.EntityID `json:"entity,omitempty"`
	Value  float64         `json:"value,omitempty"`
}

// Membrane stimulus injected alongside hover and click signals.
const (
	hoverStimulus = 0.3
	clickStimulus = 1.0
)
