// Package domain holds the core simulation types shared by every module.
// The domain layer is pure: no infrastructure dependencies, no globals.
package domain

import (
	"errors"

	"github.com/google/uuid"
)

// EntityID identifies a registered entity across every simulation module.
// The same id keys the quantum registry, the decoherence schedule, the
// entanglement table and the neural engine.
type EntityID string

// NewEntityID generates a fresh entity identifier.
func NewEntityID() EntityID {
	return EntityID(uuid.NewString())
}

// ErrUnknownEntity is returned by any operation referencing an id that is
// not (or no longer) registered. Callers treat it as a no-op, never a fault.
var ErrUnknownEntity = errors.New("unknown entity id")

// Spin is the two-valued observable of a quantum state.
type Spin int

const (
	SpinUp Spin = iota
	SpinDown
)

// Opposite returns the flipped spin.
func (s Spin) Opposite() Spin {
	if s == SpinUp {
		return SpinDown
	}
	return SpinUp
}

// String returns the human-readable spin name.
func (s Spin) String() string {
	if s == SpinUp {
		return "up"
	}
	return "down"
}

// StateMode is the lifecycle mode of a quantum state.
type StateMode int

const (
	ModeSuperposition StateMode = iota
	ModeCollapsed
)

// String returns the human-readable mode name.
func (m StateMode) String() string {
	if m == ModeSuperposition {
		return "superposition"
	}
	return "collapsed"
}

// BellState tags an entangled pair with one of the four maximally
// correlated two-state pairings.
type BellState string

const (
	BellPhiPlus  BellState = "phi+"
	BellPhiMinus BellState = "phi-"
	BellPsiPlus  BellState = "psi+"
	BellPsiMinus BellState = "psi-"
)

// Valid reports whether b is one of the four Bell states.
func (b BellState) Valid() bool {
	switch b {
	case BellPhiPlus, BellPhiMinus, BellPsiPlus, BellPsiMinus:
		return true
	}
	return false
}

// SameSpin reports whether the pairing correlates spins (Φ states) or
// anti-correlates them (Ψ states).
func (b BellState) SameSpin() bool {
	return b == BellPhiPlus || b == BellPhiMinus
}

// SamePhase reports whether the pairing correlates phases ("+" states)
// or anti-correlates them ("−" states).
func (b BellState) SamePhase() bool {
	return b == BellPhiPlus || b == BellPsiPlus
}

// QuantumState is the per-entity two-state record. Created at
// registration with randomized spin and phase; mutated only by the
// quantum registry.
type QuantumState struct {
	ID               EntityID
	Handle           string // external visual handle, a back-reference only
	Phase            float64
	Spin             Spin
	Amplitude        float64
	Mode             StateMode
	ObservationCount int
}

// Neurotransmitter classifies the signal a neuron propagates.
type Neurotransmitter int

const (
	Glutamate Neurotransmitter = iota // excitatory
	GABA                              // inhibitory
	Dopamine                          // moderate excitatory
)

// Strength is the signed multiplier applied to outgoing synapse weights.
func (n Neurotransmitter) Strength() float64 {
	switch n {
	case GABA:
		return -0.8
	case Dopamine:
		return 0.5
	default:
		return 1.0
	}
}

// String returns the human-readable neurotransmitter name.
func (n Neurotransmitter) String() string {
	switch n {
	case GABA:
		return "gaba"
	case Dopamine:
		return "dopamine"
	default:
		return "glutamate"
	}
}

// TagKind marks the direction of a late-phase plasticity tag.
type TagKind int

const (
	TagLateLTP TagKind = iota
	TagLateLTD
)

// String returns the human-readable tag name.
func (k TagKind) String() string {
	if k == TagLateLTP {
		return "late-ltp"
	}
	return "late-ltd"
}
