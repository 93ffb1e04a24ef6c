// Package entanglement pairs entities into correlated Bell-state
// relationships and propagates collapse between partners.
package entanglement

import (
	"errors"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/astatos/coherence/internal/domain"
	"github.com/astatos/coherence/internal/events"
	"github.com/astatos/coherence/internal/modules/quantum"
)

var (
	// ErrAlreadyEntangled is returned when either member of a requested
	// pair already has a partner. Entanglement is strictly pairwise.
	ErrAlreadyEntangled = errors.New("entity is already entangled")
	// ErrInvalidBellState is returned for a malformed Bell tag.
	ErrInvalidBellState = errors.New("invalid bell state")
	// ErrSelfEntanglement is returned when both ids are the same entity.
	ErrSelfEntanglement = errors.New("cannot entangle an entity with itself")
	// ErrNotEntangled is returned by operations on an unpaired entity.
	ErrNotEntangled = errors.New("entity is not entangled")
)

// phaseTolerance is the slack used when verifying phase correlation.
const phaseTolerance = 1e-6

// StateStore is the slice of the quantum registry the manager needs.
type StateStore interface {
	Get(id domain.EntityID) (domain.QuantumState, bool)
	SetSpinPhase(id domain.EntityID, spin domain.Spin, phase float64) error
	Collapse(id domain.EntityID, cause quantum.CollapseCause) error
}

type link struct {
	partner domain.EntityID
	bell    domain.BellState
}

// Manager owns the entanglement table. It is the only component that
// mutates it; everything else sees it through entity ids and events.
type Manager struct {
	states StateStore
	events *events.Manager
	log    zerolog.Logger

	mu    sync.Mutex
	links map[domain.EntityID]link
}

// NewManager creates a new entanglement manager. It subscribes to
// entity removal so dangling links never survive their entities.
func NewManager(states StateStore, em *events.Manager, log zerolog.Logger) *Manager {
	m := &Manager{
		states: states,
		events: em,
		log:    log.With().Str("module", "entanglement").Logger(),
		links:  make(map[domain.EntityID]link),
	}
	em.Bus().Subscribe(events.EntityRemoved, func(e *events.Event) {
		if data, ok := e.Data.(*events.EntityRemovedData); ok {
			_ = m.Break(domain.EntityID(data.EntityID))
		}
	})
	return m
}

// Entangle pairs two entities under a Bell state and assigns correlated
// spin/phase. Fails if either is already entangled; both stay in
// superposition until one of them collapses.
func (m *Manager) Entangle(a, b domain.EntityID, bell domain.BellState) error {
	if !bell.Valid() {
		return ErrInvalidBellState
	}
	if a == b {
		return ErrSelfEntanglement
	}

	stateA, okA := m.states.Get(a)
	if !okA {
		return domain.ErrUnknownEntity
	}
	if _, okB := m.states.Get(b); !okB {
		return domain.ErrUnknownEntity
	}

	m.mu.Lock()
	if _, taken := m.links[a]; taken {
		m.mu.Unlock()
		return ErrAlreadyEntangled
	}
	if _, taken := m.links[b]; taken {
		m.mu.Unlock()
		return ErrAlreadyEntangled
	}
	m.links[a] = link{partner: b, bell: bell}
	m.links[b] = link{partner: a, bell: bell}
	m.mu.Unlock()

	// B's spin/phase follow A's per the truth table.
	spin, phase := correlate(stateA.Spin, stateA.Phase, bell)
	if err := m.states.SetSpinPhase(b, spin, phase); err != nil {
		// B vanished between the existence check and the assignment.
		_ = m.Break(a)
		return err
	}

	m.events.Emit(events.EntanglementCreated, "entanglement", &events.EntanglementCreatedData{
		EntityA:   string(a),
		EntityB:   string(b),
		BellState: string(bell),
	})
	m.log.Debug().
		Str("entity_a", string(a)).
		Str("entity_b", string(b)).
		Str("bell", string(bell)).
		Msg("Entities entangled")
	return nil
}

// Break removes the bidirectional link without forcing collapse.
func (m *Manager) Break(id domain.EntityID) error {
	m.mu.Lock()
	l, ok := m.links[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotEntangled
	}
	delete(m.links, id)
	delete(m.links, l.partner)
	m.mu.Unlock()

	m.events.Emit(events.EntanglementBroken, "entanglement", &events.EntanglementBrokenData{
		EntityA: string(id),
		EntityB: string(l.partner),
	})
	return nil
}

// Partner returns the partner id and Bell tag for an entangled entity.
func (m *Manager) Partner(id domain.EntityID) (domain.EntityID, domain.BellState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok {
		return "", "", false
	}
	return l.partner, l.bell, true
}

// Verify recomputes the Bell tag from both members' current spin/phase.
// Returns false when the observed correlation matches no Bell state.
func (m *Manager) Verify(id domain.EntityID) (domain.BellState, bool) {
	m.mu.Lock()
	l, ok := m.links[id]
	m.mu.Unlock()
	if !ok {
		return "", false
	}

	a, okA := m.states.Get(id)
	b, okB := m.states.Get(l.partner)
	if !okA || !okB {
		return "", false
	}

	sameSpin := a.Spin == b.Spin
	// Circular distance of the phase difference from 0: 0 means in
	// phase, π means anti-phase.
	diff := math.Abs(math.Mod(a.Phase-b.Phase+3*math.Pi, 2*math.Pi) - math.Pi)
	var samePhase bool
	switch {
	case diff < phaseTolerance:
		samePhase = true
	case diff > math.Pi-phaseTolerance:
		samePhase = false
	default:
		// Phase difference is neither 0 nor π: the pair decohered into
		// something no Bell tag describes.
		return "", false
	}

	switch {
	case sameSpin && samePhase:
		return domain.BellPhiPlus, true
	case sameSpin && !samePhase:
		return domain.BellPhiMinus, true
	case !sameSpin && samePhase:
		return domain.BellPsiPlus, true
	default:
		return domain.BellPsiMinus, true
	}
}

// ResolveCollapse implements quantum.CollapseResolver: when the partner
// already collapsed, the outcome is fully determined by the truth table.
func (m *Manager) ResolveCollapse(id domain.EntityID) (domain.Spin, float64, bool) {
	m.mu.Lock()
	l, ok := m.links[id]
	m.mu.Unlock()
	if !ok {
		return 0, 0, false
	}

	partner, okP := m.states.Get(l.partner)
	if !okP || partner.Mode != domain.ModeCollapsed {
		return 0, 0, false
	}
	spin, phase := correlate(partner.Spin, partner.Phase, l.bell)
	return spin, phase, true
}

// Collapsed implements quantum.CollapseResolver: propagate the collapse
// to the partner. The registry's idempotent collapse breaks the cycle
// when the partner calls back in.
func (m *Manager) Collapsed(id domain.EntityID) {
	m.mu.Lock()
	l, ok := m.links[id]
	m.mu.Unlock()
	if !ok {
		return
	}

	if err := m.states.Collapse(l.partner, quantum.CausePartner); err != nil {
		m.log.Warn().
			Err(err).
			Str("entity", string(l.partner)).
			Msg("Partner collapse propagation failed")
	}
}

// correlate derives one member's spin/phase from the other's final
// values under a Bell tag.
func correlate(spin domain.Spin, phase float64, bell domain.BellState) (domain.Spin, float64) {
	outSpin := spin
	if !bell.SameSpin() {
		outSpin = spin.Opposite()
	}
	outPhase := phase
	if !bell.SamePhase() {
		outPhase = math.Mod(phase+math.Pi, 2*math.Pi)
	}
	return outSpin, outPhase
}
