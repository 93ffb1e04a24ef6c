// Package quantum implements the per-entity two-state registry:
// registration, observation, measurement and collapse.
package quantum

import (
	"math"
	"math/rand"
	"sync"

	"github.com/rs/zerolog"

	"github.com/astatos/coherence/internal/config"
	"github.com/astatos/coherence/internal/domain"
	"github.com/astatos/coherence/internal/events"
)

const twoPi = 2 * math.Pi

// observeDecay is the amplitude multiplier applied by a single observation.
const observeDecay = 0.9

// CollapseCause labels what triggered a collapse, carried on the emitted event.
type CollapseCause string

const (
	CauseMeasurement CollapseCause = "measurement"
	CauseObservation CollapseCause = "observation"
	CauseDecoherence CollapseCause = "decoherence"
	CausePartner     CollapseCause = "partner"
)

// CollapseResolver lets the entanglement manager participate in collapse
// resolution without the registry owning entanglement state.
type CollapseResolver interface {
	// ResolveCollapse returns the correlated spin/phase for id when its
	// partner has already collapsed. ok is false when the entity is not
	// entangled or its partner is still superposed, in which case the
	// registry resolves the spin randomly.
	ResolveCollapse(id domain.EntityID) (spin domain.Spin, phase float64, ok bool)

	// Collapsed notifies the resolver that id reached its final
	// spin/phase, so the partner (if any) can be propagated. Safe to
	// call re-entrantly: the registry's collapse is idempotent.
	Collapsed(id domain.EntityID)
}

// Registry owns every quantum state record. Entities live in a dense
// table keyed by id; the visual handle is a back-reference field only.
type Registry struct {
	cfg    config.QuantumConfig
	events *events.Manager
	rng    *rand.Rand
	log    zerolog.Logger

	mu       sync.Mutex
	states   map[domain.EntityID]*domain.QuantumState
	order    []domain.EntityID
	resolver CollapseResolver
}

// NewRegistry creates a new quantum state registry
func NewRegistry(cfg config.QuantumConfig, em *events.Manager, rng *rand.Rand, log zerolog.Logger) *Registry {
	return &Registry{
		cfg:    cfg,
		events: em,
		rng:    rng,
		log:    log.With().Str("module", "quantum").Logger(),
		states: make(map[domain.EntityID]*domain.QuantumState),
	}
}

// SetResolver wires the entanglement manager in. Must be called before
// any collapse can propagate; a nil resolver means purely random
// resolution.
func (r *Registry) SetResolver(res CollapseResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolver = res
}

// Register creates a new superposed state with random spin and phase
// and returns its id.
func (r *Registry) Register(handle string) domain.EntityID {
	r.mu.Lock()
	id := domain.NewEntityID()
	spin := domain.SpinUp
	if r.rng.Float64() < 0.5 {
		spin = domain.SpinDown
	}
	phase := r.rng.Float64() * twoPi
	r.states[id] = &domain.QuantumState{
		ID:        id,
		Handle:    handle,
		Phase:     phase,
		Spin:      spin,
		Amplitude: 1.0,
		Mode:      domain.ModeSuperposition,
	}
	r.order = append(r.order, id)
	r.mu.Unlock()

	// Emit unlocked: bus handlers read back through the registry.
	r.events.Emit(events.EntityRegistered, "quantum", &events.EntityRegisteredData{
		EntityID: string(id),
		Handle:   handle,
		Spin:     spin.String(),
		Phase:    phase,
	})
	return id
}

// Remove drops an entity from the registry. Pending decoherence timers
// are cancelled by the monitor reacting to the emitted event.
func (r *Registry) Remove(id domain.EntityID) error {
	r.mu.Lock()
	if _, ok := r.states[id]; !ok {
		r.mu.Unlock()
		return domain.ErrUnknownEntity
	}
	delete(r.states, id)
	for i, other := range r.order {
		if other == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.events.Emit(events.EntityRemoved, "quantum", &events.EntityRemovedData{EntityID: string(id)})
	return nil
}

// Observe weakly measures an entity: amplitude decays and, below the
// configured threshold, the state collapses.
func (r *Registry) Observe(id domain.EntityID) error {
	r.mu.Lock()
	state, ok := r.states[id]
	if !ok {
		r.mu.Unlock()
		r.log.Debug().Str("entity", string(id)).Msg("Observe on unknown entity")
		return domain.ErrUnknownEntity
	}
	state.ObservationCount++
	if state.Mode == domain.ModeCollapsed {
		r.mu.Unlock()
		return nil
	}
	state.Amplitude *= observeDecay
	collapse := state.Amplitude < r.cfg.ObservationThreshold
	r.mu.Unlock()

	if collapse {
		return r.Collapse(id, CauseObservation)
	}
	return nil
}

// Measure unconditionally collapses an entity.
func (r *Registry) Measure(id domain.EntityID) error {
	return r.Collapse(id, CauseMeasurement)
}

// Collapse resolves an entity to a definite spin/phase. Idempotent: a
// second call on a collapsed entity is a no-op, which is what makes
// entanglement propagation safe against cycles.
func (r *Registry) Collapse(id domain.EntityID, cause CollapseCause) error {
	r.mu.Lock()
	state, ok := r.states[id]
	if !ok {
		r.mu.Unlock()
		r.log.Debug().Str("entity", string(id)).Msg("Collapse on unknown entity")
		return domain.ErrUnknownEntity
	}
	if state.Mode == domain.ModeCollapsed {
		r.mu.Unlock()
		return nil
	}
	resolver := r.resolver
	r.mu.Unlock()

	// The resolver reads registry state, so it runs unlocked.
	var (
		spin       domain.Spin
		phase      float64
		correlated bool
	)
	if resolver != nil {
		spin, phase, correlated = resolver.ResolveCollapse(id)
	}

	r.mu.Lock()
	state, ok = r.states[id]
	if !ok || state.Mode == domain.ModeCollapsed {
		r.mu.Unlock()
		if !ok {
			return domain.ErrUnknownEntity
		}
		return nil
	}
	if correlated {
		state.Spin = spin
		state.Phase = wrapPhase(phase)
	} else {
		r.resolveRandomLocked(state)
	}
	state.Mode = domain.ModeCollapsed
	snapshot := *state
	r.mu.Unlock()

	r.events.Emit(events.StateCollapsed, "quantum", &events.StateCollapsedData{
		EntityID:     string(id),
		Spin:         snapshot.Spin.String(),
		Phase:        snapshot.Phase,
		Observations: snapshot.ObservationCount,
		Cause:        string(cause),
	})

	if resolver != nil {
		resolver.Collapsed(id)
	}
	return nil
}

// resolveRandomLocked picks the collapse outcome for an unentangled
// entity. Caller holds r.mu.
func (r *Registry) resolveRandomLocked(state *domain.QuantumState) {
	if r.rng.Float64() < 0.5 {
		state.Spin = domain.SpinUp
	} else {
		state.Spin = domain.SpinDown
	}
}

// Reset reopens superposition for a collapsed entity. This is the only
// way out of the collapsed mode.
func (r *Registry) Reset(id domain.EntityID) error {
	r.mu.Lock()
	state, ok := r.states[id]
	if !ok {
		r.mu.Unlock()
		return domain.ErrUnknownEntity
	}
	state.Mode = domain.ModeSuperposition
	state.Amplitude = 1.0
	state.Phase = r.rng.Float64() * twoPi
	state.ObservationCount = 0
	r.mu.Unlock()

	r.events.Emit(events.StateReset, "quantum", &events.StateResetData{EntityID: string(id)})
	return nil
}

// DampPhase applies decoherence phase damping: a bounded random phase
// kick plus amplitude decay. Returns the post-damping amplitude.
func (r *Registry) DampPhase(id domain.EntityID, kick float64) (float64, error) {
	r.mu.Lock()
	state, ok := r.states[id]
	if !ok || state.Mode == domain.ModeCollapsed {
		r.mu.Unlock()
		if !ok {
			return 0, domain.ErrUnknownEntity
		}
		return 0, nil
	}
	state.Phase = wrapPhase(state.Phase + kick)
	state.Amplitude *= observeDecay
	snapshot := *state
	r.mu.Unlock()

	r.events.Emit(events.PhaseDamped, "quantum", &events.PhaseDampedData{
		EntityID:  string(id),
		Phase:     snapshot.Phase,
		Amplitude: snapshot.Amplitude,
	})
	return snapshot.Amplitude, nil
}

// SetSpinPhase overwrites spin and phase; used by the entanglement
// manager when assigning correlated initial values.
func (r *Registry) SetSpinPhase(id domain.EntityID, spin domain.Spin, phase float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[id]
	if !ok {
		return domain.ErrUnknownEntity
	}
	state.Spin = spin
	state.Phase = wrapPhase(phase)
	return nil
}

// Get returns a copy of an entity's state.
func (r *Registry) Get(id domain.EntityID) (domain.QuantumState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[id]
	if !ok {
		return domain.QuantumState{}, false
	}
	return *state, true
}

// Superposed returns the ids of all entities still in superposition, in
// registration order.
func (r *Registry) Superposed() []domain.EntityID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]domain.EntityID, 0, len(r.order))
	for _, id := range r.order {
		if s, ok := r.states[id]; ok && s.Mode == domain.ModeSuperposition {
			ids = append(ids, id)
		}
	}
	return ids
}

// All returns copies of every state in registration order.
func (r *Registry) All() []domain.QuantumState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.QuantumState, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.states[id])
	}
	return out
}

// Count returns the number of registered entities.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

// wrapPhase maps any angle into [0, 2π).
func wrapPhase(phase float64) float64 {
	phase = math.Mod(phase, twoPi)
	if phase < 0 {
		phase += twoPi
	}
	return phase
}
