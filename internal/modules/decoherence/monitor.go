// Package decoherence models environmental decay: every superposed
// entity carries a scheduled event that either phase-damps it or
// collapses it outright, at a rate set by an evolving environment.
package decoherence

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/astatos/coherence/internal/config"
	"github.com/astatos/coherence/internal/domain"
	"github.com/astatos/coherence/internal/events"
	"github.com/astatos/coherence/internal/modules/quantum"
)

const (
	// ambientTemperature is the drift midpoint in kelvin.
	ambientTemperature = 300.0
	// temperatureSwing is the sinusoidal drift half-amplitude.
	temperatureSwing = 15.0
	// temperaturePeriod is one full drift cycle.
	temperaturePeriod = 2 * time.Minute
	// maxBackaction caps the measurement-backaction probability.
	maxBackaction = 0.2
	// backactionScale converts device-motion magnitude into backaction.
	backactionScale = 0.02
	// collapseFloor is the amplitude below which damping gives way to
	// collapse.
	collapseFloor = 0.3
	// noiseTableSize is the length of the precomputed colored-noise table.
	noiseTableSize = 256
	// noiseSmoothing is the one-pole low-pass factor shaping the noise.
	noiseSmoothing = 0.85
)

// StateSource is the slice of the quantum registry the monitor needs.
type StateSource interface {
	Get(id domain.EntityID) (domain.QuantumState, bool)
	DampPhase(id domain.EntityID, kick float64) (float64, error)
	Collapse(id domain.EntityID, cause quantum.CollapseCause) error
}

// Monitor schedules and triggers decoherence events. Timers are keyed
// by entity id and cancelled when the entity collapses or disappears.
type Monitor struct {
	cfg    config.DecoherenceConfig
	states StateSource
	events *events.Manager
	log    zerolog.Logger

	mu          sync.Mutex
	rng         *rand.Rand
	start       time.Time
	temperature float64
	noiseTable  []float64
	backaction  float64
	due         map[domain.EntityID]time.Time
}

// NewMonitor creates a decoherence monitor and subscribes it to the
// entity lifecycle: registration and reset schedule a decay event,
// collapse and removal cancel it.
func NewMonitor(cfg config.DecoherenceConfig, states StateSource, em *events.Manager, rng *rand.Rand, log zerolog.Logger) *Monitor {
	m := &Monitor{
		cfg:         cfg,
		states:      states,
		events:      em,
		log:         log.With().Str("module", "decoherence").Logger(),
		rng:         rng,
		start:       time.Now(),
		temperature: ambientTemperature,
		noiseTable:  buildNoiseTable(rng),
		due:         make(map[domain.EntityID]time.Time),
	}

	bus := em.Bus()
	bus.Subscribe(events.EntityRegistered, func(e *events.Event) {
		if data, ok := e.Data.(*events.EntityRegisteredData); ok {
			m.Track(domain.EntityID(data.EntityID))
		}
	})
	bus.Subscribe(events.StateReset, func(e *events.Event) {
		if data, ok := e.Data.(*events.StateResetData); ok {
			m.Track(domain.EntityID(data.EntityID))
		}
	})
	bus.Subscribe(events.StateCollapsed, func(e *events.Event) {
		if data, ok := e.Data.(*events.StateCollapsedData); ok {
			m.Cancel(domain.EntityID(data.EntityID))
		}
	})
	bus.Subscribe(events.EntityRemoved, func(e *events.Event) {
		if data, ok := e.Data.(*events.EntityRemovedData); ok {
			m.Cancel(domain.EntityID(data.EntityID))
		}
	})
	return m
}

// buildNoiseTable precomputes a colored-noise table: white noise pushed
// through a one-pole low-pass, rescaled into [0,1].
func buildNoiseTable(rng *rand.Rand) []float64 {
	table := make([]float64, noiseTableSize)
	value := rng.Float64()
	lo, hi := value, value
	for i := range table {
		value = noiseSmoothing*value + (1-noiseSmoothing)*rng.Float64()
		table[i] = value
		lo = math.Min(lo, value)
		hi = math.Max(hi, value)
	}
	if hi > lo {
		for i := range table {
			table[i] = (table[i] - lo) / (hi - lo)
		}
	}
	return table
}

// UpdateEnvironment advances the environment model. Called on the slow
// path (default every 5 s).
func (m *Monitor) UpdateEnvironment(now time.Time) {
	m.mu.Lock()
	elapsed := now.Sub(m.start)
	m.temperature = ambientTemperature +
		temperatureSwing*math.Sin(2*math.Pi*elapsed.Seconds()/temperaturePeriod.Seconds())
	temperature := m.temperature
	noise := m.noiseSampleLocked(now)
	backaction := m.backaction
	m.mu.Unlock()

	m.events.Emit(events.EnvironmentUpdated, "decoherence", &events.EnvironmentUpdatedData{
		Temperature: temperature,
		NoiseSample: noise,
		Backaction:  backaction,
	})
}

// SetMotionMagnitude maps a device-motion magnitude onto measurement
// backaction, clamped to [0, 0.2].
func (m *Monitor) SetMotionMagnitude(magnitude float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backaction = math.Max(0, math.Min(maxBackaction, magnitude*backactionScale))
}

// Backaction returns the current measurement-backaction probability.
func (m *Monitor) Backaction() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backaction
}

// Track schedules the next decoherence event for an entity.
func (m *Monitor) Track(id domain.EntityID) {
	state, ok := m.states.Get(id)
	if !ok || state.Mode != domain.ModeSuperposition {
		return
	}
	now := time.Now()
	delay := m.coherenceDelay(state, now)

	m.mu.Lock()
	m.due[id] = now.Add(delay)
	m.mu.Unlock()
}

// Cancel drops any pending decoherence event for an entity.
func (m *Monitor) Cancel(id domain.EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.due, id)
}

// Pending returns the number of scheduled decoherence events.
func (m *Monitor) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.due)
}

// CoherenceTime returns the currently predicted coherence window for an
// entity, for introspection.
func (m *Monitor) CoherenceTime(id domain.EntityID) (time.Duration, bool) {
	state, ok := m.states.Get(id)
	if !ok {
		return 0, false
	}
	return m.coherenceDelay(state, time.Now()), true
}

// coherenceDelay computes the scheduled decay delay for a state:
// (base/currentRate) × memoryFactor × zenoFactor × noiseFactor.
func (m *Monitor) coherenceDelay(state domain.QuantumState, now time.Time) time.Duration {
	m.mu.Lock()
	temperature := m.temperature
	noise := m.noiseSampleLocked(now)
	m.mu.Unlock()

	currentRate := m.cfg.BaseDecoherenceRate * (1 + (temperature-ambientTemperature)*m.cfg.TemperatureFactor)
	if currentRate < 1e-9 {
		currentRate = 1e-9
	}

	count := float64(state.ObservationCount)
	// Non-Markovian memory: a history of interactions shortens coherence.
	memoryFactor := 1 - m.cfg.NonMarkovianity*count/(count+5)
	// Quantum Zeno effect: frequent observation slows decoherence.
	zenoFactor := 1 + math.Log10(count+1)
	noiseFactor := 1 + (2*noise - 1)
	if noiseFactor < 0.1 {
		noiseFactor = 0.1
	}

	ms := (m.cfg.CoherenceTime / currentRate) * memoryFactor * zenoFactor * noiseFactor
	return time.Duration(ms * float64(time.Millisecond))
}

// noiseSampleLocked samples the colored-noise table by elapsed time.
// Caller holds m.mu.
func (m *Monitor) noiseSampleLocked(now time.Time) float64 {
	elapsed := now.Sub(m.start)
	idx := int(elapsed.Seconds()*2) % len(m.noiseTable)
	if idx < 0 {
		idx = 0
	}
	return m.noiseTable[idx]
}

// Tick fires every due decoherence event. With probability backaction
// the entity collapses outright; otherwise it is phase-damped and
// rescheduled, collapsing anyway once its amplitude sinks below 0.3.
func (m *Monitor) Tick(now time.Time) {
	m.mu.Lock()
	var fired []domain.EntityID
	for id, at := range m.due {
		if !at.After(now) {
			fired = append(fired, id)
		}
	}
	// Map order is random; sort for deterministic per-tick processing.
	sort.Slice(fired, func(i, j int) bool { return fired[i] < fired[j] })
	for _, id := range fired {
		delete(m.due, id)
	}
	backaction := m.backaction
	m.mu.Unlock()

	for _, id := range fired {
		m.fire(id, backaction, now)
	}
}

// fire handles a single due entity. Runs unlocked: collapse and damping
// emit events whose handlers call back into the monitor.
func (m *Monitor) fire(id domain.EntityID, backaction float64, now time.Time) {
	state, ok := m.states.Get(id)
	if !ok || state.Mode != domain.ModeSuperposition {
		return
	}

	m.mu.Lock()
	roll := m.rng.Float64()
	kick := (m.rng.Float64() - 0.5) * math.Pi / 2 // uniform(−π/4, π/4)
	m.mu.Unlock()

	if roll < backaction {
		if err := m.states.Collapse(id, quantum.CauseDecoherence); err != nil {
			m.log.Debug().Err(err).Str("entity", string(id)).Msg("Backaction collapse skipped")
		}
		return
	}

	amplitude, err := m.states.DampPhase(id, kick)
	if err != nil {
		m.log.Debug().Err(err).Str("entity", string(id)).Msg("Phase damping skipped")
		return
	}
	if amplitude < collapseFloor {
		if err := m.states.Collapse(id, quantum.CauseDecoherence); err != nil {
			m.log.Debug().Err(err).Str("entity", string(id)).Msg("Floor collapse skipped")
		}
		return
	}

	// Survived: reschedule.
	state, ok = m.states.Get(id)
	if !ok || state.Mode != domain.ModeSuperposition {
		return
	}
	delay := m.coherenceDelay(state, now)
	m.mu.Lock()
	m.due[id] = now.Add(delay)
	m.mu.Unlock()
}
