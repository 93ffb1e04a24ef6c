// Package neural runs a leaky integrate-and-fire network over the same
// entity ids as the quantum registry. Neurons accumulate potential,
// fire past a threshold, and push weighted signal across a bounded
// synapse graph shaped by four plasticity rules.
package neural

import (
	"errors"
	"math"
	"math/rand"
	"sync"

	"github.com/rs/zerolog"

	"github.com/astatos/coherence/internal/config"
	"github.com/astatos/coherence/internal/domain"
	"github.com/astatos/coherence/internal/events"
)

var (
	// ErrSelfSynapse is returned when pre and post are the same neuron.
	ErrSelfSynapse = errors.New("synapse cannot loop back to its own neuron")
	// ErrDuplicateSynapse is returned when the directed edge already exists.
	ErrDuplicateSynapse = errors.New("synapse already exists")
	// ErrUnknownRule is returned for a plasticity rule name that is not one
	// of hebbian, stdp, bcm or oja.
	ErrUnknownRule = errors.New("unknown plasticity rule")
)

const (
	// firingThreshold is the membrane potential a neuron must exceed to fire.
	firingThreshold = 1.0
	// activitySmoothing is the EMA factor for per-neuron firing activity.
	activitySmoothing = 0.95
	// tagDecay shrinks late-phase tag strength every tick.
	tagDecay = 0.99
	// tagFloor is the strength below which a tag is dropped.
	tagFloor = 0.01
	// wireAttempts bounds spontaneous wiring per new neuron.
	wireAttempts = 3
)

// Tag is an ephemeral late-phase plasticity marker on a synapse. Its
// strength decays every tick until reward modulation consumes it or it
// fades out.
type Tag struct {
	Kind     domain.TagKind
	Strength float64
}

// Synapse is a directed weighted edge between two neurons.
type Synapse struct {
	Pre    domain.EntityID
	Post   domain.EntityID
	Weight float64
	Tag    *Tag
}

// Neuron is the per-entity integrate-and-fire unit.
type Neuron struct {
	ID          domain.EntityID
	Potential   float64
	Threshold   float64
	Transmitter domain.Neurotransmitter
	LastFired   uint64 // tick index; 0 means never fired
	Activity    float64
}

// Engine owns the neuron table and the synapse graph. All mutation goes
// through it; the HTTP layer sees copies only.
type Engine struct {
	cfg    config.NeuralConfig
	events *events.Manager
	log    zerolog.Logger

	mu       sync.Mutex
	rng      *rand.Rand
	tick     uint64
	neurons  map[domain.EntityID]*Neuron
	order    []domain.EntityID
	synapses []*Synapse
}

// NewEngine creates a neural engine and ties its population to the
// entity lifecycle: registration grows a neuron, removal prunes it and
// its synapses.
func NewEngine(cfg config.NeuralConfig, em *events.Manager, rng *rand.Rand, log zerolog.Logger) *Engine {
	e := &Engine{
		cfg:     cfg,
		events:  em,
		log:     log.With().Str("module", "neural").Logger(),
		rng:     rng,
		neurons: make(map[domain.EntityID]*Neuron),
	}
	bus := em.Bus()
	bus.Subscribe(events.EntityRegistered, func(ev *events.Event) {
		if data, ok := ev.Data.(*events.EntityRegisteredData); ok {
			e.AddNeuron(domain.EntityID(data.EntityID))
		}
	})
	bus.Subscribe(events.EntityRemoved, func(ev *events.Event) {
		if data, ok := ev.Data.(*events.EntityRemovedData); ok {
			e.RemoveNeuron(domain.EntityID(data.EntityID))
		}
	})
	return e
}

// AddNeuron inserts a neuron for an entity, draws its neurotransmitter,
// and wires a few spontaneous synapses to existing neurons. A second
// add for the same id is a no-op.
func (e *Engine) AddNeuron(id domain.EntityID) {
	e.mu.Lock()
	if _, exists := e.neurons[id]; exists {
		e.mu.Unlock()
		return
	}
	n := &Neuron{
		ID:          id,
		Threshold:   firingThreshold,
		Transmitter: e.drawTransmitterLocked(),
	}
	e.neurons[id] = n
	e.order = append(e.order, id)

	// Spontaneous wiring against a few random peers.
	var formed []*Synapse
	peers := len(e.order) - 1
	for attempt := 0; attempt < wireAttempts && peers > 0; attempt++ {
		if e.rng.Float64() >= e.cfg.WireProbability {
			continue
		}
		peer := e.order[e.rng.Intn(peers)]
		weight := 0.3 + e.rng.Float64()*0.4
		if s := e.formSynapseLocked(id, peer, weight); s != nil {
			formed = append(formed, s)
		}
	}
	e.mu.Unlock()

	for _, s := range formed {
		e.events.Emit(events.SynapseFormed, "neural", &events.SynapseFormedData{
			Pre:    string(s.Pre),
			Post:   string(s.Post),
			Weight: s.Weight,
		})
	}
}

// drawTransmitterLocked picks a neurotransmitter with glutamate as the
// dominant class. Caller holds e.mu.
func (e *Engine) drawTransmitterLocked() domain.Neurotransmitter {
	switch roll := e.rng.Float64(); {
	case roll < 0.6:
		return domain.Glutamate
	case roll < 0.85:
		return domain.GABA
	default:
		return domain.Dopamine
	}
}

// RemoveNeuron drops a neuron and every synapse touching it.
func (e *Engine) RemoveNeuron(id domain.EntityID) {
	e.mu.Lock()
	if _, exists := e.neurons[id]; !exists {
		e.mu.Unlock()
		return
	}
	delete(e.neurons, id)
	for i, other := range e.order {
		if other == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	var pruned []*Synapse
	kept := e.synapses[:0]
	for _, s := range e.synapses {
		if s.Pre == id || s.Post == id {
			pruned = append(pruned, s)
			continue
		}
		kept = append(kept, s)
	}
	e.synapses = kept
	e.mu.Unlock()

	for _, s := range pruned {
		e.events.Emit(events.SynapsePruned, "neural", &events.SynapsePrunedData{
			Pre:    string(s.Pre),
			Post:   string(s.Post),
			Weight: s.Weight,
			Reason: "removal",
		})
	}
}

// FormSynapse creates a directed edge pre→post. Self-loops and
// duplicate edges are rejected; when pre's fan-out is at capacity the
// weakest outgoing synapse is evicted first.
func (e *Engine) FormSynapse(pre, post domain.EntityID, weight float64) error {
	if pre == post {
		return ErrSelfSynapse
	}

	e.mu.Lock()
	if _, ok := e.neurons[pre]; !ok {
		e.mu.Unlock()
		return domain.ErrUnknownEntity
	}
	if _, ok := e.neurons[post]; !ok {
		e.mu.Unlock()
		return domain.ErrUnknownEntity
	}
	for _, s := range e.synapses {
		if s.Pre == pre && s.Post == post {
			e.mu.Unlock()
			return ErrDuplicateSynapse
		}
	}
	evicted := e.evictIfFullLocked(pre)
	created := e.insertSynapseLocked(pre, post, weight)
	e.mu.Unlock()

	if evicted != nil {
		e.events.Emit(events.SynapsePruned, "neural", &events.SynapsePrunedData{
			Pre:    string(evicted.Pre),
			Post:   string(evicted.Post),
			Weight: evicted.Weight,
			Reason: "eviction",
		})
	}
	e.events.Emit(events.SynapseFormed, "neural", &events.SynapseFormedData{
		Pre:    string(created.Pre),
		Post:   string(created.Post),
		Weight: created.Weight,
	})
	return nil
}

// formSynapseLocked is the silent variant used by spontaneous wiring.
// Returns nil when the edge is invalid or already present. Caller holds
// e.mu and emits events after unlocking.
func (e *Engine) formSynapseLocked(pre, post domain.EntityID, weight float64) *Synapse {
	if pre == post {
		return nil
	}
	for _, s := range e.synapses {
		if s.Pre == pre && s.Post == post {
			return nil
		}
	}
	if e.fanOutLocked(pre) >= e.cfg.MaxSynapses {
		return nil
	}
	return e.insertSynapseLocked(pre, post, weight)
}

func (e *Engine) insertSynapseLocked(pre, post domain.EntityID, weight float64) *Synapse {
	s := &Synapse{Pre: pre, Post: post, Weight: clampWeight(weight)}
	e.synapses = append(e.synapses, s)
	return s
}

func (e *Engine) fanOutLocked(pre domain.EntityID) int {
	count := 0
	for _, s := range e.synapses {
		if s.Pre == pre {
			count++
		}
	}
	return count
}

// evictIfFullLocked removes pre's minimum-weight outgoing synapse when
// the fan-out is at capacity. Caller holds e.mu.
func (e *Engine) evictIfFullLocked(pre domain.EntityID) *Synapse {
	if e.fanOutLocked(pre) < e.cfg.MaxSynapses {
		return nil
	}
	weakest := -1
	for i, s := range e.synapses {
		if s.Pre != pre {
			continue
		}
		if weakest < 0 || s.Weight < e.synapses[weakest].Weight {
			weakest = i
		}
	}
	victim := e.synapses[weakest]
	e.synapses = append(e.synapses[:weakest], e.synapses[weakest+1:]...)
	return victim
}

// Stimulate injects potential into a neuron, the entry point for
// interaction signals. Unknown ids are a no-op.
func (e *Engine) Stimulate(id domain.EntityID, amount float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n, ok := e.neurons[id]; ok {
		n.Potential += amount
	}
}

// Tick advances the network one step: decay every potential, fire
// neurons past threshold, propagate weighted signal, run the online
// timing-based update on the synapses of every fired neuron, and decay
// late-phase tags.
func (e *Engine) Tick() {
	e.mu.Lock()
	e.tick++

	var fired []*Neuron
	for _, id := range e.order {
		n := e.neurons[id]
		n.Potential *= e.cfg.DecayRate
		if n.Potential > n.Threshold {
			fired = append(fired, n)
		}
	}

	type firing struct {
		id        domain.EntityID
		potential float64
	}
	emitted := make([]firing, 0, len(fired))
	for _, n := range fired {
		emitted = append(emitted, firing{id: n.ID, potential: n.Potential})
		n.Potential = 0
		n.LastFired = e.tick
	}

	// Activity EMA folds in this tick's firing.
	firedSet := make(map[domain.EntityID]bool, len(fired))
	for _, n := range fired {
		firedSet[n.ID] = true
	}
	for _, id := range e.order {
		n := e.neurons[id]
		sample := 0.0
		if firedSet[n.ID] {
			sample = 1.0
		}
		n.Activity = n.Activity*activitySmoothing + sample*(1-activitySmoothing)
	}

	// Propagation and spike-timing plasticity.
	var changes []*events.WeightChangedData
	for _, n := range fired {
		for _, s := range e.synapses {
			if s.Pre == n.ID {
				if post, ok := e.neurons[s.Post]; ok {
					post.Potential += s.Weight * n.Transmitter.Strength()
				}
			}
			// A fired postsynaptic neuron strengthens or weakens the
			// incoming edge by relative spike timing.
			if s.Post == n.ID {
				if pre, ok := e.neurons[s.Pre]; ok && pre.LastFired > 0 {
					if c := e.applySTDPLocked(s, pre.LastFired, e.tick); c != nil {
						changes = append(changes, c)
					}
				}
			}
		}
	}

	for _, s := range e.synapses {
		if s.Tag == nil {
			continue
		}
		s.Tag.Strength *= tagDecay
		if s.Tag.Strength < tagFloor {
			s.Tag = nil
		}
	}
	tick := e.tick
	e.mu.Unlock()

	for _, f := range emitted {
		e.events.Emit(events.NeuronFired, "neural", &events.NeuronFiredData{
			EntityID:  string(f.id),
			Potential: f.potential,
			Tick:      tick,
		})
	}
	for _, c := range changes {
		e.events.Emit(events.WeightChanged, "neural", c)
	}
}

// Homeostasis rescales every neuron's outgoing weights toward the
// target activity set point. Runs on the slow path.
func (e *Engine) Homeostasis() {
	e.mu.Lock()
	var changes []*events.WeightChangedData
	for _, id := range e.order {
		n := e.neurons[id]
		factor := 1 + (e.cfg.TargetActivity-n.Activity)*e.cfg.HomeostasisRate
		for _, s := range e.synapses {
			if s.Pre != n.ID {
				continue
			}
			old := s.Weight
			s.Weight = clampWeight(s.Weight * factor)
			if s.Weight != old {
				changes = append(changes, &events.WeightChangedData{
					Pre:       string(s.Pre),
					Post:      string(s.Post),
					OldWeight: old,
					NewWeight: s.Weight,
					Rule:      "homeostasis",
				})
			}
		}
	}
	e.mu.Unlock()

	for _, c := range changes {
		e.events.Emit(events.WeightChanged, "neural", c)
	}
}

// ApplyReward consumes late-phase tags: positive signal scales
// late-LTP-tagged synapses up, negative signal scales late-LTD-tagged
// synapses down. Returns the number of synapses modified.
func (e *Engine) ApplyReward(signal float64) int {
	e.mu.Lock()
	var changes []*events.WeightChangedData
	modified := 0
	for _, s := range e.synapses {
		if s.Tag == nil {
			continue
		}
		var factor float64
		switch {
		case signal > 0 && s.Tag.Kind == domain.TagLateLTP:
			factor = 1 + signal*e.cfg.DopamineModulation*s.Tag.Strength
		case signal < 0 && s.Tag.Kind == domain.TagLateLTD:
			factor = 1 + signal*e.cfg.DopamineModulation*s.Tag.Strength
		default:
			continue
		}
		old := s.Weight
		s.Weight = clampWeight(s.Weight * factor)
		s.Tag = nil
		modified++
		changes = append(changes, &events.WeightChangedData{
			Pre:       string(s.Pre),
			Post:      string(s.Post),
			OldWeight: old,
			NewWeight: s.Weight,
			Rule:      "reward",
		})
	}
	e.mu.Unlock()

	for _, c := range changes {
		e.events.Emit(events.WeightChanged, "neural", c)
	}
	e.events.Emit(events.RewardApplied, "neural", &events.RewardAppliedData{
		Signal:   signal,
		Modified: modified,
	})
	return modified
}

// Neuron returns a copy of a neuron's state.
func (e *Engine) Neuron(id domain.EntityID) (Neuron, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.neurons[id]
	if !ok {
		return Neuron{}, false
	}
	return *n, true
}

// Neurons returns copies of every neuron in insertion order.
func (e *Engine) Neurons() []Neuron {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Neuron, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, *e.neurons[id])
	}
	return out
}

// Synapses returns copies of every synapse in insertion order.
func (e *Engine) Synapses() []Synapse {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Synapse, 0, len(e.synapses))
	for _, s := range e.synapses {
		copied := *s
		if s.Tag != nil {
			tag := *s.Tag
			copied.Tag = &tag
		}
		out = append(out, copied)
	}
	return out
}

// FanOut returns the number of outgoing synapses of a neuron.
func (e *Engine) FanOut(id domain.EntityID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fanOutLocked(id)
}

// avgActivityLocked is the population mean activity. Caller holds e.mu.
func (e *Engine) avgActivityLocked() float64 {
	if len(e.order) == 0 {
		return 0
	}
	sum := 0.0
	for _, id := range e.order {
		sum += e.neurons[id].Activity
	}
	return sum / float64(len(e.order))
}

// clampWeight bounds a synapse weight to [0,1].
func clampWeight(w float64) float64 {
	return math.Max(0, math.Min(1, w))
}
