package neural

import (
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astatos/coherence/internal/config"
	"github.com/astatos/coherence/internal/domain"
	"github.com/astatos/coherence/internal/events"
)

func testConfig() config.NeuralConfig {
	return config.NeuralConfig{
		LearningRate:        0.01,
		PlasticityThreshold: 0.1,
		MaxSynapses:         12,
		DecayRate:           0.95,
		BCMThreshold:        1.0,
		HomeostasisRate:     0.1,
		TargetActivity:      0.3,
		DopamineModulation:  0.5,
		WireProbability:     0, // deterministic graphs in tests
	}
}

func newEngine(cfg config.NeuralConfig, seed int64) (*Engine, *events.Manager) {
	bus := events.NewBus()
	em := events.NewManager(bus, zerolog.Nop())
	return NewEngine(cfg, em, rand.New(rand.NewSource(seed)), zerolog.Nop()), em
}

func addNeurons(e *Engine, n int) []domain.EntityID {
	ids := make([]domain.EntityID, n)
	for i := range ids {
		ids[i] = domain.NewEntityID()
		e.AddNeuron(ids[i])
	}
	return ids
}

func TestTick_FiresAboveThresholdAndResets(t *testing.T) {
	e, em := newEngine(testConfig(), 1)
	ids := addNeurons(e, 1)

	var fired *events.NeuronFiredData
	em.Bus().Subscribe(events.NeuronFired, func(ev *events.Event) {
		fired, _ = ev.Data.(*events.NeuronFiredData)
	})

	e.Stimulate(ids[0], 2.0)
	e.Tick()

	require.NotNil(t, fired)
	assert.Equal(t, string(ids[0]), fired.EntityID)
	assert.InDelta(t, 2.0*0.95, fired.Potential, 1e-9)

	n, ok := e.Neuron(ids[0])
	require.True(t, ok)
	assert.Equal(t, 0.0, n.Potential, "firing must reset the potential")
	assert.Equal(t, uint64(1), n.LastFired)
}

func TestTick_SubthresholdDecaysWithoutFiring(t *testing.T) {
	e, em := newEngine(testConfig(), 2)
	ids := addNeurons(e, 1)

	firedCount := 0
	em.Bus().Subscribe(events.NeuronFired, func(*events.Event) { firedCount++ })

	e.Stimulate(ids[0], 0.5)
	e.Tick()
	e.Tick()

	assert.Equal(t, 0, firedCount)
	n, _ := e.Neuron(ids[0])
	assert.InDelta(t, 0.5*0.95*0.95, n.Potential, 1e-9)
}

func TestTick_PropagatesWeightedSignal(t *testing.T) {
	e, _ := newEngine(testConfig(), 3)
	ids := addNeurons(e, 2)
	require.NoError(t, e.FormSynapse(ids[0], ids[1], 0.8))

	e.Stimulate(ids[0], 2.0)
	e.Tick()

	pre, _ := e.Neuron(ids[0])
	post, _ := e.Neuron(ids[1])
	assert.InDelta(t, 0.8*pre.Transmitter.Strength(), post.Potential, 1e-9)
}

func TestFormSynapse_Rejections(t *testing.T) {
	e, _ := newEngine(testConfig(), 4)
	ids := addNeurons(e, 2)

	assert.ErrorIs(t, e.FormSynapse(ids[0], ids[0], 0.5), ErrSelfSynapse)
	assert.ErrorIs(t, e.FormSynapse(ids[0], "missing", 0.5), domain.ErrUnknownEntity)

	require.NoError(t, e.FormSynapse(ids[0], ids[1], 0.5))
	assert.ErrorIs(t, e.FormSynapse(ids[0], ids[1], 0.7), ErrDuplicateSynapse)
}

func TestFormSynapse_EvictsWeakestAtCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSynapses = 2
	e, em := newEngine(cfg, 5)
	ids := addNeurons(e, 4)

	var pruned *events.SynapsePrunedData
	em.Bus().Subscribe(events.SynapsePruned, func(ev *events.Event) {
		pruned, _ = ev.Data.(*events.SynapsePrunedData)
	})

	require.NoError(t, e.FormSynapse(ids[0], ids[1], 0.6))
	require.NoError(t, e.FormSynapse(ids[0], ids[2], 0.2))
	require.NoError(t, e.FormSynapse(ids[0], ids[3], 0.9))

	assert.Equal(t, 2, e.FanOut(ids[0]))
	require.NotNil(t, pruned)
	assert.Equal(t, string(ids[2]), pruned.Post, "minimum weight synapse must go")
	assert.Equal(t, "eviction", pruned.Reason)

	remaining := e.Synapses()
	require.Len(t, remaining, 2)
	assert.Equal(t, ids[1], remaining[0].Post)
	assert.Equal(t, ids[3], remaining[1].Post)
}

func TestRemoveNeuron_PrunesIncidentSynapses(t *testing.T) {
	e, _ := newEngine(testConfig(), 6)
	ids := addNeurons(e, 3)
	require.NoError(t, e.FormSynapse(ids[0], ids[1], 0.5))
	require.NoError(t, e.FormSynapse(ids[1], ids[2], 0.5))
	require.NoError(t, e.FormSynapse(ids[2], ids[0], 0.5))

	e.RemoveNeuron(ids[1])

	remaining := e.Synapses()
	require.Len(t, remaining, 1)
	assert.Equal(t, ids[2], remaining[0].Pre)
	assert.Equal(t, ids[0], remaining[0].Post)
}

func TestPlasticity_WeightsStayClamped(t *testing.T) {
	cfg := testConfig()
	cfg.LearningRate = 10 // exaggerate every update
	e, _ := newEngine(cfg, 7)
	ids := addNeurons(e, 2)
	require.NoError(t, e.FormSynapse(ids[0], ids[1], 0.5))

	// Drive both neurons to high activity.
	for i := 0; i < 30; i++ {
		e.Stimulate(ids[0], 5)
		e.Stimulate(ids[1], 5)
		e.Tick()
	}

	for _, rule := range []Rule{RuleHebbian, RuleSTDP, RuleBCM, RuleOja} {
		require.NoError(t, e.ApplyPlasticity(rule, ids[0], ids[1]))
		s := e.Synapses()[0]
		assert.GreaterOrEqual(t, s.Weight, 0.0, "rule %s", rule)
		assert.LessOrEqual(t, s.Weight, 1.0, "rule %s", rule)
	}
}

func TestPlasticity_UnknownRuleRejected(t *testing.T) {
	e, _ := newEngine(testConfig(), 7)
	ids := addNeurons(e, 2)
	require.NoError(t, e.FormSynapse(ids[0], ids[1], 0.5))

	before := e.Synapses()[0].Weight
	err := e.ApplyPlasticity("anti-hebbian", ids[0], ids[1])
	assert.ErrorIs(t, err, ErrUnknownRule)
	assert.Equal(t, before, e.Synapses()[0].Weight, "rejected rule must not touch the weight")
}

func TestPlasticity_HebbianStrengthensCoactivePair(t *testing.T) {
	e, _ := newEngine(testConfig(), 8)
	ids := addNeurons(e, 2)
	require.NoError(t, e.FormSynapse(ids[0], ids[1], 0.5))

	for i := 0; i < 10; i++ {
		e.Stimulate(ids[0], 5)
		e.Stimulate(ids[1], 5)
		e.Tick()
	}

	before := e.Synapses()[0].Weight
	require.NoError(t, e.ApplyPlasticity(RuleHebbian, ids[0], ids[1]))
	assert.Greater(t, e.Synapses()[0].Weight, before)
}

func TestPlasticity_STDPDirection(t *testing.T) {
	e, _ := newEngine(testConfig(), 9)
	ids := addNeurons(e, 2)
	require.NoError(t, e.FormSynapse(ids[0], ids[1], 0.5))

	// Pre fires on tick 1, post on tick 2: causal order, potentiation.
	e.Stimulate(ids[0], 2)
	e.Tick()
	e.Stimulate(ids[1], 2)
	e.Tick()

	// The online update at post's fire time already potentiated.
	assert.Greater(t, e.Synapses()[0].Weight, 0.5)

	// Explicit anti-causal application depresses.
	e2, _ := newEngine(testConfig(), 9)
	ids2 := addNeurons(e2, 2)
	require.NoError(t, e2.FormSynapse(ids2[0], ids2[1], 0.5))
	e2.Stimulate(ids2[1], 2)
	e2.Tick()
	e2.Stimulate(ids2[0], 2)
	e2.Tick()
	require.NoError(t, e2.ApplyPlasticity(RuleSTDP, ids2[0], ids2[1]))
	assert.Less(t, e2.Synapses()[0].Weight, 0.5)
}

// driveAsymmetric fires post every tick and pre every other tick, so
// post activity rises above the population mean.
func driveAsymmetric(e *Engine, pre, post domain.EntityID, ticks int) {
	for i := 0; i < ticks; i++ {
		if i%2 == 0 {
			e.Stimulate(pre, 5)
		}
		e.Stimulate(post, 5)
		e.Tick()
	}
}

func TestPlasticity_BCMLeavesTagAboveThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.LearningRate = 2  // push |Δw| over the tag threshold
	cfg.BCMThreshold = 0.8 // sliding threshold below the post activity
	e, _ := newEngine(cfg, 10)
	ids := addNeurons(e, 2)
	require.NoError(t, e.FormSynapse(ids[0], ids[1], 0.5))

	driveAsymmetric(e, ids[0], ids[1], 30)

	require.NoError(t, e.ApplyPlasticity(RuleBCM, ids[0], ids[1]))
	s := e.Synapses()[0]
	require.NotNil(t, s.Tag, "large BCM update must leave a late-phase tag")
	assert.Equal(t, domain.TagLateLTP, s.Tag.Kind)
}

func TestApplyReward_ConsumesTags(t *testing.T) {
	cfg := testConfig()
	cfg.LearningRate = 2
	cfg.BCMThreshold = 0.8
	e, em := newEngine(cfg, 11)
	ids := addNeurons(e, 2)
	require.NoError(t, e.FormSynapse(ids[0], ids[1], 0.5))

	driveAsymmetric(e, ids[0], ids[1], 30)
	require.NoError(t, e.ApplyPlasticity(RuleBCM, ids[0], ids[1]))
	tagged := e.Synapses()[0]
	require.NotNil(t, tagged.Tag)
	require.Equal(t, domain.TagLateLTP, tagged.Tag.Kind)

	var rewarded *events.RewardAppliedData
	em.Bus().Subscribe(events.RewardApplied, func(ev *events.Event) {
		rewarded, _ = ev.Data.(*events.RewardAppliedData)
	})

	before := tagged.Weight
	modified := e.ApplyReward(1.0)
	assert.GreaterOrEqual(t, e.Synapses()[0].Weight, before)
	assert.Equal(t, 1, modified)
	require.NotNil(t, rewarded)
	assert.Equal(t, 1, rewarded.Modified)

	assert.Nil(t, e.Synapses()[0].Tag, "reward must consume the tag")
	assert.Equal(t, 0, e.ApplyReward(1.0), "no tags left to consume")
}

func TestHomeostasis_PullsQuietNetworkUp(t *testing.T) {
	e, _ := newEngine(testConfig(), 12)
	ids := addNeurons(e, 2)
	require.NoError(t, e.FormSynapse(ids[0], ids[1], 0.5))

	// Nothing fired: activity 0 is below the 0.3 set point, so outgoing
	// weights scale up by 1 + 0.3×0.1.
	e.Homeostasis()
	assert.InDelta(t, 0.5*1.03, e.Synapses()[0].Weight, 1e-9)
}

func TestLifecycle_FollowsEntityEvents(t *testing.T) {
	e, em := newEngine(testConfig(), 13)

	em.Emit(events.EntityRegistered, "quantum", &events.EntityRegisteredData{EntityID: "n1"})
	em.Emit(events.EntityRegistered, "quantum", &events.EntityRegisteredData{EntityID: "n2"})
	assert.Len(t, e.Neurons(), 2)

	em.Emit(events.EntityRemoved, "quantum", &events.EntityRemovedData{EntityID: "n1"})
	assert.Len(t, e.Neurons(), 1)

	// Stimulating a removed neuron is a no-op.
	e.Stimulate("n1", 5)
	_, ok := e.Neuron("n1")
	assert.False(t, ok)
}
