package quantum

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

func newTestRegistry(seed int64) (*Registry, *events.Bus) {
	bus := events.NewBus()
	em := events.NewManager(bus, zerolog.Nop())
	cfg := config.QuantumConfig{ObservationThreshold: 0.85}
	return NewRegistry(cfg, em, rand.New(rand.NewSource(seed)), zerolog.Nop()), bus
}

func TestRegister_InitialState(t *testing.T) {
	reg, _ := newTestRegistry(1)

	id := reg.Register("hero-card")
	state, ok := reg.Get(id)
	require.True(t, ok)

	assert.Equal(t, domain.ModeSuperposition, state.Mode)
	assert.Equal(t, 1.0, state.Amplitude)
	assert.GreaterOrEqual(t, state.Phase, 0.0)
	assert.Less(t, state.Phase, twoPi)
	assert.Equal(t, "hero-card", state.Handle)
	assert.Equal(t, 0, state.ObservationCount)
}

func TestRegister_SubscriberReadsBackDuringEmit(t *testing.T) {
	reg, bus := newTestRegistry(11)

	// Lifecycle subscribers read back through the registry while the
	// registration event is still being delivered; the registry must not
	// hold its lock across the emit.
	var seen domain.QuantumState
	var ok bool
	bus.Subscribe(events.EntityRegistered, func(e *events.Event) {
		data := e.Data.(*events.EntityRegisteredData)
		seen, ok = reg.Get(domain.EntityID(data.EntityID))
	})

	id := reg.Register("hero-card")
	require.True(t, ok, "subscriber must see the state during emit")
	assert.Equal(t, id, seen.ID)
	assert.Equal(t, domain.ModeSuperposition, seen.Mode)
}

func TestObserve_DecaysAmplitudeAndCollapses(t *testing.T) {
	reg, bus := newTestRegistry(2)

	var collapsed []*events.Event
	bus.Subscribe(events.StateCollapsed, func(e *events.Event) {
		collapsed = append(collapsed, e)
	})

	id := reg.Register("")

	// First observation: 0.9 >= 0.85, still superposed.
	require.NoError(t, reg.Observe(id))
	state, _ := reg.Get(id)
	assert.InDelta(t, 0.9, state.Amplitude, 1e-12)
	assert.Equal(t, domain.ModeSuperposition, state.Mode)
	assert.Equal(t, 1, state.ObservationCount)

	// Second observation: 0.81 < 0.85, collapses.
	require.NoError(t, reg.Observe(id))
	state, _ = reg.Get(id)
	assert.Equal(t, domain.ModeCollapsed, state.Mode)

	require.Len(t, collapsed, 1)
	data := collapsed[0].Data.(*events.StateCollapsedData)
	assert.Equal(t, string(CauseObservation), data.Cause)
}

func TestObserve_AmplitudeNonIncreasing(t *testing.T) {
	reg, _ := newTestRegistry(3)
	id := reg.Register("")

	prev := 1.0
	for i := 0; i < 10; i++ {
		_ = reg.Observe(id)
		state, ok := reg.Get(id)
		require.True(t, ok)
		assert.LessOrEqual(t, state.Amplitude, prev)
		prev = state.Amplitude
	}
}

func TestMeasure_CollapsesImmediately(t *testing.T) {
	reg, _ := newTestRegistry(4)
	id := reg.Register("")

	require.NoError(t, reg.Measure(id))
	state, _ := reg.Get(id)
	assert.Equal(t, domain.ModeCollapsed, state.Mode)
}

func TestCollapse_Idempotent(t *testing.T) {
	reg, bus := newTestRegistry(5)

	count := 0
	bus.Subscribe(events.StateCollapsed, func(e *events.Event) { count++ })

	id := reg.Register("")
	require.NoError(t, reg.Collapse(id, CauseMeasurement))

	first, _ := reg.Get(id)
	require.NoError(t, reg.Collapse(id, CauseDecoherence))
	second, _ := reg.Get(id)

	assert.Equal(t, first.Spin, second.Spin, "second collapse must not re-resolve spin")
	assert.Equal(t, first.Phase, second.Phase)
	assert.Equal(t, 1, count, "idempotent collapse emits exactly one event")
}

func TestCollapsed_TerminalWithoutReset(t *testing.T) {
	reg, _ := newTestRegistry(6)
	id := reg.Register("")
	require.NoError(t, reg.Measure(id))

	// Observation and damping on a collapsed entity change nothing.
	require.NoError(t, reg.Observe(id))
	_, err := reg.DampPhase(id, 0.5)
	require.NoError(t, err)

	state, _ := reg.Get(id)
	assert.Equal(t, domain.ModeCollapsed, state.Mode)

	require.NoError(t, reg.Reset(id))
	state, _ = reg.Get(id)
	assert.Equal(t, domain.ModeSuperposition, state.Mode)
	assert.Equal(t, 1.0, state.Amplitude)
	assert.Equal(t, 0, state.ObservationCount)
}

func TestOperations_UnknownEntity(t *testing.T) {
	reg, _ := newTestRegistry(7)
	missing := domain.EntityID("nope")

	assert.ErrorIs(t, reg.Observe(missing), domain.ErrUnknownEntity)
	assert.ErrorIs(t, reg.Measure(missing), domain.ErrUnknownEntity)
	assert.ErrorIs(t, reg.Reset(missing), domain.ErrUnknownEntity)
	assert.ErrorIs(t, reg.Remove(missing), domain.ErrUnknownEntity)
	_, err := reg.DampPhase(missing, 0.1)
	assert.ErrorIs(t, err, domain.ErrUnknownEntity)
	err = reg.SetSpinPhase(missing, domain.SpinUp, 0)
	assert.ErrorIs(t, err, domain.ErrUnknownEntity)
}

func TestDampPhase_WrapsAndDecays(t *testing.T) {
	reg, bus := newTestRegistry(8)

	var damped []*events.Event
	bus.Subscribe(events.PhaseDamped, func(e *events.Event) { damped = append(damped, e) })

	id := reg.Register("")
	require.NoError(t, reg.SetSpinPhase(id, domain.SpinUp, twoPi-0.1))

	amp, err := reg.DampPhase(id, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, amp, 1e-12)

	state, _ := reg.Get(id)
	assert.InDelta(t, 0.4, state.Phase, 1e-9, "phase wraps into [0,2π)")
	require.Len(t, damped, 1)
}

func TestSuperposed_ExcludesCollapsedAndRemoved(t *testing.T) {
	reg, _ := newTestRegistry(9)

	a := reg.Register("a")
	b := reg.Register("b")
	c := reg.Register("c")

	require.NoError(t, reg.Measure(b))
	require.NoError(t, reg.Remove(c))

	assert.Equal(t, []domain.EntityID{a}, reg.Superposed())
	assert.Equal(t, 2, reg.Count())
}
