package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8010, cfg.Port)
	assert.Equal(t, 60, cfg.TickRate)
	assert.Equal(t, 0.85, cfg.Quantum.ObservationThreshold)
	assert.Equal(t, 5*time.Second, cfg.Decoherence.EnvRefreshInterval)
	assert.Equal(t, 12, cfg.Neural.MaxSynapses)
	assert.Equal(t, 0.3, cfg.Neural.TargetActivity)
	assert.Equal(t, 64, cfg.Wavefunction.Resolution)
	assert.Equal(t, 0.0, cfg.Wavefunction.Nonlinearity)
	assert.False(t, cfg.Wavefunction.DirectTransform)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("COHERENCE_TICK_RATE", "30")
	t.Setenv("QUANTUM_OBSERVATION_THRESHOLD", "0.7")
	t.Setenv("NEURAL_MAX_SYNAPSES", "4")
	t.Setenv("WAVE_RESOLUTION", "32")
	t.Setenv("COHERENCE_SEED", "42")
	t.Setenv("DECOHERENCE_ENV_REFRESH", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.TickRate)
	assert.Equal(t, 0.7, cfg.Quantum.ObservationThreshold)
	assert.Equal(t, 4, cfg.Neural.MaxSynapses)
	assert.Equal(t, 32, cfg.Wavefunction.Resolution)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 2*time.Second, cfg.Decoherence.EnvRefreshInterval)
}

func TestValidate_Rejections(t *testing.T) {
	base := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tick rate", func(c *Config) { c.TickRate = 0 }},
		{"threshold above one", func(c *Config) { c.Quantum.ObservationThreshold = 1.5 }},
		{"negative non-markovianity", func(c *Config) { c.Decoherence.NonMarkovianity = -0.1 }},
		{"zero max synapses", func(c *Config) { c.Neural.MaxSynapses = 0 }},
		{"decay rate of one", func(c *Config) { c.Neural.DecayRate = 1.0 }},
		{"tiny resolution", func(c *Config) { c.Wavefunction.Resolution = 4 }},
		{"negative nonlinearity", func(c *Config) { c.Wavefunction.Nonlinearity = -1 }},
		{"zero dt", func(c *Config) { c.Wavefunction.Dt = 0 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_MalformedEnvFallsBack(t *testing.T) {
	t.Setenv("COHERENCE_TICK_RATE", "not-a-number")
	t.Setenv("NEURAL_LEARNING_RATE", "nope")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.TickRate)
	assert.Equal(t, 0.01, cfg.Neural.LearningRate)
}
