// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration. Every simulation knob has a
// sensible default so the core runs with an empty environment.
type Config struct {
	Port     int
	LogLevel string
	DevMode  bool

	// Seed drives every random draw in the core. Zero selects a
	// time-based seed; any other value makes a session reproducible.
	Seed int64

	// TickRate is the logical animation clock in Hz.
	TickRate int

	Quantum      QuantumConfig
	Decoherence  DecoherenceConfig
	Neural       NeuralConfig
	Wavefunction WavefunctionConfig
}

// QuantumConfig holds quantum state registry parameters
type QuantumConfig struct {
	// ObservationThreshold is the amplitude below which an observation
	// forces collapse.
	ObservationThreshold float64
}

// DecoherenceConfig holds environmental decay model parameters
type DecoherenceConfig struct {
	// CoherenceTime is the base coherence window in milliseconds before
	// rate scaling.
	CoherenceTime float64
	// BaseDecoherenceRate scales how fast coherence erodes.
	BaseDecoherenceRate float64
	// TemperatureFactor converts temperature excursions from 300 K into
	// rate changes.
	TemperatureFactor float64
	// NonMarkovianity in [0,1] controls how strongly interaction history
	// shortens coherence.
	NonMarkovianity float64
	// EnvRefreshInterval is how often the environment model updates.
	EnvRefreshInterval time.Duration
}

// NeuralConfig holds neural engine parameters
type NeuralConfig struct {
	LearningRate        float64
	PlasticityThreshold float64 // |Δw| above which BCM leaves a late-phase tag
	MaxSynapses         int
	DecayRate           float64 // per-tick membrane potential decay
	BCMThreshold        float64 // sliding threshold scale
	HomeostasisRate     float64
	TargetActivity      float64
	DopamineModulation  float64
	// WireProbability is the chance of a spontaneous synapse per
	// candidate peer when a neuron joins the network.
	WireProbability     float64
	HomeostasisInterval time.Duration
}

// WavefunctionConfig holds solver parameters
type WavefunctionConfig struct {
	Resolution     int     // grid is Resolution × Resolution
	Dt             float64 // time step
	Dx             float64 // spatial step
	PotentialScale float64 // harmonic potential strength
	Nonlinearity   float64 // self-interaction coefficient, ≥ 0
	// DirectTransform forces the O(N²) summation transform instead of
	// the FFT. Correctness-preserving but not performance-equivalent.
	DirectTransform bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnvAsInt("COHERENCE_PORT", 8010),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		Seed:     getEnvAsInt64("COHERENCE_SEED", 0),
		TickRate: getEnvAsInt("COHERENCE_TICK_RATE", 60),
		Quantum: QuantumConfig{
			ObservationThreshold: getEnvAsFloat("QUANTUM_OBSERVATION_THRESHOLD", 0.85),
		},
		Decoherence: DecoherenceConfig{
			CoherenceTime:       getEnvAsFloat("DECOHERENCE_COHERENCE_TIME_MS", 1000),
			BaseDecoherenceRate: getEnvAsFloat("DECOHERENCE_BASE_RATE", 1.0),
			TemperatureFactor:   getEnvAsFloat("DECOHERENCE_TEMPERATURE_FACTOR", 0.01),
			NonMarkovianity:     getEnvAsFloat("DECOHERENCE_NON_MARKOVIANITY", 0.3),
			EnvRefreshInterval:  getEnvAsDuration("DECOHERENCE_ENV_REFRESH", 5*time.Second),
		},
		Neural: NeuralConfig{
			LearningRate:        getEnvAsFloat("NEURAL_LEARNING_RATE", 0.01),
			PlasticityThreshold: getEnvAsFloat("NEURAL_PLASTICITY_THRESHOLD", 0.1),
			MaxSynapses:         getEnvAsInt("NEURAL_MAX_SYNAPSES", 12),
			DecayRate:           getEnvAsFloat("NEURAL_DECAY_RATE", 0.95),
			BCMThreshold:        getEnvAsFloat("NEURAL_BCM_THRESHOLD", 1.0),
			HomeostasisRate:     getEnvAsFloat("NEURAL_HOMEOSTASIS_RATE", 0.1),
			TargetActivity:      getEnvAsFloat("NEURAL_TARGET_ACTIVITY", 0.3),
			DopamineModulation:  getEnvAsFloat("NEURAL_DOPAMINE_MODULATION", 0.5),
			WireProbability:     getEnvAsFloat("NEURAL_WIRE_PROBABILITY", 0.3),
			HomeostasisInterval: getEnvAsDuration("NEURAL_HOMEOSTASIS_INTERVAL", 5*time.Second),
		},
		Wavefunction: WavefunctionConfig{
			Resolution:      getEnvAsInt("WAVE_RESOLUTION", 64),
			Dt:              getEnvAsFloat("WAVE_DT", 0.005),
			Dx:              getEnvAsFloat("WAVE_DX", 0.15),
			PotentialScale:  getEnvAsFloat("WAVE_POTENTIAL_SCALE", 1.0),
			Nonlinearity:    getEnvAsFloat("WAVE_NONLINEARITY", 0.0),
			DirectTransform: getEnvAsBool("WAVE_DIRECT_TRANSFORM", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.TickRate <= 0 {
		return fmt.Errorf("tick rate must be positive, got %d", c.TickRate)
	}
	if c.Quantum.ObservationThreshold <= 0 || c.Quantum.ObservationThreshold > 1 {
		return fmt.Errorf("observation threshold must be in (0,1], got %f", c.Quantum.ObservationThreshold)
	}
	if c.Decoherence.NonMarkovianity < 0 || c.Decoherence.NonMarkovianity > 1 {
		return fmt.Errorf("non-markovianity must be in [0,1], got %f", c.Decoherence.NonMarkovianity)
	}
	if c.Decoherence.BaseDecoherenceRate <= 0 {
		return fmt.Errorf("base decoherence rate must be positive, got %f", c.Decoherence.BaseDecoherenceRate)
	}
	if c.Neural.MaxSynapses <= 0 {
		return fmt.Errorf("max synapses must be positive, got %d", c.Neural.MaxSynapses)
	}
	if c.Neural.DecayRate <= 0 || c.Neural.DecayRate >= 1 {
		return fmt.Errorf("decay rate must be in (0,1), got %f", c.Neural.DecayRate)
	}
	if c.Neural.WireProbability < 0 || c.Neural.WireProbability > 1 {
		return fmt.Errorf("wire probability must be in [0,1], got %f", c.Neural.WireProbability)
	}
	if c.Wavefunction.Resolution < 8 {
		return fmt.Errorf("wave resolution must be at least 8, got %d", c.Wavefunction.Resolution)
	}
	if c.Wavefunction.Dt <= 0 || c.Wavefunction.Dx <= 0 {
		return fmt.Errorf("wave dt and dx must be positive")
	}
	if c.Wavefunction.Nonlinearity < 0 {
		return fmt.Errorf("nonlinearity must be non-negative, got %f", c.Wavefunction.Nonlinearity)
	}
	return nil
}

// getEnv retrieves an environment variable with a fallback
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer with a fallback
func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvAsInt64 retrieves an environment variable as an int64 with a fallback
func getEnvAsInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvAsFloat retrieves an environment variable as a float with a fallback
func getEnvAsFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvAsBool retrieves an environment variable as a boolean with a fallback
func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a duration with a fallback
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
