package scheduler

import "time"

// EnvironmentRefresher advances the decoherence environment model.
type EnvironmentRefresher interface {
	UpdateEnvironment(now time.Time)
}

// EnvironmentRefreshJob drives the slow environment drift: temperature,
// noise sampling and backaction reporting.
type EnvironmentRefreshJob struct {
	Monitor EnvironmentRefresher
}

func (j *EnvironmentRefreshJob) Name() string { return "environment_refresh" }

func (j *EnvironmentRefreshJob) Run() error {
	j.Monitor.UpdateEnvironment(time.Now())
	return nil
}

// HomeostasisScaler rescales synaptic weights toward the activity set point.
type HomeostasisScaler interface {
	Homeostasis()
}

// HomeostasisJob runs the neural engine's homeostatic scaling pass.
type HomeostasisJob struct {
	Network HomeostasisScaler
}

func (j *HomeostasisJob) Name() string { return "neural_homeostasis" }

func (j *HomeostasisJob) Run() error {
	j.Network.Homeostasis()
	return nil
}
