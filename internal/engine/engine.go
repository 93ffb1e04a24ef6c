// Package engine owns the complete simulation context: every module,
// the signal queue, the frame clock and the slow-path scheduler. It is
// constructed once and passed in; there are no ambient globals.
package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/astatos/coherence/internal/config"
	"github.com/astatos/coherence/internal/domain"
	"github.com/astatos/coherence/internal/events"
	"github.com/astatos/coherence/internal/modules/decoherence"
	"github.com/astatos/coherence/internal/modules/entanglement"
	"github.com/astatos/coherence/internal/modules/neural"
	"github.com/astatos/coherence/internal/modules/quantum"
	"github.com/astatos/coherence/internal/modules/wavefunction"
	"github.com/astatos/coherence/internal/scheduler"
	"github.com/astatos/coherence/internal/utils"
)

// signalQueueSize bounds the pending interaction backlog. Signals past
// the bound are dropped, never blocked on.
const signalQueueSize = 1024

// Frame is one completed wavefunction step, applied atomically at the
// tick boundary and served to field consumers.
type Frame struct {
	View    string    `json:"view"`
	Step    uint64    `json:"step"`
	Norm    float64   `json:"norm"`
	Density []float64 `json:"density"`
	Phase   []float64 `json:"phase"`
}

// Engine wires every simulation module together and runs the logical
// clock. All cross-module coupling goes through entity ids and the
// event bus.
type Engine struct {
	cfg    *config.Config
	log    zerolog.Logger
	events *events.Manager

	Quantum      *quantum.Registry
	Entanglement *entanglement.Manager
	Decoherence  *decoherence.Monitor
	Neural       *neural.Engine
	Wave         *wavefunction.Solver
	Scheduler    *scheduler.Scheduler

	signals chan Signal
	frames  chan *Frame

	mu        sync.Mutex
	lastFrame *Frame
	started   bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs the full simulation context. A zero seed picks a
// time-based one; any other value makes the session reproducible.
func New(cfg *config.Config, em *events.Manager, log zerolog.Logger) *Engine {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	// Modules draw from independent streams so per-module locking is
	// enough; a shared source would race across modules.
	newRng := func(offset int64) *rand.Rand {
		return rand.New(rand.NewSource(seed + offset))
	}

	e := &Engine{
		cfg:     cfg,
		log:     log.With().Str("component", "engine").Logger(),
		events:  em,
		signals: make(chan Signal, signalQueueSize),
		frames:  make(chan *Frame, 1),
		stop:    make(chan struct{}),
	}

	e.Quantum = quantum.NewRegistry(cfg.Quantum, em, newRng(0), log)
	e.Entanglement = entanglement.NewManager(e.Quantum, em, log)
	e.Quantum.SetResolver(e.Entanglement)
	e.Decoherence = decoherence.NewMonitor(cfg.Decoherence, e.Quantum, em, newRng(1), log)
	e.Neural = neural.NewEngine(cfg.Neural, em, newRng(2), log)
	e.Wave = wavefunction.NewSolver(cfg.Wavefunction, "main", em, log)
	e.Scheduler = scheduler.New(log)

	e.log.Info().Int64("seed", seed).Int("tick_rate", cfg.TickRate).Msg("Engine constructed")
	return e
}

// Events returns the engine's event manager.
func (e *Engine) Events() *events.Manager { return e.events }

// Start launches the tick loop, the wavefunction worker and the
// slow-path jobs. Returns an error if already started or a job schedule
// is rejected.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("engine already started")
	}
	e.started = true
	e.mu.Unlock()

	envSchedule := fmt.Sprintf("@every %s", e.cfg.Decoherence.EnvRefreshInterval)
	if err := e.Scheduler.AddJob(envSchedule, &scheduler.EnvironmentRefreshJob{Monitor: e.Decoherence}); err != nil {
		return fmt.Errorf("scheduling environment refresh: %w", err)
	}
	homeoSchedule := fmt.Sprintf("@every %s", e.cfg.Neural.HomeostasisInterval)
	if err := e.Scheduler.AddJob(homeoSchedule, &scheduler.HomeostasisJob{Network: e.Neural}); err != nil {
		return fmt.Errorf("scheduling homeostasis: %w", err)
	}
	e.Scheduler.Start()

	e.wg.Add(2)
	go e.run()
	go e.waveLoop()

	e.log.Info().Msg("Engine started")
	return nil
}

// Stop halts the clock, drains the workers and cancels the scheduled
// jobs. Safe to call once after Start.
func (e *Engine) Stop() {
	close(e.stop)
	e.wg.Wait()
	e.Scheduler.Stop()
	e.log.Info().Msg("Engine stopped")
}

// Enqueue adds an interaction signal to the queue. Under overload the
// signal is dropped rather than blocking the caller.
func (e *Engine) Enqueue(sig Signal) {
	select {
	case e.signals <- sig:
	default:
		e.log.Warn().Str("kind", string(sig.Kind)).Msg("Signal queue full, dropping")
	}
}

// Frame returns the most recently applied wavefunction frame.
func (e *Engine) Frame() (*Frame, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastFrame == nil {
		return nil, false
	}
	return e.lastFrame, true
}

// run is the logical clock: one tick per 1/TickRate seconds.
func (e *Engine) run() {
	defer e.wg.Done()
	interval := time.Second / time.Duration(e.cfg.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case now := <-ticker.C:
			e.tick(now)
		}
	}
}

// tick runs one frame: drain pending signals in arrival order, fire due
// decoherence events, advance the neural network, and apply the latest
// completed wavefunction frame.
func (e *Engine) tick(now time.Time) {
	for {
		select {
		case sig := <-e.signals:
			e.handleSignal(sig)
		default:
			e.Decoherence.Tick(now)
			e.Neural.Tick()

			select {
			case frame := <-e.frames:
				e.mu.Lock()
				e.lastFrame = frame
				e.mu.Unlock()
			default:
			}
			return
		}
	}
}

func (e *Engine) handleSignal(sig Signal) {
	switch sig.Kind {
	case SignalHover:
		if err := e.Quantum.Observe(sig.Entity); err != nil && !errors.Is(err, domain.ErrUnknownEntity) {
			e.events.EmitError("engine", err, map[string]interface{}{"signal": "hover"})
		}
		e.Neural.Stimulate(sig.Entity, hoverStimulus)
	case SignalClick:
		if err := e.Quantum.Measure(sig.Entity); err != nil && !errors.Is(err, domain.ErrUnknownEntity) {
			e.events.EmitError("engine", err, map[string]interface{}{"signal": "click"})
		}
		e.Neural.Stimulate(sig.Entity, clickStimulus)
	case SignalMotion:
		e.Decoherence.SetMotionMagnitude(sig.Value)
	case SignalReward:
		e.Neural.ApplyReward(sig.Value)
	default:
		e.log.Warn().Str("kind", string(sig.Kind)).Msg("Unknown signal kind")
	}
}

// waveLoop steps the solver off the tick goroutine. The capacity-one
// frame channel paces it: a new step starts only after the previous
// frame was handed over.
func (e *Engine) waveLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		default:
		}

		timer := utils.NewTimer("wave_step", e.log)
		norm := e.Wave.Step()
		timer.StopWithContext(map[string]interface{}{
			"step": int64(e.Wave.StepCount()),
			"norm": norm,
		})
		frame := &Frame{
			View:    e.Wave.View(),
			Step:    e.Wave.StepCount(),
			Norm:    norm,
			Density: e.Wave.Density(),
			Phase:   e.Wave.PhaseField(),
		}
		select {
		case e.frames <- frame:
		case <-e.stop:
			return
		}
	}
}
