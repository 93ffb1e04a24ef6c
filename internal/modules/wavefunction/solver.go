// Package wavefunction integrates a 2D Schrödinger field with an
// optional self-interaction term using the split-operator method:
// half potential phase, full kinetic step in momentum space, second
// half potential phase, then L2 renormalization.
package wavefunction

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/rs/zerolog"

	"github.com/astatos/coherence/internal/config"
	"github.com/astatos/coherence/internal/events"
)

const (
	// hbar in simulation units.
	hbar = 1.0
	// normUnderflow is the squared-norm floor below which the field is
	// considered numerically dead and reseeded.
	normUnderflow = 1e-12
)

// Solver owns one wavefunction grid, typically one per visualization
// view. Not safe for concurrent Step calls; the engine serializes them.
type Solver struct {
	cfg    config.WavefunctionConfig
	events *events.Manager
	log    zerolog.Logger
	view   string

	mu        sync.Mutex
	step      uint64
	psi       []complex128 // n×n row-major
	expK      []complex128 // precomputed kinetic phase per cell
	potential []float64
	tf        transform
}

// NewSolver builds a solver seeded with the default Gaussian packet.
func NewSolver(cfg config.WavefunctionConfig, view string, em *events.Manager, log zerolog.Logger) *Solver {
	n := cfg.Resolution
	s := &Solver{
		cfg:    cfg,
		events: em,
		log:    log.With().Str("module", "wavefunction").Str("view", view).Logger(),
		view:   view,
		psi:    make([]complex128, n*n),
	}
	if cfg.DirectTransform {
		s.tf = newDirectTransform(n)
	} else {
		s.tf = newFFTTransform(n)
	}

	// Harmonic potential over centered coordinates.
	s.potential = make([]float64, n*n)
	for r := 0; r < n; r++ {
		y := s.coord(r)
		for c := 0; c < n; c++ {
			x := s.coord(c)
			s.potential[r*n+c] = cfg.PotentialScale * (x*x + y*y)
		}
	}

	// Kinetic evolution operator exp(−i·ħ·k²·dt) with the DFT
	// negative-frequency ordering.
	k := kFrequencies(n, cfg.Dx)
	s.expK = make([]complex128, n*n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			kSq := k[r]*k[r] + k[c]*k[c]
			s.expK[r*n+c] = cmplx.Exp(complex(0, -hbar*kSq*cfg.Dt))
		}
	}

	s.seedGaussianLocked()
	return s
}

// coord maps a grid index to a centered spatial coordinate.
func (s *Solver) coord(i int) float64 {
	return (float64(i) - float64(s.cfg.Resolution)/2) * s.cfg.Dx
}

// View returns the visualization view this solver feeds.
func (s *Solver) View() string { return s.view }

// Step advances the field by one dt and returns the post-step squared
// norm (1 unless the step reseeded).
func (s *Solver) Step() float64 {
	s.mu.Lock()
	s.halfPotentialLocked()
	s.tf.Forward(s.psi)
	for i := range s.psi {
		s.psi[i] *= s.expK[i]
	}
	s.tf.Inverse(s.psi)
	s.halfPotentialLocked()

	s.step++
	step := s.step
	norm, reason := s.renormalizeLocked()
	s.mu.Unlock()

	if reason != "" {
		s.log.Warn().Str("reason", reason).Uint64("step", step).Msg("Field diverged, reseeding")
		s.events.Emit(events.SolverReseeded, "wavefunction", &events.SolverReseededData{
			View:   s.view,
			Step:   step,
			Reason: reason,
		})
	}
	s.events.Emit(events.FieldUpdated, "wavefunction", &events.FieldUpdatedData{
		View: s.view,
		Step: step,
		Norm: norm,
	})
	return norm
}

// halfPotentialLocked applies exp(−i·(V + g·|ψ|²)·dt/2). Caller holds s.mu.
func (s *Solver) halfPotentialLocked() {
	g := s.cfg.Nonlinearity
	factor := -s.cfg.Dt / (2 * hbar)
	for i, p := range s.psi {
		absSq := real(p)*real(p) + imag(p)*imag(p)
		arg := factor * (s.potential[i] + g*absSq)
		s.psi[i] = p * cmplx.Exp(complex(0, arg))
	}
}

// renormalizeLocked rescales to Σ|ψ|²dx² = 1, reseeding first when the
// field went NaN or underflowed. Returns the final norm and a non-empty
// reseed reason when recovery kicked in. Caller holds s.mu.
func (s *Solver) renormalizeLocked() (float64, string) {
	norm := s.normLocked()
	reason := ""
	switch {
	case math.IsNaN(norm) || math.IsInf(norm, 0):
		reason = "nan"
	case norm < normUnderflow:
		reason = "norm_underflow"
	}
	if reason != "" {
		s.seedGaussianLocked()
		return s.normLocked(), reason
	}

	scale := complex(1/math.Sqrt(norm), 0)
	for i := range s.psi {
		s.psi[i] *= scale
	}
	return s.normLocked(), ""
}

// normLocked is Σ|ψ|²dx². Caller holds s.mu.
func (s *Solver) normLocked() float64 {
	sum := 0.0
	for _, p := range s.psi {
		sum += real(p)*real(p) + imag(p)*imag(p)
	}
	return sum * s.cfg.Dx * s.cfg.Dx
}

// Norm returns the current squared norm.
func (s *Solver) Norm() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.normLocked()
}

// seedGaussianLocked loads the default Gaussian packet, normalized.
// Caller holds s.mu.
func (s *Solver) seedGaussianLocked() {
	n := s.cfg.Resolution
	sigma := float64(n) * s.cfg.Dx / 8
	for r := 0; r < n; r++ {
		y := s.coord(r)
		for c := 0; c < n; c++ {
			x := s.coord(c)
			s.psi[r*n+c] = complex(math.Exp(-(x*x+y*y)/(2*sigma*sigma)), 0)
		}
	}
	norm := s.normLocked()
	scale := complex(1/math.Sqrt(norm), 0)
	for i := range s.psi {
		s.psi[i] *= scale
	}
}

// SetField loads an arbitrary initial state from a function of centered
// coordinates and normalizes it. A state that normalizes to nothing is
// left to the next Step's reseed path.
func (s *Solver) SetField(f func(x, y float64) complex128) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.cfg.Resolution
	for r := 0; r < n; r++ {
		y := s.coord(r)
		for c := 0; c < n; c++ {
			s.psi[r*n+c] = f(s.coord(c), y)
		}
	}
	norm := s.normLocked()
	if math.IsNaN(norm) || math.IsInf(norm, 0) || norm < normUnderflow {
		return
	}
	scale := complex(1/math.Sqrt(norm), 0)
	for i := range s.psi {
		s.psi[i] *= scale
	}
}

// Density returns |ψ|² per cell, row-major.
func (s *Solver) Density() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.psi))
	for i, p := range s.psi {
		out[i] = real(p)*real(p) + imag(p)*imag(p)
	}
	return out
}

// PhaseField returns arg(ψ) per cell, row-major, in (−π, π].
func (s *Solver) PhaseField() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.psi))
	for i, p := range s.psi {
		out[i] = math.Atan2(imag(p), real(p))
	}
	return out
}

// Field returns a copy of the raw complex grid.
func (s *Solver) Field() []complex128 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]complex128, len(s.psi))
	copy(out, s.psi)
	return out
}

// StepCount returns the number of completed steps.
func (s *Solver) StepCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}
