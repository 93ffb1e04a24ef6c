// Package server provides the HTTP surface of the simulation.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/astatos/coherence/internal/domain"
	"github.com/astatos/coherence/internal/engine"
	"github.com/astatos/coherence/internal/modules/entanglement"
	"github.com/astatos/coherence/internal/modules/neural"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "coherence",
	}

	s.writeJSON(w, http.StatusOK, response)
}

// entityView is the wire shape of a quantum state.
type entityView struct {
	ID           string  `json:"id"`
	Handle       string  `json:"handle,omitempty"`
	Spin         string  `json:"spin"`
	Phase        float64 `json:"phase"`
	Amplitude    float64 `json:"amplitude"`
	Mode         string  `json:"mode"`
	Observations int     `json:"observations"`
}

func toEntityView(state domain.QuantumState) entityView {
	return entityView{
		ID:           string(state.ID),
		Handle:       state.Handle,
		Spin:         state.Spin.String(),
		Phase:        state.Phase,
		Amplitude:    state.Amplitude,
		Mode:         state.Mode.String(),
		Observations: state.ObservationCount,
	}
}

// handleRegisterEntity handles POST /api/entities
func (s *Server) handleRegisterEntity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handle string `json:"handle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := s.engine.Quantum.Register(req.Handle)
	state, _ := s.engine.Quantum.Get(id)
	s.writeJSON(w, http.StatusCreated, toEntityView(state))
}

// handleListEntities handles GET /api/entities
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	states := s.engine.Quantum.All()
	views := make([]entityView, 0, len(states))
	for _, state := range states {
		views = append(views, toEntityView(state))
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entities": views,
		"count":    len(views),
	})
}

// handleGetEntity handles GET /api/entities/{id}
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id := domain.EntityID(chi.URLParam(r, "id"))
	state, ok := s.engine.Quantum.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown entity")
		return
	}
	s.writeJSON(w, http.StatusOK, toEntityView(state))
}

// handleRemoveEntity handles DELETE /api/entities/{id}
func (s *Server) handleRemoveEntity(w http.ResponseWriter, r *http.Request) {
	id := domain.EntityID(chi.URLParam(r, "id"))
	if err := s.engine.Quantum.Remove(id); err != nil {
		s.writeError(w, http.StatusNotFound, "unknown entity")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// entityAction runs one quantum operation and writes the updated state.
func (s *Server) entityAction(w http.ResponseWriter, r *http.Request, op func(domain.EntityID) error) {
	id := domain.EntityID(chi.URLParam(r, "id"))
	if err := op(id); err != nil {
		if errors.Is(err, domain.ErrUnknownEntity) {
			s.writeError(w, http.StatusNotFound, "unknown entity")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	state, _ := s.engine.Quantum.Get(id)
	s.writeJSON(w, http.StatusOK, toEntityView(state))
}

// handleObserve handles POST /api/entities/{id}/observe
func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	s.entityAction(w, r, s.engine.Quantum.Observe)
}

// handleMeasure handles POST /api/entities/{id}/measure
func (s *Server) handleMeasure(w http.ResponseWriter, r *http.Request) {
	s.entityAction(w, r, s.engine.Quantum.Measure)
}

// handleReset handles POST /api/entities/{id}/reset
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.entityAction(w, r, s.engine.Quantum.Reset)
}

// handleEntangle handles POST /api/entanglement
func (s *Server) handleEntangle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		A    string `json:"a"`
		B    string `json:"b"`
		Bell string `json:"bell"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.engine.Entanglement.Entangle(
		domain.EntityID(req.A), domain.EntityID(req.B), domain.BellState(req.Bell),
	)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusCreated, map[string]string{
			"a":    req.A,
			"b":    req.B,
			"bell": req.Bell,
		})
	case errors.Is(err, domain.ErrUnknownEntity):
		s.writeError(w, http.StatusNotFound, "unknown entity")
	case errors.Is(err, entanglement.ErrAlreadyEntangled),
		errors.Is(err, entanglement.ErrInvalidBellState),
		errors.Is(err, entanglement.ErrSelfEntanglement):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleEntanglementStatus handles GET /api/entanglement/{id}
func (s *Server) handleEntanglementStatus(w http.ResponseWriter, r *http.Request) {
	id := domain.EntityID(chi.URLParam(r, "id"))
	partner, bell, ok := s.engine.Entanglement.Partner(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "entity is not entangled")
		return
	}

	verified, consistent := s.engine.Entanglement.Verify(id)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"partner":    string(partner),
		"bell":       string(bell),
		"consistent": consistent,
		"verified":   string(verified),
	})
}

// handleBreakEntanglement handles DELETE /api/entanglement/{id}
func (s *Server) handleBreakEntanglement(w http.ResponseWriter, r *http.Request) {
	id := domain.EntityID(chi.URLParam(r, "id"))
	if err := s.engine.Entanglement.Break(id); err != nil {
		s.writeError(w, http.StatusNotFound, "entity is not entangled")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "broken"})
}

// handleSignal handles POST /api/signals
func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	var sig engine.Signal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !sig.Kind.Valid() {
		s.writeError(w, http.StatusBadRequest, "unknown signal kind")
		return
	}

	s.engine.Enqueue(sig)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// handleListNeurons handles GET /api/neural/neurons
func (s *Server) handleListNeurons(w http.ResponseWriter, r *http.Request) {
	neurons := s.engine.Neural.Neurons()
	type view struct {
		ID          string  `json:"id"`
		Potential   float64 `json:"potential"`
		Threshold   float64 `json:"threshold"`
		Transmitter string  `json:"transmitter"`
		LastFired   uint64  `json:"last_fired"`
		Activity    float64 `json:"activity"`
	}
	views := make([]view, 0, len(neurons))
	for _, n := range neurons {
		views = append(views, view{
			ID:          string(n.ID),
			Potential:   n.Potential,
			Threshold:   n.Threshold,
			Transmitter: n.Transmitter.String(),
			LastFired:   n.LastFired,
			Activity:    n.Activity,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"neurons": views,
		"count":   len(views),
	})
}

// handleListSynapses handles GET /api/neural/synapses
func (s *Server) handleListSynapses(w http.ResponseWriter, r *http.Request) {
	synapses := s.engine.Neural.Synapses()
	type view struct {
		Pre    string  `json:"pre"`
		Post   string  `json:"post"`
		Weight float64 `json:"weight"`
		Tag    string  `json:"tag,omitempty"`
	}
	views := make([]view, 0, len(synapses))
	for _, syn := range synapses {
		v := view{Pre: string(syn.Pre), Post: string(syn.Post), Weight: syn.Weight}
		if syn.Tag != nil {
			v.Tag = syn.Tag.Kind.String()
		}
		views = append(views, v)
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"synapses": views,
		"count":    len(views),
	})
}

// handleFormSynapse handles POST /api/neural/synapses
func (s *Server) handleFormSynapse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pre    string  `json:"pre"`
		Post   string  `json:"post"`
		Weight float64 `json:"weight"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.engine.Neural.FormSynapse(domain.EntityID(req.Pre), domain.EntityID(req.Post), req.Weight)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusCreated, map[string]string{"status": "formed"})
	case errors.Is(err, domain.ErrUnknownEntity):
		s.writeError(w, http.StatusNotFound, "unknown neuron")
	case errors.Is(err, neural.ErrSelfSynapse), errors.Is(err, neural.ErrDuplicateSynapse):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handlePlasticity handles POST /api/neural/plasticity
func (s *Server) handlePlasticity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rule string `json:"rule"`
		Pre  string `json:"pre"`
		Post string `json:"post"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.engine.Neural.ApplyPlasticity(
		neural.Rule(req.Rule), domain.EntityID(req.Pre), domain.EntityID(req.Post),
	)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
	case errors.Is(err, neural.ErrUnknownRule):
		s.writeError(w, http.StatusNotFound, "unknown plasticity rule")
	case errors.Is(err, domain.ErrUnknownEntity):
		s.writeError(w, http.StatusNotFound, "unknown synapse")
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleConfig handles GET /api/config. The render bridge reads the
// simulation knobs it needs to mirror client-side (grid geometry, tick
// rate) from here instead of duplicating defaults.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tick_rate": s.cfg.TickRate,
		"seed":      s.cfg.Seed,
		"quantum": map[string]interface{}{
			"observation_threshold": s.cfg.Quantum.ObservationThreshold,
		},
		"decoherence": map[string]interface{}{
			"coherence_time_ms":    s.cfg.Decoherence.CoherenceTime,
			"base_rate":            s.cfg.Decoherence.BaseDecoherenceRate,
			"temperature_factor":   s.cfg.Decoherence.TemperatureFactor,
			"non_markovianity":     s.cfg.Decoherence.NonMarkovianity,
			"env_refresh_interval": s.cfg.Decoherence.EnvRefreshInterval.String(),
		},
		"neural": map[string]interface{}{
			"learning_rate":        s.cfg.Neural.LearningRate,
			"plasticity_threshold": s.cfg.Neural.PlasticityThreshold,
			"max_synapses":         s.cfg.Neural.MaxSynapses,
			"decay_rate":           s.cfg.Neural.DecayRate,
			"target_activity":      s.cfg.Neural.TargetActivity,
			"dopamine_modulation":  s.cfg.Neural.DopamineModulation,
		},
		"wavefunction": map[string]interface{}{
			"resolution":      s.cfg.Wavefunction.Resolution,
			"dt":              s.cfg.Wavefunction.Dt,
			"dx":              s.cfg.Wavefunction.Dx,
			"potential_scale": s.cfg.Wavefunction.PotentialScale,
			"nonlinearity":    s.cfg.Wavefunction.Nonlinearity,
		},
	})
}

// handleFieldSnapshot handles GET /api/field
func (s *Server) handleFieldSnapshot(w http.ResponseWriter, r *http.Request) {
	frame, ok := s.engine.Frame()
	if !ok {
		s.writeError(w, http.StatusServiceUnavailable, "no frame available yet")
		return
	}
	s.writeJSON(w, http.StatusOK, frame)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
