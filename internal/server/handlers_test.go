package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astatos/coherence/internal/config"
	"github.com/astatos/coherence/internal/engine"
	"github.com/astatos/coherence/internal/events"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:     8010,
		Seed:     7,
		TickRate: 60,
		Quantum:  config.QuantumConfig{ObservationThreshold: 0.85},
		Decoherence: config.DecoherenceConfig{
			CoherenceTime:       1000,
			BaseDecoherenceRate: 1.0,
			TemperatureFactor:   0.01,
			NonMarkovianity:     0.3,
			EnvRefreshInterval:  5 * time.Second,
		},
		Neural: config.NeuralConfig{
			LearningRate:        0.01,
			PlasticityThreshold: 0.1,
			MaxSynapses:         12,
			DecayRate:           0.95,
			BCMThreshold:        1.0,
			HomeostasisRate:     0.1,
			TargetActivity:      0.3,
			DopamineModulation:  0.5,
			HomeostasisInterval: 5 * time.Second,
		},
		Wavefunction: config.WavefunctionConfig{
			Resolution:     16,
			Dt:             0.005,
			Dx:             0.5,
			PotentialScale: 1.0,
		},
	}
}

func testServer() *Server {
	cfg := testConfig()
	bus := events.NewBus()
	em := events.NewManager(bus, zerolog.Nop())
	eng := engine.New(cfg, em, zerolog.Nop())
	return New(Config{
		Log:    zerolog.Nop(),
		Config: cfg,
		Engine: eng,
		Port:   cfg.Port,
	})
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	s := testServer()
	rec := doJSON(t, s, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "coherence", body["service"])
}

func TestEntityLifecycle(t *testing.T) {
	s := testServer()

	rec := doJSON(t, s, http.MethodPost, "/api/entities", map[string]string{"handle": "hero"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode(t, rec)
	id := created["id"].(string)
	assert.Equal(t, "hero", created["handle"])
	assert.Equal(t, "superposition", created["mode"])
	assert.Equal(t, 1.0, created["amplitude"])

	rec = doJSON(t, s, http.MethodGet, "/api/entities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, decode(t, rec)["count"])

	rec = doJSON(t, s, http.MethodPost, "/api/entities/"+id+"/observe", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 0.9, decode(t, rec)["amplitude"].(float64), 1e-9)

	rec = doJSON(t, s, http.MethodPost, "/api/entities/"+id+"/measure", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "collapsed", decode(t, rec)["mode"])

	rec = doJSON(t, s, http.MethodPost, "/api/entities/"+id+"/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "superposition", decode(t, rec)["mode"])

	rec = doJSON(t, s, http.MethodDelete, "/api/entities/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/entities/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEntityActions_UnknownID(t *testing.T) {
	s := testServer()

	for _, path := range []string{"/observe", "/measure", "/reset"} {
		rec := doJSON(t, s, http.MethodPost, "/api/entities/ghost"+path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestEntanglementEndpoints(t *testing.T) {
	s := testServer()

	a := decode(t, doJSON(t, s, http.MethodPost, "/api/entities", map[string]string{"handle": "a"}))["id"].(string)
	b := decode(t, doJSON(t, s, http.MethodPost, "/api/entities", map[string]string{"handle": "b"}))["id"].(string)

	rec := doJSON(t, s, http.MethodPost, "/api/entanglement", map[string]string{"a": a, "b": b, "bell": "omega"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/entanglement", map[string]string{"a": a, "b": b, "bell": "phi+"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/entanglement/"+a, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode(t, rec)
	assert.Equal(t, b, status["partner"])
	assert.Equal(t, "phi+", status["bell"])
	assert.Equal(t, true, status["consistent"])

	rec = doJSON(t, s, http.MethodDelete, "/api/entanglement/"+a, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/entanglement/"+a, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSignalEndpoint(t *testing.T) {
	s := testServer()

	rec := doJSON(t, s, http.MethodPost, "/api/signals", map[string]interface{}{"kind": "motion", "value": 5})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/signals", map[string]interface{}{"kind": "teleport"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNeuralEndpoints(t *testing.T) {
	s := testServer()

	a := decode(t, doJSON(t, s, http.MethodPost, "/api/entities", map[string]string{"handle": "a"}))["id"].(string)
	b := decode(t, doJSON(t, s, http.MethodPost, "/api/entities", map[string]string{"handle": "b"}))["id"].(string)

	rec := doJSON(t, s, http.MethodGet, "/api/neural/neurons", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, decode(t, rec)["count"])

	rec = doJSON(t, s, http.MethodPost, "/api/neural/synapses",
		map[string]interface{}{"pre": a, "post": b, "weight": 0.5})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/neural/synapses",
		map[string]interface{}{"pre": a, "post": a, "weight": 0.5})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/neural/plasticity",
		map[string]interface{}{"rule": "hebbian", "pre": a, "post": b})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/neural/plasticity",
		map[string]interface{}{"rule": "magic", "pre": a, "post": b})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown plasticity rule", decode(t, rec)["error"])

	rec = doJSON(t, s, http.MethodGet, "/api/neural/synapses", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, 1.0, body["count"])
}

func TestConfigEcho(t *testing.T) {
	s := testServer()

	rec := doJSON(t, s, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)

	assert.Equal(t, 60.0, body["tick_rate"])
	wave := body["wavefunction"].(map[string]interface{})
	assert.Equal(t, 16.0, wave["resolution"])
	assert.Equal(t, 0.5, wave["dx"])
	neuralCfg := body["neural"].(map[string]interface{})
	assert.Equal(t, 12.0, neuralCfg["max_synapses"])
}

func TestFieldSnapshot_UnavailableBeforeFirstFrame(t *testing.T) {
	s := testServer()

	rec := doJSON(t, s, http.MethodGet, "/api/field/", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSystemStatus(t *testing.T) {
	s := testServer()

	for i := 0; i < 3; i++ {
		doJSON(t, s, http.MethodPost, "/api/entities", map[string]string{"handle": fmt.Sprintf("e%d", i)})
	}

	rec := doJSON(t, s, http.MethodGet, "/api/system/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, 3.0, body["entities"])
	assert.Equal(t, 3.0, body["neurons"])
	assert.Equal(t, 3.0, body["pending_decays"])
}
