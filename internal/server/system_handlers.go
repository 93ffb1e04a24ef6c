// Package server provides the HTTP surface of the simulation.
package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/astatos/coherence/internal/engine"
)

// SystemHandlers serves process and simulation health information.
type SystemHandlers struct {
	log    zerolog.Logger
	engine *engine.Engine
	start  time.Time
}

// NewSystemHandlers creates system handlers.
func NewSystemHandlers(log zerolog.Logger, eng *engine.Engine) *SystemHandlers {
	return &SystemHandlers{
		log:    log.With().Str("component", "system_handlers").Logger(),
		engine: eng,
		start:  time.Now(),
	}
}

// SystemStatusResponse is the GET /api/system/status payload.
type SystemStatusResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	RAMPercent    float64 `json:"ram_percent"`
	Goroutines    int     `json:"goroutines"`
	Entities      int     `json:"entities"`
	Neurons       int     `json:"neurons"`
	Synapses      int     `json:"synapses"`
	PendingDecays int     `json:"pending_decays"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuAvg, ramPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "running",
		UptimeSeconds: time.Since(h.start).Seconds(),
		CPUPercent:    cpuAvg,
		RAMPercent:    ramPercent,
		Goroutines:    runtime.NumGoroutine(),
		Entities:      h.engine.Quantum.Count(),
		Neurons:       len(h.engine.Neural.Neurons()),
		Synapses:      len(h.engine.Neural.Synapses()),
		PendingDecays: h.engine.Decoherence.Pending(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode status response")
	}
}

// getSystemStats returns average CPU and RAM usage percentages. The CPU
// sample window is kept short so the endpoint stays responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
