package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/goodtune/ontime/internal/sensor"
	"github.com/goodtune/ontime/internal/units"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// SensorHandler handles sensor-related API requests.
type SensorHandler struct {
	sensors *sensor.Manager
	logger  zerolog.Logger
}

// NewSensorHandler creates a new sensor handler.
func NewSensorHandler(sensors *sensor.Manager, logger zerolog.Logger) *SensorHandler {
	return &SensorHandler{
		sensors: sensors,
		logger:  logger.With().Str("handler", "sensor").Logger(),
	}
}

// List returns the state of every sensor.
func (h *SensorHandler) List(w http.ResponseWriter, r *http.Request) {
	list := h.sensors.List()

	states := make([]sensor.State, 0, len(list))
	for _, s := range list {
		states = append(states, s.State())
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sensors": states,
		"count":   len(states),
	})
}

// Get returns one sensor's state. The optional unit query parameter
// converts the value; unknown units report seconds.
func (h *SensorHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s, ok := h.sensors.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Sensor not found")
		return
	}

	state := s.State()

	if raw := r.URL.Query().Get("unit"); raw != "" {
		unit := units.Parse(raw)
		if !units.Known(unit) {
			unit = units.Seconds
		}
		state.Unit = unit
		if value, ok := s.Value(unit); ok {
			state.Value = &value
		}
	}

	writeJSON(w, http.StatusOK, state)
}

// Reset zeroes a sensor and returns its new state.
func (h *SensorHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s, ok := h.sensors.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Sensor not found")
		return
	}

	s.Reset()

	h.logger.Info().Str("unique_id", id).Msg("Sensor reset via API")
	writeJSON(w, http.StatusOK, s.State())
}
