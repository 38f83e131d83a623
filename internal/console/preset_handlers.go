package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/arclight-robotics/planview/internal/config"
)

// handlePresets lists presets (GET) or creates a custom one (POST).
// GET /api/presets?category=quality
// POST /api/presets with body {"name": "...", "description": "...",
// "category": "custom", "config": {...}}
func (ws *WebServer) handlePresets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ws.writeJSON(w, ws.presets.List(r.URL.Query().Get("category")))
	case http.MethodPost:
		var req struct {
			Name        string              `json:"name"`
			Description string              `json:"description"`
			Category    string              `json:"category"`
			Config      config.PresetConfig `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
			return
		}
		preset, err := ws.presets.Create(req.Name, req.Description, req.Category, req.Config)
		if errors.Is(err, config.ErrPresetNameTaken) {
			ws.writeJSONError(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			ws.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		ws.writeJSON(w, preset)
	default:
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handlePresetGet returns one preset.
// GET /api/presets/get?preset_id=...
func (ws *WebServer) handlePresetGet(w http.ResponseWriter, r *http.Request) {
	preset, ok := ws.presetFromRequest(w, r)
	if !ok {
		return
	}
	ws.writeJSON(w, preset)
}

// handlePresetUpdate modifies a preset. Default presets accept only the
// favorite toggle.
// Method: POST. Query param: preset_id. Body: PresetUpdate fields.
func (ws *WebServer) handlePresetUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	presetID := r.URL.Query().Get("preset_id")
	if presetID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'preset_id' parameter")
		return
	}

	var upd config.PresetUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	preset, err := ws.presets.Update(presetID, upd)
	switch {
	case errors.Is(err, config.ErrPresetNotFound):
		ws.writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, config.ErrPresetReadOnly):
		ws.writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, config.ErrPresetNameTaken):
		ws.writeJSONError(w, http.StatusConflict, err.Error())
	case err != nil:
		ws.writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		ws.writeJSON(w, preset)
	}
}

// handlePresetDelete removes a custom preset.
// Method: POST. Query param: preset_id (required).
func (ws *WebServer) handlePresetDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	presetID := r.URL.Query().Get("preset_id")
	if presetID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'preset_id' parameter")
		return
	}

	err := ws.presets.Delete(presetID)
	switch {
	case errors.Is(err, config.ErrPresetNotFound):
		ws.writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, config.ErrPresetReadOnly):
		ws.writeJSONError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
	default:
		ws.writeJSON(w, map[string]interface{}{"success": true, "preset_id": presetID})
	}
}

// handlePresetUse records a preset application and returns its config.
// POST /api/presets/use?preset_id=...
func (ws *WebServer) handlePresetUse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	presetID := r.URL.Query().Get("preset_id")
	if presetID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'preset_id' parameter")
		return
	}

	preset, err := ws.presets.Use(presetID)
	if errors.Is(err, config.ErrPresetNotFound) {
		ws.writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ws.writeJSON(w, map[string]interface{}{
		"preset_id": preset.ID,
		"use_count": preset.UseCount,
		"config":    preset.Config,
	})
}

func (ws *WebServer) presetFromRequest(w http.ResponseWriter, r *http.Request) (config.Preset, bool) {
	presetID := r.URL.Query().Get("preset_id")
	if presetID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'preset_id' parameter")
		return config.Preset{}, false
	}
	preset, err := ws.presets.Get(presetID)
	if errors.Is(err, config.ErrPresetNotFound) {
		ws.writeJSONError(w, http.StatusNotFound, err.Error())
		return config.Preset{}, false
	}
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return config.Preset{}, false
	}
	return preset, true
}
