package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/arclight-robotics/planview/internal/db"
	"github.com/arclight-robotics/planview/internal/replay"
)

// handleSessionCreate creates a replay session over a synthetic run.
// Method: POST. Body: {"samples": 400, "iterations": 10, "elite_fraction": 0.1,
// "label": "..."}. All fields optional; defaults come from the console
// configuration.
func (ws *WebServer) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req := struct {
		Samples       int     `json:"samples"`
		Iterations    int     `json:"iterations"`
		EliteFraction float64 `json:"elite_fraction"`
		Label         string  `json:"label"`
	}{
		Samples:       ws.cfg.GetSamples(),
		Iterations:    ws.cfg.GetIterations(),
		EliteFraction: ws.cfg.GetEliteFraction(),
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	ds, err := replay.Generate(req.Iterations, req.Samples, req.EliteFraction)
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("generate run: %v", err))
		return
	}

	label := req.Label
	if label == "" {
		label = fmt.Sprintf("synthetic %dx%d", req.Iterations, req.Samples)
	}

	s, err := ws.sessions.Create(ds, label, "")
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("create session: %v", err))
		return
	}

	log.Printf("[Replay] created session %s (%s)", s.ID, label)
	ws.writeJSON(w, summarize(s))
}

// handleSessionList returns all active replay sessions.
// GET /api/replay/sessions
func (ws *WebServer) handleSessionList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ws.writeJSON(w, ws.sessions.List())
}

// handleSessionDelete disposes a session and its scheduler.
// Method: POST. Query param: session_id (required).
func (ws *WebServer) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'session_id' parameter")
		return
	}
	if !ws.sessions.Delete(sessionID) {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown session '%s'", sessionID))
		return
	}
	log.Printf("[Replay] deleted session %s", sessionID)
	ws.writeJSON(w, map[string]interface{}{"success": true, "session_id": sessionID})
}

// handleRunReplay creates a replay session from a stored run's energy history.
// Stored runs carry no per-sample data, so the resulting session renders the
// energy trace with the distribution panel in its insufficient-data state.
// Method: POST. Query param: run_id (required).
func (ws *WebServer) handleRunReplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if ws.runs == nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "no database configured")
		return
	}
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'run_id' parameter")
		return
	}

	run, err := ws.runs.GetRun(runID)
	if errors.Is(err, db.ErrRunNotFound) {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("run not found: %s", runID))
		return
	}
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get run: %v", err))
		return
	}
	if len(run.EnergyHistory) == 0 {
		ws.writeJSONError(w, http.StatusBadRequest, "run has no energy history")
		return
	}

	label := run.Title
	if label == "" {
		label = "run " + run.ID
	}
	s, err := ws.sessions.Create(replay.EnergyTraceDataset(run.EnergyHistory), label, run.ID)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("create session: %v", err))
		return
	}

	log.Printf("[Replay] created session %s from run %s", s.ID, run.ID)
	ws.writeJSON(w, summarize(s))
}

// handleReplayFrame renders one iteration frame as PNG.
// GET /api/replay/frame?session_id=...&iteration=3
// iteration defaults to the scheduler's current iteration.
func (ws *WebServer) handleReplayFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s := ws.sessionFromRequest(w, r)
	if s == nil {
		return
	}

	iteration := s.Scheduler.State().CurrentIteration
	if v := r.URL.Query().Get("iteration"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid 'iteration' parameter: %v", err))
			return
		}
		iteration = n
	}
	if iteration < 1 || iteration > s.Dataset.Len() {
		ws.writeJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("iteration %d out of range [1, %d]", iteration, s.Dataset.Len()))
		return
	}

	width := ws.cfg.GetExportWidth()
	height := ws.cfg.GetExportHeight()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	if err := ws.renderer.RenderFrame(iteration-1, s.Dataset, img); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render frame: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		log.Printf("[Replay] png encode failed for session %s: %v", s.ID, err)
	}
}

// handlePlaybackStatus returns the session's playback state.
// GET /api/playback/status?session_id=...
func (ws *WebServer) handlePlaybackStatus(w http.ResponseWriter, r *http.Request) {
	s := ws.sessionFromRequest(w, r)
	if s == nil {
		return
	}
	ws.writeJSON(w, summarize(s))
}

// handlePlaybackPlay starts or resumes playback.
// POST /api/playback/play?session_id=...
func (ws *WebServer) handlePlaybackPlay(w http.ResponseWriter, r *http.Request) {
	s := ws.sessionFromRequest(w, r)
	if s == nil {
		return
	}
	s.Scheduler.Play()
	ws.writeJSON(w, map[string]interface{}{"success": true, "playback": s.Scheduler.State()})
}

// handlePlaybackPause pauses playback at the current iteration.
// POST /api/playback/pause?session_id=...
func (ws *WebServer) handlePlaybackPause(w http.ResponseWriter, r *http.Request) {
	s := ws.sessionFromRequest(w, r)
	if s == nil {
		return
	}
	s.Scheduler.Pause()
	ws.writeJSON(w, map[string]interface{}{"success": true, "playback": s.Scheduler.State()})
}

// handlePlaybackStop stops playback and rewinds to the first iteration.
// POST /api/playback/stop?session_id=...
func (ws *WebServer) handlePlaybackStop(w http.ResponseWriter, r *http.Request) {
	s := ws.sessionFromRequest(w, r)
	if s == nil {
		return
	}
	s.Scheduler.Stop()
	ws.writeJSON(w, map[string]interface{}{"success": true, "playback": s.Scheduler.State()})
}

// handlePlaybackSeek scrubs to a specific iteration and pauses.
// POST /api/playback/seek?session_id=...
// Body: {"iteration": 5}
func (ws *WebServer) handlePlaybackSeek(w http.ResponseWriter, r *http.Request) {
	s := ws.sessionFromRequest(w, r)
	if s == nil {
		return
	}

	var body struct {
		Iteration int `json:"iteration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.Scheduler.Scrub(body.Iteration)
	ws.writeJSON(w, map[string]interface{}{"success": true, "playback": s.Scheduler.State()})
}

// handlePlaybackRate sets the playback speed multiplier.
// POST /api/playback/rate?session_id=...
// Body: {"rate": 2.5}
func (ws *WebServer) handlePlaybackRate(w http.ResponseWriter, r *http.Request) {
	s := ws.sessionFromRequest(w, r)
	if s == nil {
		return
	}

	var body struct {
		Rate float64 `json:"rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Rate <= 0 || body.Rate > 100 {
		ws.writeJSONError(w, http.StatusBadRequest, "rate must be greater than 0 and at most 100")
		return
	}

	s.Scheduler.SetSpeed(body.Rate)
	ws.writeJSON(w, map[string]interface{}{"success": true, "playback": s.Scheduler.State()})
}

// handlePlaybackLoop toggles wrap-around at the end of the run.
// POST /api/playback/loop?session_id=...
// Body: {"loop": true}
func (ws *WebServer) handlePlaybackLoop(w http.ResponseWriter, r *http.Request) {
	s := ws.sessionFromRequest(w, r)
	if s == nil {
		return
	}

	var body struct {
		Loop bool `json:"loop"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.Scheduler.SetLoop(body.Loop)
	ws.writeJSON(w, map[string]interface{}{"success": true, "playback": s.Scheduler.State()})
}
