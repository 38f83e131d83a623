package console

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arclight-robotics/planview/internal/db"
)

// handleRunsList returns stored runs, newest first.
// GET /api/runs?limit=20&offset=0
func (ws *WebServer) handleRunsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if ws.runs == nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "no database configured")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	runs, err := ws.runs.ListRuns(limit, offset)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list runs: %v", err))
		return
	}
	total, err := ws.runs.CountRuns()
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("count runs: %v", err))
		return
	}

	if runs == nil {
		runs = []db.Run{}
	}
	ws.writeJSON(w, map[string]interface{}{
		"runs":   runs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// handleRunGet returns one stored run.
// GET /api/runs/get?run_id=...
func (ws *WebServer) handleRunGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
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
	ws.writeJSON(w, run)
}

// handleRunUpdate updates a run's title or favorite flag.
// Method: POST. Query param: run_id. Body: {"title": "...", "favorite": true}
// with both fields optional.
func (ws *WebServer) handleRunUpdate(w http.ResponseWriter, r *http.Request) {
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

	var upd db.RunUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run, err := ws.runs.UpdateRun(runID, upd)
	if errors.Is(err, db.ErrRunNotFound) {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("run not found: %s", runID))
		return
	}
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("update run: %v", err))
		return
	}
	ws.writeJSON(w, run)
}

// handleRunDelete removes a run from history.
// Method: POST. Query param: run_id (required).
func (ws *WebServer) handleRunDelete(w http.ResponseWriter, r *http.Request) {
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

	err := ws.runs.DeleteRun(runID)
	if errors.Is(err, db.ErrRunNotFound) {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("run not found: %s", runID))
		return
	}
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("delete run: %v", err))
		return
	}
	log.Printf("[History] deleted run %s", runID)
	ws.writeJSON(w, map[string]interface{}{"success": true, "run_id": runID})
}

// handleRunsExport downloads stored runs as CSV or JSON.
// GET /api/runs/export?format=csv&ids=a,b,c
// Empty ids exports every stored run.
func (ws *WebServer) handleRunsExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if ws.runs == nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "no database configured")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	var ids []string
	if v := r.URL.Query().Get("ids"); v != "" {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	// Buffer the document so lookup failures can still return a JSON error
	// instead of a half-written attachment.
	var buf bytes.Buffer
	var contentType, ext string
	var err error
	switch format {
	case "csv":
		contentType, ext = "text/csv", ".csv"
		err = ws.runs.ExportCSV(&buf, ids)
	case "json":
		contentType, ext = "application/json", ".json"
		err = ws.runs.ExportJSON(&buf, ids)
	default:
		ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unsupported export format '%s'", format))
		return
	}
	if errors.Is(err, db.ErrRunNotFound) {
		ws.writeJSONError(w, http.StatusNotFound, "no matching runs to export")
		return
	}
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("export runs: %v", err))
		return
	}

	stamp := time.Now().UTC().Format("20060102_150405")
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "runs_"+stamp+ext))
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("[History] export write failed: %v", err)
	}
}
