// Package console serves the HTTP interface of the planning replay console.
// It exposes replay sessions, playback controls, chart rendering, animation
// export jobs, run history and the backend planning proxy.
package console

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/arclight-robotics/planview/internal/backend"
	"github.com/arclight-robotics/planview/internal/config"
	"github.com/arclight-robotics/planview/internal/db"
	"github.com/arclight-robotics/planview/internal/export"
	"github.com/arclight-robotics/planview/internal/render"
	"github.com/arclight-robotics/planview/internal/version"
)

//go:embed console.html
var consoleHTML embed.FS

// WebServer handles the HTTP interface of the replay console.
type WebServer struct {
	address  string
	server   *http.Server
	sessions *SessionManager
	exports  *exportManager
	planning *planningManager
	runs     *db.RunStore
	presets  *config.PresetStore
	backend  *backend.Client
	cfg      *config.ConsoleConfig
	renderer *render.Renderer
	exporter *export.Exporter
	started  time.Time
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	Runs    *db.RunStore
	Backend *backend.Client
	Config  *config.ConsoleConfig
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(cfg WebServerConfig) *WebServer {
	conf := cfg.Config
	if conf == nil {
		conf = config.EmptyConsoleConfig()
	}

	ws := &WebServer{
		address:  cfg.Address,
		sessions: NewSessionManager(),
		exports:  newExportManager(),
		runs:     cfg.Runs,
		presets:  config.NewPresetStore(),
		backend:  cfg.Backend,
		cfg:      conf,
		renderer: render.NewRenderer(),
		exporter: export.NewExporter(render.NewRenderer()),
		started:  time.Now(),
	}
	ws.planning = newPlanningManager(ws)

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	ws.exports.cancelAll()
	ws.sessions.CloseAll()

	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleConsolePage)

	mux.HandleFunc("/api/replay/session", ws.handleSessionCreate)
	mux.HandleFunc("/api/replay/sessions", ws.handleSessionList)
	mux.HandleFunc("/api/replay/session/delete", ws.handleSessionDelete)
	mux.HandleFunc("/api/replay/frame", ws.handleReplayFrame)
	mux.HandleFunc("/api/replay/chart", ws.handleIterationChartData)
	mux.HandleFunc("/api/replay/charts/iteration", ws.handleIterationChartPage)

	mux.HandleFunc("/api/playback/status", ws.handlePlaybackStatus)
	mux.HandleFunc("/api/playback/play", ws.handlePlaybackPlay)
	mux.HandleFunc("/api/playback/pause", ws.handlePlaybackPause)
	mux.HandleFunc("/api/playback/stop", ws.handlePlaybackStop)
	mux.HandleFunc("/api/playback/seek", ws.handlePlaybackSeek)
	mux.HandleFunc("/api/playback/rate", ws.handlePlaybackRate)
	mux.HandleFunc("/api/playback/loop", ws.handlePlaybackLoop)

	mux.HandleFunc("/api/export/start", ws.handleExportStart)
	mux.HandleFunc("/api/export/status", ws.handleExportStatus)
	mux.HandleFunc("/api/export/cancel", ws.handleExportCancel)
	mux.HandleFunc("/api/export/download", ws.handleExportDownload)

	mux.HandleFunc("/api/runs", ws.handleRunsList)
	mux.HandleFunc("/api/runs/get", ws.handleRunGet)
	mux.HandleFunc("/api/runs/update", ws.handleRunUpdate)
	mux.HandleFunc("/api/runs/delete", ws.handleRunDelete)
	mux.HandleFunc("/api/runs/export", ws.handleRunsExport)
	mux.HandleFunc("/api/runs/replay", ws.handleRunReplay)

	mux.HandleFunc("/api/presets", ws.handlePresets)
	mux.HandleFunc("/api/presets/get", ws.handlePresetGet)
	mux.HandleFunc("/api/presets/update", ws.handlePresetUpdate)
	mux.HandleFunc("/api/presets/delete", ws.handlePresetDelete)
	mux.HandleFunc("/api/presets/use", ws.handlePresetUse)

	mux.HandleFunc("/api/planning/start", ws.handlePlanningStart)
	mux.HandleFunc("/api/planning/status", ws.handlePlanningStatus)
	mux.HandleFunc("/api/planning/cancel", ws.handlePlanningCancel)

	return mux
}

// handleHealth handles the health check endpoint.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "planview", "version": "%s", "timestamp": "%s"}`,
		version.Version, time.Now().UTC().Format(time.RFC3339))
}

// handleConsolePage serves the main console page.
func (ws *WebServer) handleConsolePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	tmpl, err := template.ParseFS(consoleHTML, "console.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	data := struct {
		HTTPAddress    string
		BackendURL     string
		BackendEnabled bool
		Uptime         string
		Sessions       []SessionSummary
	}{
		HTTPAddress:    ws.address,
		BackendURL:     ws.cfg.GetBackendURL(),
		BackendEnabled: ws.backend != nil,
		Uptime:         time.Since(ws.started).Round(time.Second).String(),
		Sessions:       ws.sessions.List(),
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// sessionFromRequest resolves the session_id query parameter. On failure it
// writes the error response and returns nil.
func (ws *WebServer) sessionFromRequest(w http.ResponseWriter, r *http.Request) *runSession {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'session_id' parameter")
		return nil
	}
	s, ok := ws.sessions.Get(sessionID)
	if !ok {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown session '%s'", sessionID))
		return nil
	}
	return s
}
