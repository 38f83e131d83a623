package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arclight-robotics/planview/internal/export"
)

// Export job lifecycle states.
const (
	exportStatusRunning   = "running"
	exportStatusDone      = "done"
	exportStatusFailed    = "failed"
	exportStatusCancelled = "cancelled"
)

type exportJob struct {
	ID        string
	SessionID string
	Format    export.Format
	Options   export.Options
	cancel    context.CancelFunc

	mu       sync.Mutex
	status   string
	progress export.Progress
	path     string
	errMsg   string
	done     chan struct{}
}

// ExportJobStatus is the JSON shape of an export job.
type ExportJobStatus struct {
	JobID        string  `json:"job_id"`
	SessionID    string  `json:"session_id"`
	Format       string  `json:"format"`
	Filename     string  `json:"filename"`
	Status       string  `json:"status"`
	CurrentFrame int     `json:"current_frame"`
	Percent      float64 `json:"percent"`
	Error        string  `json:"error,omitempty"`
}

func (j *exportJob) snapshot() ExportJobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return ExportJobStatus{
		JobID:        j.ID,
		SessionID:    j.SessionID,
		Format:       string(j.Format),
		Filename:     j.Options.Filename + j.Format.Extension(),
		Status:       j.status,
		CurrentFrame: j.progress.CurrentFrame,
		Percent:      j.progress.Percent,
		Error:        j.errMsg,
	}
}

type exportManager struct {
	mu   sync.Mutex
	jobs map[string]*exportJob
}

func newExportManager() *exportManager {
	return &exportManager{jobs: make(map[string]*exportJob)}
}

func (m *exportManager) add(j *exportJob) {
	m.mu.Lock()
	m.jobs[j.ID] = j
	m.mu.Unlock()
}

func (m *exportManager) get(id string) (*exportJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	return j, ok
}

// cancelAll stops every running job and removes its artefact. Called on
// server shutdown.
func (m *exportManager) cancelAll() {
	m.mu.Lock()
	jobs := make([]*exportJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.Unlock()

	for _, j := range jobs {
		j.cancel()
		<-j.done
		j.mu.Lock()
		path := j.path
		j.mu.Unlock()
		if path != "" {
			os.Remove(path)
		}
	}
}

// handleExportStart starts an asynchronous animation export of a session.
// Method: POST. Body: {"session_id": "...", "format": "gif", "width": 960,
// "height": 720, "fps": 10, "quality": 75, "filename": "cem-replay"}.
// Only session_id and format are required.
func (ws *WebServer) handleExportStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		Format    string `json:"format"`
		Filename  string `json:"filename"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		FPS       int    `json:"fps"`
		Quality   int    `json:"quality"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.SessionID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'session_id' in request body")
		return
	}
	s, ok := ws.sessions.Get(req.SessionID)
	if !ok {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown session '%s'", req.SessionID))
		return
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := export.Options{
		Filename: req.Filename,
		Width:    req.Width,
		Height:   req.Height,
		FPS:      req.FPS,
		Quality:  req.Quality,
	}
	if opts.Width == 0 {
		opts.Width = ws.cfg.GetExportWidth()
	}
	if opts.Height == 0 {
		opts.Height = ws.cfg.GetExportHeight()
	}
	if opts.FPS == 0 {
		opts.FPS = ws.cfg.GetExportFPS()
	}
	if opts.Quality == 0 {
		opts.Quality = ws.cfg.GetExportQuality()
	}
	opts = opts.WithDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	job := &exportJob{
		ID:        uuid.New().String(),
		SessionID: s.ID,
		Format:    format,
		Options:   opts,
		cancel:    cancel,
		status:    exportStatusRunning,
		done:      make(chan struct{}),
	}
	ws.exports.add(job)

	go ws.runExportJob(ctx, job, s)

	log.Printf("[Export] started job %s session=%s format=%s frames=%d", job.ID, s.ID, format, s.Dataset.Len())
	ws.writeJSON(w, job.snapshot())
}

// runExportJob renders every frame into a temp file and records the outcome
// on the job. The temp file is removed on failure or cancellation; downloads
// remove it after serving.
func (ws *WebServer) runExportJob(ctx context.Context, job *exportJob, s *runSession) {
	defer close(job.done)

	f, err := os.CreateTemp("", "planview_export_*"+job.Format.Extension())
	if err != nil {
		job.fail(fmt.Sprintf("create temp file: %v", err))
		return
	}
	job.mu.Lock()
	job.path = f.Name()
	job.mu.Unlock()

	start := time.Now()
	err = ws.exporter.Export(ctx, s.Dataset, job.Format, job.Options, f, func(p export.Progress) {
		job.mu.Lock()
		job.progress = p
		job.mu.Unlock()
	})
	closeErr := f.Close()

	if err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		job.mu.Lock()
		job.path = ""
		job.mu.Unlock()
		if errors.Is(err, export.ErrCancelled) {
			job.mu.Lock()
			job.status = exportStatusCancelled
			job.mu.Unlock()
			log.Printf("[Export] job %s cancelled after %d frames", job.ID, job.snapshot().CurrentFrame)
		} else {
			job.fail(err.Error())
			log.Printf("[Export] job %s failed: %v", job.ID, err)
		}
		return
	}

	job.mu.Lock()
	job.status = exportStatusDone
	job.mu.Unlock()
	log.Printf("[Export] job %s finished format=%s in %s", job.ID, job.Format, time.Since(start).Round(time.Millisecond))
}

func (j *exportJob) fail(msg string) {
	j.mu.Lock()
	j.status = exportStatusFailed
	j.errMsg = msg
	j.mu.Unlock()
}

// handleExportStatus returns the state of an export job.
// GET /api/export/status?job_id=...
func (ws *WebServer) handleExportStatus(w http.ResponseWriter, r *http.Request) {
	job := ws.jobFromRequest(w, r)
	if job == nil {
		return
	}
	ws.writeJSON(w, job.snapshot())
}

// handleExportCancel cancels a running export job.
// POST /api/export/cancel?job_id=...
func (ws *WebServer) handleExportCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	job := ws.jobFromRequest(w, r)
	if job == nil {
		return
	}

	job.cancel()
	<-job.done
	ws.writeJSON(w, job.snapshot())
}

// handleExportDownload streams a finished export as an attachment and removes
// the artefact afterwards.
// GET /api/export/download?job_id=...
func (ws *WebServer) handleExportDownload(w http.ResponseWriter, r *http.Request) {
	job := ws.jobFromRequest(w, r)
	if job == nil {
		return
	}

	job.mu.Lock()
	status := job.status
	path := job.path
	filename := job.Options.Filename + job.Format.Extension()
	job.mu.Unlock()

	switch status {
	case exportStatusRunning:
		ws.writeJSONError(w, http.StatusConflict, "export still in progress")
		return
	case exportStatusFailed, exportStatusCancelled:
		ws.writeJSONError(w, http.StatusGone, fmt.Sprintf("export %s", status))
		return
	}
	if path == "" {
		ws.writeJSONError(w, http.StatusGone, "export artefact already downloaded")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("open export file: %v", err))
		return
	}

	w.Header().Set("Content-Type", job.Format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeContent(w, r, filename, time.Now(), f)

	f.Close()
	os.Remove(path)
	job.mu.Lock()
	job.path = ""
	job.mu.Unlock()
}

func (ws *WebServer) jobFromRequest(w http.ResponseWriter, r *http.Request) *exportJob {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'job_id' parameter")
		return nil
	}
	job, ok := ws.exports.get(jobID)
	if !ok {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown export job '%s'", jobID))
		return nil
	}
	return job
}
