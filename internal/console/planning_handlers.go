package console

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/arclight-robotics/planview/internal/backend"
	"github.com/arclight-robotics/planview/internal/db"
	"github.com/arclight-robotics/planview/internal/replay"
)

// Planning task lifecycle states mirrored from the backend.
const (
	planningStatusRunning   = "running"
	planningStatusCompleted = "completed"
	planningStatusFailed    = "failed"
	planningStatusCancelled = "cancelled"
)

type planningTask struct {
	ID      string
	Request backend.PlanningRequest
	cancel  context.CancelFunc

	mu        sync.Mutex
	status    string
	progress  *backend.Progress
	result    *backend.Result
	errMsg    string
	runID     string
	sessionID string
	started   time.Time
	done      chan struct{}
}

// PlanningTaskStatus is the JSON shape of a proxied planning task.
type PlanningTaskStatus struct {
	TaskID    string            `json:"task_id"`
	Status    string            `json:"status"`
	Progress  *backend.Progress `json:"progress,omitempty"`
	Result    *backend.Result   `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	RunID     string            `json:"run_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
}

func (t *planningTask) snapshot() PlanningTaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return PlanningTaskStatus{
		TaskID:    t.ID,
		Status:    t.status,
		Progress:  t.progress,
		Result:    t.result,
		Error:     t.errMsg,
		RunID:     t.runID,
		SessionID: t.sessionID,
	}
}

// planningManager proxies planning tasks to the backend, consumes their
// progress streams, and on completion stores the run and opens a replay
// session over its energy trace.
type planningManager struct {
	ws    *WebServer
	mu    sync.Mutex
	tasks map[string]*planningTask
}

func newPlanningManager(ws *WebServer) *planningManager {
	return &planningManager{ws: ws, tasks: make(map[string]*planningTask)}
}

func (m *planningManager) get(id string) (*planningTask, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	return t, ok
}

func (m *planningManager) start(req backend.PlanningRequest) (*planningTask, error) {
	ctx, cancel := context.WithCancel(context.Background())

	handle, err := m.ws.backend.StartPlanning(ctx, req)
	if err != nil {
		cancel()
		return nil, err
	}
	events, err := m.ws.backend.StreamProgress(ctx, handle)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("task %s started but stream failed: %w", handle.TaskID, err)
	}

	task := &planningTask{
		ID:      handle.TaskID,
		Request: req,
		cancel:  cancel,
		status:  planningStatusRunning,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	m.mu.Lock()
	m.tasks[task.ID] = task
	m.mu.Unlock()

	go m.consume(ctx, task, events)
	return task, nil
}

// consume drains the progress stream and finalises the task. A stream that
// closes without a terminal event is reported as a failure.
func (m *planningManager) consume(ctx context.Context, task *planningTask, events <-chan backend.Event) {
	defer close(task.done)
	defer task.cancel()

	terminal := false
	for ev := range events {
		switch ev.Type {
		case backend.EventProgress:
			task.mu.Lock()
			task.progress = ev.Progress
			task.mu.Unlock()
		case backend.EventCompleted:
			terminal = true
			m.complete(task, ev.Result)
		case backend.EventError:
			terminal = true
			task.mu.Lock()
			task.status = planningStatusFailed
			task.errMsg = ev.Err
			task.mu.Unlock()
			log.Printf("[Planning] task %s failed: %s", task.ID, ev.Err)
		case backend.EventCancelled:
			terminal = true
			task.mu.Lock()
			task.status = planningStatusCancelled
			task.mu.Unlock()
			log.Printf("[Planning] task %s cancelled", task.ID)
		}
	}
	if !terminal {
		task.mu.Lock()
		if task.status == planningStatusRunning {
			task.status = planningStatusFailed
			if task.errMsg == "" {
				task.errMsg = "progress stream ended before the task finished"
			}
		}
		task.mu.Unlock()
	}
}

// complete stores the finished run and opens a replay session over its
// energy trace so the result can be stepped through immediately.
func (m *planningManager) complete(task *planningTask, result *backend.Result) {
	elapsed := time.Since(task.started).Seconds()

	task.mu.Lock()
	task.status = planningStatusCompleted
	task.result = result
	task.mu.Unlock()

	var runID string
	if m.ws.runs != nil {
		run, err := m.ws.runs.InsertRun(db.Run{
			Title:         fmt.Sprintf("planning %s", task.ID),
			Model:         task.Request.Model,
			Action:        result.Action,
			Confidence:    result.Confidence,
			Energy:        result.Energy,
			EnergyHistory: result.EnergyHistory,
			Samples:       task.Request.Samples,
			Iterations:    task.Request.Iterations,
			EliteFraction: task.Request.EliteFraction,
			TimeSeconds:   elapsed,
		})
		if err != nil {
			log.Printf("[Planning] failed to store run for task %s: %v", task.ID, err)
		} else {
			runID = run.ID
		}
	}

	var sessionID string
	if len(result.EnergyHistory) > 0 {
		s, err := m.ws.sessions.Create(replay.EnergyTraceDataset(result.EnergyHistory),
			fmt.Sprintf("planning %s", task.ID), runID)
		if err != nil {
			log.Printf("[Planning] failed to open replay session for task %s: %v", task.ID, err)
		} else {
			sessionID = s.ID
		}
	}

	task.mu.Lock()
	task.runID = runID
	task.sessionID = sessionID
	task.mu.Unlock()

	log.Printf("[Planning] task %s completed energy=%.4f run=%s session=%s", task.ID, result.Energy, runID, sessionID)
}

// handlePlanningStart proxies a planning request to the backend.
// Method: POST. Body: backend.PlanningRequest fields; zero-valued CEM
// parameters fall back to the console configuration.
func (ws *WebServer) handlePlanningStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if ws.backend == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "no planning backend configured")
		return
	}

	var req backend.PlanningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.Samples == 0 {
		req.Samples = ws.cfg.GetSamples()
	}
	if req.Iterations == 0 {
		req.Iterations = ws.cfg.GetIterations()
	}
	if req.EliteFraction == 0 {
		req.EliteFraction = ws.cfg.GetEliteFraction()
	}

	task, err := ws.planning.start(req)
	if err != nil {
		ws.writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("start planning: %v", err))
		return
	}

	log.Printf("[Planning] started task %s model=%s samples=%d iterations=%d", task.ID, req.Model, req.Samples, req.Iterations)
	ws.writeJSON(w, task.snapshot())
}

// handlePlanningStatus returns the proxied view of a planning task.
// GET /api/planning/status?task_id=...
func (ws *WebServer) handlePlanningStatus(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("task_id")
	if taskID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'task_id' parameter")
		return
	}
	task, ok := ws.planning.get(taskID)
	if !ok {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown task '%s'", taskID))
		return
	}
	ws.writeJSON(w, task.snapshot())
}

// handlePlanningCancel cancels a running planning task on the backend.
// POST /api/planning/cancel?task_id=...
func (ws *WebServer) handlePlanningCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if ws.backend == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "no planning backend configured")
		return
	}
	taskID := r.URL.Query().Get("task_id")
	if taskID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'task_id' parameter")
		return
	}
	task, ok := ws.planning.get(taskID)
	if !ok {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown task '%s'", taskID))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := ws.backend.CancelTask(ctx, taskID); err != nil {
		ws.writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("cancel task: %v", err))
		return
	}

	ws.writeJSON(w, task.snapshot())
}
