// Package backend is the client for the external robot-action-planning
// service. The console starts planning tasks over HTTP and follows their
// progress over a websocket stream; the replay subsystem consumes only the
// iteration counters and best-energy trace the backend reports.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// PlanningRequest configures a planning task.
type PlanningRequest struct {
	CurrentImage  string  `json:"current_image"`
	GoalImage     string  `json:"goal_image"`
	Model         string  `json:"model"`
	Samples       int     `json:"samples"`
	Iterations    int     `json:"iterations"`
	EliteFraction float64 `json:"elite_fraction"`
}

// TaskHandle identifies a planning task and where to stream its progress.
type TaskHandle struct {
	TaskID       string `json:"task_id"`
	Status       string `json:"status"`
	WebSocketURL string `json:"websocket_url"`
}

// Progress is one progressive update from a running task.
type Progress struct {
	Iteration        int       `json:"iteration"`
	TotalIterations  int       `json:"total_iterations"`
	BestEnergy       float64   `json:"best_energy"`
	EnergyHistory    []float64 `json:"energy_history"`
	SamplesEvaluated int       `json:"samples_evaluated"`
	ElapsedSeconds   float64   `json:"elapsed_seconds"`
	EtaSeconds       float64   `json:"eta_seconds"`
}

// Result is the terminal payload of a completed task.
type Result struct {
	Action        []float64 `json:"action"`
	Confidence    float64   `json:"confidence"`
	Energy        float64   `json:"energy"`
	EnergyHistory []float64 `json:"energy_history"`
}

// TaskStatus is the polled view of a task.
type TaskStatus struct {
	TaskID   string    `json:"task_id"`
	Status   string    `json:"status"`
	Progress *Progress `json:"progress,omitempty"`
	Result   *Result   `json:"result,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// EventType tags messages on the progress stream.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
	EventCancelled EventType = "cancelled"
)

// Event is one decoded message from the progress stream.
type Event struct {
	Type     EventType
	Progress *Progress
	Result   *Result
	Err      string
}

// Client talks to one planning backend instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a backend client for the given base URL, e.g.
// "http://localhost:8000". A nil httpClient uses a default with a sane
// timeout for the non-streaming endpoints.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// StartPlanning submits a planning request and returns the task handle.
func (c *Client) StartPlanning(ctx context.Context, req PlanningRequest) (*TaskHandle, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal planning request: %w", err)
	}

	var handle TaskHandle
	if err := c.postJSON(ctx, "/api/planning/start", bytes.NewReader(body), &handle); err != nil {
		return nil, err
	}
	return &handle, nil
}

// TaskResult fetches the current status (and result, when finished) of a task.
func (c *Client) TaskResult(ctx context.Context, taskID string) (*TaskStatus, error) {
	u := c.baseURL + "/api/planning/result/" + url.PathEscape(taskID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var status TaskStatus
	if err := c.doJSON(httpReq, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CancelTask asks the backend to cancel a running task.
func (c *Client) CancelTask(ctx context.Context, taskID string) error {
	u := c.baseURL + "/api/planning/cancel/" + url.PathEscape(taskID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return err
	}
	return c.doJSON(httpReq, nil)
}

// StreamProgress connects to a task's websocket stream and delivers decoded
// events on the returned channel until a terminal event arrives, the stream
// drops, or ctx is cancelled. The channel is closed when the stream ends.
func (c *Client) StreamProgress(ctx context.Context, handle *TaskHandle) (<-chan Event, error) {
	wsURL := handle.WebSocketURL
	if !strings.Contains(wsURL, "://") {
		wsURL = httpToWS(c.baseURL) + wsURL
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial progress stream: %w", err)
	}

	events := make(chan Event, 8)
	go func() {
		defer close(events)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		for {
			var msg struct {
				Type EventType       `json:"type"`
				Data json.RawMessage `json:"data"`
			}
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				if ctx.Err() == nil {
					log.Printf("[Backend] progress stream for task %s ended: %v", handle.TaskID, err)
				}
				return
			}

			ev, terminal, err := decodeEvent(msg.Type, msg.Data)
			if err != nil {
				log.Printf("[Backend] dropping malformed %s message: %v", msg.Type, err)
				continue
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
			if terminal {
				return
			}
		}
	}()
	return events, nil
}

func decodeEvent(typ EventType, data json.RawMessage) (Event, bool, error) {
	switch typ {
	case EventProgress:
		var p Progress
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, false, err
		}
		return Event{Type: typ, Progress: &p}, false, nil
	case EventCompleted:
		var r Result
		if err := json.Unmarshal(data, &r); err != nil {
			return Event{}, true, err
		}
		return Event{Type: typ, Result: &r}, true, nil
	case EventError:
		var e struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &e); err != nil {
			return Event{}, true, err
		}
		return Event{Type: typ, Err: e.Message}, true, nil
	case EventCancelled:
		return Event{Type: typ}, true, nil
	}
	return Event{}, false, fmt.Errorf("unknown event type %q", typ)
}

func (c *Client) postJSON(ctx context.Context, path string, body io.Reader, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.doJSON(httpReq, out)
}

func (c *Client) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("backend %s: status %d: %s", req.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode backend response %s: %w", req.URL.Path, err)
	}
	return nil
}

func httpToWS(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
