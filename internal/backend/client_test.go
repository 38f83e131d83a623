package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartPlanning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/planning/start", r.URL.Path)

		var req PlanningRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 400, req.Samples)
		assert.Equal(t, 0.1, req.EliteFraction)

		json.NewEncoder(w).Encode(TaskHandle{
			TaskID:       "task-1",
			Status:       "queued",
			WebSocketURL: "/ws/planning/task-1",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	handle, err := c.StartPlanning(context.Background(), PlanningRequest{
		Model:         "vit-giant",
		Samples:       400,
		Iterations:    10,
		EliteFraction: 0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, "task-1", handle.TaskID)
	assert.Equal(t, "/ws/planning/task-1", handle.WebSocketURL)
}

func TestTaskResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/planning/result/task-9", r.URL.Path)
		json.NewEncoder(w).Encode(TaskStatus{
			TaskID: "task-9",
			Status: "completed",
			Result: &Result{
				Action:        []float64{1.2, -0.4, 0.9},
				Confidence:    0.87,
				Energy:        1.4,
				EnergyHistory: []float64{6, 4, 2, 1.4},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	status, err := c.TaskResult(context.Background(), "task-9")
	require.NoError(t, err)
	assert.Equal(t, "completed", status.Status)
	require.NotNil(t, status.Result)
	assert.Len(t, status.Result.EnergyHistory, 4)
}

func TestBackendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"task not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	_, err := c.TaskResult(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestCancelTask(t *testing.T) {
	var cancelled bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/planning/cancel/task-3", r.URL.Path)
		cancelled = true
		json.NewEncoder(w).Encode(map[string]string{"status": "cancelled"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	require.NoError(t, c.CancelTask(context.Background(), "task-3"))
	assert.True(t, cancelled)
}

func TestDecodeEvent(t *testing.T) {
	t.Run("progress", func(t *testing.T) {
		ev, terminal, err := decodeEvent(EventProgress, json.RawMessage(
			`{"iteration":3,"total_iterations":10,"best_energy":2.5,"energy_history":[6,4,2.5],"samples_evaluated":1200,"elapsed_seconds":2.1,"eta_seconds":4.9}`))
		require.NoError(t, err)
		assert.False(t, terminal)
		require.NotNil(t, ev.Progress)
		assert.Equal(t, 3, ev.Progress.Iteration)
		assert.Equal(t, []float64{6, 4, 2.5}, ev.Progress.EnergyHistory)
	})

	t.Run("completed is terminal", func(t *testing.T) {
		ev, terminal, err := decodeEvent(EventCompleted, json.RawMessage(
			`{"action":[1,2,3],"confidence":0.9,"energy":1.1,"energy_history":[3,2,1.1]}`))
		require.NoError(t, err)
		assert.True(t, terminal)
		require.NotNil(t, ev.Result)
		assert.Equal(t, []float64{1, 2, 3}, ev.Result.Action)
	})

	t.Run("error carries message", func(t *testing.T) {
		ev, terminal, err := decodeEvent(EventError, json.RawMessage(`{"message":"model load failed"}`))
		require.NoError(t, err)
		assert.True(t, terminal)
		assert.Equal(t, "model load failed", ev.Err)
	})

	t.Run("cancelled", func(t *testing.T) {
		ev, terminal, err := decodeEvent(EventCancelled, json.RawMessage(`{}`))
		require.NoError(t, err)
		assert.True(t, terminal)
		assert.Equal(t, EventCancelled, ev.Type)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, _, err := decodeEvent(EventType("noise"), json.RawMessage(`{}`))
		require.Error(t, err)
	})
}

func TestHTTPToWS(t *testing.T) {
	assert.Equal(t, "ws://host:8000", httpToWS("http://host:8000"))
	assert.Equal(t, "wss://host", httpToWS("https://host"))
}
