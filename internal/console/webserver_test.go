package console

import (
	"bytes"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclight-robotics/planview/internal/config"
	"github.com/arclight-robotics/planview/internal/db"
	"github.com/arclight-robotics/planview/internal/testutil"
)

func newTestServer(t *testing.T) *WebServer {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "console_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.MigrateUp())

	ws := NewWebServer(WebServerConfig{
		Address: ":0",
		Runs:    db.NewRunStore(database),
		Config:  config.EmptyConsoleConfig(),
	})
	t.Cleanup(ws.sessions.CloseAll)
	t.Cleanup(ws.exports.cancelAll)
	return ws
}

func createSession(t *testing.T, ws *WebServer, iterations, samples int) SessionSummary {
	t.Helper()
	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/replay/session", map[string]interface{}{
		"iterations":     iterations,
		"samples":        samples,
		"elite_fraction": 0.1,
		"label":          "test run",
	})
	rec := httptest.NewRecorder()
	ws.handleSessionCreate(rec, req)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var summary SessionSummary
	testutil.DecodeJSON(t, rec, &summary)
	require.NotEmpty(t, summary.SessionID)
	return summary
}

func TestHealthEndpoint(t *testing.T) {
	ws := newTestServer(t)

	rec := httptest.NewRecorder()
	ws.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Body.String(), `"service": "planview"`)
}

func TestConsolePage(t *testing.T) {
	ws := newTestServer(t)
	createSession(t, ws, 5, 50)

	rec := httptest.NewRecorder()
	ws.handleConsolePage(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Body.String(), "CEM Replay Console")
	assert.Contains(t, rec.Body.String(), "test run")
}

func TestSessionLifecycle(t *testing.T) {
	ws := newTestServer(t)

	summary := createSession(t, ws, 8, 100)
	assert.Equal(t, 8, summary.Iterations)
	assert.True(t, summary.HasSamples)
	assert.Equal(t, 1, summary.Playback.CurrentIteration)
	assert.False(t, summary.Playback.Playing)

	rec := httptest.NewRecorder()
	ws.handleSessionList(rec, httptest.NewRequest(http.MethodGet, "/api/replay/sessions", nil))
	var list []SessionSummary
	testutil.DecodeJSON(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, summary.SessionID, list[0].SessionID)

	rec = httptest.NewRecorder()
	ws.handleSessionDelete(rec, httptest.NewRequest(http.MethodPost, "/api/replay/session/delete?session_id="+summary.SessionID, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	rec = httptest.NewRecorder()
	ws.handleSessionDelete(rec, httptest.NewRequest(http.MethodPost, "/api/replay/session/delete?session_id="+summary.SessionID, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestSessionCreateRejectsBadParams(t *testing.T) {
	ws := newTestServer(t)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/replay/session", map[string]interface{}{
		"iterations":     5,
		"samples":        5,
		"elite_fraction": 0.1,
	})
	rec := httptest.NewRecorder()
	ws.handleSessionCreate(rec, req)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestPlaybackControls(t *testing.T) {
	ws := newTestServer(t)
	summary := createSession(t, ws, 10, 50)
	qs := "?session_id=" + summary.SessionID

	var resp struct {
		Success  bool `json:"success"`
		Playback struct {
			CurrentIteration int     `json:"current_iteration"`
			Playing          bool    `json:"playing"`
			Speed            float64 `json:"speed"`
			Loop             bool    `json:"loop"`
		} `json:"playback"`
	}

	rec := httptest.NewRecorder()
	ws.handlePlaybackPlay(rec, httptest.NewRequest(http.MethodPost, "/api/playback/play"+qs, nil))
	testutil.DecodeJSON(t, rec, &resp)
	assert.True(t, resp.Playback.Playing)

	rec = httptest.NewRecorder()
	ws.handlePlaybackSeek(rec, testutil.NewJSONRequest(t, http.MethodPost, "/api/playback/seek"+qs, map[string]int{"iteration": 7}))
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, 7, resp.Playback.CurrentIteration)
	assert.False(t, resp.Playback.Playing, "scrubbing should pause playback")

	rec = httptest.NewRecorder()
	ws.handlePlaybackRate(rec, testutil.NewJSONRequest(t, http.MethodPost, "/api/playback/rate"+qs, map[string]float64{"rate": 4}))
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, 4.0, resp.Playback.Speed)

	rec = httptest.NewRecorder()
	ws.handlePlaybackRate(rec, testutil.NewJSONRequest(t, http.MethodPost, "/api/playback/rate"+qs, map[string]float64{"rate": 0}))
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = httptest.NewRecorder()
	ws.handlePlaybackLoop(rec, testutil.NewJSONRequest(t, http.MethodPost, "/api/playback/loop"+qs, map[string]bool{"loop": true}))
	testutil.DecodeJSON(t, rec, &resp)
	assert.True(t, resp.Playback.Loop)

	rec = httptest.NewRecorder()
	ws.handlePlaybackStop(rec, httptest.NewRequest(http.MethodPost, "/api/playback/stop"+qs, nil))
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, 1, resp.Playback.CurrentIteration)
	assert.False(t, resp.Playback.Playing)

	rec = httptest.NewRecorder()
	ws.handlePlaybackStatus(rec, httptest.NewRequest(http.MethodGet, "/api/playback/status?session_id=nope", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestReplayFramePNG(t *testing.T) {
	ws := newTestServer(t)
	summary := createSession(t, ws, 4, 40)

	rec := httptest.NewRecorder()
	ws.handleReplayFrame(rec, httptest.NewRequest(http.MethodGet,
		"/api/replay/frame?session_id="+summary.SessionID+"&iteration=2", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 960, img.Bounds().Dx())
	assert.Equal(t, 720, img.Bounds().Dy())

	rec = httptest.NewRecorder()
	ws.handleReplayFrame(rec, httptest.NewRequest(http.MethodGet,
		"/api/replay/frame?session_id="+summary.SessionID+"&iteration=9", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestIterationChartEndpoints(t *testing.T) {
	ws := newTestServer(t)
	summary := createSession(t, ws, 5, 60)

	rec := httptest.NewRecorder()
	ws.handleIterationChartData(rec, httptest.NewRequest(http.MethodGet,
		"/api/replay/chart?session_id="+summary.SessionID+"&iteration=2", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var data IterationChartData
	testutil.DecodeJSON(t, rec, &data)
	assert.Equal(t, 2, data.Iteration)
	assert.Len(t, data.Points, 60)

	rec = httptest.NewRecorder()
	ws.handleIterationChartPage(rec, httptest.NewRequest(http.MethodGet,
		"/api/replay/charts/iteration?session_id="+summary.SessionID, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Sample Distribution")
}

func TestRunHistoryEndpoints(t *testing.T) {
	ws := newTestServer(t)

	inserted, err := ws.runs.InsertRun(db.Run{
		Title:         "stored run",
		Model:         "dummy",
		Action:        []float64{1, 2, 3},
		EnergyHistory: []float64{4, 3, 2, 1},
		Samples:       100,
		Iterations:    4,
		EliteFraction: 0.1,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	ws.handleRunsList(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var listResp struct {
		Runs  []db.Run `json:"runs"`
		Total int      `json:"total"`
	}
	testutil.DecodeJSON(t, rec, &listResp)
	require.Len(t, listResp.Runs, 1)
	assert.Equal(t, 1, listResp.Total)

	rec = httptest.NewRecorder()
	ws.handleRunUpdate(rec, testutil.NewJSONRequest(t, http.MethodPost,
		"/api/runs/update?run_id="+inserted.ID, map[string]interface{}{"favorite": true}))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var updated db.Run
	testutil.DecodeJSON(t, rec, &updated)
	assert.True(t, updated.Favorite)

	// Replaying a stored run opens a trace-only session.
	rec = httptest.NewRecorder()
	ws.handleRunReplay(rec, httptest.NewRequest(http.MethodPost, "/api/runs/replay?run_id="+inserted.ID, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var session SessionSummary
	testutil.DecodeJSON(t, rec, &session)
	assert.Equal(t, 4, session.Iterations)
	assert.False(t, session.HasSamples)
	assert.Equal(t, inserted.ID, session.RunID)

	rec = httptest.NewRecorder()
	ws.handleRunsExport(rec, httptest.NewRequest(http.MethodGet, "/api/runs/export?format=csv", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "id,created_at,"))

	rec = httptest.NewRecorder()
	ws.handleRunsExport(rec, httptest.NewRequest(http.MethodGet, "/api/runs/export?format=xml", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = httptest.NewRecorder()
	ws.handleRunDelete(rec, httptest.NewRequest(http.MethodPost, "/api/runs/delete?run_id="+inserted.ID, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	rec = httptest.NewRecorder()
	ws.handleRunGet(rec, httptest.NewRequest(http.MethodGet, "/api/runs/get?run_id="+inserted.ID, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestPresetEndpoints(t *testing.T) {
	ws := newTestServer(t)

	rec := httptest.NewRecorder()
	ws.handlePresets(rec, httptest.NewRequest(http.MethodGet, "/api/presets", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var presets []config.Preset
	testutil.DecodeJSON(t, rec, &presets)
	assert.Len(t, presets, 4)

	rec = httptest.NewRecorder()
	ws.handlePresets(rec, testutil.NewJSONRequest(t, http.MethodPost, "/api/presets", map[string]interface{}{
		"name": "bench",
		"config": map[string]interface{}{
			"model": "vit-huge", "samples": 200, "iterations": 8, "elite_fraction": 0.1,
		},
	}))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var created config.Preset
	testutil.DecodeJSON(t, rec, &created)
	assert.Equal(t, "custom", created.Category)

	rec = httptest.NewRecorder()
	ws.handlePresetUse(rec, httptest.NewRequest(http.MethodPost, "/api/presets/use?preset_id=quick", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var useResp struct {
		UseCount int `json:"use_count"`
	}
	testutil.DecodeJSON(t, rec, &useResp)
	assert.Equal(t, 1, useResp.UseCount)

	rec = httptest.NewRecorder()
	ws.handlePresetDelete(rec, httptest.NewRequest(http.MethodPost, "/api/presets/delete?preset_id=quick", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = httptest.NewRecorder()
	ws.handlePresetDelete(rec, httptest.NewRequest(http.MethodPost, "/api/presets/delete?preset_id="+created.ID, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
}

func TestPlanningWithoutBackend(t *testing.T) {
	ws := newTestServer(t)

	rec := httptest.NewRecorder()
	ws.handlePlanningStart(rec, testutil.NewJSONRequest(t, http.MethodPost, "/api/planning/start", map[string]string{
		"current_image": "a", "goal_image": "b", "model": "vit-giant",
	}))
	testutil.AssertStatusCode(t, rec.Code, http.StatusServiceUnavailable)

	rec = httptest.NewRecorder()
	ws.handlePlanningStatus(rec, httptest.NewRequest(http.MethodGet, "/api/planning/status?task_id=x", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}
