package console

import (
	"bytes"
	"image/gif"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclight-robotics/planview/internal/testutil"
)

func startExport(t *testing.T, ws *WebServer, sessionID, format string) ExportJobStatus {
	t.Helper()
	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/export/start", map[string]interface{}{
		"session_id": sessionID,
		"format":     format,
		"width":      320,
		"height":     240,
		"fps":        10,
		"filename":   "test-replay",
	})
	rec := httptest.NewRecorder()
	ws.handleExportStart(rec, req)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var status ExportJobStatus
	testutil.DecodeJSON(t, rec, &status)
	require.NotEmpty(t, status.JobID)
	return status
}

func waitForJob(t *testing.T, ws *WebServer, jobID string) *exportJob {
	t.Helper()
	job, ok := ws.exports.get(jobID)
	require.True(t, ok, "job %s not registered", jobID)
	select {
	case <-job.done:
	case <-time.After(30 * time.Second):
		t.Fatalf("export job %s did not finish", jobID)
	}
	return job
}

func TestExportJobGIFLifecycle(t *testing.T) {
	ws := newTestServer(t)
	session := createSession(t, ws, 4, 40)

	status := startExport(t, ws, session.SessionID, "gif")
	assert.Equal(t, exportStatusRunning, status.Status)
	assert.Equal(t, "test-replay.gif", status.Filename)

	waitForJob(t, ws, status.JobID)

	rec := httptest.NewRecorder()
	ws.handleExportStatus(rec, httptest.NewRequest(http.MethodGet, "/api/export/status?job_id="+status.JobID, nil))
	testutil.DecodeJSON(t, rec, &status)
	assert.Equal(t, exportStatusDone, status.Status)
	assert.Equal(t, 100.0, status.Percent)

	rec = httptest.NewRecorder()
	ws.handleExportDownload(rec, httptest.NewRequest(http.MethodGet, "/api/export/download?job_id="+status.JobID, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "test-replay.gif")

	decoded, err := gif.DecodeAll(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Len(t, decoded.Image, 4)

	// The artefact is removed after download.
	rec = httptest.NewRecorder()
	ws.handleExportDownload(rec, httptest.NewRequest(http.MethodGet, "/api/export/download?job_id="+status.JobID, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusGone)
}

func TestExportJobPNGSequence(t *testing.T) {
	ws := newTestServer(t)
	session := createSession(t, ws, 3, 30)

	status := startExport(t, ws, session.SessionID, "png-sequence")
	assert.Equal(t, "test-replay.zip", status.Filename)

	waitForJob(t, ws, status.JobID)

	rec := httptest.NewRecorder()
	ws.handleExportDownload(rec, httptest.NewRequest(http.MethodGet, "/api/export/download?job_id="+status.JobID, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.NotZero(t, rec.Body.Len())
}

func TestExportCancel(t *testing.T) {
	ws := newTestServer(t)
	session := createSession(t, ws, 20, 200)

	status := startExport(t, ws, session.SessionID, "gif")

	rec := httptest.NewRecorder()
	ws.handleExportCancel(rec, httptest.NewRequest(http.MethodPost, "/api/export/cancel?job_id="+status.JobID, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	testutil.DecodeJSON(t, rec, &status)

	// Cancellation raced with completion; both outcomes leave the job in a
	// terminal state and a cancelled job keeps no artefact.
	job := waitForJob(t, ws, status.JobID)
	job.mu.Lock()
	finalStatus := job.status
	path := job.path
	job.mu.Unlock()

	assert.Contains(t, []string{exportStatusCancelled, exportStatusDone}, finalStatus)
	if finalStatus == exportStatusCancelled {
		assert.Empty(t, path)
	} else if path != "" {
		os.Remove(path)
	}

	if finalStatus == exportStatusCancelled {
		rec = httptest.NewRecorder()
		ws.handleExportDownload(rec, httptest.NewRequest(http.MethodGet, "/api/export/download?job_id="+status.JobID, nil))
		testutil.AssertStatusCode(t, rec.Code, http.StatusGone)
	}
}

func TestExportStartValidation(t *testing.T) {
	ws := newTestServer(t)
	session := createSession(t, ws, 3, 30)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/export/start", map[string]interface{}{
		"session_id": session.SessionID,
		"format":     "avi",
	})
	rec := httptest.NewRecorder()
	ws.handleExportStart(rec, req)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	req = testutil.NewJSONRequest(t, http.MethodPost, "/api/export/start", map[string]interface{}{
		"session_id": "nope",
		"format":     "gif",
	})
	rec = httptest.NewRecorder()
	ws.handleExportStart(rec, req)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)

	rec = httptest.NewRecorder()
	ws.handleExportStatus(rec, httptest.NewRequest(http.MethodGet, "/api/export/status?job_id=missing", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}
