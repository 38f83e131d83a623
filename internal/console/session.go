package console

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arclight-robotics/planview/internal/replay"
)

// runSession binds one replay dataset to its playback scheduler.
type runSession struct {
	ID        string
	Label     string
	RunID     string
	Dataset   *replay.RunDataset
	Scheduler *replay.Scheduler
	CreatedAt time.Time
}

// SessionSummary is the JSON shape returned by the session endpoints.
type SessionSummary struct {
	SessionID  string               `json:"session_id"`
	Label      string               `json:"label"`
	RunID      string               `json:"run_id,omitempty"`
	Iterations int                  `json:"iterations"`
	HasSamples bool                 `json:"has_samples"`
	CreatedAt  time.Time            `json:"created_at"`
	Playback   replay.PlaybackState `json:"playback"`
}

// SessionManager tracks the replay sessions currently held in memory.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*runSession
}

// NewSessionManager returns an empty session registry.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*runSession)}
}

// Create registers a new session over the dataset and returns it.
func (m *SessionManager) Create(ds *replay.RunDataset, label, runID string) (*runSession, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, fmt.Errorf("dataset has no iterations")
	}

	s := &runSession{
		ID:        uuid.New().String(),
		Label:     label,
		RunID:     runID,
		Dataset:   ds,
		Scheduler: replay.NewScheduler(ds.Len()),
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns the session with the given id.
func (m *SessionManager) Get(id string) (*runSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List returns summaries of all sessions, newest first.
func (m *SessionManager) List() []SessionSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SessionSummary, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, summarize(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

// Delete closes the session's scheduler and removes it from the registry.
func (m *SessionManager) Delete(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if ok {
		s.Scheduler.Close()
	}
	return ok
}

// CloseAll drops every session. Called on server shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*runSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*runSession)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Scheduler.Close()
	}
}

func summarize(s *runSession) SessionSummary {
	return SessionSummary{
		SessionID:  s.ID,
		Label:      s.Label,
		RunID:      s.RunID,
		Iterations: s.Dataset.Len(),
		HasSamples: s.Dataset.HasSamples(),
		CreatedAt:  s.CreatedAt,
		Playback:   s.Scheduler.State(),
	}
}
