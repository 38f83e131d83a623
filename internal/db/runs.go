package db

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// Run is one completed planning run kept in history.
type Run struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Title         string    `json:"title"`
	Model         string    `json:"model"`
	Action        []float64 `json:"action"`
	Confidence    float64   `json:"confidence"`
	Energy        float64   `json:"energy"`
	EnergyHistory []float64 `json:"energy_history"`
	Samples       int       `json:"samples"`
	Iterations    int       `json:"iterations"`
	EliteFraction float64   `json:"elite_fraction"`
	TimeSeconds   float64   `json:"time_seconds"`
	Favorite      bool      `json:"favorite"`
}

// RunUpdate carries the mutable fields of a run; nil means leave unchanged.
type RunUpdate struct {
	Title    *string `json:"title,omitempty"`
	Favorite *bool   `json:"favorite,omitempty"`
}

// RunStore persists completed runs.
type RunStore struct {
	db *DB
}

// NewRunStore returns a store over the given database.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// InsertRun stores a run. An empty ID is assigned a fresh uuid; an unset
// CreatedAt is stamped now. Returns the stored run.
func (s *RunStore) InsertRun(run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	action, err := json.Marshal(run.Action)
	if err != nil {
		return Run{}, fmt.Errorf("marshal action: %w", err)
	}
	history, err := json.Marshal(run.EnergyHistory)
	if err != nil {
		return Run{}, fmt.Errorf("marshal energy history: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO runs (id, created_at, title, model, action, confidence, energy,
			energy_history, samples, iterations, elite_fraction, time_seconds, favorite)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt, run.Title, run.Model, string(action), run.Confidence,
		run.Energy, string(history), run.Samples, run.Iterations, run.EliteFraction,
		run.TimeSeconds, run.Favorite)
	if err != nil {
		return Run{}, fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return run, nil
}

// GetRun fetches one run by id.
func (s *RunStore) GetRun(id string) (Run, error) {
	row := s.db.QueryRow(`
		SELECT id, created_at, title, model, action, confidence, energy,
			energy_history, samples, iterations, elite_fraction, time_seconds, favorite
		FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns runs newest-first. limit <= 0 means no limit.
func (s *RunStore) ListRuns(limit, offset int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT id, created_at, title, model, action, confidence, energy,
			energy_history, samples, iterations, elite_fraction, time_seconds, favorite
		FROM runs ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CountRuns returns the total number of stored runs.
func (s *RunStore) CountRuns() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

// UpdateRun applies the non-nil fields of upd to a run.
func (s *RunStore) UpdateRun(id string, upd RunUpdate) (Run, error) {
	run, err := s.GetRun(id)
	if err != nil {
		return Run{}, err
	}
	if upd.Title != nil {
		run.Title = *upd.Title
	}
	if upd.Favorite != nil {
		run.Favorite = *upd.Favorite
	}
	_, err = s.db.Exec(`UPDATE runs SET title = ?, favorite = ? WHERE id = ?`,
		run.Title, run.Favorite, id)
	if err != nil {
		return Run{}, fmt.Errorf("update run %s: %w", id, err)
	}
	return run, nil
}

// DeleteRun removes a run from history.
func (s *RunStore) DeleteRun(id string) error {
	res, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// ExportCSV writes the selected runs (all stored runs when ids is empty) as
// CSV. Actions are padded to three axes to keep the column set fixed.
func (s *RunStore) ExportCSV(w io.Writer, ids []string) error {
	runs, err := s.selectForExport(ids)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{
		"id", "created_at", "title", "model", "confidence", "energy",
		"time_seconds", "samples", "iterations", "elite_fraction", "favorite",
		"action_x", "action_y", "action_z",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, run := range runs {
		action := append(append([]float64(nil), run.Action...), 0, 0, 0)[:3]
		record := []string{
			run.ID,
			run.CreatedAt.UTC().Format(time.RFC3339),
			run.Title,
			run.Model,
			formatFloat(run.Confidence),
			formatFloat(run.Energy),
			formatFloat(run.TimeSeconds),
			strconv.Itoa(run.Samples),
			strconv.Itoa(run.Iterations),
			formatFloat(run.EliteFraction),
			strconv.FormatBool(run.Favorite),
			formatFloat(action[0]),
			formatFloat(action[1]),
			formatFloat(action[2]),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportJSON writes the selected runs (all when ids is empty) as a JSON
// document with an export timestamp and count.
func (s *RunStore) ExportJSON(w io.Writer, ids []string) error {
	runs, err := s.selectForExport(ids)
	if err != nil {
		return err
	}
	doc := struct {
		ExportedAt time.Time `json:"exported_at"`
		Count      int       `json:"count"`
		Runs       []Run     `json:"runs"`
	}{
		ExportedAt: time.Now().UTC(),
		Count:      len(runs),
		Runs:       runs,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func (s *RunStore) selectForExport(ids []string) ([]Run, error) {
	if len(ids) == 0 {
		return s.ListRuns(0, 0)
	}
	runs := make([]Run, 0, len(ids))
	for _, id := range ids {
		run, err := s.GetRun(id)
		if errors.Is(err, ErrRunNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if len(runs) == 0 {
		return nil, ErrRunNotFound
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var action, history string
	err := row.Scan(&run.ID, &run.CreatedAt, &run.Title, &run.Model, &action,
		&run.Confidence, &run.Energy, &history, &run.Samples, &run.Iterations,
		&run.EliteFraction, &run.TimeSeconds, &run.Favorite)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(action), &run.Action); err != nil {
		return Run{}, fmt.Errorf("decode action for run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(history), &run.EnergyHistory); err != nil {
		return Run{}, fmt.Errorf("decode energy history for run %s: %w", run.ID, err)
	}
	return run, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
