package store

import (
	"database/sql"
	"fmt"
	"time"
)

// RunRecord is one persisted agent run. FinishedAt stays zero while the
// run is in flight.
type RunRecord struct {
	ID         string
	Slug       string
	Address    string
	Model      string
	State      string
	Turns      int
	Answer     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// ToolCallRecord is one tool invocation within a run. Args holds the
// JSON-encoded arguments as sent to the tool.
type ToolCallRecord struct {
	ID       int64
	RunID    string
	Turn     int
	Tool     string
	Args     string
	Output   string
	Error    string
	Duration time.Duration
}

// CreateRun inserts a new run in its initial state.
func (s *Store) CreateRun(rec *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, slug, address, model, state, turns, answer, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Slug, rec.Address, rec.Model, rec.State, rec.Turns, rec.Answer, rec.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun records the terminal state of a run.
func (s *Store) FinishRun(id, state string, turns int, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE runs SET state = ?, turns = ?, answer = ?, finished_at = ? WHERE id = ?`,
		state, turns, answer, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// GetRun retrieves a run by id.
func (s *Store) GetRun(id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec RunRecord
	var finished sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, slug, address, model, state, turns, answer, started_at, finished_at
		 FROM runs WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Slug, &rec.Address, &rec.Model, &rec.State, &rec.Turns, &rec.Answer, &rec.StartedAt, &finished)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	if finished.Valid {
		rec.FinishedAt = finished.Time
	}
	return &rec, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, slug, address, model, state, turns, answer, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var finished sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Slug, &rec.Address, &rec.Model, &rec.State, &rec.Turns, &rec.Answer, &rec.StartedAt, &finished); err != nil {
			continue
		}
		if finished.Valid {
			rec.FinishedAt = finished.Time
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// AppendToolCall records a tool invocation under a run.
func (s *Store) AppendToolCall(rec *ToolCallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT INTO tool_calls (run_id, turn, tool, args, output, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Turn, rec.Tool, rec.Args, rec.Output, rec.Error, rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert tool call: %w", err)
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}

// ListToolCalls returns the tool calls of a run in invocation order.
func (s *Store) ListToolCalls(runID string) ([]ToolCallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, run_id, turn, tool, args, output, error, duration_ms
		 FROM tool_calls WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calls []ToolCallRecord
	for rows.Next() {
		var rec ToolCallRecord
		var durationMS int64
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Turn, &rec.Tool, &rec.Args, &rec.Output, &rec.Error, &durationMS); err != nil {
			continue
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		calls = append(calls, rec)
	}
	return calls, rows.Err()
}
